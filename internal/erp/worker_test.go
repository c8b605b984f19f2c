package erp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/storeops/order-engine/internal/engine"
	"github.com/storeops/order-engine/internal/erp"
	"github.com/storeops/order-engine/internal/models"
	"github.com/storeops/order-engine/internal/storetest"
)

type capturingPublisher struct {
	events []erp.OrderStatusEvent
	fail   bool
}

func (p *capturingPublisher) Publish(ctx context.Context, event erp.OrderStatusEvent) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func TestSyncOnceExportsAndMarks(t *testing.T) {
	store := storetest.NewMemStore()
	eng := engine.New(store)
	ctx := context.Background()

	user := store.AddUser("erp@example.com", "ERP User")
	product := store.AddProduct("Widget", decimal.RequireFromString("4.00"), 10)

	order, err := eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
		{ProductID: product.ID, Quantity: 2},
	})
	require.NoError(t, err)

	pub := &capturingPublisher{}
	worker := erp.NewWorker(eng, pub, time.Minute)

	require.NoError(t, worker.SyncOnce(ctx))
	require.Len(t, pub.events, 1)
	event := pub.events[0]
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, order.Number, event.Number)
	assert.Equal(t, models.StatusPending, event.Status)
	assert.True(t, event.Total.Equal(decimal.RequireFromString("8.00")))

	// Nothing left to export; a second pass publishes nothing.
	require.NoError(t, worker.SyncOnce(ctx))
	assert.Len(t, pub.events, 1)

	// A status change re-queues the order and a fresh event goes out.
	_, err = eng.UpdateOrderStatus(ctx, order.ID, models.StatusPaid)
	require.NoError(t, err)
	require.NoError(t, worker.SyncOnce(ctx))
	require.Len(t, pub.events, 2)
	assert.Equal(t, models.StatusPaid, pub.events[1].Status)
	assert.NotEqual(t, pub.events[0].EventID, pub.events[1].EventID)
}

func TestSyncOnceKeepsOrderUnsyncedOnPublishFailure(t *testing.T) {
	store := storetest.NewMemStore()
	eng := engine.New(store)
	ctx := context.Background()

	user := store.AddUser("erp2@example.com", "ERP User")
	product := store.AddProduct("Widget", decimal.RequireFromString("4.00"), 10)

	_, err := eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
		{ProductID: product.ID, Quantity: 1},
	})
	require.NoError(t, err)

	pub := &capturingPublisher{fail: true}
	worker := erp.NewWorker(eng, pub, time.Minute)

	require.Error(t, worker.SyncOnce(ctx))

	unsynced, err := eng.UnsyncedOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1, "failed publish must leave the order queued")

	pub.fail = false
	require.NoError(t, worker.SyncOnce(ctx))
	unsynced, err = eng.UnsyncedOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}
