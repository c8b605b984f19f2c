package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/models"
)

// Store is the persistence dependency injected into the engine. InTx runs fn
// inside a single atomic unit of work: if fn returns an error nothing it did
// through the Tx is visible afterwards.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	UnsyncedOrders(ctx context.Context) ([]models.Order, error)
}

// Tx is the transactional view the engine composes its operations from.
// Product stock is only ever touched through ReserveStock and RestoreStock.
type Tx interface {
	// UserExists reports whether the user exists.
	UserExists(ctx context.Context, userID int64) (bool, error)

	// ReserveStock atomically decrements the product's stock by quantity and
	// returns the product's price at the moment of the decrement. It fails
	// with a ProductNotFoundError if the product does not exist or is
	// soft-deleted, and with an InsufficientStockError if the committed
	// stock is below quantity. Two concurrent reservations that would
	// jointly oversell must not both succeed.
	ReserveStock(ctx context.Context, productID int64, quantity int) (decimal.Decimal, error)

	// RestoreStock atomically increments the product's stock by quantity.
	RestoreStock(ctx context.Context, productID int64, quantity int) error

	// InsertOrder persists the order and its items as one unit, filling in
	// generated ids and timestamps.
	InsertOrder(ctx context.Context, order *models.Order) error

	// GetOrderForUpdate loads the order with its items and holds it against
	// concurrent status changes until the transaction ends. Returns
	// ErrOrderNotFound if no such order exists.
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)

	// SetOrderStatus persists a new status and resets the ERP sync flag so
	// the transition is exported again.
	SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error

	// MarkSynced records that the order was exported to the ERP.
	MarkSynced(ctx context.Context, id int64) error
}
