package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/engine"
	"github.com/storeops/order-engine/internal/models"
	"github.com/storeops/order-engine/internal/postgres"
)

func TestCreateOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStore(db)
	eng := engine.New(store)

	user, err := store.CreateUser(ctx, "test@example.com", "Test User")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	product1, err := store.CreateProduct(ctx, "TEST-ORD-001", "Product 1", "Test", decimal.NewFromInt(100), 50)
	if err != nil {
		t.Fatalf("Create product 1: %v", err)
	}

	product2, err := store.CreateProduct(ctx, "TEST-ORD-002", "Product 2", "Test", decimal.NewFromInt(200), 30)
	if err != nil {
		t.Fatalf("Create product 2: %v", err)
	}

	order, err := eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
		{ProductID: product1.ID, Quantity: 5},
		{ProductID: product2.ID, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if order.ID == 0 {
		t.Error("Order ID should not be 0")
	}
	if order.Status != models.StatusPending {
		t.Errorf("Expected status pending, got %s", order.Status)
	}

	expectedTotal := decimal.NewFromInt(100).Mul(decimal.NewFromInt(5)).
		Add(decimal.NewFromInt(200).Mul(decimal.NewFromInt(3)))

	if !order.Total.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, order.Total)
	}

	if len(order.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(order.Items))
	}
	if order.User == nil || order.User.Email != "test@example.com" {
		t.Errorf("Expected resolved user details, got %+v", order.User)
	}

	product1After, err := store.GetProduct(ctx, product1.ID)
	if err != nil {
		t.Fatalf("Get product 1: %v", err)
	}
	if product1After.Stock != 45 {
		t.Errorf("Expected product 1 stock 45, got %d", product1After.Stock)
	}

	product2After, err := store.GetProduct(ctx, product2.ID)
	if err != nil {
		t.Fatalf("Get product 2: %v", err)
	}
	if product2After.Stock != 27 {
		t.Errorf("Expected product 2 stock 27, got %d", product2After.Stock)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStore(db)
	eng := engine.New(store)

	user, err := store.CreateUser(ctx, "test2@example.com", "Test User 2")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	productA, err := store.CreateProduct(ctx, "TEST-ORD-003", "Product A", "Test", decimal.NewFromInt(100), 10)
	if err != nil {
		t.Fatalf("Create product A: %v", err)
	}

	productB, err := store.CreateProduct(ctx, "TEST-ORD-004", "Product B", "Test", decimal.NewFromInt(100), 5)
	if err != nil {
		t.Fatalf("Create product B: %v", err)
	}

	_, err = eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
		{ProductID: productA.ID, Quantity: 2},
		{ProductID: productB.ID, Quantity: 1000},
	})
	if !errors.Is(err, engine.ErrInsufficientStock) {
		t.Fatalf("Expected insufficient stock error, got: %v", err)
	}

	var stockErr *engine.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got: %v", err)
	}
	if stockErr.ProductID != productB.ID || stockErr.Requested != 1000 || stockErr.Available != 5 {
		t.Errorf("Unexpected error context: %+v", stockErr)
	}

	// The reservation for product A must have been rolled back.
	productAAfter, err := store.GetProduct(ctx, productA.ID)
	if err != nil {
		t.Fatalf("Get product A: %v", err)
	}
	if productAAfter.Stock != 10 {
		t.Errorf("Product A stock should remain 10, got %d", productAAfter.Stock)
	}
}

func TestConcurrentOrderCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStore(db)
	eng := engine.New(store)

	user, err := store.CreateUser(ctx, "test3@example.com", "Test User 3")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	product, err := store.CreateProduct(ctx, "TEST-ORD-005", "Product 5", "Test", decimal.NewFromInt(100), 5)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	concurrency := 2
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
				{ProductID: product.ID, Quantity: 3},
			})

			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	insufficientStockCount := 0

	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, engine.ErrInsufficientStock):
			insufficientStockCount++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 1 || insufficientStockCount != 1 {
		t.Errorf("Expected exactly one success and one stock failure, got %d/%d",
			successCount, insufficientStockCount)
	}

	productAfter, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.Stock != 2 {
		t.Errorf("Expected final stock 2, got %d", productAfter.Stock)
	}
}

func TestCancelOrderRestoresStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStore(db)
	eng := engine.New(store)

	user, err := store.CreateUser(ctx, "test4@example.com", "Test User 4")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	product, err := store.CreateProduct(ctx, "TEST-ORD-006", "Product 6", "Test",
		decimal.RequireFromString("9.99"), 10)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order, err := eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
		{ProductID: product.ID, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	if !order.Total.Equal(decimal.RequireFromString("29.97")) {
		t.Errorf("Expected total 29.97, got %s", order.Total)
	}

	cancelled, err := eng.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Cancel order: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Errorf("Expected status cancelled, got %s", cancelled.Status)
	}

	productAfter, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.Stock != 10 {
		t.Errorf("Expected stock restored to 10, got %d", productAfter.Stock)
	}

	_, err = eng.CancelOrder(ctx, order.ID)
	if !errors.Is(err, engine.ErrAlreadyCancelled) {
		t.Errorf("Expected already cancelled error, got: %v", err)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStore(db)
	eng := engine.New(store)

	user, err := store.CreateUser(ctx, "test5@example.com", "Test User 5")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	product, err := store.CreateProduct(ctx, "TEST-ORD-007", "Product 7", "Test", decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order, err := eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
		{ProductID: product.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	for _, next := range []models.OrderStatus{models.StatusPaid, models.StatusShipped} {
		if _, err := eng.UpdateOrderStatus(ctx, order.ID, next); err != nil {
			t.Fatalf("Transition to %s: %v", next, err)
		}
	}

	_, err = eng.UpdateOrderStatus(ctx, order.ID, models.StatusPending)
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("Expected invalid transition error, got: %v", err)
	}

	reloaded, err := eng.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if reloaded.Status != models.StatusShipped {
		t.Errorf("Status should remain shipped, got %s", reloaded.Status)
	}

	if _, err := eng.UpdateOrderStatus(ctx, order.ID, models.StatusDelivered); err != nil {
		t.Fatalf("Transition to delivered: %v", err)
	}

	_, err = eng.CancelOrder(ctx, order.ID)
	if !errors.Is(err, engine.ErrNotCancellable) {
		t.Errorf("Expected not cancellable error, got: %v", err)
	}
}

func TestUnsyncedOrdersLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStore(db)
	eng := engine.New(store)

	user, err := store.CreateUser(ctx, "test6@example.com", "Test User 6")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	product, err := store.CreateProduct(ctx, "TEST-ORD-008", "Product 8", "Test", decimal.NewFromInt(10), 10)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	order, err := eng.CreateOrder(ctx, user.ID, []engine.ItemRequest{
		{ProductID: product.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	unsynced, err := eng.UnsyncedOrders(ctx)
	if err != nil {
		t.Fatalf("List unsynced: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].ID != order.ID {
		t.Fatalf("Expected the new order unsynced, got %+v", unsynced)
	}

	if err := eng.MarkSynced(ctx, order.ID); err != nil {
		t.Fatalf("Mark synced: %v", err)
	}

	unsynced, err = eng.UnsyncedOrders(ctx)
	if err != nil {
		t.Fatalf("List unsynced: %v", err)
	}
	if len(unsynced) != 0 {
		t.Fatalf("Expected no unsynced orders, got %d", len(unsynced))
	}

	if _, err := eng.UpdateOrderStatus(ctx, order.ID, models.StatusPaid); err != nil {
		t.Fatalf("Update status: %v", err)
	}

	unsynced, err = eng.UnsyncedOrders(ctx)
	if err != nil {
		t.Fatalf("List unsynced: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].Status != models.StatusPaid {
		t.Fatalf("Expected the order re-queued after status change, got %+v", unsynced)
	}
}
