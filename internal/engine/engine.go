// Package engine implements order creation, status transitions and the
// stock ledger that backs them. Every entry point runs as one atomic unit
// of work against the injected store: on any error the caller observes no
// partial stock debit, restore or status change.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/models"
)

type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

type ItemRequest struct {
	ProductID int64
	Quantity  int
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%s", uuid.NewString())
}

// CreateOrder reserves stock for every requested item in caller-supplied
// order, freezes each unit price at reservation time and persists the order
// with status pending. Duplicate product ids are reserved independently, so
// stock must cover each decrement as it happens. Any reservation failure
// rolls back all prior ones.
func (e *Engine) CreateOrder(ctx context.Context, userID int64, items []ItemRequest) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID, Quantity: item.Quantity}
		}
	}

	var orderID int64
	err := e.store.InTx(ctx, func(tx Tx) error {
		exists, err := tx.UserExists(ctx, userID)
		if err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return ErrUserNotFound
		}

		order := &models.Order{
			UserID: userID,
			Number: generateOrderNumber(),
			Status: models.StatusPending,
		}

		total := decimal.Zero
		for _, item := range items {
			price, err := tx.ReserveStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}

			subtotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			order.Items = append(order.Items, models.OrderItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: price,
				Subtotal:  subtotal,
			})
			total = total.Add(subtotal)
		}
		order.Total = total

		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.store.GetOrder(ctx, orderID)
}

// UpdateOrderStatus applies one edge of the status state machine. A
// transition to cancelled goes through the full cancel path so the stock the
// order debited is restored; every other valid transition changes status
// only.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID int64, next models.OrderStatus) (*models.Order, error) {
	err := e.store.InTx(ctx, func(tx Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if !next.Valid() || !order.Status.CanTransitionTo(next) {
			return &InvalidTransitionError{From: order.Status, To: next}
		}

		if next == models.StatusCancelled {
			return cancelLocked(ctx, tx, order)
		}
		return tx.SetOrderStatus(ctx, orderID, next)
	})
	if err != nil {
		return nil, err
	}

	return e.store.GetOrder(ctx, orderID)
}

// CancelOrder restores the stock every item debited and marks the order
// cancelled, atomically. Delivered orders cannot be cancelled; cancelling
// twice is an error.
func (e *Engine) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	err := e.store.InTx(ctx, func(tx Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.StatusCancelled:
			return ErrAlreadyCancelled
		case models.StatusDelivered:
			return ErrNotCancellable
		}

		return cancelLocked(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	return e.store.GetOrder(ctx, orderID)
}

// cancelLocked restores each item's quantity and sets the status. The caller
// holds the order locked and has already checked the transition is allowed.
func cancelLocked(ctx context.Context, tx Tx, order *models.Order) error {
	for _, item := range order.Items {
		if err := tx.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("restore stock for product %d: %w", item.ProductID, err)
		}
	}
	return tx.SetOrderStatus(ctx, order.ID, models.StatusCancelled)
}

// UnsyncedOrders lists orders the ERP has not seen in their current status.
func (e *Engine) UnsyncedOrders(ctx context.Context) ([]models.Order, error) {
	return e.store.UnsyncedOrders(ctx)
}

// MarkSynced records that the ERP received the order's current status. Sync
// state never feeds back into the state machine.
func (e *Engine) MarkSynced(ctx context.Context, orderID int64) error {
	return e.store.InTx(ctx, func(tx Tx) error {
		return tx.MarkSynced(ctx, orderID)
	})
}

// GetOrder loads a single order with its items and user details.
func (e *Engine) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}
