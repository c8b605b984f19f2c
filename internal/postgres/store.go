// Package postgres implements the engine's Store on top of database/sql and
// lib/pq. Stock mutations use a row lock plus a conditional decrement so two
// concurrent reservations can never jointly oversell a product.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/database"
	"github.com/storeops/order-engine/internal/engine"
	"github.com/storeops/order-engine/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	return database.WithRetry(ctx, s.db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		return fn(&storeTx{tx: tx})
	})
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}
	user := &models.User{}

	query := `
		SELECT o.id, o.user_id, o.order_number, o.status, o.total, o.synced,
		       o.created_at, o.updated_at,
		       u.id, u.email, u.name, u.created_at, u.updated_at
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.id = $1
		  AND o.deleted_at IS NULL`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.Number,
		&order.Status,
		&order.Total,
		&order.Synced,
		&order.CreatedAt,
		&order.UpdatedAt,
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	order.User = user

	items, err := loadOrderItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (s *Store) UnsyncedOrders(ctx context.Context) ([]models.Order, error) {
	query := `
		SELECT id, user_id, order_number, status, total, synced, created_at, updated_at
		FROM orders
		WHERE synced = FALSE
		  AND deleted_at IS NULL
		ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unsynced orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.Number,
			&order.Status,
			&order.Total,
			&order.Synced,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
		userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (t *storeTx) ReserveStock(ctx context.Context, productID int64, quantity int) (decimal.Decimal, error) {
	var price decimal.Decimal
	var stock int

	err := t.tx.QueryRowContext(ctx,
		`SELECT price, stock
		 FROM products
		 WHERE id = $1
		   AND deleted_at IS NULL
		 FOR UPDATE`,
		productID).Scan(&price, &stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Decimal{}, &engine.ProductNotFoundError{ProductID: productID}
		}
		return decimal.Decimal{}, fmt.Errorf("lock product %d: %w", productID, err)
	}

	if stock < quantity {
		return decimal.Decimal{}, &engine.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: stock,
		}
	}

	// The row lock already serializes concurrent reservations; the stock
	// guard keeps the decrement conditional regardless.
	result, err := t.tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return decimal.Decimal{}, &engine.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: stock,
		}
	}

	return price, nil
}

func (t *storeTx) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}

func (t *storeTx) InsertOrder(ctx context.Context, order *models.Order) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, order_number, status, total, synced, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		order.UserID, order.Number, order.Status, order.Total).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := t.tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())
			 RETURNING id, created_at`,
			item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal).Scan(
			&item.ID,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func (t *storeTx) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, order_number, status, total, synced, created_at, updated_at
		 FROM orders
		 WHERE id = $1
		   AND deleted_at IS NULL
		 FOR UPDATE`,
		id).Scan(
		&order.ID,
		&order.UserID,
		&order.Number,
		&order.Status,
		&order.Total,
		&order.Synced,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	items, err := loadOrderItems(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (t *storeTx) SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1,
		     synced = FALSE,
		     updated_at = NOW()
		 WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return engine.ErrOrderNotFound
	}

	return nil
}

func (t *storeTx) MarkSynced(ctx context.Context, id int64) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET synced = TRUE WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("mark order synced: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return engine.ErrOrderNotFound
	}

	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrderItems(ctx context.Context, q queryer, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT i.id, i.order_id, i.product_id, p.name, i.quantity, i.unit_price, i.subtotal, i.created_at
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}
