package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/engine"
	"github.com/storeops/order-engine/internal/models"
)

func (s *Store) CreateProduct(ctx context.Context, sku, name, description string, price decimal.Decimal, stock int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, sku, name, description, price, stock, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, sku, name, description, price, stock).Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, sku, name, description, price, stock, created_at, updated_at
		FROM products
		WHERE id = $1
		  AND deleted_at IS NULL`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &engine.ProductNotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// SetProductPrice changes the catalog price. Unit prices on existing order
// items are frozen and unaffected.
func (s *Store) SetProductPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET price = $1, updated_at = NOW()
		 WHERE id = $2
		   AND deleted_at IS NULL`,
		price, id)
	if err != nil {
		return fmt.Errorf("set product price: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &engine.ProductNotFoundError{ProductID: id}
	}

	return nil
}

// SoftDeleteProduct hides the product from the catalog and from stock
// reservations. Existing order items keep referencing it.
func (s *Store) SoftDeleteProduct(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1
		   AND deleted_at IS NULL`,
		id)
	if err != nil {
		return fmt.Errorf("soft delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &engine.ProductNotFoundError{ProductID: id}
	}

	return nil
}
