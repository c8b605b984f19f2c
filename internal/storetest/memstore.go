// Package storetest provides an in-memory engine.Store for tests. A mutex
// serializes transactions and a snapshot taken at transaction start is
// restored on error, giving the same all-or-nothing visibility as the
// Postgres store.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/engine"
	"github.com/storeops/order-engine/internal/models"
)

type MemStore struct {
	mu sync.Mutex

	users    map[int64]*models.User
	products map[int64]*models.Product
	orders   map[int64]*models.Order

	nextUserID    int64
	nextProductID int64
	nextOrderID   int64
	nextItemID    int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[int64]*models.User),
		products: make(map[int64]*models.Product),
		orders:   make(map[int64]*models.Order),
	}
}

func (s *MemStore) AddUser(email, name string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextUserID++
	now := time.Now()
	user := &models.User{
		ID:        s.nextUserID,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	return user
}

func (s *MemStore) AddProduct(name string, price decimal.Decimal, stock int) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	now := time.Now()
	product := &models.Product{
		ID:        s.nextProductID,
		Name:      name,
		Price:     price,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.products[product.ID] = product
	return product
}

func (s *MemStore) SetPrice(productID int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Price = price
	}
}

func (s *MemStore) SoftDeleteProduct(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		now := time.Now()
		p.DeletedAt = &now
	}
}

func (s *MemStore) ProductStock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		return p.Stock
	}
	return -1
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *MemStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || order.DeletedAt != nil {
		return nil, engine.ErrOrderNotFound
	}

	out := copyOrder(order)
	if user, ok := s.users[order.UserID]; ok {
		u := *user
		out.User = &u
	}
	for i := range out.Items {
		if p, ok := s.products[out.Items[i].ProductID]; ok {
			out.Items[i].ProductName = p.Name
		}
	}
	return out, nil
}

func (s *MemStore) UnsyncedOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []models.Order
	for _, order := range s.orders {
		if !order.Synced && order.DeletedAt == nil {
			orders = append(orders, *copyOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

type memSnapshot struct {
	products    map[int64]*models.Product
	orders      map[int64]*models.Order
	nextOrderID int64
	nextItemID  int64
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		products:    make(map[int64]*models.Product, len(s.products)),
		orders:      make(map[int64]*models.Order, len(s.orders)),
		nextOrderID: s.nextOrderID,
		nextItemID:  s.nextItemID,
	}
	for id, p := range s.products {
		cp := *p
		snap.products[id] = &cp
	}
	for id, o := range s.orders {
		snap.orders[id] = copyOrder(o)
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.products = snap.products
	s.orders = snap.orders
	s.nextOrderID = snap.nextOrderID
	s.nextItemID = snap.nextItemID
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = make([]models.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}

type memTx struct {
	store *MemStore
}

func (t *memTx) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := t.store.users[userID]
	return ok, nil
}

func (t *memTx) ReserveStock(ctx context.Context, productID int64, quantity int) (decimal.Decimal, error) {
	product, ok := t.store.products[productID]
	if !ok || product.DeletedAt != nil {
		return decimal.Decimal{}, &engine.ProductNotFoundError{ProductID: productID}
	}
	if product.Stock < quantity {
		return decimal.Decimal{}, &engine.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: product.Stock,
		}
	}
	product.Stock -= quantity
	return product.Price, nil
}

func (t *memTx) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	if product, ok := t.store.products[productID]; ok {
		product.Stock += quantity
	}
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.store.nextOrderID++
	order.ID = t.store.nextOrderID
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		t.store.nextItemID++
		order.Items[i].ID = t.store.nextItemID
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = now
	}
	t.store.orders[order.ID] = copyOrder(order)
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := t.store.orders[id]
	if !ok || order.DeletedAt != nil {
		return nil, engine.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	order, ok := t.store.orders[id]
	if !ok {
		return engine.ErrOrderNotFound
	}
	order.Status = status
	order.Synced = false
	order.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) MarkSynced(ctx context.Context, id int64) error {
	order, ok := t.store.orders[id]
	if !ok {
		return engine.ErrOrderNotFound
	}
	order.Synced = true
	return nil
}
