package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rl1809/shop-api/internal/core/domain"
)

// MemoryAdapter is a process-local store with the same semantics as
// MongoAdapter, including ObjectID-shaped identifiers that match regardless of
// hex case. A single mutex stands in for the store's per-document atomic
// updates.
type MemoryAdapter struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	products map[string]domain.Product
	orders   map[string]domain.Order
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		users:    make(map[string]domain.User),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

func (m *MemoryAdapter) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// key validates id and returns it in the lowercase form the maps are keyed by.
func (m *MemoryAdapter) key(id, field string) (string, error) {
	if !m.ValidID(id) {
		return "", domain.NewError(domain.ErrInvalidInput, "Invalid "+field)
	}
	return strings.ToLower(id), nil
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

// Users

func (m *MemoryAdapter) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.userTaken("", user.Name, user.Email, user.PhoneNumber) {
		return nil, errDuplicateUser
	}
	user.ID = newID()
	m.users[user.ID] = user
	return &user, nil
}

func (m *MemoryAdapter) GetUser(ctx context.Context, id string) (*domain.User, error) {
	id, err := m.key(id, "userId")
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (m *MemoryAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryAdapter) RenameUser(ctx context.Context, id, name string) (*domain.User, error) {
	id, err := m.key(id, "userId")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if m.userTaken(id, name, "", "") {
		return nil, errDuplicateUser
	}
	user.Name = name
	m.users[id] = user
	return &user, nil
}

func (m *MemoryAdapter) DeleteUser(ctx context.Context, id string) (*domain.User, error) {
	id, err := m.key(id, "userId")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	delete(m.users, id)
	return &user, nil
}

func (m *MemoryAdapter) RestoreUser(ctx context.Context, user domain.User) error {
	id, err := m.key(user.ID, "userId")
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; ok || m.userTaken(id, user.Name, user.Email, user.PhoneNumber) {
		return errDuplicateUser
	}
	user.ID = id
	m.users[id] = user
	return nil
}

// userTaken reports whether a user other than exceptID already holds one of
// the unique values. Empty values are not compared.
func (m *MemoryAdapter) userTaken(exceptID, name, email, phone string) bool {
	for id, u := range m.users {
		if id == exceptID {
			continue
		}
		if (name != "" && u.Name == name) ||
			(email != "" && u.Email == email) ||
			(phone != "" && u.PhoneNumber == phone) {
			return true
		}
	}
	return false
}

// Products

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	product.ID = newID()
	m.products[product.ID] = product
	return &product, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	id, err := m.key(id, "productId")
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return m.filterProducts(func(domain.Product) bool { return true }), nil
}

func (m *MemoryAdapter) FindProductsByName(ctx context.Context, name string) ([]domain.Product, error) {
	return m.filterProducts(func(p domain.Product) bool { return p.ProductName == name }), nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	id, err := m.key(id, "productId")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	product = patch.Apply(product)
	m.products[id] = product
	return &product, nil
}

func (m *MemoryAdapter) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	id, err := m.key(id, "productId")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	delete(m.products, id)
	return &product, nil
}

func (m *MemoryAdapter) RestoreProduct(ctx context.Context, product domain.Product) error {
	id, err := m.key(product.ID, "productId")
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; ok {
		return domain.NewError(domain.ErrConflict, "Product already exists")
	}
	product.ID = id
	m.products[id] = product
	return nil
}

func (m *MemoryAdapter) TotalStock(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, p := range m.products {
		total += int64(p.StockQuantity)
	}
	return total, nil
}

func (m *MemoryAdapter) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	id, err := m.key(id, "productOrdered")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[id]
	if !ok || product.StockQuantity < quantity {
		return nil, nil
	}
	product.StockQuantity -= quantity
	m.products[id] = product
	return &product, nil
}

func (m *MemoryAdapter) IncrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	id, err := m.key(id, "productOrdered")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	product.StockQuantity += quantity
	m.products[id] = product
	return &product, nil
}

func (m *MemoryAdapter) filterProducts(keep func(domain.Product) bool) []domain.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()

	products := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if keep(p) {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

// Orders

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	var err error
	if order.User, err = m.key(order.User, "user"); err != nil {
		return nil, err
	}
	if order.ProductOrdered, err = m.key(order.ProductOrdered, "productOrdered"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order.ID = newID()
	m.orders[order.ID] = order
	return &order, nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	id, err := m.key(id, "orderId")
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *MemoryAdapter) GetOrderDetails(ctx context.Context, id string) (*domain.OrderDetails, error) {
	id, err := m.key(id, "orderId")
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	details := m.details(order)
	return &details, nil
}

func (m *MemoryAdapter) FindOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderDetails, error) {
	match, err := m.orderMatcher(filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]domain.Order, 0)
	for _, o := range m.orders {
		if match(o) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].OrderDate.Before(orders[j].OrderDate)
		}
		return orders[i].ID < orders[j].ID
	})

	details := make([]domain.OrderDetails, 0, len(orders))
	for _, o := range orders {
		details = append(details, m.details(o))
	}
	return details, nil
}

func (m *MemoryAdapter) CountOrders(ctx context.Context, filter domain.OrderFilter) (int64, error) {
	match, err := m.orderMatcher(filter)
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, o := range m.orders {
		if match(o) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryAdapter) UpdateOrder(ctx context.Context, id string, expectedQuantity int, patch domain.OrderPatch) (*domain.Order, error) {
	id, err := m.key(id, "orderId")
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok || order.OrderQuantity != expectedQuantity {
		return nil, nil
	}
	if patch.OrderQuantity != nil {
		order.OrderQuantity = *patch.OrderQuantity
	}
	if patch.OrderDate != nil {
		order.OrderDate = *patch.OrderDate
	}
	m.orders[id] = order
	return &order, nil
}

func (m *MemoryAdapter) DeleteOrder(ctx context.Context, id string) error {
	id, err := m.key(id, "orderId")
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.orders, id)
	return nil
}

// details must be called with mu held.
func (m *MemoryAdapter) details(o domain.Order) domain.OrderDetails {
	d := domain.OrderDetails{
		ID:             o.ID,
		ProductOrdered: o.ProductOrdered,
		OrderQuantity:  o.OrderQuantity,
		OrderDate:      o.OrderDate,
	}
	if u, ok := m.users[o.User]; ok {
		d.User = &u
	}
	return d
}

func (m *MemoryAdapter) orderMatcher(filter domain.OrderFilter) (func(domain.Order) bool, error) {
	var userID string
	if filter.UserID != "" {
		var err error
		if userID, err = m.key(filter.UserID, "userId"); err != nil {
			return nil, err
		}
	}
	var products map[string]bool
	if filter.ProductIDs != nil {
		products = make(map[string]bool, len(filter.ProductIDs))
		for _, raw := range filter.ProductIDs {
			id, err := m.key(raw, "productId")
			if err != nil {
				return nil, err
			}
			products[id] = true
		}
	}

	return func(o domain.Order) bool {
		if filter.Since != nil && o.OrderDate.Before(*filter.Since) {
			return false
		}
		if userID != "" && o.User != userID {
			return false
		}
		if products != nil && !products[o.ProductOrdered] {
			return false
		}
		return true
	}, nil
}
