package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/rl1809/shop-api/internal/adapter/storage"
	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/port"
)

var errStoreDown = errors.New("store unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func missingID() string {
	return primitive.NewObjectID().Hex()
}

type fixture struct {
	store *storage.MemoryAdapter
	now   time.Time
}

func newFixture() *fixture {
	return &fixture{
		store: storage.NewMemoryAdapter(),
		now:   time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) orderService(opts ...OrderOption) *OrderService {
	opts = append([]OrderOption{WithClock(f.clock), WithLogger(discardLogger())}, opts...)
	return NewOrderService(f.store, f.store, f.store, nil, 10, opts...)
}

func (f *fixture) user(t *testing.T, name, phone string) *domain.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), domain.User{
		Name:        name,
		Email:       name + "@example.com",
		PhoneNumber: phone,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) product(t *testing.T, name string, stock int) *domain.Product {
	t.Helper()
	p, err := f.store.CreateProduct(context.Background(), domain.Product{
		ProductName:   name,
		Category:      "general",
		Price:         9.99,
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.StockQuantity
}

// mockCacheRepo records idempotency claims in memory.
type mockCacheRepo struct {
	mu       sync.Mutex
	keys     map[string]string
	released []string
	next     int
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{keys: make(map[string]string)}
}

func (m *mockCacheRepo) ClaimIdempotency(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; ok {
		return "", false, nil
	}
	m.next++
	token := string(rune('a' + m.next))
	m.keys[key] = token
	return token, true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[key] == token {
		delete(m.keys, key)
		m.released = append(m.released, key)
	}
	return nil
}

// failingOrders makes order writes fail while reads pass through.
type failingOrders struct {
	port.OrderRepository
	failCreate bool
	staleWrite bool
}

func (f *failingOrders) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if f.failCreate {
		return nil, errStoreDown
	}
	return f.OrderRepository.CreateOrder(ctx, order)
}

func (f *failingOrders) UpdateOrder(ctx context.Context, id string, expected int, patch domain.OrderPatch) (*domain.Order, error) {
	if f.staleWrite {
		return nil, nil
	}
	return f.OrderRepository.UpdateOrder(ctx, id, expected, patch)
}

// flakyProducts fails the first failIncrements stock increments.
type flakyProducts struct {
	port.ProductRepository
	failIncrements atomic.Int32
}

func (f *flakyProducts) IncrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if f.failIncrements.Add(-1) >= 0 {
		return nil, errStoreDown
	}
	return f.ProductRepository.IncrementStock(ctx, id, quantity)
}

// insertHook runs beforeInsert once, ahead of the first order insert.
type insertHook struct {
	port.OrderRepository
	once         sync.Once
	beforeInsert func()
}

func (h *insertHook) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	h.once.Do(h.beforeInsert)
	return h.OrderRepository.CreateOrder(ctx, order)
}

// countHook runs afterCount once, after the first order count is taken.
type countHook struct {
	port.OrderRepository
	once       sync.Once
	afterCount func()
}

func (h *countHook) CountOrders(ctx context.Context, filter domain.OrderFilter) (int64, error) {
	n, err := h.OrderRepository.CountOrders(ctx, filter)
	h.once.Do(h.afterCount)
	return n, err
}
