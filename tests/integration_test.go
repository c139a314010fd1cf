package tests

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/shop-api/internal/adapter/storage"
	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/core/service"
	"github.com/rl1809/shop-api/internal/port"
)

type testEnv struct {
	redis   *redis.Client
	db      *mongo.Database
	cache   *storage.RedisAdapter
	store   *storage.MongoAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		rdb.Close()
		t.Skipf("MongoDB not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		rdb.Close()
		client.Disconnect(context.Background())
		t.Skipf("MongoDB not available: %v", err)
	}

	db := client.Database("shop_integration_" + uuid.NewString()[:8])
	store := storage.NewMongoAdapter(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	return &testEnv{
		redis: rdb,
		db:    db,
		cache: storage.NewRedisAdapter(rdb),
		store: store,
		cleanup: func() {
			db.Drop(context.Background())
			client.Disconnect(context.Background())
			rdb.Close()
		},
	}
}

func (e *testEnv) seed(t *testing.T, stock int) (*domain.User, *domain.Product) {
	t.Helper()
	ctx := context.Background()

	user, err := e.store.CreateUser(ctx, domain.User{Name: "buyer", Email: "buyer@example.com", PhoneNumber: "0123456789"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := e.store.CreateProduct(ctx, domain.Product{ProductName: "widget", Category: "tools", Price: 4.5, StockQuantity: stock})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return user, product
}

func (e *testEnv) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := e.store.GetProduct(context.Background(), productID)
	if err != nil || p == nil {
		t.Fatalf("get product: %v", err)
	}
	return p.StockQuantity
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWorkers(svc *service.OrderService, count int) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			svc.RunCompensator(context.Background(), id)
		}(i)
	}
	return &wg
}

func TestIntegration_FullOrderFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	initialStock := 10
	user, product := env.seed(t, initialStock)

	svc := service.NewOrderService(env.store, env.store, env.store, env.cache, 100, service.WithLogger(quietLogger()))
	wg := startWorkers(svc, 3)

	// Execute orders
	var successCount atomic.Int32
	var orderWg sync.WaitGroup
	totalRequests := 20

	for i := 0; i < totalRequests; i++ {
		orderWg.Add(1)
		go func() {
			defer orderWg.Done()
			_, err := svc.PlaceOrder(ctx, service.PlaceOrderRequest{
				UserID:         user.ID,
				ProductID:      product.ID,
				Quantity:       1,
				IdempotencyKey: uuid.NewString(),
			})
			if err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	orderWg.Wait()

	svc.Close()
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successful orders, got %d", initialStock, successCount.Load())
	}
	if stock := env.stock(t, product.ID); stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}

	n, err := env.store.CountOrders(ctx, domain.OrderFilter{ProductIDs: []string{product.ID}})
	if err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if n != int64(initialStock) {
		t.Errorf("expected %d orders, got %d", initialStock, n)
	}
}

func TestIntegration_UpdateOrderAdjustsStock(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	user, product := env.seed(t, 10)

	svc := service.NewOrderService(env.store, env.store, env.store, env.cache, 10, service.WithLogger(quietLogger()))
	defer svc.Close()

	order, err := svc.PlaceOrder(ctx, service.PlaceOrderRequest{UserID: user.ID, ProductID: product.ID, Quantity: 4})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	steps := []struct {
		quantity  int
		wantStock int
	}{
		{quantity: 7, wantStock: 3},
		{quantity: 2, wantStock: 8},
	}
	for _, step := range steps {
		qty := step.quantity
		if _, err := svc.UpdateOrder(ctx, order.ID, domain.OrderPatch{OrderQuantity: &qty}); err != nil {
			t.Fatalf("update order to %d: %v", qty, err)
		}
		if stock := env.stock(t, product.ID); stock != step.wantStock {
			t.Errorf("after update to %d: expected stock %d, got %d", qty, step.wantStock, stock)
		}
	}

	details, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if details.User == nil || details.User.ID != user.ID {
		t.Errorf("expected order user %s, got %+v", user.ID, details.User)
	}
}

// failingOrders rejects every order insert.
type failingOrders struct {
	port.OrderRepository
}

func (failingOrders) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	return nil, errors.New("write concern timeout")
}

func TestIntegration_RollbackOnOrderInsertFailure(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	initialStock := 5
	user, product := env.seed(t, initialStock)

	svc := service.NewOrderService(failingOrders{env.store}, env.store, env.store, env.cache, 10, service.WithLogger(quietLogger()))
	wg := startWorkers(svc, 1)

	key := uuid.NewString()
	defer env.redis.Del(ctx, "order:idem:"+key)
	_, err := svc.PlaceOrder(ctx, service.PlaceOrderRequest{UserID: user.ID, ProductID: product.ID, Quantity: 2, IdempotencyKey: key})
	if err == nil {
		t.Fatal("expected order insert failure")
	}

	svc.Close()
	wg.Wait()

	if stock := env.stock(t, product.ID); stock != initialStock {
		t.Errorf("expected stock %d after rollback, got %d", initialStock, stock)
	}

	// The failed attempt must not hold the idempotency key.
	if _, ok, err := env.cache.ClaimIdempotency(ctx, "order:idem:"+key); err != nil || !ok {
		t.Errorf("expected idempotency key to be released, ok=%v err=%v", ok, err)
	}
}

func TestIntegration_IdempotencyPreventsDoubleOrder(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	user, product := env.seed(t, 10)

	svc := service.NewOrderService(env.store, env.store, env.store, env.cache, 10, service.WithLogger(quietLogger()))
	defer svc.Close()

	req := service.PlaceOrderRequest{
		UserID:         user.ID,
		ProductID:      product.ID,
		Quantity:       1,
		IdempotencyKey: "same-request-id-" + uuid.NewString(),
	}
	defer env.redis.Del(ctx, "order:idem:"+req.IdempotencyKey)

	if _, err := svc.PlaceOrder(ctx, req); err != nil {
		t.Fatalf("first order failed: %v", err)
	}

	_, err := svc.PlaceOrder(ctx, req)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	if stock := env.stock(t, product.ID); stock != 9 {
		t.Errorf("expected stock 9, got %d", stock)
	}
}
