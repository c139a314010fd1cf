package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/port"
)

const (
	idempotencyKeyPrefix       = "order:idem:"
	defaultRecentWindow        = 7 * 24 * time.Hour
	defaultCompensationAttempt = 5
	defaultCompensationBackoff = 200 * time.Millisecond
	rollbackTimeout            = 5 * time.Second
)

var (
	errOrderFieldsRequired = domain.NewError(domain.ErrInvalidInput, "All fields are required")
	errOrderPatchRequired  = domain.NewError(domain.ErrInvalidInput, "orderId and updatedData are required")
	errInvalidOrderID      = domain.NewError(domain.ErrInvalidInput, "Invalid orderId")
	errOrderNotFound       = domain.NewError(domain.ErrNotFound, "Order not found")
	errOrderModified       = domain.NewError(domain.ErrConflict, "Order was modified concurrently, please retry")
	errDuplicateOrder      = domain.NewError(domain.ErrDuplicateRequest, "Duplicate order request")
)

type PlaceOrderRequest struct {
	UserID         string
	ProductID      string
	Quantity       int
	IdempotencyKey string
}

type OrderQueryKind int

const (
	OrderQueryAll OrderQueryKind = iota
	OrderQueryByID
	OrderQueryRecent
	OrderQueryByUser
	OrderQueryBuyers
)

// OrderQuery carries the optional order filters. Exactly one is applied, in
// the order OrderID, Recent, UserID, ProductName, falling back to all orders.
type OrderQuery struct {
	OrderID     string
	Recent      bool
	UserID      string
	ProductName string
}

type OrderQueryResult struct {
	Kind        OrderQueryKind
	Order       *domain.OrderDetails
	Orders      []domain.OrderDetails
	ProductName string
	Users       []domain.User
}

type OrderOption func(*OrderService)

func WithClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

func WithRecentWindow(d time.Duration) OrderOption {
	return func(s *OrderService) { s.recentWindow = d }
}

func WithCompensationRetry(attempts int, backoff time.Duration) OrderOption {
	return func(s *OrderService) {
		s.maxAttempts = attempts
		s.backoff = backoff
	}
}

func WithLogger(logger *slog.Logger) OrderOption {
	return func(s *OrderService) { s.logger = logger }
}

type OrderService struct {
	orders   port.OrderRepository
	users    port.UserRepository
	products port.ProductRepository
	ledger   *StockLedger
	cache    port.CacheRepository

	compensations chan domain.StockCompensation
	queueMu       sync.RWMutex
	queueClosed   bool
	maxAttempts   int
	backoff       time.Duration

	now          func() time.Time
	recentWindow time.Duration
	logger       *slog.Logger
}

// NewOrderService wires the order use cases. cache may be nil, which disables
// idempotency keys.
func NewOrderService(
	orders port.OrderRepository,
	users port.UserRepository,
	products port.ProductRepository,
	cache port.CacheRepository,
	queueSize int,
	opts ...OrderOption,
) *OrderService {
	s := &OrderService{
		orders:        orders,
		users:         users,
		products:      products,
		ledger:        NewStockLedger(products),
		cache:         cache,
		compensations: make(chan domain.StockCompensation, queueSize),
		maxAttempts:   defaultCompensationAttempt,
		backoff:       defaultCompensationBackoff,
		now:           time.Now,
		recentWindow:  defaultRecentWindow,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OrderService) Ledger() *StockLedger {
	return s.ledger
}

// PlaceOrder reserves stock and then persists the order. If the order cannot
// be written the reservation is released again.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *domain.Order, err error) {
	if req.UserID == "" || req.ProductID == "" || req.Quantity == 0 {
		return nil, errOrderFieldsRequired
	}
	if req.Quantity < 0 {
		return nil, errNonPositiveQuantity
	}
	if !s.users.ValidID(req.UserID) {
		return nil, domain.NewError(domain.ErrInvalidInput, "Invalid user")
	}
	if !s.products.ValidID(req.ProductID) {
		return nil, domain.NewError(domain.ErrInvalidInput, "Invalid productOrdered")
	}

	if req.IdempotencyKey != "" && s.cache != nil {
		key := idempotencyKeyPrefix + req.IdempotencyKey
		token, ok, claimErr := s.cache.ClaimIdempotency(ctx, key)
		if claimErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !ok {
			return nil, errDuplicateOrder
		}
		defer func() {
			if err != nil {
				s.releaseIdempotency(ctx, key, token)
			}
		}()
	}

	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, errUserNotFound
	}

	if _, err := s.ledger.ReserveStock(ctx, req.ProductID, req.Quantity); err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrder(ctx, domain.Order{
		User:           req.UserID,
		ProductOrdered: req.ProductID,
		OrderQuantity:  req.Quantity,
		OrderDate:      s.now().UTC(),
	})
	if err != nil {
		s.rollback(ctx, domain.StockCompensation{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Reason:    "order insert failed",
		})
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.confirmReferences(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// confirmReferences re-reads the order's user and product after the insert.
// A concurrent delete either counts this order after removing its document and
// backs out, or is seen here, in which case the order is withdrawn and its
// reservation released.
func (s *OrderService) confirmReferences(ctx context.Context, order *domain.Order) error {
	user, err := s.users.GetUser(ctx, order.User)
	if err != nil {
		s.logger.Warn("could not confirm order user", "order_id", order.ID, "user_id", order.User, "error", err)
		return nil
	}
	product, err := s.products.GetProduct(ctx, order.ProductOrdered)
	if err != nil {
		s.logger.Warn("could not confirm order product", "order_id", order.ID, "product_id", order.ProductOrdered, "error", err)
		return nil
	}
	if user != nil && product != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := s.orders.DeleteOrder(ctx, order.ID); err != nil {
		s.logger.Error("CRITICAL order references a deleted document",
			"order_id", order.ID, "user_id", order.User, "product_id", order.ProductOrdered, "error", err)
		return fmt.Errorf("withdraw order: %w", err)
	}
	if product == nil {
		s.logger.Warn("withdrew order for deleted product", "order_id", order.ID, "product_id", order.ProductOrdered)
		return errProductNotFound
	}

	s.logger.Warn("withdrew order for deleted user", "order_id", order.ID, "user_id", order.User)
	s.rollback(ctx, domain.StockCompensation{
		ProductID: order.ProductOrdered,
		Quantity:  order.OrderQuantity,
		Reason:    "user deleted during placement",
	})
	return errUserNotFound
}

// UpdateOrder changes an order's quantity and/or date. A quantity change
// adjusts stock by the signed delta before the order is written; the write is
// conditional on the quantity the delta was computed from.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	if orderID == "" || patch.Empty() {
		return nil, errOrderPatchRequired
	}
	if !s.orders.ValidID(orderID) {
		return nil, errInvalidOrderID
	}
	if patch.OrderQuantity != nil && *patch.OrderQuantity <= 0 {
		return nil, errNonPositiveQuantity
	}

	current, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if current == nil {
		return nil, errOrderNotFound
	}

	oldQuantity := current.OrderQuantity
	newQuantity := oldQuantity
	if patch.OrderQuantity != nil {
		newQuantity = *patch.OrderQuantity
	}

	if newQuantity != oldQuantity {
		if _, err := s.ledger.AdjustStock(ctx, current.ProductOrdered, oldQuantity, newQuantity); err != nil {
			return nil, err
		}
	}

	updated, err := s.orders.UpdateOrder(ctx, orderID, oldQuantity, patch)
	if err == nil && updated != nil {
		return updated, nil
	}

	if newQuantity != oldQuantity {
		s.revertAdjustment(ctx, current.ProductOrdered, oldQuantity, newQuantity)
	}
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return nil, errOrderModified
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.OrderDetails, error) {
	if !s.orders.ValidID(orderID) {
		return nil, errInvalidOrderID
	}

	order, err := s.orders.GetOrderDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, errOrderNotFound
	}
	return order, nil
}

func (s *OrderService) QueryOrders(ctx context.Context, q OrderQuery) (*OrderQueryResult, error) {
	switch {
	case q.OrderID != "":
		order, err := s.GetOrder(ctx, q.OrderID)
		if err != nil {
			return nil, err
		}
		return &OrderQueryResult{Kind: OrderQueryByID, Order: order}, nil

	case q.Recent:
		since := s.now().Add(-s.recentWindow)
		orders, err := s.findOrders(ctx, domain.OrderFilter{Since: &since})
		if err != nil {
			return nil, err
		}
		if len(orders) == 0 {
			msg := fmt.Sprintf("No orders placed in the last %d days", int(s.recentWindow.Hours()/24))
			return nil, domain.NewError(domain.ErrNotFound, msg)
		}
		return &OrderQueryResult{Kind: OrderQueryRecent, Orders: orders}, nil

	case q.UserID != "":
		if !s.users.ValidID(q.UserID) {
			return nil, errInvalidUserID
		}
		orders, err := s.findOrders(ctx, domain.OrderFilter{UserID: q.UserID})
		if err != nil {
			return nil, err
		}
		if len(orders) == 0 {
			return nil, domain.NewError(domain.ErrNotFound, "No orders found for this user")
		}
		return &OrderQueryResult{Kind: OrderQueryByUser, Orders: orders}, nil

	case q.ProductName != "":
		users, err := s.buyersOf(ctx, q.ProductName)
		if err != nil {
			return nil, err
		}
		if len(users) == 0 {
			return nil, domain.NewError(domain.ErrNotFound, "No users found for this product")
		}
		return &OrderQueryResult{Kind: OrderQueryBuyers, ProductName: q.ProductName, Users: users}, nil

	default:
		orders, err := s.findOrders(ctx, domain.OrderFilter{})
		if err != nil {
			return nil, err
		}
		return &OrderQueryResult{Kind: OrderQueryAll, Orders: orders}, nil
	}
}

// buyersOf returns the distinct users with an order for any product named name.
func (s *OrderService) buyersOf(ctx context.Context, name string) ([]domain.User, error) {
	products, err := s.products.FindProductsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find products by name: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}

	orders, err := s.findOrders(ctx, domain.OrderFilter{ProductIDs: ids})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	users := make([]domain.User, 0)
	for _, o := range orders {
		if o.User == nil || seen[o.User.ID] {
			continue
		}
		seen[o.User.ID] = true
		users = append(users, *o.User)
	}
	return users, nil
}

func (s *OrderService) findOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderDetails, error) {
	orders, err := s.orders.FindOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	return orders, nil
}

// revertAdjustment undoes a stock adjustment whose order write did not land.
func (s *OrderService) revertAdjustment(ctx context.Context, productID string, oldQuantity, newQuantity int) {
	delta := newQuantity - oldQuantity
	if delta > 0 {
		s.rollback(ctx, domain.StockCompensation{
			ProductID: productID,
			Quantity:  delta,
			Reason:    "order update failed",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	// Released units may already be taken by another order, in which case the
	// product keeps the extra stock and the drift is logged.
	if _, err := s.ledger.ReserveStock(ctx, productID, -delta); err != nil {
		s.logger.Error("failed to re-reserve stock after order update failure",
			"product_id", productID, "quantity", -delta, "error", err)
	}
}

func (s *OrderService) releaseIdempotency(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := s.cache.ReleaseIdempotency(ctx, key, token); err != nil {
		s.logger.Warn("failed to release idempotency key", "key", key, "error", err)
	}
}

func isDomainError(err error) bool {
	var de *domain.Error
	return errors.As(err, &de)
}
