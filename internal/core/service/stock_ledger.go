package service

import (
	"context"
	"fmt"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/port"
)

var (
	errProductNotFound       = domain.NewError(domain.ErrNotFound, "Product not found")
	errInsufficientStock     = domain.NewError(domain.ErrInsufficientStock, "Insufficient stock")
	errInsufficientForAdjust = domain.NewError(domain.ErrInsufficientStock, "Insufficient stock for adjustment")
	errNonPositiveQuantity   = domain.NewError(domain.ErrInvalidInput, "orderQuantity must be a positive integer")
)

// StockLedger keeps Product.stockQuantity consistent with the quantities held
// by orders. Every change is a delta applied by a single conditional update in
// the store; there is no read-modify-write in this process.
type StockLedger struct {
	products port.ProductRepository
}

func NewStockLedger(products port.ProductRepository) *StockLedger {
	return &StockLedger{products: products}
}

// ReserveStock takes quantity units out of the product's stock, failing with
// ErrInsufficientStock (and leaving stock untouched) if fewer are available.
func (l *StockLedger) ReserveStock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	return l.reserve(ctx, productID, quantity, errInsufficientStock)
}

// ReleaseStock puts quantity units back.
func (l *StockLedger) ReleaseStock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, errNonPositiveQuantity
	}

	product, err := l.products.IncrementStock(ctx, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("stock increment failed: %w", err)
	}
	if product == nil {
		return nil, errProductNotFound
	}
	return product, nil
}

// AdjustStock moves stock by the difference between an order's old and new
// quantity: an increase reserves the delta, a decrease releases it.
func (l *StockLedger) AdjustStock(ctx context.Context, productID string, oldQuantity, newQuantity int) (*domain.Product, error) {
	delta := newQuantity - oldQuantity

	switch {
	case delta > 0:
		return l.reserve(ctx, productID, delta, errInsufficientForAdjust)
	case delta < 0:
		return l.ReleaseStock(ctx, productID, -delta)
	default:
		product, err := l.products.GetProduct(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("stock lookup failed: %w", err)
		}
		if product == nil {
			return nil, errProductNotFound
		}
		return product, nil
	}
}

func (l *StockLedger) reserve(ctx context.Context, productID string, quantity int, insufficient error) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, errNonPositiveQuantity
	}

	product, err := l.products.DecrementStock(ctx, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("stock decrement failed: %w", err)
	}
	if product != nil {
		return product, nil
	}

	// The guarded update matched nothing: either the product is gone or it
	// holds fewer than quantity units.
	existing, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("stock lookup failed: %w", err)
	}
	if existing == nil {
		return nil, errProductNotFound
	}
	return nil, insufficient
}
