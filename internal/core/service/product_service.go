package service

import (
	"context"
	"fmt"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/port"
)

var (
	errProductIDRequired = domain.NewError(domain.ErrInvalidInput, "productId is required")
	errInvalidProductID  = domain.NewError(domain.ErrInvalidInput, "Invalid productId")
	errProductHasOrders  = domain.NewError(domain.ErrConflict, "Product has existing orders and cannot be deleted")
)

// ProductQuery selects what a product fetch returns. TotalStock wins over
// ProductID; with neither set every product is returned.
type ProductQuery struct {
	TotalStock bool
	ProductID  string
}

type ProductQueryResult struct {
	TotalStock *int64
	Product    *domain.Product
	Products   []domain.Product
}

type ProductService struct {
	products port.ProductRepository
	orders   port.OrderRepository
}

func NewProductService(products port.ProductRepository, orders port.OrderRepository) *ProductService {
	return &ProductService{products: products, orders: orders}
}

func (s *ProductService) Query(ctx context.Context, q ProductQuery) (*ProductQueryResult, error) {
	switch {
	case q.TotalStock:
		total, err := s.TotalStock(ctx)
		if err != nil {
			return nil, err
		}
		return &ProductQueryResult{TotalStock: &total}, nil
	case q.ProductID != "":
		product, err := s.GetProduct(ctx, q.ProductID)
		if err != nil {
			return nil, err
		}
		return &ProductQueryResult{Product: product}, nil
	default:
		products, err := s.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		return &ProductQueryResult{Products: products}, nil
	}
}

func (s *ProductService) TotalStock(ctx context.Context) (int64, error) {
	total, err := s.products.TotalStock(ctx)
	if err != nil {
		return 0, fmt.Errorf("total stock: %w", err)
	}
	return total, nil
}

func (s *ProductService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if err := s.checkID(id); err != nil {
		return nil, err
	}

	product, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, errProductNotFound
	}
	return product, nil
}

func (s *ProductService) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, err
	}

	created, err := s.products.CreateProduct(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

// UpdateProduct applies an admin update. Setting stockQuantity here overwrites
// the ledger's count; order-driven changes go through StockLedger instead.
func (s *ProductService) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if err := s.checkID(id); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	product, err := s.products.UpdateProduct(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if product == nil {
		return nil, domain.NewError(domain.ErrNotFound, "Product not found or update failed")
	}
	return product, nil
}

// DeleteProduct refuses to remove a product that orders still reference,
// re-checking after the delete the same way DeleteUser does.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	if err := s.checkID(id); err != nil {
		return nil, err
	}

	filter := domain.OrderFilter{ProductIDs: []string{id}}
	n, err := s.orders.CountOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count product orders: %w", err)
	}
	if n > 0 {
		return nil, errProductHasOrders
	}

	product, err := s.products.DeleteProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	if product == nil {
		return nil, domain.NewError(domain.ErrNotFound, "Product not found or delete failed")
	}

	n, err = s.orders.CountOrders(ctx, filter)
	if err == nil && n == 0 {
		return product, nil
	}
	if restoreErr := s.products.RestoreProduct(context.WithoutCancel(ctx), *product); restoreErr != nil {
		return nil, fmt.Errorf("restore product %s: %w", product.ID, restoreErr)
	}
	if err != nil {
		return nil, fmt.Errorf("recount product orders: %w", err)
	}
	return nil, errProductHasOrders
}

func (s *ProductService) checkID(id string) error {
	if id == "" {
		return errProductIDRequired
	}
	if !s.products.ValidID(id) {
		return errInvalidProductID
	}
	return nil
}
