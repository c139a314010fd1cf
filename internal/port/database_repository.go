package port

import (
	"context"

	"github.com/rl1809/shop-api/internal/core/domain"
)

// IDChecker reports whether an identifier has the store-native format.
type IDChecker interface {
	ValidID(id string) bool
}

// Lookups return (nil, nil) when the document does not exist.
type UserRepository interface {
	IDChecker

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	RenameUser(ctx context.Context, id, name string) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) (*domain.User, error)

	// RestoreUser re-inserts a deleted user under its original id.
	RestoreUser(ctx context.Context, user domain.User) error
}

type ProductRepository interface {
	IDChecker

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	FindProductsByName(ctx context.Context, name string) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (*domain.Product, error)

	// RestoreProduct re-inserts a deleted product under its original id.
	RestoreProduct(ctx context.Context, product domain.Product) error

	// TotalStock sums stockQuantity over every product.
	TotalStock(ctx context.Context) (int64, error)

	// DecrementStock atomically decreases stock only if at least quantity is
	// available. Returns nil when the product is missing or the guard failed.
	DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error)

	// IncrementStock atomically increases stock. Returns nil when the product is missing.
	IncrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error)
}

type OrderRepository interface {
	IDChecker

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderDetails(ctx context.Context, id string) (*domain.OrderDetails, error)
	FindOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderDetails, error)
	CountOrders(ctx context.Context, filter domain.OrderFilter) (int64, error)

	// UpdateOrder applies patch only while the stored quantity still equals
	// expectedQuantity. Returns nil when nothing matched.
	UpdateOrder(ctx context.Context, id string, expectedQuantity int, patch domain.OrderPatch) (*domain.Order, error)

	// DeleteOrder removes an order. Deleting a missing order is not an error.
	DeleteOrder(ctx context.Context, id string) error
}
