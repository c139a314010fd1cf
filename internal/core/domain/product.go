package domain

type Product struct {
	ID            string  `json:"id"`
	ProductName   string  `json:"productName"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	StockQuantity int     `json:"stockQuantity"`
}

func (p Product) Validate() error {
	if p.ProductName == "" || p.Category == "" {
		return NewError(ErrInvalidInput, "productName and category are required")
	}
	if p.Price < 0 {
		return NewError(ErrInvalidInput, "price must not be negative")
	}
	if p.StockQuantity < 0 {
		return NewError(ErrInvalidInput, "stockQuantity must not be negative")
	}
	return nil
}

// ProductPatch holds the fields an admin update may change. Nil fields are left as they are.
type ProductPatch struct {
	ProductName   *string  `json:"productName,omitempty"`
	Category      *string  `json:"category,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	StockQuantity *int     `json:"stockQuantity,omitempty"`
}

func (p ProductPatch) Empty() bool {
	return p.ProductName == nil && p.Category == nil && p.Price == nil && p.StockQuantity == nil
}

func (p ProductPatch) Validate() error {
	if p.Empty() {
		return NewError(ErrInvalidInput, "updatedData has no fields to update")
	}
	if p.ProductName != nil && *p.ProductName == "" {
		return NewError(ErrInvalidInput, "productName must not be empty")
	}
	if p.Category != nil && *p.Category == "" {
		return NewError(ErrInvalidInput, "category must not be empty")
	}
	if p.Price != nil && *p.Price < 0 {
		return NewError(ErrInvalidInput, "price must not be negative")
	}
	if p.StockQuantity != nil && *p.StockQuantity < 0 {
		return NewError(ErrInvalidInput, "stockQuantity must not be negative")
	}
	return nil
}

// Apply returns a copy of p with the patch applied.
func (p ProductPatch) Apply(product Product) Product {
	if p.ProductName != nil {
		product.ProductName = *p.ProductName
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.StockQuantity != nil {
		product.StockQuantity = *p.StockQuantity
	}
	return product
}
