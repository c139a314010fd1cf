package domain

import "time"

type Order struct {
	ID             string    `json:"id"`
	User           string    `json:"user"`
	ProductOrdered string    `json:"productOrdered"`
	OrderQuantity  int       `json:"orderQuantity"`
	OrderDate      time.Time `json:"orderDate"`
}

// OrderDetails is an order with its user reference resolved. User is nil when
// the referenced user no longer exists.
type OrderDetails struct {
	ID             string    `json:"id"`
	User           *User     `json:"user"`
	ProductOrdered string    `json:"productOrdered"`
	OrderQuantity  int       `json:"orderQuantity"`
	OrderDate      time.Time `json:"orderDate"`
}

// OrderPatch holds the order fields that may change after placement.
type OrderPatch struct {
	OrderQuantity *int       `json:"orderQuantity,omitempty"`
	OrderDate     *time.Time `json:"orderDate,omitempty"`
}

func (p OrderPatch) Empty() bool {
	return p.OrderQuantity == nil && p.OrderDate == nil
}

// OrderFilter selects orders. Zero-valued fields do not constrain the result.
type OrderFilter struct {
	Since      *time.Time
	UserID     string
	ProductIDs []string
}

// StockCompensation is a stock release that has to be applied after an order
// mutation failed part-way.
type StockCompensation struct {
	ProductID string
	Quantity  int
	Reason    string
	Attempts  int
}
