package orders

import "time"

// Amounts are integer minor units of the store currency.

type Product struct {
	ID                 int64
	Name               string
	Price              int64
	Stock              int
	Active             bool
	OnSale             bool
	DiscountPercentage int
	SaleStart          *time.Time
	SaleEnd            *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ShippingAddress struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	UserID        int64           `json:"userId"`
	Shipping      ShippingAddress `json:"shippingAddress"`
	TotalAmount   int64           `json:"totalAmount"`
	Status        Status          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	GatewayToken  string          `json:"-"`
	GatewayStatus string          `json:"gatewayStatus,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Items         []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"orderId"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	Subtotal    int64  `json:"subtotal"`
}

// CartLine is one line of a cart snapshot as the order path sees it:
// stored price and quantity, not the live display price.
type CartLine struct {
	ProductID   int64
	ProductName string
	Quantity    int
	Price       int64
}

const (
	ReservationReserved = "RESERVED"
	ReservationReleased = "RELEASED"
)

type Reservation struct {
	OrderID    int64
	ProductID  int64
	Qty        int
	Status     string
	CreatedAt  time.Time
	ReleasedAt *time.Time
}

// Contact is what notifications need to know about a user.
type Contact struct {
	UserID int64
	Email  string
	Name   string
}

type ListFilter struct {
	UserID        int64
	Status        Status
	PaymentStatus PaymentStatus
	Search        string
	Page          int
	Limit         int
}

func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

type Page struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}
