package cart

import (
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type Line struct {
	ProductID   int64
	ProductName string
	Quantity    int
	// Price is the price stored when the line was added; orders use it.
	Price int64
	// LivePrice is the product's current display price.
	LivePrice int64
}

type Snapshot struct {
	CartID int64
	UserID int64
	Lines  []Line
}

func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }

// OrderLines is what the order path consumes: stored price and quantity.
func (s Snapshot) OrderLines() []orders.CartLine {
	out := make([]orders.CartLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, orders.CartLine{
			ProductID: l.ProductID, ProductName: l.ProductName, Quantity: l.Quantity, Price: l.Price,
		})
	}
	return out
}

func (s Snapshot) Quantities() []orders.ItemQty {
	out := make([]orders.ItemQty, 0, len(s.Lines))
	for _, l := range s.Lines {
		out = append(out, orders.ItemQty{ProductID: l.ProductID, Qty: l.Quantity})
	}
	return out
}

// DisplayTotal sums live prices. It is for display only and may differ
// from the total an order is created with.
func (s Snapshot) DisplayTotal() int64 {
	var t int64
	for _, l := range s.Lines {
		t += l.LivePrice * int64(l.Quantity)
	}
	return t
}

// EffectivePrice applies an active sale discount to the list price.
func EffectivePrice(p orders.Product, now time.Time) int64 {
	if !p.OnSale || p.DiscountPercentage <= 0 {
		return p.Price
	}
	if p.SaleStart != nil && now.Before(*p.SaleStart) {
		return p.Price
	}
	if p.SaleEnd != nil && now.After(*p.SaleEnd) {
		return p.Price
	}
	pct := int64(min(p.DiscountPercentage, 100))
	return p.Price - p.Price*pct/100
}
