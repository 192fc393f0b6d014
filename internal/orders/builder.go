package orders

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Writer persists a new order header and its items.
type Writer interface {
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID int64, items []OrderItem) ([]OrderItem, error)
}

type BuildInput struct {
	UserID   int64
	Shipping ShippingAddress
	Lines    []CartLine
	Notes    string
}

// Builder turns a cart snapshot into a persisted pending order. It does not
// touch stock or the cart.
type Builder struct {
	store  Writer
	method string
	now    func() time.Time
	policy *bluemonday.Policy
}

func NewBuilder(store Writer, paymentMethod string, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{
		store:  store,
		method: paymentMethod,
		now:    now,
		policy: bluemonday.StrictPolicy(),
	}
}

func (b *Builder) Build(ctx context.Context, in BuildInput) (Order, error) {
	addr, err := ValidateShipping(in.Shipping)
	if err != nil {
		return Order{}, err
	}
	if len(in.Lines) == 0 {
		return Order{}, NewValidationError("cart is empty")
	}

	var total int64
	items := make([]OrderItem, 0, len(in.Lines))
	for _, l := range in.Lines {
		if l.ProductID <= 0 || l.Quantity <= 0 {
			return Order{}, NewValidationError("invalid cart line", fmt.Sprintf("product %d", l.ProductID))
		}
		sub := l.Price * int64(l.Quantity)
		total += sub
		items = append(items, OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.Price,
			Subtotal:    sub,
		})
	}

	o := Order{
		OrderNumber:   NewOrderNumber(b.now()),
		UserID:        in.UserID,
		Shipping:      addr,
		TotalAmount:   total,
		Status:        StatusPending,
		PaymentMethod: b.method,
		PaymentStatus: PaymentPending,
		Notes:         b.SanitizeNotes(in.Notes),
	}
	if err := b.store.InsertOrder(ctx, &o); err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	saved, err := b.store.InsertItems(ctx, o.ID, items)
	if err != nil {
		return Order{}, fmt.Errorf("insert order items: %w", err)
	}
	o.Items = saved
	return o, nil
}

// SanitizeNotes strips markup from free-text notes.
func (b *Builder) SanitizeNotes(s string) string {
	return strings.TrimSpace(b.policy.Sanitize(s))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateShipping trims every field and reports all blank ones at once.
func ValidateShipping(a ShippingAddress) (ShippingAddress, error) {
	a = ShippingAddress{
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		ZipCode: strings.TrimSpace(a.ZipCode),
		Country: strings.TrimSpace(a.Country),
	}
	err := validate.Struct(a)
	if err == nil {
		return a, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return a, err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return a, NewValidationError("shipping address is incomplete", fields...)
}
