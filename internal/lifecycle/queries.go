package lifecycle

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderView is an order plus, when the gateway answered, its live view of
// the transaction.
type OrderView struct {
	orders.Order
	Gateway *payment.StatusResponse `json:"gateway,omitempty"`
}

type PaymentView struct {
	OrderID       int64                   `json:"orderId"`
	OrderNumber   string                  `json:"orderNumber"`
	Status        orders.Status           `json:"status"`
	PaymentStatus orders.PaymentStatus    `json:"paymentStatus"`
	PaymentMethod string                  `json:"paymentMethod"`
	TotalAmount   int64                   `json:"totalAmount"`
	Gateway       *payment.StatusResponse `json:"gateway,omitempty"`
}

func (m *Manager) owned(ctx context.Context, p auth.Principal, id int64) (orders.Order, error) {
	o, err := m.orders.FindByID(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	if !p.CanAccess(o.UserID) {
		return orders.Order{}, orders.ErrForbidden
	}
	return o, nil
}

// gatewayStatus asks the gateway about the order's transaction. Failures
// are logged and the local record is served alone.
func (m *Manager) gatewayStatus(ctx context.Context, o orders.Order) *payment.StatusResponse {
	if o.GatewayToken == "" {
		return nil
	}
	st, err := m.payments.Status(ctx, o.GatewayToken)
	if err != nil {
		m.log.Warn("gateway status lookup failed", zap.String("order_number", o.OrderNumber), zap.Error(err))
		return nil
	}
	return &st
}

func (m *Manager) GetOrder(ctx context.Context, p auth.Principal, id int64) (v OrderView, err error) {
	ctx, span := startSpan(ctx, "GetOrder", attribute.Int64("order.id", id))
	defer func() { endSpan(span, err) }()

	o, err := m.owned(ctx, p, id)
	if err != nil {
		return OrderView{}, err
	}
	return OrderView{Order: o, Gateway: m.gatewayStatus(ctx, o)}, nil
}

func (m *Manager) PaymentStatus(ctx context.Context, p auth.Principal, id int64) (v PaymentView, err error) {
	ctx, span := startSpan(ctx, "PaymentStatus", attribute.Int64("order.id", id))
	defer func() { endSpan(span, err) }()

	o, err := m.owned(ctx, p, id)
	if err != nil {
		return PaymentView{}, err
	}
	return PaymentView{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		TotalAmount:   o.TotalAmount,
		Gateway:       m.gatewayStatus(ctx, o),
	}, nil
}

// OrderStatus serves the lightweight status view, from cache when warm.
func (m *Manager) OrderStatus(ctx context.Context, p auth.Principal, id int64) (e redisx.StatusEntry, err error) {
	ctx, span := startSpan(ctx, "OrderStatus", attribute.Int64("order.id", id))
	defer func() { endSpan(span, err) }()

	if m.cache != nil {
		cached, ok, cerr := m.cache.Get(ctx, id)
		if cerr != nil {
			m.log.Debug("status cache get failed", zap.Int64("order_id", id), zap.Error(cerr))
		}
		if ok {
			if !p.CanAccess(cached.UserID) {
				return redisx.StatusEntry{}, orders.ErrForbidden
			}
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}
	o, err := m.owned(ctx, p, id)
	if err != nil {
		return redisx.StatusEntry{}, err
	}
	m.cachePut(ctx, o)
	return redisx.EntryFor(o), nil
}

// ListOrders lists the caller's own orders.
func (m *Manager) ListOrders(ctx context.Context, p auth.Principal, f orders.ListFilter) (orders.Page, error) {
	if p.UserID == 0 {
		return orders.Page{}, orders.ErrUnauthenticated
	}
	f.UserID = p.UserID
	return m.list(ctx, f)
}

// ListAll lists every order; administrators only.
func (m *Manager) ListAll(ctx context.Context, p auth.Principal, f orders.ListFilter) (orders.Page, error) {
	if !p.IsAdmin() {
		return orders.Page{}, orders.ErrForbidden
	}
	return m.list(ctx, f)
}

func (m *Manager) list(ctx context.Context, f orders.ListFilter) (pg orders.Page, err error) {
	ctx, span := startSpan(ctx, "ListOrders", attribute.Int64("filter.user_id", f.UserID))
	defer func() { endSpan(span, err) }()

	if f.Status != "" && !f.Status.Valid() {
		return orders.Page{}, orders.NewValidationError("unknown order status", "status")
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return orders.Page{}, orders.NewValidationError("unknown payment status", "paymentStatus")
	}
	return m.orders.List(ctx, f.Normalize())
}

func (m *Manager) Stats(ctx context.Context, p auth.Principal, period string) (s orders.Stats, err error) {
	ctx, span := startSpan(ctx, "Stats", attribute.String("stats.period", period))
	defer func() { endSpan(span, err) }()

	if !p.IsAdmin() {
		return orders.Stats{}, orders.ErrForbidden
	}
	since, err := orders.PeriodStart(period, m.now())
	if err != nil {
		return orders.Stats{}, err
	}
	buckets, err := m.orders.StatsBuckets(ctx, since)
	if err != nil {
		return orders.Stats{}, err
	}
	return orders.Summarize(period, buckets), nil
}
