package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/go-storefront-orders/internal/lifecycle")

const compensationTimeout = 10 * time.Second

// Manager drives orders from checkout through payment to fulfilment or
// cancellation.
type Manager struct {
	tx         TxRunner
	orders     OrderStore
	carts      CartStore
	ledger     StockLedger
	builder    OrderBuilder
	payments   Payments
	notifier   notify.Notifier
	contacts   Contacts
	guard      CallbackGuard
	cache      StatusCache
	adminEmail string
	log        *zap.Logger
	now        func() time.Time
}

func New(d Deps) *Manager {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		tx:         d.Tx,
		orders:     d.Orders,
		carts:      d.Carts,
		ledger:     d.Ledger,
		builder:    d.Builder,
		payments:   d.Payments,
		notifier:   d.Notifier,
		contacts:   d.Contacts,
		guard:      d.Guard,
		cache:      d.Cache,
		adminEmail: d.AdminEmail,
		log:        logging.OrNop(d.Log).Named("lifecycle"),
		now:        now,
	}
}

type CheckoutRequest struct {
	Shipping orders.ShippingAddress `json:"shippingAddress"`
	Notes    string                 `json:"notes"`
}

type CheckoutResult struct {
	Order       orders.Order `json:"order"`
	Token       string       `json:"token"`
	RedirectURL string       `json:"redirectUrl"`
}

type PaymentResult struct {
	Order         orders.Order           `json:"order"`
	Authorized    bool                   `json:"authorized"`
	GatewayStatus string                 `json:"gatewayStatus"`
	Commit        payment.CommitResponse `json:"commit"`
	// Replayed is set when the callback had already been handled.
	Replayed bool `json:"replayed"`
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lifecycle."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateOrder places an order without a gateway redirect: the order, its
// reservation and the cart clear commit together.
func (m *Manager) CreateOrder(ctx context.Context, p auth.Principal, req CheckoutRequest) (o orders.Order, err error) {
	ctx, span := startSpan(ctx, "CreateOrder", attribute.Int64("user.id", p.UserID))
	defer func() { endSpan(span, err) }()

	if p.UserID == 0 {
		return orders.Order{}, orders.ErrUnauthenticated
	}
	o, _, err = m.place(ctx, p.UserID, req, true)
	return o, err
}

// Checkout places an order and opens a gateway transaction for it. The
// cart is cleared only once the buyer has somewhere to pay.
func (m *Manager) Checkout(ctx context.Context, p auth.Principal, req CheckoutRequest) (res CheckoutResult, err error) {
	ctx, span := startSpan(ctx, "Checkout", attribute.Int64("user.id", p.UserID))
	defer func() { endSpan(span, err) }()

	if p.UserID == 0 {
		return CheckoutResult{}, orders.ErrUnauthenticated
	}
	returnURL, err := m.payments.ReturnURL()
	if err != nil {
		return CheckoutResult{}, err
	}

	o, snap, err := m.place(ctx, p.UserID, req, false)
	if err != nil {
		return CheckoutResult{}, err
	}
	span.SetAttributes(attribute.String("order.number", o.OrderNumber))

	tx, err := m.payments.CreateTransaction(ctx, payment.TransactionRequest{
		Amount:      o.TotalAmount,
		OrderNumber: o.OrderNumber,
		SessionID:   m.payments.SessionID(p.UserID),
		ReturnURL:   returnURL,
	})
	if err == nil {
		err = m.orders.SetGatewayToken(ctx, o.ID, tx.Token)
	}
	if err != nil {
		m.compensate(ctx, o)
		return CheckoutResult{}, err
	}
	o.GatewayToken = tx.Token

	if err := m.carts.Clear(ctx, snap.CartID); err != nil {
		m.log.Warn("cart clear after checkout failed", zap.Int64("cart_id", snap.CartID), zap.String("order_number", o.OrderNumber), zap.Error(err))
	}
	m.log.Info("checkout started", zap.String("order_number", o.OrderNumber), zap.String("token", payment.MaskToken(tx.Token)))
	return CheckoutResult{Order: o, Token: tx.Token, RedirectURL: tx.RedirectURL}, nil
}

func (m *Manager) place(ctx context.Context, userID int64, req CheckoutRequest, clearInTx bool) (orders.Order, cart.Snapshot, error) {
	addr, err := orders.ValidateShipping(req.Shipping)
	if err != nil {
		return orders.Order{}, cart.Snapshot{}, err
	}
	snap, err := m.carts.Snapshot(ctx, userID)
	if err != nil {
		return orders.Order{}, cart.Snapshot{}, err
	}
	if snap.Empty() {
		return orders.Order{}, snap, orders.NewValidationError("cart is empty")
	}
	if err := m.ledger.ValidateAvailability(ctx, snap.Quantities()); err != nil {
		return orders.Order{}, snap, err
	}

	var o orders.Order
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		built, err := m.builder.Build(ctx, orders.BuildInput{
			UserID: userID, Shipping: addr, Lines: snap.OrderLines(), Notes: req.Notes,
		})
		if err != nil {
			return err
		}
		if err := m.ledger.Reserve(ctx, built.ID); err != nil {
			return err
		}
		if clearInTx {
			if err := m.carts.Clear(ctx, snap.CartID); err != nil {
				return err
			}
		}
		o = built
		return nil
	})
	if err != nil {
		return orders.Order{}, snap, err
	}
	m.log.Info("order created",
		zap.Int64("order_id", o.ID), zap.String("order_number", o.OrderNumber),
		zap.Int64("user_id", userID), zap.Int64("total", o.TotalAmount))
	m.cachePut(ctx, o)
	return o, snap, nil
}

// compensate undoes a checkout whose gateway step failed: stock goes back
// and the order is cancelled. It runs even if the request was cancelled.
func (m *Manager) compensate(ctx context.Context, o orders.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := m.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := m.ledger.Release(ctx, o.ID); err != nil {
			return err
		}
		if err := m.orders.SetStatus(ctx, o.ID, orders.StatusCancelled); err != nil {
			return err
		}
		return m.orders.SetPayment(ctx, o.ID, orders.PaymentCancelled, "")
	})
	if err != nil {
		m.log.Error("checkout compensation failed", zap.Int64("order_id", o.ID), zap.String("order_number", o.OrderNumber), zap.Error(err))
		return
	}
	o.Status, o.PaymentStatus = orders.StatusCancelled, orders.PaymentCancelled
	m.cachePut(ctx, o)
	m.log.Warn("checkout compensated", zap.Int64("order_id", o.ID), zap.String("order_number", o.OrderNumber))
}

// ConfirmPayment handles the gateway callback for token. Each token is
// acted on once; later deliveries return the order as it stands.
func (m *Manager) ConfirmPayment(ctx context.Context, token string) (res PaymentResult, err error) {
	ctx, span := startSpan(ctx, "ConfirmPayment")
	defer func() { endSpan(span, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return PaymentResult{}, orders.NewValidationError("payment token is required", "token")
	}
	o, err := m.orders.FindByToken(ctx, token)
	if err != nil {
		return PaymentResult{}, err
	}
	span.SetAttributes(attribute.String("order.number", o.OrderNumber))
	if o.PaymentStatus != orders.PaymentPending {
		return replay(o), nil
	}

	if m.guard != nil {
		ok, gerr := m.guard.Acquire(ctx, token)
		switch {
		case gerr != nil:
			m.log.Warn("payment callback guard unavailable", zap.String("order_number", o.OrderNumber), zap.Error(gerr))
		case !ok:
			return replay(o), nil
		default:
			defer func() {
				if rerr := m.guard.Release(context.WithoutCancel(ctx), token); rerr != nil {
					m.log.Warn("payment callback guard release failed", zap.Error(rerr))
				}
			}()
			// Another delivery may have settled the order between the read above
			// and taking the guard.
			if o, err = m.orders.FindByToken(ctx, token); err != nil {
				return PaymentResult{}, err
			}
			if o.PaymentStatus != orders.PaymentPending {
				return replay(o), nil
			}
		}
	}

	conf, err := m.payments.Confirm(ctx, token)
	if err != nil {
		return PaymentResult{}, err
	}

	next, status := orders.PaymentFailed, orders.StatusCancelled
	if conf.Authorized() {
		next, status = orders.PaymentPaid, orders.StatusConfirmed
	}
	var settled bool
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		settled, err = m.orders.SettlePayment(ctx, o.ID, orders.PaymentPending, next, conf.GatewayStatus)
		if err != nil || !settled {
			return err
		}
		return m.orders.SetStatus(ctx, o.ID, status)
	})
	if err != nil {
		return PaymentResult{}, err
	}
	if !settled {
		cur, ferr := m.orders.FindByID(ctx, o.ID)
		if ferr != nil {
			return PaymentResult{}, ferr
		}
		m.log.Info("payment callback already settled", zap.String("order_number", o.OrderNumber))
		return replay(cur), nil
	}
	o.PaymentStatus, o.Status, o.GatewayStatus = next, status, conf.GatewayStatus

	c := m.contact(ctx, o)
	if conf.Authorized() {
		m.log.Info("payment authorized", zap.String("order_number", o.OrderNumber), zap.String("authorization_code", conf.Commit.AuthorizationCode))
		m.send(ctx, notify.Message{
			Kind: notify.KindPaymentConfirmation, Recipient: c.Email, CustomerName: c.Name,
			OrderID: o.ID, OrderNumber: o.OrderNumber, Amount: o.TotalAmount, AuthorizationCode: conf.Commit.AuthorizationCode,
		})
		m.send(ctx, notify.Message{
			Kind: notify.KindAdminPayment, Recipient: m.adminEmail, CustomerName: c.Name, CustomerEmail: c.Email,
			OrderID: o.ID, OrderNumber: o.OrderNumber, Amount: o.TotalAmount, AuthorizationCode: conf.Commit.AuthorizationCode,
		})
	} else {
		if _, rerr := m.ledger.Release(ctx, o.ID); rerr != nil {
			m.log.Error("stock release after failed payment", zap.String("order_number", o.OrderNumber), zap.Error(rerr))
		}
		m.log.Info("payment not authorized", zap.String("order_number", o.OrderNumber), zap.String("gateway_status", conf.GatewayStatus))
		m.send(ctx, notify.Message{
			Kind: notify.KindPaymentFailed, Recipient: c.Email, CustomerName: c.Name,
			OrderID: o.ID, OrderNumber: o.OrderNumber, Amount: o.TotalAmount, Reason: "payment was not authorized",
		})
	}
	m.cachePut(ctx, o)
	return PaymentResult{
		Order: o, Authorized: conf.Authorized(), GatewayStatus: conf.GatewayStatus, Commit: conf.Commit,
	}, nil
}

func replay(o orders.Order) PaymentResult {
	return PaymentResult{
		Order: o, Authorized: o.PaymentStatus == orders.PaymentPaid, GatewayStatus: o.GatewayStatus, Replayed: true,
	}
}

func (m *Manager) cachePut(ctx context.Context, o orders.Order) {
	if m.cache == nil {
		return
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = m.now()
	}
	if err := m.cache.Put(ctx, redisx.EntryFor(o)); err != nil {
		m.log.Debug("status cache put failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
