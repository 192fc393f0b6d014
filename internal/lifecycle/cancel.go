package lifecycle

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CancelResult struct {
	Order    orders.Order `json:"order"`
	Refunded bool         `json:"refunded"`
	Released int          `json:"released"`
}

// Cancel cancels an order on behalf of its owner or an administrator.
// A paid order is refunded in full first; if the refund fails nothing
// changes.
func (m *Manager) Cancel(ctx context.Context, p auth.Principal, orderID int64, reason string) (res CancelResult, err error) {
	ctx, span := startSpan(ctx, "Cancel", attribute.Int64("order.id", orderID))
	defer func() { endSpan(span, err) }()

	o, err := m.orders.FindByID(ctx, orderID)
	if err != nil {
		return CancelResult{}, err
	}
	if !p.CanAccess(o.UserID) {
		return CancelResult{}, orders.ErrForbidden
	}
	if !o.Status.Cancellable() {
		return CancelResult{}, &orders.TransitionError{From: o.Status, To: orders.StatusCancelled}
	}

	prior := o.Status
	nextPayment := o.PaymentStatus
	if o.PaymentStatus == orders.PaymentPaid && o.GatewayToken != "" {
		if _, err := m.payments.Refund(ctx, o.GatewayToken, o.TotalAmount, 0); err != nil {
			return CancelResult{}, err
		}
		res.Refunded = true
		nextPayment = orders.PaymentRefunded
		// Recorded on its own so a retried cancel cannot refund twice.
		if _, err := m.orders.SettlePayment(ctx, o.ID, orders.PaymentPaid, orders.PaymentRefunded, ""); err != nil {
			m.log.Error("refund issued but not recorded", zap.String("order_number", o.OrderNumber), zap.Error(err))
			return CancelResult{}, err
		}
		o.PaymentStatus = orders.PaymentRefunded
	} else if o.PaymentStatus == orders.PaymentPending {
		nextPayment = orders.PaymentCancelled
	}

	if prior.HoldsStock() {
		n, rerr := m.ledger.Release(ctx, o.ID)
		if rerr != nil {
			m.log.Error("stock release on cancel failed", zap.String("order_number", o.OrderNumber), zap.Error(rerr))
		}
		res.Released = n
	}

	reason = m.builder.SanitizeNotes(reason)
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := m.orders.SetStatus(ctx, o.ID, orders.StatusCancelled); err != nil {
			return err
		}
		if nextPayment != o.PaymentStatus {
			if err := m.orders.SetPayment(ctx, o.ID, nextPayment, ""); err != nil {
				return err
			}
		}
		if reason != "" {
			return m.orders.SetNotes(ctx, o.ID, reason)
		}
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	o.Status, o.PaymentStatus = orders.StatusCancelled, nextPayment
	if reason != "" {
		o.Notes = reason
	}
	o.UpdatedAt = m.now()
	m.log.Info("order cancelled",
		zap.String("order_number", o.OrderNumber), zap.String("from", string(prior)),
		zap.Bool("refunded", res.Refunded), zap.Int64("by_user", p.UserID))

	c := m.contact(ctx, o)
	m.send(ctx, notify.Message{
		Kind: notify.KindPaymentFailed, Recipient: c.Email, CustomerName: c.Name,
		OrderID: o.ID, OrderNumber: o.OrderNumber, Amount: o.TotalAmount, Reason: cancelReason(reason),
	})
	m.cachePut(ctx, o)
	res.Order = o
	return res, nil
}

func cancelReason(r string) string {
	if r == "" {
		return "the order was cancelled"
	}
	return "the order was cancelled (" + r + ")"
}

var fulfilmentMail = map[orders.Status]notify.Kind{
	orders.StatusProcessing: notify.KindOrderProcessing,
	orders.StatusShipped:    notify.KindOrderShipped,
	orders.StatusDelivered:  notify.KindOrderDelivered,
}

// UpdateStatus moves an order along fulfilment. Only processing, shipped
// and delivered may be set this way; cancellation goes through Cancel.
func (m *Manager) UpdateStatus(ctx context.Context, p auth.Principal, orderID int64, status orders.Status, notes *string) (o orders.Order, err error) {
	ctx, span := startSpan(ctx, "UpdateStatus", attribute.Int64("order.id", orderID), attribute.String("order.status", string(status)))
	defer func() { endSpan(span, err) }()

	if !p.IsAdmin() {
		return orders.Order{}, orders.ErrForbidden
	}
	status = orders.Status(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Fulfilment() {
		return orders.Order{}, orders.NewValidationError("status must be processing, shipped or delivered", "status")
	}
	o, err = m.orders.FindByID(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if !orders.CanTransition(o.Status, status) {
		return orders.Order{}, &orders.TransitionError{From: o.Status, To: status}
	}

	var cleaned string
	if notes != nil {
		cleaned = m.builder.SanitizeNotes(*notes)
	}
	err = m.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := m.orders.SetStatus(ctx, o.ID, status); err != nil {
			return err
		}
		if notes != nil {
			return m.orders.SetNotes(ctx, o.ID, cleaned)
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	prior := o.Status
	o.Status = status
	if notes != nil {
		o.Notes = cleaned
	}
	o.UpdatedAt = m.now()
	m.log.Info("order status updated",
		zap.String("order_number", o.OrderNumber), zap.String("from", string(prior)), zap.String("to", string(status)))

	if prior != status {
		c := m.contact(ctx, o)
		m.send(ctx, notify.Message{
			Kind: fulfilmentMail[status], Recipient: c.Email, CustomerName: c.Name,
			OrderID: o.ID, OrderNumber: o.OrderNumber, Amount: o.TotalAmount,
		})
	}
	m.cachePut(ctx, o)
	return o, nil
}

type RefundResult struct {
	Order  orders.Order `json:"order"`
	Amount int64        `json:"amount"`
	Type   string       `json:"type"`
}

// Refund returns money for a paid order. amount zero refunds the total.
// The order is cancelled as well while that is still possible.
func (m *Manager) Refund(ctx context.Context, p auth.Principal, orderID, amount int64) (res RefundResult, err error) {
	ctx, span := startSpan(ctx, "Refund", attribute.Int64("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if !p.IsAdmin() {
		return RefundResult{}, orders.ErrForbidden
	}
	o, err := m.orders.FindByID(ctx, orderID)
	if err != nil {
		return RefundResult{}, err
	}
	if o.GatewayToken == "" {
		return RefundResult{}, orders.NewValidationError("order has no payment transaction", "token")
	}
	if o.PaymentStatus != orders.PaymentPaid {
		return RefundResult{}, orders.NewValidationError("only paid orders can be refunded", "paymentStatus")
	}

	resp, err := m.payments.Refund(ctx, o.GatewayToken, o.TotalAmount, amount)
	if err != nil {
		return RefundResult{}, err
	}
	if amount == 0 {
		amount = o.TotalAmount
	}
	if _, err := m.orders.SettlePayment(ctx, o.ID, orders.PaymentPaid, orders.PaymentRefunded, ""); err != nil {
		m.log.Error("refund issued but not recorded", zap.String("order_number", o.OrderNumber), zap.Error(err))
		return RefundResult{}, err
	}
	o.PaymentStatus = orders.PaymentRefunded

	prior := o.Status
	cancel := prior.Cancellable()
	if cancel && prior.HoldsStock() {
		if _, rerr := m.ledger.Release(ctx, o.ID); rerr != nil {
			m.log.Error("stock release on refund failed", zap.String("order_number", o.OrderNumber), zap.Error(rerr))
		}
	}
	if cancel {
		if err := m.orders.SetStatus(ctx, o.ID, orders.StatusCancelled); err != nil {
			return RefundResult{}, err
		}
		o.Status = orders.StatusCancelled
	}
	o.UpdatedAt = m.now()
	m.log.Info("order refunded",
		zap.String("order_number", o.OrderNumber), zap.Int64("amount", amount), zap.String("type", resp.Type))
	m.cachePut(ctx, o)
	return RefundResult{Order: o, Amount: amount, Type: resp.Type}, nil
}
