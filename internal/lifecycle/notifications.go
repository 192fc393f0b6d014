package lifecycle

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"go.uber.org/zap"
)

func (m *Manager) contact(ctx context.Context, o orders.Order) orders.Contact {
	if m.contacts == nil {
		return orders.Contact{UserID: o.UserID}
	}
	c, err := m.contacts.Contact(ctx, o.UserID)
	if err != nil {
		m.log.Warn("buyer contact lookup failed", zap.Int64("user_id", o.UserID), zap.String("order_number", o.OrderNumber), zap.Error(err))
		return orders.Contact{UserID: o.UserID}
	}
	return c
}

// send never fails the caller; a lost email is logged and forgotten.
func (m *Manager) send(ctx context.Context, msg notify.Message) {
	if m.notifier == nil {
		return
	}
	if msg.Recipient == "" {
		m.log.Warn("notification skipped, no recipient", zap.String("kind", string(msg.Kind)), zap.String("order_number", msg.OrderNumber))
		return
	}
	if err := m.notifier.Notify(ctx, msg); err != nil {
		m.log.Warn("notification failed", zap.String("kind", string(msg.Kind)), zap.String("order_number", msg.OrderNumber), zap.Error(err))
	}
}
