package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Deduper claims an event id once. Release gives the claim back so a
// failed delivery can be retried.
type Deduper interface {
	Claim(ctx context.Context, scope, id string) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

const dedupScope = "notifier"

// Dispatcher consumes notification envelopes and delivers each one once.
type Dispatcher struct {
	sender Notifier
	dedup  Deduper
	log    *zap.Logger
}

func NewDispatcher(sender Notifier, dedup Deduper, log *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, dedup: dedup, log: logging.OrNop(log).Named("notifier")}
}

// Handle is a kafka.Handler. Malformed messages are dropped so they do not
// block the partition.
func (d *Dispatcher) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		d.log.Warn("dropping undecodable envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventNotificationRequested {
		return nil
	}
	msg, err := kafkax.UnwrapPayload[Message](env.Payload)
	if err != nil {
		d.log.Warn("dropping undecodable notification", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	claimed, err := d.dedup.Claim(ctx, dedupScope, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !claimed {
		d.log.Debug("duplicate notification skipped", zap.String("event_id", env.EventID))
		return nil
	}

	if err := d.sender.Notify(ctx, msg); err != nil {
		_ = d.dedup.Release(ctx, dedupScope, env.EventID)
		return err
	}
	d.log.Info("notification sent",
		zap.String("kind", string(msg.Kind)), zap.String("order_number", msg.OrderNumber), zap.String("event_id", env.EventID))
	return nil
}
