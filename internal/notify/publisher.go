package notify

import (
	"context"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type producer interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Publisher hands messages to the notifier service over Kafka.
type Publisher struct {
	producer producer
	service  string
	now      func() time.Time
}

func NewPublisher(p producer, service string) *Publisher {
	return &Publisher{producer: p, service: service, now: time.Now}
}

func (p *Publisher) Notify(ctx context.Context, m Message) error {
	if m.Recipient == "" {
		return fmt.Errorf("notify %s for %s: no recipient", m.Kind, m.OrderNumber)
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventNotificationRequested,
		EventVersion:  1,
		OccurredAt:    p.now().UTC(),
		Producer:      p.service,
		CorrelationID: m.OrderNumber,
		Payload:       kafkax.MustMarshal(m),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	return p.producer.Publish(ctx, orders.PartitionKey(m.OrderNumber), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(orders.EventNotificationRequested, ev.EventVersion)...)
}
