package notify

import "context"

type Kind string

const (
	KindPaymentConfirmation Kind = "payment_confirmation"
	KindAdminPayment        Kind = "payment_admin_notification"
	KindPaymentFailed       Kind = "payment_failed"
	KindOrderProcessing     Kind = "order_processing"
	KindOrderShipped        Kind = "order_shipped"
	KindOrderDelivered      Kind = "order_delivered"
)

type Message struct {
	Kind              Kind   `json:"kind"`
	Recipient         string `json:"recipient"`
	CustomerName      string `json:"customer_name,omitempty"`
	CustomerEmail     string `json:"customer_email,omitempty"`
	OrderID           int64  `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	Amount            int64  `json:"amount"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Notifier delivers a message. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}
