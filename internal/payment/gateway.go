package payment

import (
	"context"
	"time"
)

// Gateway statuses as reported by the provider.
const (
	StatusInitialized        = "INITIALIZED"
	StatusAuthorized         = "AUTHORIZED"
	StatusFailed             = "FAILED"
	StatusNullified          = "NULLIFIED"
	StatusPartiallyNullified = "PARTIALLY_NULLIFIED"
	StatusReversed           = "REVERSED"
	StatusCaptured           = "CAPTURED"
)

// Gateway is a redirect-based payment provider. Every operation after
// Create is keyed by the opaque token Create returns.
type Gateway interface {
	// Method is the payment method identifier stored on orders.
	Method() string
	Create(ctx context.Context, req CreateRequest) (CreateResponse, error)
	Commit(ctx context.Context, token string) (CommitResponse, error)
	Status(ctx context.Context, token string) (StatusResponse, error)
	Refund(ctx context.Context, token string, amount int64) (RefundResponse, error)
}

type CreateRequest struct {
	Amount    int64
	BuyOrder  string
	SessionID string
	ReturnURL string
}

type CreateResponse struct {
	Token string
	// RedirectURL is where the buyer goes to pay, token included.
	RedirectURL string
}

type CommitResponse struct {
	Status            string    `json:"status"`
	Amount            int64     `json:"amount"`
	BuyOrder          string    `json:"buyOrder,omitempty"`
	AuthorizationCode string    `json:"authorizationCode,omitempty"`
	ResponseCode      int       `json:"responseCode"`
	CardLast4         string    `json:"cardLast4,omitempty"`
	TransactionDate   time.Time `json:"transactionDate,omitempty"`
}

type StatusResponse struct {
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	BuyOrder        string    `json:"buyOrder,omitempty"`
	TransactionDate time.Time `json:"transactionDate,omitempty"`
}

type RefundResponse struct {
	Type              string `json:"type"`
	AuthorizationCode string `json:"authorizationCode,omitempty"`
	NullifiedAmount   int64  `json:"nullifiedAmount"`
	Balance           int64  `json:"balance"`
	ResponseCode      int    `json:"responseCode"`
}
