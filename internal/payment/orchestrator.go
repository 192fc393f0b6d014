package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const returnPath = "/payment/return"

type TransactionRequest struct {
	Amount      int64  `validate:"gt=0"`
	OrderNumber string `validate:"required"`
	SessionID   string `validate:"required"`
	ReturnURL   string `validate:"required,url"`
}

type Transaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirectUrl"`
}

type Confirmation struct {
	GatewayStatus string               `json:"gatewayStatus"`
	PaymentStatus orders.PaymentStatus `json:"paymentStatus"`
	Commit        CommitResponse       `json:"commit"`
}

func (c Confirmation) Authorized() bool { return c.PaymentStatus == orders.PaymentPaid }

// Orchestrator wraps a Gateway with local validation, status mapping and
// the error taxonomy the lifecycle relies on.
type Orchestrator struct {
	gw          Gateway
	frontendURL string
	now         func() time.Time
	log         *zap.Logger
	validate    *validator.Validate
}

func NewOrchestrator(gw Gateway, frontendURL string, now func() time.Time, log *zap.Logger) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		gw:          gw,
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
		now:         now,
		log:         logging.OrNop(log).Named("payment"),
		validate:    validator.New(),
	}
}

func (o *Orchestrator) Method() string { return o.gw.Method() }

// ReturnURL is where the gateway sends the buyer back to.
func (o *Orchestrator) ReturnURL() (string, error) {
	if o.frontendURL == "" {
		return "", &orders.ConfigurationError{Key: "FRONTEND_URL", Message: "payment return URL base is not configured"}
	}
	return o.frontendURL + returnPath, nil
}

func (o *Orchestrator) SessionID(userID int64) string {
	return fmt.Sprintf("session_%d_%d", userID, o.now().UnixMilli())
}

func (o *Orchestrator) CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error) {
	if err := o.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return Transaction{}, orders.NewValidationError("invalid payment transaction", fields...)
		}
		return Transaction{}, err
	}
	resp, err := o.gw.Create(ctx, CreateRequest{
		Amount: req.Amount, BuyOrder: req.OrderNumber, SessionID: req.SessionID, ReturnURL: req.ReturnURL,
	})
	if err != nil {
		o.log.Error("create transaction failed", zap.String("order_number", req.OrderNumber), zap.Error(err))
		return Transaction{}, &orders.GatewayError{Op: "create", Err: err}
	}
	if resp.Token == "" || resp.RedirectURL == "" {
		return Transaction{}, &orders.GatewayError{Op: "create", Err: errors.New("response missing token or redirect url")}
	}
	o.log.Info("transaction created", zap.String("order_number", req.OrderNumber), zap.String("token", MaskToken(resp.Token)))
	return Transaction{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// Confirm commits the transaction and maps the result: AUTHORIZED is paid,
// anything else failed.
func (o *Orchestrator) Confirm(ctx context.Context, token string) (Confirmation, error) {
	if strings.TrimSpace(token) == "" {
		return Confirmation{}, orders.NewValidationError("payment token is required", "token")
	}
	resp, err := o.gw.Commit(ctx, token)
	if err != nil {
		o.log.Error("commit failed", zap.String("token", MaskToken(token)), zap.Error(err))
		return Confirmation{}, &orders.GatewayError{Op: "commit", Err: err}
	}
	return Confirmation{
		GatewayStatus: resp.Status,
		PaymentStatus: MapStatus(resp.Status),
		Commit:        resp,
	}, nil
}

func (o *Orchestrator) Status(ctx context.Context, token string) (StatusResponse, error) {
	resp, err := o.gw.Status(ctx, token)
	if err != nil {
		return StatusResponse{}, &orders.GatewayError{Op: "status", Err: err}
	}
	return resp, nil
}

// Refund refunds amount, or the full total when amount is zero.
func (o *Orchestrator) Refund(ctx context.Context, token string, total, amount int64) (RefundResponse, error) {
	if strings.TrimSpace(token) == "" {
		return RefundResponse{}, orders.NewValidationError("order has no payment token", "token")
	}
	if amount == 0 {
		amount = total
	}
	if amount <= 0 || amount > total {
		return RefundResponse{}, orders.NewValidationError("refund amount must be between 1 and the order total", "amount")
	}
	resp, err := o.gw.Refund(ctx, token, amount)
	if err != nil {
		o.log.Error("refund failed", zap.String("token", MaskToken(token)), zap.Int64("amount", amount), zap.Error(err))
		return RefundResponse{}, &orders.GatewayError{Op: "refund", Err: err}
	}
	o.log.Info("refund processed", zap.String("token", MaskToken(token)), zap.Int64("amount", amount), zap.String("type", resp.Type))
	return resp, nil
}

func MapStatus(gatewayStatus string) orders.PaymentStatus {
	if strings.EqualFold(gatewayStatus, StatusAuthorized) {
		return orders.PaymentPaid
	}
	return orders.PaymentFailed
}

// MaskToken keeps enough of a token to correlate logs.
func MaskToken(t string) string {
	if len(t) <= 8 {
		return "****"
	}
	return t[:8] + "****"
}
