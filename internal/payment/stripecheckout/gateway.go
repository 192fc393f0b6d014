// Package stripecheckout adapts Stripe Checkout to the payment.Gateway contract.
// The checkout session id is the gateway token.
package stripecheckout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const method = "stripe_checkout"

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Expire(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
}

type refundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type Config struct {
	APIKey   string
	Currency string
	Backends *stripe.Backends

	sessions sessionAPI
	refunds  refundAPI
}

type Gateway struct {
	sessions sessionAPI
	refunds  refundAPI
	currency string
}

var _ payment.Gateway = (*Gateway)(nil)

func New(cfg Config) (*Gateway, error) {
	g := &Gateway{
		sessions: cfg.sessions,
		refunds:  cfg.refunds,
		currency: strings.ToLower(strings.TrimSpace(cfg.Currency)),
	}
	if g.sessions == nil || g.refunds == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(key, cfg.Backends)
		g.sessions, g.refunds = sc.CheckoutSessions, sc.Refunds
	}
	if g.currency == "" {
		g.currency = "clp"
	}
	return g, nil
}

func (g *Gateway) Method() string { return method }

func (g *Gateway) Create(ctx context.Context, req payment.CreateRequest) (payment.CreateResponse, error) {
	// Stripe fills {CHECKOUT_SESSION_ID}; the return page posts it back as token_ws.
	back := req.ReturnURL + sep(req.ReturnURL) + "token_ws={CHECKOUT_SESSION_ID}"
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(back),
		CancelURL:         stripe.String(back),
		ClientReferenceID: stripe.String(req.BuyOrder),
		Metadata: map[string]string{
			"order_number": req.BuyOrder,
			"session_id":   req.SessionID,
		},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.BuyOrder),
				},
			},
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.BuyOrder)

	s, err := g.sessions.New(params)
	if err != nil {
		return payment.CreateResponse{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return payment.CreateResponse{Token: s.ID, RedirectURL: s.URL}, nil
}

// Commit reads the session. An unpaid open session is expired so it can no
// longer be paid, and reported as failed.
func (g *Gateway) Commit(ctx context.Context, token string) (payment.CommitResponse, error) {
	s, err := g.session(ctx, token)
	if err != nil {
		return payment.CommitResponse{}, err
	}
	status := sessionStatus(s)
	if status == payment.StatusInitialized {
		params := &stripe.CheckoutSessionExpireParams{}
		params.Context = ctx
		if _, err := g.sessions.Expire(token, params); err != nil {
			return payment.CommitResponse{}, fmt.Errorf("stripe: expire checkout session: %w", err)
		}
		status = payment.StatusFailed
	}
	out := payment.CommitResponse{
		Status:   status,
		Amount:   s.AmountTotal,
		BuyOrder: s.ClientReferenceID,
	}
	if s.PaymentIntent != nil {
		out.AuthorizationCode = s.PaymentIntent.ID
	}
	return out, nil
}

func (g *Gateway) Status(ctx context.Context, token string) (payment.StatusResponse, error) {
	s, err := g.session(ctx, token)
	if err != nil {
		return payment.StatusResponse{}, err
	}
	return payment.StatusResponse{Status: sessionStatus(s), Amount: s.AmountTotal, BuyOrder: s.ClientReferenceID}, nil
}

func (g *Gateway) Refund(ctx context.Context, token string, amount int64) (payment.RefundResponse, error) {
	s, err := g.session(ctx, token)
	if err != nil {
		return payment.RefundResponse{}, err
	}
	if s.PaymentIntent == nil || s.PaymentIntent.ID == "" {
		return payment.RefundResponse{}, errors.New("stripe: checkout session has no payment intent")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(s.PaymentIntent.ID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	r, err := g.refunds.New(params)
	if err != nil {
		return payment.RefundResponse{}, fmt.Errorf("stripe: create refund: %w", err)
	}
	typ := payment.StatusReversed
	if amount < s.AmountTotal {
		typ = payment.StatusPartiallyNullified
	}
	return payment.RefundResponse{
		Type:              typ,
		AuthorizationCode: r.ID,
		NullifiedAmount:   r.Amount,
		Balance:           s.AmountTotal - r.Amount,
	}, nil
}

func (g *Gateway) session(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	s, err := g.sessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get checkout session: %w", err)
	}
	return s, nil
}

func sessionStatus(s *stripe.CheckoutSession) string {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return payment.StatusAuthorized
	case s.Status == stripe.CheckoutSessionStatusOpen:
		return payment.StatusInitialized
	default:
		return payment.StatusFailed
	}
}

func sep(u string) string {
	if strings.Contains(u, "?") {
		return "&"
	}
	return "?"
}
