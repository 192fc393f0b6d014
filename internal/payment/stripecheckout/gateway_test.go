package stripecheckout

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
)

type fakeSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	expired []string
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = p
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (f *fakeSessions) Get(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.session, nil
}

func (f *fakeSessions) Expire(id string, _ *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	f.expired = append(f.expired, id)
	return f.session, nil
}

type fakeRefunds struct{ params *stripe.RefundParams }

func (f *fakeRefunds) New(p *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = p
	return &stripe.Refund{ID: "re_1", Amount: *p.Amount, Status: stripe.RefundStatusSucceeded}, nil
}

func newFake(t *testing.T, s *stripe.CheckoutSession) (*Gateway, *fakeSessions, *fakeRefunds) {
	t.Helper()
	fs, fr := &fakeSessions{session: s}, &fakeRefunds{}
	g, err := New(Config{Currency: "CLP", sessions: fs, refunds: fr})
	require.NoError(t, err)
	return g, fs, fr
}

func TestCreateSession(t *testing.T) {
	g, fs, _ := newFake(t, nil)
	res, err := g.Create(context.Background(), payment.CreateRequest{
		Amount: 2000, BuyOrder: "ORD-1-ABCDE", SessionID: "session_1_1", ReturnURL: "https://shop/payment/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.Token)
	assert.Contains(t, res.RedirectURL, "checkout.stripe.com")

	assert.Equal(t, "https://shop/payment/return?token_ws={CHECKOUT_SESSION_ID}", *fs.created.SuccessURL)
	assert.Equal(t, "clp", *fs.created.LineItems[0].PriceData.Currency)
	assert.EqualValues(t, 2000, *fs.created.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "ORD-1-ABCDE", *fs.created.ClientReferenceID)
}

func TestCommitPaid(t *testing.T) {
	g, fs, _ := newFake(t, &stripe.CheckoutSession{
		ID: "cs_1", Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: 2000, PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
	})
	res, err := g.Commit(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusAuthorized, res.Status)
	assert.Equal(t, "pi_1", res.AuthorizationCode)
	assert.Empty(t, fs.expired)
}

func TestCommitOpenSessionExpires(t *testing.T) {
	g, fs, _ := newFake(t, &stripe.CheckoutSession{
		ID: "cs_1", Status: stripe.CheckoutSessionStatusOpen, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
	})
	res, err := g.Commit(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, res.Status)
	assert.Equal(t, []string{"cs_1"}, fs.expired)

	st, err := g.Status(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusInitialized, st.Status)
}

func TestRefundUsesPaymentIntent(t *testing.T) {
	g, _, fr := newFake(t, &stripe.CheckoutSession{
		ID: "cs_1", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: 3000, PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
	})
	res, err := g.Refund(context.Background(), "cs_1", 3000)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", *fr.params.PaymentIntent)
	assert.Equal(t, payment.StatusReversed, res.Type)
	assert.EqualValues(t, 0, res.Balance)

	res, err = g.Refund(context.Background(), "cs_1", 1000)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPartiallyNullified, res.Type)
	assert.EqualValues(t, 2000, res.Balance)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
