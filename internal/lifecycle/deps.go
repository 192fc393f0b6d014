package lifecycle

import (
	"context"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"go.uber.org/zap"
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderStore interface {
	FindByID(ctx context.Context, id int64) (orders.Order, error)
	FindByToken(ctx context.Context, token string) (orders.Order, error)
	List(ctx context.Context, f orders.ListFilter) (orders.Page, error)
	SetGatewayToken(ctx context.Context, id int64, token string) error
	SetStatus(ctx context.Context, id int64, s orders.Status) error
	SetPayment(ctx context.Context, id int64, ps orders.PaymentStatus, gatewayStatus string) error
	SettlePayment(ctx context.Context, id int64, from, to orders.PaymentStatus, gatewayStatus string) (bool, error)
	SetNotes(ctx context.Context, id int64, notes string) error
	StatsBuckets(ctx context.Context, since time.Time) ([]orders.StatsBucket, error)
}

type CartStore interface {
	Snapshot(ctx context.Context, userID int64) (cart.Snapshot, error)
	Clear(ctx context.Context, cartID int64) error
}

type StockLedger interface {
	ValidateAvailability(ctx context.Context, lines []orders.ItemQty) error
	Reserve(ctx context.Context, orderID int64) error
	Release(ctx context.Context, orderID int64) (int, error)
}

type OrderBuilder interface {
	Build(ctx context.Context, in orders.BuildInput) (orders.Order, error)
	SanitizeNotes(s string) string
}

type Payments interface {
	ReturnURL() (string, error)
	SessionID(userID int64) string
	CreateTransaction(ctx context.Context, req payment.TransactionRequest) (payment.Transaction, error)
	Confirm(ctx context.Context, token string) (payment.Confirmation, error)
	Status(ctx context.Context, token string) (payment.StatusResponse, error)
	Refund(ctx context.Context, token string, total, amount int64) (payment.RefundResponse, error)
}

type Contacts interface {
	Contact(ctx context.Context, userID int64) (orders.Contact, error)
}

// CallbackGuard keeps two deliveries of the same payment callback from
// running side by side.
type CallbackGuard interface {
	Acquire(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context, token string) error
}

type StatusCache interface {
	Put(ctx context.Context, e redisx.StatusEntry) error
	Get(ctx context.Context, orderID int64) (redisx.StatusEntry, bool, error)
}

// Deps wires a Manager. Guard and Cache are optional.
type Deps struct {
	Tx         TxRunner
	Orders     OrderStore
	Carts      CartStore
	Ledger     StockLedger
	Builder    OrderBuilder
	Payments   Payments
	Notifier   notify.Notifier
	Contacts   Contacts
	Guard      CallbackGuard
	Cache      StatusCache
	AdminEmail string
	Log        *zap.Logger
	Now        func() time.Time
}
