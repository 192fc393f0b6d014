package inventory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"go.uber.org/zap"
)

// Store is the persistence the ledger needs. *orders.ReservationRepo
// implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindProduct(ctx context.Context, id int64) (orders.Product, error)
	OrderItems(ctx context.Context, orderID int64) ([]orders.ItemQty, error)
	ReservedItems(ctx context.Context, orderID int64) ([]orders.ItemQty, error)
	TakeStock(ctx context.Context, productID int64, qty int) (orders.Product, bool, error)
	PutStock(ctx context.Context, productID int64, qty int) (bool, error)
	RecordReservation(ctx context.Context, orderID, productID int64, qty int) (bool, error)
	MarkReleased(ctx context.Context, orderID, productID int64) (bool, error)
}

// Ledger is the only writer of product stock.
type Ledger struct {
	store Store
	log   *zap.Logger
}

func NewLedger(store Store, log *zap.Logger) *Ledger {
	return &Ledger{store: store, log: logging.OrNop(log).Named("inventory")}
}

// ValidateAvailability checks lines against current stock without
// changing it and stops at the first problem. Reserve re-checks.
func (l *Ledger) ValidateAvailability(ctx context.Context, lines []orders.ItemQty) error {
	for _, it := range lines {
		if !l.usable(it, 0) {
			continue
		}
		p, err := l.store.FindProduct(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if p.Stock < it.Qty {
			return &orders.InsufficientStockError{
				ProductID: p.ID, ProductName: p.Name, Available: p.Stock, Requested: it.Qty,
			}
		}
	}
	return nil
}

// Reserve takes stock for every persisted item of the order. All lines are
// reserved or none: it joins the caller's transaction or opens its own.
// Lines already reserved for the order are skipped.
func (l *Ledger) Reserve(ctx context.Context, orderID int64) error {
	return l.store.WithTx(ctx, func(ctx context.Context) error {
		items, err := l.store.OrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if !l.usable(it, orderID) {
				continue
			}
			created, err := l.store.RecordReservation(ctx, orderID, it.ProductID, it.Qty)
			if err != nil {
				return err
			}
			if !created {
				l.log.Debug("line already reserved", zap.Int64("order_id", orderID), zap.Int64("product_id", it.ProductID))
				continue
			}
			p, ok, err := l.store.TakeStock(ctx, it.ProductID, it.Qty)
			if err != nil {
				return err
			}
			if !ok {
				return &orders.InsufficientStockError{
					ProductID: it.ProductID, ProductName: p.Name, Available: p.Stock, Requested: it.Qty,
				}
			}
		}
		return nil
	})
}

// Release gives back every still-reserved line of the order and returns
// how many lines it released. Calling it again is a no-op.
func (l *Ledger) Release(ctx context.Context, orderID int64) (int, error) {
	released := 0
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		released = 0
		items, err := l.store.ReservedItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if !l.usable(it, orderID) {
				continue
			}
			ok, err := l.store.MarkReleased(ctx, orderID, it.ProductID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			found, err := l.store.PutStock(ctx, it.ProductID, it.Qty)
			if err != nil {
				return err
			}
			if !found {
				l.log.Warn("product missing on release, skipped",
					zap.Int64("order_id", orderID), zap.Int64("product_id", it.ProductID), zap.Int("qty", it.Qty))
				continue
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("release order %d: %w", orderID, err)
	}
	return released, nil
}

func (l *Ledger) usable(it orders.ItemQty, orderID int64) bool {
	if it.ProductID > 0 && it.Qty > 0 {
		return true
	}
	l.log.Warn("skipping line without product or quantity",
		zap.Int64("order_id", orderID), zap.Int64("product_id", it.ProductID), zap.Int("qty", it.Qty))
	return false
}
