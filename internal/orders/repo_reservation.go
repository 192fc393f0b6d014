package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// ReservationRepo owns product stock and the per-order reservation ledger.
// Nothing else writes products.stock.
type ReservationRepo struct{ DB *pgxpool.Pool }

func (r *ReservationRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, r.DB, fn)
}

func (r *ReservationRepo) FindProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := postgres.Conn(ctx, r.DB).QueryRow(ctx, `
		SELECT id, name, price, stock, active, on_sale, discount_percentage, sale_start, sale_end, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.OnSale, &p.DiscountPercentage,
			&p.SaleStart, &p.SaleEnd, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, NotFound("product", id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("find product %d: %w", id, err)
	}
	return p, nil
}

func (r *ReservationRepo) OrderItems(ctx context.Context, orderID int64) ([]ItemQty, error) {
	return r.itemQty(ctx, `SELECT product_id, quantity FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
}

func (r *ReservationRepo) ReservedItems(ctx context.Context, orderID int64) ([]ItemQty, error) {
	return r.itemQty(ctx, `SELECT product_id, qty FROM reservations WHERE order_id=$1 AND status='RESERVED' ORDER BY product_id`, orderID)
}

func (r *ReservationRepo) itemQty(ctx context.Context, sql string, orderID int64) ([]ItemQty, error) {
	rows, err := postgres.Conn(ctx, r.DB).Query(ctx, sql, orderID)
	if err != nil {
		return nil, fmt.Errorf("load items for order %d: %w", orderID, err)
	}
	defer rows.Close()
	var out []ItemQty
	for rows.Next() {
		var x ItemQty
		if err := rows.Scan(&x.ProductID, &x.Qty); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// TakeStock decrements stock only when enough is left. ok=false reports the
// product's current stock unchanged.
func (r *ReservationRepo) TakeStock(ctx context.Context, productID int64, qty int) (p Product, ok bool, err error) {
	q := postgres.Conn(ctx, r.DB)
	err = q.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id=$1 AND stock >= $2
		RETURNING id, name, stock`, productID, qty).Scan(&p.ID, &p.Name, &p.Stock)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Product{}, false, fmt.Errorf("take stock for product %d: %w", productID, err)
	}
	err = q.QueryRow(ctx, `SELECT id, name, stock FROM products WHERE id=$1`, productID).Scan(&p.ID, &p.Name, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, false, NotFound("product", productID)
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("read stock for product %d: %w", productID, err)
	}
	return p, false, nil
}

// PutStock adds qty back. found=false when the product no longer exists.
func (r *ReservationRepo) PutStock(ctx context.Context, productID int64, qty int) (found bool, err error) {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id=$1`, productID, qty)
	if err != nil {
		return false, fmt.Errorf("put stock for product %d: %w", productID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// RecordReservation inserts a RESERVED row. created=false means the line
// was already reserved for this order.
func (r *ReservationRepo) RecordReservation(ctx context.Context, orderID, productID int64, qty int) (created bool, err error) {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status)
		VALUES ($1,$2,$3,'RESERVED')
		ON CONFLICT (order_id, product_id) DO NOTHING`, orderID, productID, qty)
	if err != nil {
		return false, fmt.Errorf("record reservation: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkReleased flips a RESERVED row to RELEASED. released=false means there
// was nothing left to release.
func (r *ReservationRepo) MarkReleased(ctx context.Context, orderID, productID int64) (released bool, err error) {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx, `
		UPDATE reservations SET status='RELEASED', released_at=NOW()
		WHERE order_id=$1 AND product_id=$2 AND status='RESERVED'`, orderID, productID)
	if err != nil {
		return false, fmt.Errorf("release reservation: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
