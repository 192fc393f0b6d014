package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, user_id,
	shipping_street, shipping_city, shipping_state, shipping_zip, shipping_country,
	total_amount, status, payment_method, payment_status,
	COALESCE(gateway_token, ''), COALESCE(gateway_status, ''), COALESCE(notes, ''),
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status, payment string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID,
		&o.Shipping.Street, &o.Shipping.City, &o.Shipping.State, &o.Shipping.ZipCode, &o.Shipping.Country,
		&o.TotalAmount, &status, &o.PaymentMethod, &payment,
		&o.GatewayToken, &o.GatewayStatus, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payment)
	return o, err
}

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, r.DB, fn)
}

func (r *Repo) InsertOrder(ctx context.Context, o *Order) error {
	q := postgres.Conn(ctx, r.DB)
	return q.QueryRow(ctx, `
		INSERT INTO orders(order_number, user_id,
			shipping_street, shipping_city, shipping_state, shipping_zip, shipping_country,
			total_amount, status, payment_method, payment_status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''))
		RETURNING id, created_at, updated_at`,
		o.OrderNumber, o.UserID,
		o.Shipping.Street, o.Shipping.City, o.Shipping.State, o.Shipping.ZipCode, o.Shipping.Country,
		o.TotalAmount, string(o.Status), o.PaymentMethod, string(o.PaymentStatus), o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *Repo) InsertItems(ctx context.Context, orderID int64, items []OrderItem) ([]OrderItem, error) {
	q := postgres.Conn(ctx, r.DB)
	out := make([]OrderItem, 0, len(items))
	for _, it := range items {
		it.OrderID = orderID
		if err := q.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, quantity, price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			orderID, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Subtotal,
		).Scan(&it.ID); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *Repo) FindByID(ctx context.Context, id int64) (Order, error) {
	q := postgres.Conn(ctx, r.DB)
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, NotFound("order", id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("find order %d: %w", id, err)
	}
	if o.Items, err = r.Items(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) FindByToken(ctx context.Context, token string) (Order, error) {
	q := postgres.Conn(ctx, r.DB)
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_token=$1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, &NotFoundError{Entity: "order for payment token"}
	}
	if err != nil {
		return Order{}, fmt.Errorf("find order by token: %w", err)
	}
	if o.Items, err = r.Items(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) Items(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := postgres.Conn(ctx, r.DB).Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price, subtotal
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// List returns one page of orders, newest first. Items are not loaded.
func (r *Repo) List(ctx context.Context, f ListFilter) (Page, error) {
	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != 0 {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", string(f.PaymentStatus))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("order_number ILIKE $%d", "%"+s+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := postgres.Conn(ctx, r.DB)
	page := Page{Page: f.Page, Limit: f.Limit}
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&page.Total); err != nil {
		return Page{}, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return Page{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	page.Orders = []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return Page{}, err
		}
		page.Orders = append(page.Orders, o)
	}
	return page, rows.Err()
}

func (r *Repo) SetGatewayToken(ctx context.Context, id int64, token string) error {
	return r.exec(ctx, id, `UPDATE orders SET gateway_token=NULLIF($2,''), updated_at=NOW() WHERE id=$1`, id, token)
}

func (r *Repo) SetStatus(ctx context.Context, id int64, s Status) error {
	return r.exec(ctx, id, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(s))
}

// SetPayment stores the internal payment status and, when given, the raw
// gateway status string.
func (r *Repo) SetPayment(ctx context.Context, id int64, ps PaymentStatus, gatewayStatus string) error {
	return r.exec(ctx, id, `
		UPDATE orders SET payment_status=$2, gateway_status=COALESCE(NULLIF($3,''), gateway_status), updated_at=NOW()
		WHERE id=$1`, id, string(ps), gatewayStatus)
}

// SettlePayment moves the payment status from `from` to `to` only if it is
// still `from`. It reports false when another writer got there first.
func (r *Repo) SettlePayment(ctx context.Context, id int64, from, to PaymentStatus, gatewayStatus string) (bool, error) {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx, `
		UPDATE orders SET payment_status=$3, gateway_status=COALESCE(NULLIF($4,''), gateway_status), updated_at=NOW()
		WHERE id=$1 AND payment_status=$2`, id, string(from), string(to), gatewayStatus)
	if err != nil {
		return false, fmt.Errorf("settle payment %d: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) SetNotes(ctx context.Context, id int64, notes string) error {
	return r.exec(ctx, id, `UPDATE orders SET notes=NULLIF($2,''), updated_at=NOW() WHERE id=$1`, id, notes)
}

func (r *Repo) exec(ctx context.Context, id int64, sql string, args ...any) error {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update order %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return NotFound("order", id)
	}
	return nil
}

// StatsBuckets groups orders created at or after since (zero = all time).
func (r *Repo) StatsBuckets(ctx context.Context, since time.Time) ([]StatsBucket, error) {
	rows, err := postgres.Conn(ctx, r.DB).Query(ctx, `
		SELECT status, payment_status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders WHERE created_at >= $1
		GROUP BY status, payment_status`, since)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	defer rows.Close()

	var out []StatsBucket
	for rows.Next() {
		var b StatsBucket
		var s, p string
		if err := rows.Scan(&s, &p, &b.Count, &b.Amount); err != nil {
			return nil, err
		}
		b.Status, b.PaymentStatus = Status(s), PaymentStatus(p)
		out = append(out, b)
	}
	return out, rows.Err()
}
