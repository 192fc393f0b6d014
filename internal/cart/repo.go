package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

// Snapshot reads the user's cart in insertion order. A user without a cart
// gets an empty snapshot.
func (r *Repo) Snapshot(ctx context.Context, userID int64) (Snapshot, error) {
	q := postgres.Conn(ctx, r.DB)
	s := Snapshot{UserID: userID}
	err := q.QueryRow(ctx, `SELECT id FROM carts WHERE user_id=$1`, userID).Scan(&s.CartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("find cart for user %d: %w", userID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT ci.product_id, COALESCE(p.name, ''), ci.quantity, ci.price,
		       COALESCE(p.price, ci.price), COALESCE(p.on_sale, false), COALESCE(p.discount_percentage, 0),
		       p.sale_start, p.sale_end
		FROM cart_items ci LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1 ORDER BY ci.created_at, ci.id`, s.CartID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	now := r.now()
	for rows.Next() {
		var l Line
		var p orders.Product
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.Price,
			&p.Price, &p.OnSale, &p.DiscountPercentage, &p.SaleStart, &p.SaleEnd); err != nil {
			return Snapshot{}, err
		}
		l.LivePrice = EffectivePrice(p, now)
		s.Lines = append(s.Lines, l)
	}
	return s, rows.Err()
}

// Clear removes every line of the cart, keeping the cart itself.
func (r *Repo) Clear(ctx context.Context, cartID int64) error {
	if _, err := postgres.Conn(ctx, r.DB).Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return fmt.Errorf("clear cart %d: %w", cartID, err)
	}
	return nil
}

// AddItem puts qty of a product in the user's cart at its current
// effective price, creating the cart on first use. Adding to an existing
// line re-captures the price.
func (r *Repo) AddItem(ctx context.Context, userID, productID int64, qty int) error {
	if qty <= 0 {
		return orders.NewValidationError("quantity must be positive", "quantity")
	}
	return postgres.WithTx(ctx, r.DB, func(ctx context.Context) error {
		q := postgres.Conn(ctx, r.DB)
		var cartID int64
		if err := q.QueryRow(ctx, `
			INSERT INTO carts(user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING id`, userID).Scan(&cartID); err != nil {
			return fmt.Errorf("ensure cart: %w", err)
		}

		var p orders.Product
		err := q.QueryRow(ctx, `
			SELECT id, price, on_sale, discount_percentage, sale_start, sale_end
			FROM products WHERE id=$1 AND active`, productID).
			Scan(&p.ID, &p.Price, &p.OnSale, &p.DiscountPercentage, &p.SaleStart, &p.SaleEnd)
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.NotFound("product", productID)
		}
		if err != nil {
			return fmt.Errorf("find product %d: %w", productID, err)
		}

		_, err = q.Exec(ctx, `
			INSERT INTO cart_items(cart_id, product_id, quantity, price) VALUES ($1,$2,$3,$4)
			ON CONFLICT (cart_id, product_id) DO UPDATE
			SET quantity = cart_items.quantity + EXCLUDED.quantity, price = EXCLUDED.price`,
			cartID, productID, qty, EffectivePrice(p, r.now()))
		if err != nil {
			return fmt.Errorf("add cart item: %w", err)
		}
		return nil
	})
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
