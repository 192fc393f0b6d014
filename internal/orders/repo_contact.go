package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ContactRepo struct{ DB *pgxpool.Pool }

func (r *ContactRepo) Contact(ctx context.Context, userID int64) (Contact, error) {
	c := Contact{UserID: userID}
	err := postgres.Conn(ctx, r.DB).QueryRow(ctx, `SELECT email, name FROM users WHERE id=$1`, userID).Scan(&c.Email, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, NotFound("user", userID)
	}
	if err != nil {
		return Contact{}, fmt.Errorf("find user %d: %w", userID, err)
	}
	return c, nil
}
