package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modadz/marketplace/internal/orders"
)

var ErrNotFound = errors.New("customer not found")

// Repo is a read-only directory over the customers table. Account
// management lives in another service, checkout only needs the contact
// snapshot.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetCustomer(ctx context.Context, id string) (orders.Customer, error) {
	var c orders.Customer
	err := r.DB.QueryRow(ctx,
		`SELECT id, email, phone FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Customer{}, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return orders.Customer{}, err
	}
	return c, nil
}

var _ orders.CustomerDirectory = (*Repo)(nil)
