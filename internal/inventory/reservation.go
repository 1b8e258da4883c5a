// Package inventory owns the stock side of the order lifecycle. The
// products.total_stock counter is mutated here and nowhere else while an
// order moves through its states.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOutOfStock = errors.New("out of stock")

type Repo struct{ DB *pgxpool.Pool }

// Reserve takes qty units of a product for an order. The stock check and
// the decrement are one conditional UPDATE, so two concurrent checkouts
// racing for the last unit cannot both win: the second statement sees the
// decremented row and affects nothing.
func (r *Repo) Reserve(ctx context.Context, productID string, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products
		SET total_stock = total_stock - $2,
		    sales_count = sales_count + $2,
		    updated_at  = now()
		WHERE id = $1 AND total_stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrOutOfStock)
	}
	return nil
}

// Release is the exact inverse of Reserve, used when an order is
// cancelled. It adds the quantity back unconditionally; callers guarantee
// a release matches exactly one prior reserve.
func (r *Repo) Release(ctx context.Context, productID string, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products
		SET total_stock = total_stock + $2,
		    sales_count = sales_count - $2,
		    updated_at  = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("release: product %s not found", productID)
	}
	return nil
}
