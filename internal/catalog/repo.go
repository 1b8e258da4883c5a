package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, slug, name, description, boutique_id, boutique_name, category,
	base_price, sale_price, currency, main_image, variants, colors,
	total_stock, sales_count, status, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.BoutiqueID, &p.BoutiqueName,
		&p.Category, &p.BasePrice, &p.SalePrice, &p.Currency, &p.MainImage,
		&p.Variants, &p.Colors, &p.TotalStock, &p.SalesCount, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Product, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return p, err
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug=$1`, slug)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", slug, ErrNotFound)
	}
	return p, err
}

// Save upserts the full product record. Stock mutations during the order
// lifecycle go through the inventory package instead; Save is for catalog
// management (create/edit) and writes total_stock as provided.
func (r *Repo) Save(ctx context.Context, p *Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET
			slug=EXCLUDED.slug, name=EXCLUDED.name, description=EXCLUDED.description,
			boutique_id=EXCLUDED.boutique_id, boutique_name=EXCLUDED.boutique_name,
			category=EXCLUDED.category, base_price=EXCLUDED.base_price,
			sale_price=EXCLUDED.sale_price, currency=EXCLUDED.currency,
			main_image=EXCLUDED.main_image, variants=EXCLUDED.variants,
			colors=EXCLUDED.colors, total_stock=EXCLUDED.total_stock,
			sales_count=EXCLUDED.sales_count, status=EXCLUDED.status,
			updated_at=now()`,
		p.ID, p.Slug, p.Name, p.Description, p.BoutiqueID, p.BoutiqueName, p.Category,
		p.BasePrice, p.SalePrice, p.Currency, p.MainImage, p.Variants, p.Colors,
		p.TotalStock, p.SalesCount, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE status=$1 ORDER BY created_at DESC`, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
