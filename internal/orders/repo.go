package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListFilter narrows ListOrders. CustomerID is mandatory, Status optional.
type ListFilter struct {
	CustomerID string
	Status     Status
	Limit      int
	Offset     int
}

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, customer_id, customer_email, customer_phone,
	subtotal, shipping_cost, tax, discount, total_amount,
	shipping_address, delivery_method, delivery_notes,
	payment_method, payment_status, payment_transaction_id, payment_date, payment_amount,
	status, tracking_info, created_at, updated_at, confirmed_at, shipped_at, delivered_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerEmail, &o.CustomerPhone,
		&o.Subtotal, &o.ShippingCost, &o.Tax, &o.Discount, &o.TotalAmount,
		&o.ShippingAddress, &o.DeliveryMethod, &o.DeliveryNotes,
		&o.PaymentInfo.Method, &o.PaymentInfo.Status, &o.PaymentInfo.TransactionID,
		&o.PaymentInfo.PaymentDate, &o.PaymentInfo.Amount,
		&o.Status, &o.TrackingInfo, &o.CreatedAt, &o.UpdatedAt,
		&o.ConfirmedAt, &o.ShippedAt, &o.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Insert writes the order, its item snapshots and the seed history entry
// in one transaction. A duplicate order_number maps to ErrOrderNumberTaken.
func (r *Repo) Insert(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
	`,
		o.ID, o.OrderNumber, o.CustomerID, o.CustomerEmail, o.CustomerPhone,
		o.Subtotal, o.ShippingCost, o.Tax, o.Discount, o.TotalAmount,
		o.ShippingAddress, o.DeliveryMethod, o.DeliveryNotes,
		o.PaymentInfo.Method, o.PaymentInfo.Status, o.PaymentInfo.TransactionID,
		o.PaymentInfo.PaymentDate, o.PaymentInfo.Amount,
		o.Status, o.TrackingInfo, o.CreatedAt, o.UpdatedAt,
		o.ConfirmedAt, o.ShippedAt, o.DeliveredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key" {
			return fmt.Errorf("order %s: %w", o.OrderNumber, ErrOrderNumberTaken)
		}
		return err
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, product_image,
				boutique_id, boutique_name, color, size, sku, unit_price, quantity, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			o.ID, it.ProductID, it.ProductName, it.ProductImage,
			it.BoutiqueID, it.BoutiqueName, it.Color, it.Size, it.SKU,
			it.UnitPrice, it.Quantity, it.TotalPrice,
		)
		if err != nil {
			return err
		}
	}

	for _, h := range o.StatusHistory {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_status_history(order_id, status, occurred_at, note, actor)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, h.Status, h.Timestamp, h.Note, h.Actor,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, err
	}

	itemsByOrder, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = itemsByOrder[o.ID]

	rows, err := r.DB.Query(ctx, `
		SELECT status, occurred_at, note, actor FROM order_status_history
		WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.Status, &h.Timestamp, &h.Note, &h.Actor); err != nil {
			return nil, err
		}
		o.StatusHistory = append(o.StatusHistory, h)
	}
	return o, rows.Err()
}

// List returns one page of a customer's orders, newest first, plus the
// total match count. History is left out of listings.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	where := `customer_id=$1`
	args := []any{f.CustomerID}
	if f.Status != "" {
		where += ` AND status=$2`
		args = append(args, f.Status)
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, f.Limit, f.Offset)
	rows, err := r.DB.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(ids) > 0 {
		itemsByOrder, err := r.loadItems(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range out {
			out[i].Items = itemsByOrder[out[i].ID]
		}
	}
	return out, total, nil
}

func (r *Repo) loadItems(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, product_name, product_image,
			boutique_id, boutique_name, color, size, sku, unit_price, quantity, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byOrder := map[string][]OrderItem{}
	for rows.Next() {
		var orderID string
		var it OrderItem
		err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.ProductImage,
			&it.BoutiqueID, &it.BoutiqueName, &it.Color, &it.Size, &it.SKU,
			&it.UnitPrice, &it.Quantity, &it.TotalPrice)
		if err != nil {
			return nil, err
		}
		byOrder[orderID] = append(byOrder[orderID], it)
	}
	return byOrder, rows.Err()
}

// Transition moves the order to the next status under a row lock, stamps
// the matching timestamp column and appends the history entry. The
// lifecycle graph is enforced here so concurrent writers cannot race past
// it.
func (r *Repo) Transition(ctx context.Context, orderID string, to Status, note, actor string) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var from Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&from)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, err
	}
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	stamp := ""
	switch to {
	case StatusConfirmed:
		stamp = `, confirmed_at = now()`
	case StatusShipped:
		stamp = `, shipped_at = now()`
	case StatusDelivered:
		stamp = `, delivered_at = now()`
	}
	_, err = tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now()`+stamp+` WHERE id=$1`, orderID, to)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_history(order_id, status, occurred_at, note, actor)
		VALUES ($1,$2,now(),$3,$4)`, orderID, to, note, actor)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, orderID)
}

// SavePaymentInfo overwrites the payment block after the dispatcher ran.
func (r *Repo) SavePaymentInfo(ctx context.Context, orderID string, p PaymentInfo) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_method=$2, payment_status=$3, payment_transaction_id=$4,
			payment_date=$5, payment_amount=$6, updated_at=now()
		WHERE id=$1`,
		orderID, p.Method, p.Status, p.TransactionID, p.PaymentDate, p.Amount)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return nil
}
