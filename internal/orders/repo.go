package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the pgx-backed Store. Each mutating method is one transaction.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Insert(ctx context.Context, o *Order, comm *CommissionTransaction) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, service_id, service_type_id, address_id, status,
		                   total_cents, recurrence, collection_at, delivery_at,
		                   payment_method, affiliate_code, flash, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.UserID, o.ServiceID, o.ServiceTypeID, o.AddressID, o.Status,
		o.TotalCents, o.Recurrence, o.CollectionAt, o.DeliveryAt,
		o.PaymentMethod, o.AffiliateCode, o.Flash, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return persistence(err)
	}

	if err := insertItems(ctx, tx, o); err != nil {
		return err
	}
	if o.Note != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_notes(order_id, body) VALUES ($1,$2)`, o.ID, o.Note); err != nil {
			return persistence(err)
		}
	}
	if comm != nil {
		if err := insertCommission(ctx, tx, comm); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return persistence(err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, service_id, service_type_id, address_id, status,
		       total_cents, recurrence, collection_at, delivery_at,
		       payment_method, affiliate_code, flash, version, created_at, updated_at
		FROM orders WHERE id=$1`, id,
	).Scan(&o.ID, &o.UserID, &o.ServiceID, &o.ServiceTypeID, &o.AddressID, &o.Status,
		&o.TotalCents, &o.Recurrence, &o.CollectionAt, &o.DeliveryAt,
		&o.PaymentMethod, &o.AffiliateCode, &o.Flash, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, persistence(err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, article_id, service_id, qty, unit_price_cents, premium, weight_grams
		FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, persistence(err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ArticleID, &it.ServiceID,
			&it.Qty, &it.UnitPriceCents, &it.Premium, &it.WeightGrams); err != nil {
			return nil, persistence(err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err)
	}

	err = r.DB.QueryRow(ctx, `SELECT body FROM order_notes WHERE order_id=$1`, id).Scan(&o.Note)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, persistence(err)
	}
	return &o, nil
}

func (r *Repo) Update(ctx context.Context, o *Order, replaceItems bool, comm *CommissionTransaction) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// version check and bump in the same statement; a concurrent committed
	// writer leaves RowsAffected at zero
	tag, err := tx.Exec(ctx, `
		UPDATE orders SET service_id=$3, service_type_id=$4, address_id=$5, status=$6,
		       total_cents=$7, recurrence=$8, collection_at=$9, delivery_at=$10,
		       payment_method=$11, affiliate_code=$12, updated_at=$13,
		       version = version + 1
		WHERE id=$1 AND version=$2`,
		o.ID, o.Version, o.ServiceID, o.ServiceTypeID, o.AddressID, o.Status,
		o.TotalCents, o.Recurrence, o.CollectionAt, o.DeliveryAt,
		o.PaymentMethod, o.AffiliateCode, o.UpdatedAt,
	)
	if err != nil {
		return persistence(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return persistence(err)
		}
		if !exists {
			return fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
		}
		return fmt.Errorf("%w: order %s", ErrConcurrentModification, o.ID)
	}

	if replaceItems {
		// wholesale replacement: items are never merged
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
			return persistence(err)
		}
		if err := insertItems(ctx, tx, o); err != nil {
			return err
		}
	}

	if o.Note == "" {
		// blank note means no note row at all
		if _, err := tx.Exec(ctx, `DELETE FROM order_notes WHERE order_id=$1`, o.ID); err != nil {
			return persistence(err)
		}
	} else {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_notes(order_id, body) VALUES ($1,$2)
			ON CONFLICT (order_id) DO UPDATE SET body = EXCLUDED.body`, o.ID, o.Note); err != nil {
			return persistence(err)
		}
	}

	if comm != nil {
		if err := insertCommission(ctx, tx, comm); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return persistence(err)
	}
	o.Version++
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, id); err != nil {
		return persistence(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_notes WHERE order_id=$1`, id); err != nil {
		return persistence(err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return persistence(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return persistence(tx.Commit(ctx))
}

func insertItems(ctx context.Context, tx pgx.Tx, o *Order) error {
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, article_id, service_id, qty,
			                        unit_price_cents, premium, weight_grams)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.OrderID, it.ArticleID, it.ServiceID, it.Qty,
			it.UnitPriceCents, it.Premium, it.WeightGrams); err != nil {
			return persistence(err)
		}
	}
	return nil
}

func insertCommission(ctx context.Context, tx pgx.Tx, t *CommissionTransaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO commission_transactions(id, order_id, affiliate_code, amount_cents, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id) DO NOTHING`,
		t.ID, t.OrderID, t.AffiliateCode, t.AmountCents, t.Status)
	return persistence(err)
}
