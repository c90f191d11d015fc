// Package catalog is read-only pgx access to the pricing, offer and
// affiliate tables shared with the back office.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshfold/laundry-orders/internal/orders"
)

type Repo struct{ DB *pgxpool.Pool }

// PriceEntries fetches every entry for the cart's article set under one
// (serviceTypeID, serviceID) pair in a single query. Callers must never
// look prices up by a subset of the triple.
func (r *Repo) PriceEntries(ctx context.Context, serviceTypeID, serviceID string, articleIDs []string) ([]orders.PriceEntry, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT article_id, service_type_id, service_id, base_price_cents, premium_price_cents
		FROM price_entries
		WHERE article_id = ANY($1) AND service_type_id = $2 AND service_id = $3`,
		articleIDs, serviceTypeID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.PriceEntry
	for rows.Next() {
		var e orders.PriceEntry
		if err := rows.Scan(&e.ArticleID, &e.ServiceTypeID, &e.ServiceID,
			&e.BasePriceCents, &e.PremiumPriceCents); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveOffers returns the offers the user subscribes to that are active
// and inside their validity window at now. Eligibility against a concrete
// cart is the selector's job, not the query's.
func (r *Repo) ActiveOffers(ctx context.Context, userID string, now time.Time) ([]orders.Offer, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT o.id, o.active, o.starts_at, o.ends_at, o.cumulative,
		       o.min_purchase_cents, o.article_ids, o.discount_value
		FROM offers o
		JOIN offer_subscriptions s ON s.offer_id = o.id
		WHERE s.user_id = $1
		  AND o.active
		  AND (o.starts_at IS NULL OR o.starts_at <= $2)
		  AND (o.ends_at IS NULL OR o.ends_at >= $2)`,
		userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Offer
	for rows.Next() {
		var o orders.Offer
		if err := rows.Scan(&o.ID, &o.Active, &o.StartsAt, &o.EndsAt, &o.Cumulative,
			&o.MinPurchaseCents, &o.ArticleIDs, &o.DiscountValue); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) AffiliateByCode(ctx context.Context, code string) (*orders.Affiliate, error) {
	var a orders.Affiliate
	err := r.DB.QueryRow(ctx,
		`SELECT code, commission_rate, active FROM affiliates WHERE code=$1`, code,
	).Scan(&a.Code, &a.CommissionRate, &a.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) ActiveLinkForUser(ctx context.Context, userID string) (string, error) {
	var code string
	err := r.DB.QueryRow(ctx, `
		SELECT l.code FROM affiliate_links l
		JOIN affiliates a ON a.code = l.code
		WHERE l.user_id = $1 AND l.valid AND a.active
		LIMIT 1`, userID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}
