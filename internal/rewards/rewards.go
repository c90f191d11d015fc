// Package rewards holds the loyalty-points ledger and the affiliate
// commission transactions. Points live in a small state machine per order:
// PROVISIONAL at creation, CONFIRMED on delivery, REVERSED on
// cancellation.
package rewards

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshfold/laundry-orders/internal/orders"
)

type Ledger struct{ DB *pgxpool.Pool }

// AccrueProvisional writes the speculative points for an order. One entry
// per order; re-accrual (flash completion after a zero-total creation)
// overwrites the points while the entry is still provisional.
func (l *Ledger) AccrueProvisional(ctx context.Context, userID, orderID string, points int64) error {
	_, err := l.DB.Exec(ctx, `
		INSERT INTO loyalty_entries(user_id, order_id, points, state)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (order_id) DO UPDATE
		  SET points = EXCLUDED.points
		  WHERE loyalty_entries.state = $4`,
		userID, orderID, points, orders.PointsProvisional)
	return err
}

func (l *Ledger) ConfirmPoints(ctx context.Context, userID, orderID string) error {
	_, err := l.DB.Exec(ctx, `
		UPDATE loyalty_entries SET state=$3
		WHERE user_id=$1 AND order_id=$2 AND state=$4`,
		userID, orderID, orders.PointsConfirmed, orders.PointsProvisional)
	return err
}

func (l *Ledger) ReversePoints(ctx context.Context, userID, orderID string) error {
	_, err := l.DB.Exec(ctx, `
		UPDATE loyalty_entries SET state=$3
		WHERE user_id=$1 AND order_id=$2 AND state=$4`,
		userID, orderID, orders.PointsReversed, orders.PointsProvisional)
	return err
}

// Balance counts provisional and confirmed points; reversed entries do
// not count.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := l.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM loyalty_entries
		WHERE user_id=$1 AND state IN ($2,$3)`,
		userID, orders.PointsProvisional, orders.PointsConfirmed).Scan(&total)
	return total, err
}

func (l *Ledger) CreateCommission(ctx context.Context, t *orders.CommissionTransaction) error {
	_, err := l.DB.Exec(ctx, `
		INSERT INTO commission_transactions(id, order_id, affiliate_code, amount_cents, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id) DO NOTHING`,
		t.ID, t.OrderID, t.AffiliateCode, t.AmountCents, t.Status)
	return err
}

// ApproveCommission flips the order's commission row to APPROVED. The
// amount stays whatever was fixed when the row was written.
func (l *Ledger) ApproveCommission(ctx context.Context, orderID string) (bool, error) {
	tag, err := l.DB.Exec(ctx, `
		UPDATE commission_transactions SET status=$2 WHERE order_id=$1`,
		orderID, orders.CommissionApproved)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
