package orders

import (
	"context"
	"log/slog"
	"math"

	"github.com/google/uuid"
)

// Orchestrator runs the side effects of committed lifecycle transitions:
// loyalty points, affiliate commission, notifications. It is invoked after
// the triggering transaction has committed and is deliberately best
// effort: a failed effect is logged as a warning for operator follow-up,
// never rolled back and never retried here. Double-crediting on delivery
// is impossible structurally because DELIVERED is terminal.
type Orchestrator struct {
	Rewards  Rewards
	Catalog  Catalog
	Notifier Notifier
	// PointsRate converts cents of order total into provisional points,
	// floored.
	PointsRate float64
	Log        *slog.Logger
}

func (x *Orchestrator) pointsFor(totalCents int64) int64 {
	return int64(math.Floor(float64(totalCents) * x.PointsRate))
}

// OrderCreated accrues provisional points for the new order and sends the
// order-created notification. Returns the points earned and the owner's
// resulting balance for the creation response; both are zero when the
// respective effect failed.
func (x *Orchestrator) OrderCreated(ctx context.Context, o *Order) (earned, balance int64) {
	earned = x.pointsFor(o.TotalCents)
	if earned > 0 {
		if err := x.Rewards.AccrueProvisional(ctx, o.UserID, o.ID, earned); err != nil {
			x.Log.Warn("provisional points accrual failed", "order_id", o.ID, "err", err)
			earned = 0
		}
	}
	if b, err := x.Rewards.Balance(ctx, o.UserID); err != nil {
		x.Log.Warn("points balance lookup failed", "user_id", o.UserID, "err", err)
	} else {
		balance = b
	}
	x.notify(ctx, o.UserID, EventOrderCreated, OrderCreatedPayload{
		OrderID:      o.ID,
		UserID:       o.UserID,
		TotalCents:   o.TotalCents,
		Flash:        o.Flash,
		PointsEarned: earned,
	})
	return earned, balance
}

// FlashCompleted fires once a flash order gains its real total: the
// provisional points that could not accrue at creation (total was zero)
// accrue now, and the DRAFT→COLLECTING move is announced.
func (x *Orchestrator) FlashCompleted(ctx context.Context, o *Order) {
	if pts := x.pointsFor(o.TotalCents); pts > 0 {
		if err := x.Rewards.AccrueProvisional(ctx, o.UserID, o.ID, pts); err != nil {
			x.Log.Warn("provisional points accrual failed", "order_id", o.ID, "err", err)
		}
	}
	x.StatusChanged(ctx, o, StatusDraft)
}

// StatusChanged reacts to a committed transition. Entering DELIVERED
// confirms the owner's points and approves the affiliate commission;
// entering CANCELLED reverses provisional points. Every transition
// notifies the owner.
func (x *Orchestrator) StatusChanged(ctx context.Context, o *Order, from Status) {
	switch o.Status {
	case StatusDelivered:
		if err := x.Rewards.ConfirmPoints(ctx, o.UserID, o.ID); err != nil {
			x.Log.Warn("points confirmation failed", "order_id", o.ID, "err", err)
		}
		if o.AffiliateCode != "" {
			x.approveCommission(ctx, o)
		}
	case StatusCancelled:
		if err := x.Rewards.ReversePoints(ctx, o.UserID, o.ID); err != nil {
			x.Log.Warn("points reversal failed", "order_id", o.ID, "err", err)
		}
	}
	x.notify(ctx, o.UserID, EventOrderStatusChanged, OrderStatusChangedPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		FromStatus: from,
		ToStatus:   o.Status,
		TotalCents: o.TotalCents,
	})
}

func (x *Orchestrator) approveCommission(ctx context.Context, o *Order) {
	found, err := x.Rewards.ApproveCommission(ctx, o.ID)
	if err != nil {
		x.Log.Warn("commission approval failed", "order_id", o.ID, "err", err)
		return
	}
	if found {
		return
	}
	// The PENDING row should have been written with the order; if it is
	// somehow absent, create it approved at the current rate.
	aff, err := x.Catalog.AffiliateByCode(ctx, o.AffiliateCode)
	if err != nil || aff == nil {
		x.Log.Warn("commission backfill failed, affiliate unavailable",
			"order_id", o.ID, "code", o.AffiliateCode, "err", err)
		return
	}
	t := &CommissionTransaction{
		ID:            uuid.NewString(),
		OrderID:       o.ID,
		AffiliateCode: aff.Code,
		AmountCents:   commissionCents(o.TotalCents, aff.CommissionRate),
		Status:        CommissionApproved,
	}
	if err := x.Rewards.CreateCommission(ctx, t); err != nil {
		x.Log.Warn("commission backfill failed", "order_id", o.ID, "err", err)
	}
}

func (x *Orchestrator) notify(ctx context.Context, userID, eventType string, payload any) {
	if err := x.Notifier.Notify(ctx, userID, eventType, payload); err != nil {
		x.Log.Warn("notification dispatch failed",
			"user_id", userID, "event_type", eventType, "err", err)
	}
}

func commissionCents(totalCents int64, ratePercent float64) int64 {
	return int64(math.Floor(float64(totalCents) * ratePercent / 100))
}
