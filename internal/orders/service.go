package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the transactional order repository. Every mutating method runs
// its writes (order header, wholesale item replacement, note upsert,
// commission row) in one transaction: either all rows reflect the new
// state or none do.
type Store interface {
	// Insert persists a new order with its items, note and optional
	// commission row atomically.
	Insert(ctx context.Context, o *Order, comm *CommissionTransaction) error
	// Get returns the fully hydrated order (items + note) or ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	// Update persists the aggregate, checking o.Version against the stored
	// row and bumping it on success. replaceItems swaps the full item set
	// (delete then insert); items are never merged. A stale version fails
	// with ErrConcurrentModification.
	Update(ctx context.Context, o *Order, replaceItems bool, comm *CommissionTransaction) error
	// Delete removes the order, cascading to its items and note.
	Delete(ctx context.Context, id string) error
}

// Catalog is read-only access to prices, offers and affiliates. Injected
// rather than reached for globally so tests can fake it.
type Catalog interface {
	// PriceEntries returns catalog rows for the given article ids under
	// one (serviceTypeID, serviceID) pair, in a single query.
	PriceEntries(ctx context.Context, serviceTypeID, serviceID string, articleIDs []string) ([]PriceEntry, error)
	// ActiveOffers returns the user's subscribed offers whose parent offer
	// is active and inside its validity window at now.
	ActiveOffers(ctx context.Context, userID string, now time.Time) ([]Offer, error)
	// AffiliateByCode returns nil (no error) when the code is unknown.
	AffiliateByCode(ctx context.Context, code string) (*Affiliate, error)
	// ActiveLinkForUser returns the affiliate code the user was referred
	// through, or "" when there is none.
	ActiveLinkForUser(ctx context.Context, userID string) (string, error)
}

// Rewards is the loyalty/commission collaborator used by the side-effect
// orchestrator after the triggering transaction has committed.
type Rewards interface {
	AccrueProvisional(ctx context.Context, userID, orderID string, points int64) error
	ConfirmPoints(ctx context.Context, userID, orderID string) error
	ReversePoints(ctx context.Context, userID, orderID string) error
	Balance(ctx context.Context, userID string) (int64, error)
	CreateCommission(ctx context.Context, t *CommissionTransaction) error
	// ApproveCommission flips the order's commission row to APPROVED and
	// reports whether a row existed.
	ApproveCommission(ctx context.Context, orderID string) (bool, error)
}

// Notifier dispatches an owner-facing event. Delivery transport is someone
// else's problem.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, payload any) error
}

// Service owns the order lifecycle: creation, flash completion, patching
// and status transitions. Validation and authorization happen before any
// write; side effects run after the commit, best effort.
type Service struct {
	Store   Store
	Catalog Catalog
	Effects *Orchestrator
	Log     *slog.Logger
}

type CreateOrderInput struct {
	ServiceID     string      `json:"service_id"`
	ServiceTypeID string      `json:"service_type_id"`
	AddressID     string      `json:"address_id"`
	Items         []ItemInput `json:"items"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	AffiliateCode string      `json:"affiliate_code,omitempty"`
	Note          string      `json:"note,omitempty"`
	Recurrence    string      `json:"recurrence,omitempty"`
	CollectionAt  *time.Time  `json:"collection_at,omitempty"`
	DeliveryAt    *time.Time  `json:"delivery_at,omitempty"`
}

type CreateOrderResult struct {
	Order         *Order  `json:"order"`
	Pricing       *Quote  `json:"pricing"`
	Offers        []Offer `json:"applied_offers,omitempty"`
	PointsEarned  int64   `json:"points_earned"`
	PointsBalance int64   `json:"points_balance"`
}

func (s *Service) CreateOrder(ctx context.Context, caller Caller, in CreateOrderInput) (*CreateOrderResult, error) {
	if caller.ID == "" {
		return nil, ErrUnauthorized
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if in.AddressID == "" {
		return nil, fmt.Errorf("%w: missing address id", ErrInvalidInput)
	}

	now := time.Now().UTC()
	res := Resolver{Catalog: s.Catalog}
	quote, err := res.Price(ctx, in.ServiceTypeID, in.ServiceID, in.Items)
	if err != nil {
		return nil, err
	}
	s.warnFallback(caller.ID, quote)

	subs, err := s.Catalog.ActiveOffers(ctx, caller.ID, now)
	if err != nil {
		return nil, persistence(err)
	}
	applied := SelectOffers(now, subs, in.Items, quote.TotalCents)

	o := &Order{
		ID:            uuid.NewString(),
		UserID:        caller.ID,
		ServiceID:     in.ServiceID,
		ServiceTypeID: in.ServiceTypeID,
		AddressID:     in.AddressID,
		Status:        StatusPending,
		TotalCents:    quote.TotalCents,
		Recurrence:    in.Recurrence,
		CollectionAt:  in.CollectionAt,
		DeliveryAt:    in.DeliveryAt,
		PaymentMethod: in.PaymentMethod,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		Note:          strings.TrimSpace(in.Note),
	}
	o.Items = itemsFromQuote(o.ID, quote)

	var comm *CommissionTransaction
	if in.AffiliateCode != "" {
		aff, err := s.activeAffiliate(ctx, in.AffiliateCode)
		if err != nil {
			return nil, err
		}
		o.AffiliateCode = aff.Code
		comm = &CommissionTransaction{
			ID:            uuid.NewString(),
			OrderID:       o.ID,
			AffiliateCode: aff.Code,
			AmountCents:   commissionCents(o.TotalCents, aff.CommissionRate),
			Status:        CommissionPending,
		}
	}

	if err := s.Store.Insert(ctx, o, comm); err != nil {
		return nil, err
	}
	s.Log.Info("order created", "order_id", o.ID, "user_id", o.UserID, "total_cents", o.TotalCents)

	earned, balance := s.Effects.OrderCreated(ctx, o)
	return &CreateOrderResult{
		Order:         o,
		Pricing:       quote,
		Offers:        applied,
		PointsEarned:  earned,
		PointsBalance: balance,
	}, nil
}

// CreateFlashOrder places a DRAFT order with no items and zero total;
// pricing is deferred until an operator completes it. When no affiliate
// code is supplied the caller's currently valid referral link is attached
// automatically.
func (s *Service) CreateFlashOrder(ctx context.Context, caller Caller, addressID, affiliateCode, note string) (*Order, error) {
	if caller.ID == "" {
		return nil, ErrUnauthorized
	}
	if addressID == "" {
		return nil, fmt.Errorf("%w: missing address id", ErrInvalidInput)
	}

	code := affiliateCode
	if code != "" {
		aff, err := s.activeAffiliate(ctx, code)
		if err != nil {
			return nil, err
		}
		code = aff.Code
	} else {
		link, err := s.Catalog.ActiveLinkForUser(ctx, caller.ID)
		if err != nil {
			return nil, persistence(err)
		}
		code = link
	}

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.NewString(),
		UserID:        caller.ID,
		AddressID:     addressID,
		Status:        StatusDraft,
		Flash:         true,
		AffiliateCode: code,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		Note:          strings.TrimSpace(note),
	}
	if err := s.Store.Insert(ctx, o, nil); err != nil {
		return nil, err
	}
	s.Log.Info("flash order created", "order_id", o.ID, "user_id", o.UserID)

	s.Effects.OrderCreated(ctx, o)
	return o, nil
}

type CompleteFlashInput struct {
	ServiceID     string      `json:"service_id"`
	ServiceTypeID string      `json:"service_type_id"`
	Items         []ItemInput `json:"items"`
	CollectionAt  *time.Time  `json:"collection_at,omitempty"`
	DeliveryAt    *time.Time  `json:"delivery_at,omitempty"`
	Note          *string     `json:"note,omitempty"`
}

// CompleteFlashOrder finalizes a flash order: prices the supplied items
// through the batched catalog lookup, replaces any existing items, moves
// the order to COLLECTING and recomputes the total, all in one
// transaction. Only flash orders still in DRAFT qualify.
func (s *Service) CompleteFlashOrder(ctx context.Context, caller Caller, orderID string, in CompleteFlashInput) (*Order, error) {
	if caller.ID == "" {
		return nil, ErrUnauthorized
	}
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != caller.ID && !caller.admin() {
		return nil, ErrForbidden
	}
	if !o.Flash {
		return nil, fmt.Errorf("%w: order %s is not a flash order", ErrInvalidState, o.ID)
	}
	if o.Status != StatusDraft {
		return nil, fmt.Errorf("%w: flash order %s is %s, not %s", ErrInvalidState, o.ID, o.Status, StatusDraft)
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	res := Resolver{Catalog: s.Catalog}
	quote, err := res.Price(ctx, in.ServiceTypeID, in.ServiceID, in.Items)
	if err != nil {
		return nil, err
	}
	s.warnFallback(o.UserID, quote)

	o.ServiceID = in.ServiceID
	o.ServiceTypeID = in.ServiceTypeID
	o.Status = StatusCollecting
	if in.CollectionAt != nil {
		o.CollectionAt = in.CollectionAt
	}
	if in.DeliveryAt != nil {
		o.DeliveryAt = in.DeliveryAt
	}
	if in.Note != nil {
		o.Note = strings.TrimSpace(*in.Note)
	}
	o.Items = itemsFromQuote(o.ID, quote)
	o.TotalCents = quote.TotalCents
	o.UpdatedAt = time.Now().UTC()

	// The order total is only now known, so the commission amount gets
	// fixed here for flash orders.
	var comm *CommissionTransaction
	if o.AffiliateCode != "" {
		if aff, err := s.Catalog.AffiliateByCode(ctx, o.AffiliateCode); err != nil {
			return nil, persistence(err)
		} else if aff != nil && aff.Active {
			comm = &CommissionTransaction{
				ID:            uuid.NewString(),
				OrderID:       o.ID,
				AffiliateCode: aff.Code,
				AmountCents:   commissionCents(o.TotalCents, aff.CommissionRate),
				Status:        CommissionPending,
			}
		}
	}

	if err := s.Store.Update(ctx, o, true, comm); err != nil {
		return nil, err
	}
	s.Log.Info("flash order completed", "order_id", o.ID, "total_cents", o.TotalCents)

	s.Effects.FlashCompleted(ctx, o)
	return o, nil
}

// Patch is the fixed set of order fields a partial update may touch.
// nil means untouched; AffiliateCode set to "" clears the code; a blank
// Note deletes the note row.
type Patch struct {
	PaymentMethod *string     `json:"payment_method,omitempty"`
	CollectionAt  *time.Time  `json:"collection_at,omitempty"`
	DeliveryAt    *time.Time  `json:"delivery_at,omitempty"`
	AffiliateCode *string     `json:"affiliate_code,omitempty"`
	Status        *Status     `json:"status,omitempty"`
	ServiceTypeID *string     `json:"service_type_id,omitempty"`
	Items         []ItemInput `json:"items,omitempty"`
	Note          *string     `json:"note,omitempty"`
}

func (s *Service) PatchOrderFields(ctx context.Context, caller Caller, orderID string, p Patch) (*Order, error) {
	if caller.ID == "" {
		return nil, ErrUnauthorized
	}
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != caller.ID && !caller.admin() {
		return nil, ErrForbidden
	}

	if p.AffiliateCode != nil && *p.AffiliateCode != "" {
		if _, err := s.activeAffiliate(ctx, *p.AffiliateCode); err != nil {
			return nil, err
		}
	}

	from := o.Status
	if p.Status != nil && *p.Status != o.Status {
		// status moves stay staff-gated even inside a patch
		if !caller.staff() {
			return nil, ErrForbidden
		}
		if err := Step(o.Status, *p.Status); err != nil {
			return nil, err
		}
		o.Status = *p.Status
	}
	if p.ServiceTypeID != nil {
		o.ServiceTypeID = *p.ServiceTypeID
	}

	replaceItems := false
	if p.Items != nil {
		if err := validateItems(p.Items); err != nil {
			return nil, err
		}
		// prices recompute under the possibly-just-updated service type;
		// a lookup failure aborts the whole patch
		res := Resolver{Catalog: s.Catalog}
		quote, err := res.Price(ctx, o.ServiceTypeID, o.ServiceID, p.Items)
		if err != nil {
			return nil, err
		}
		s.warnFallback(o.UserID, quote)
		o.Items = itemsFromQuote(o.ID, quote)
		o.TotalCents = quote.TotalCents
		replaceItems = true
	}

	if p.PaymentMethod != nil {
		o.PaymentMethod = *p.PaymentMethod
	}
	if p.CollectionAt != nil {
		o.CollectionAt = p.CollectionAt
	}
	if p.DeliveryAt != nil {
		o.DeliveryAt = p.DeliveryAt
	}
	if p.AffiliateCode != nil {
		o.AffiliateCode = *p.AffiliateCode
	}
	if p.Note != nil {
		o.Note = strings.TrimSpace(*p.Note)
	}
	o.UpdatedAt = time.Now().UTC()

	if err := s.Store.Update(ctx, o, replaceItems, nil); err != nil {
		return nil, err
	}
	s.Log.Info("order patched", "order_id", o.ID, "status", o.Status)

	if o.Status != from {
		s.Effects.StatusChanged(ctx, o, from)
	}
	return o, nil
}

// UpdateStatus moves an order one step through the state machine. Only
// staff roles may transition orders.
func (s *Service) UpdateStatus(ctx context.Context, caller Caller, orderID string, next Status) (*Order, error) {
	if caller.ID == "" {
		return nil, ErrUnauthorized
	}
	if !caller.staff() {
		return nil, ErrForbidden
	}
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := Step(o.Status, next); err != nil {
		return nil, err
	}

	from := o.Status
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	if err := s.Store.Update(ctx, o, false, nil); err != nil {
		return nil, err
	}
	s.Log.Info("order status changed", "order_id", o.ID, "from", from, "to", next)

	s.Effects.StatusChanged(ctx, o, from)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, caller Caller, orderID string) (*Order, error) {
	if caller.ID == "" {
		return nil, ErrUnauthorized
	}
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != caller.ID && !caller.staff() {
		return nil, ErrForbidden
	}
	return o, nil
}

// DeleteOrder hard-deletes an order with its items and note. Privileged
// administrative action only.
func (s *Service) DeleteOrder(ctx context.Context, caller Caller, orderID string) error {
	if caller.ID == "" {
		return ErrUnauthorized
	}
	if caller.Role != RoleSuperAdmin {
		return ErrForbidden
	}
	if _, err := s.Store.Get(ctx, orderID); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, orderID); err != nil {
		return err
	}
	s.Log.Info("order deleted", "order_id", orderID, "by", caller.ID)
	return nil
}

func (s *Service) activeAffiliate(ctx context.Context, code string) (*Affiliate, error) {
	aff, err := s.Catalog.AffiliateByCode(ctx, code)
	if err != nil {
		return nil, persistence(err)
	}
	if aff == nil || !aff.Active {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAffiliateCode, code)
	}
	return aff, nil
}

func (s *Service) warnFallback(userID string, q *Quote) {
	if len(q.Missing) > 0 {
		s.Log.Warn("cart priced with fallback entries, review order",
			"user_id", userID, "articles", q.Missing)
	}
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: empty item list", ErrInvalidInput)
	}
	for i, it := range items {
		if strings.TrimSpace(it.ArticleID) == "" {
			return fmt.Errorf("%w: item %d missing article id", ErrInvalidInput, i)
		}
		if it.Qty <= 0 {
			return fmt.Errorf("%w: item %d has non-positive qty", ErrInvalidInput, i)
		}
	}
	return nil
}

func itemsFromQuote(orderID string, q *Quote) []OrderItem {
	items := make([]OrderItem, 0, len(q.Lines))
	for _, l := range q.Lines {
		items = append(items, OrderItem{
			ID:             uuid.NewString(),
			OrderID:        orderID,
			ArticleID:      l.ArticleID,
			ServiceID:      l.ServiceID,
			Qty:            l.Qty,
			UnitPriceCents: l.UnitPriceCents,
			Premium:        l.Premium,
			WeightGrams:    l.WeightGrams,
		})
	}
	return items
}
