package orders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// test doubles behind the Store/Catalog/Rewards/Notifier interfaces

type fakeCatalog struct {
	entries    []PriceEntry
	offers     []Offer
	affiliates map[string]Affiliate
	link       string

	priceCalls int
}

func (c *fakeCatalog) PriceEntries(_ context.Context, serviceTypeID, serviceID string, articleIDs []string) ([]PriceEntry, error) {
	c.priceCalls++
	want := make(map[string]bool, len(articleIDs))
	for _, id := range articleIDs {
		want[id] = true
	}
	var out []PriceEntry
	for _, e := range c.entries {
		if want[e.ArticleID] && e.ServiceTypeID == serviceTypeID && e.ServiceID == serviceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *fakeCatalog) ActiveOffers(context.Context, string, time.Time) ([]Offer, error) {
	return c.offers, nil
}

func (c *fakeCatalog) AffiliateByCode(_ context.Context, code string) (*Affiliate, error) {
	if a, ok := c.affiliates[code]; ok {
		return &a, nil
	}
	return nil, nil
}

func (c *fakeCatalog) ActiveLinkForUser(context.Context, string) (string, error) {
	return c.link, nil
}

type memStore struct {
	orders      map[string]*Order
	commissions map[string]*CommissionTransaction

	// beforeUpdate simulates a concurrent writer committing between the
	// service's read and its update.
	beforeUpdate func()
}

func newMemStore() *memStore {
	return &memStore{
		orders:      make(map[string]*Order),
		commissions: make(map[string]*CommissionTransaction),
	}
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

func (m *memStore) Insert(_ context.Context, o *Order, comm *CommissionTransaction) error {
	m.orders[o.ID] = cloneOrder(o)
	if comm != nil {
		m.commissions[comm.OrderID] = comm
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *memStore) Update(_ context.Context, o *Order, _ bool, comm *CommissionTransaction) error {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	cur, ok := m.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, o.ID)
	}
	if cur.Version != o.Version {
		return fmt.Errorf("%w: order %s", ErrConcurrentModification, o.ID)
	}
	stored := cloneOrder(o)
	stored.Version++
	m.orders[o.ID] = stored
	o.Version++
	if comm != nil {
		if _, exists := m.commissions[comm.OrderID]; !exists {
			m.commissions[comm.OrderID] = comm
		}
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	delete(m.orders, id)
	return nil
}

type fakeRewards struct {
	provisional map[string]int64 // order id -> points
	confirmed   map[string]bool
	reversed    map[string]bool
	commissions map[string]*CommissionTransaction

	confirmCalls int
	accrueErr    error
}

func newFakeRewards() *fakeRewards {
	return &fakeRewards{
		provisional: make(map[string]int64),
		confirmed:   make(map[string]bool),
		reversed:    make(map[string]bool),
		commissions: make(map[string]*CommissionTransaction),
	}
}

func (r *fakeRewards) AccrueProvisional(_ context.Context, _, orderID string, points int64) error {
	if r.accrueErr != nil {
		return r.accrueErr
	}
	r.provisional[orderID] = points
	return nil
}

func (r *fakeRewards) ConfirmPoints(_ context.Context, _, orderID string) error {
	r.confirmCalls++
	if _, ok := r.provisional[orderID]; ok && !r.reversed[orderID] {
		r.confirmed[orderID] = true
	}
	return nil
}

func (r *fakeRewards) ReversePoints(_ context.Context, _, orderID string) error {
	if !r.confirmed[orderID] {
		r.reversed[orderID] = true
	}
	return nil
}

func (r *fakeRewards) Balance(context.Context, string) (int64, error) {
	var total int64
	for id, pts := range r.provisional {
		if !r.reversed[id] {
			total += pts
		}
	}
	return total, nil
}

func (r *fakeRewards) CreateCommission(_ context.Context, t *CommissionTransaction) error {
	if _, ok := r.commissions[t.OrderID]; !ok {
		r.commissions[t.OrderID] = t
	}
	return nil
}

func (r *fakeRewards) ApproveCommission(_ context.Context, orderID string) (bool, error) {
	t, ok := r.commissions[orderID]
	if !ok {
		return false, nil
	}
	t.Status = CommissionApproved
	return true, nil
}

type fakeNotifier struct {
	events []string // "eventType:userID"
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, userID, eventType string, _ any) error {
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, eventType+":"+userID)
	return nil
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store Store, cat Catalog, rw Rewards, nt Notifier) *Service {
	return &Service{
		Store:   store,
		Catalog: cat,
		Effects: &Orchestrator{
			Rewards:    rw,
			Catalog:    cat,
			Notifier:   nt,
			PointsRate: 0.01,
			Log:        discardLog(),
		},
		Log: discardLog(),
	}
}
