package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService() (*Service, *memStore, *fakeCatalog, *fakeRewards, *fakeNotifier) {
	store := newMemStore()
	cat := &fakeCatalog{
		entries: append(testEntries(), PriceEntry{
			ArticleID: "blanket", ServiceTypeID: "wash", ServiceID: "standard",
			BasePriceCents: 200, PremiumPriceCents: 300,
		}),
		affiliates: map[string]Affiliate{
			"AFF10":    {Code: "AFF10", CommissionRate: 10, Active: true},
			"INACTIVE": {Code: "INACTIVE", CommissionRate: 5, Active: false},
		},
	}
	rw := newFakeRewards()
	nt := &fakeNotifier{}
	return newTestService(store, cat, rw, nt), store, cat, rw, nt
}

var (
	owner    = Caller{ID: "user-1", Role: RoleUser}
	admin    = Caller{ID: "admin-1", Role: RoleAdmin}
	driver   = Caller{ID: "driver-1", Role: RoleDelivery}
	superAdm = Caller{ID: "root-1", Role: RoleSuperAdmin}
)

func standardCreateInput() CreateOrderInput {
	return CreateOrderInput{
		ServiceID:     "standard",
		ServiceTypeID: "wash",
		AddressID:     "addr-1",
		Items:         []ItemInput{{ArticleID: "shirt", Qty: 2}},
		PaymentMethod: "cash",
	}
}

func TestCreateOrderComputesTotalFromCatalog(t *testing.T) {
	svc, store, _, rw, nt := setupService()

	res, err := svc.CreateOrder(context.Background(), owner, standardCreateInput())
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(1000), o.TotalCents)
	assert.Equal(t, o.TotalCents, o.Subtotal())
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(500), o.Items[0].UnitPriceCents)

	stored, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.TotalCents)

	// provisional points at 0.01/cent, floored
	assert.Equal(t, int64(10), res.PointsEarned)
	assert.Equal(t, int64(10), res.PointsBalance)
	assert.Equal(t, int64(10), rw.provisional[o.ID])
	assert.Equal(t, []string{EventOrderCreated + ":" + owner.ID}, nt.events)
}

func TestCreateOrderValidatesBeforeAnyWrite(t *testing.T) {
	svc, store, _, _, _ := setupService()
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, Caller{}, standardCreateInput())
	assert.ErrorIs(t, err, ErrUnauthorized)

	in := standardCreateInput()
	in.Items = nil
	_, err = svc.CreateOrder(ctx, owner, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = standardCreateInput()
	in.Items = []ItemInput{{ArticleID: "shirt", Qty: 0}}
	_, err = svc.CreateOrder(ctx, owner, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in = standardCreateInput()
	in.Items = []ItemInput{{ArticleID: "  ", Qty: 1}}
	_, err = svc.CreateOrder(ctx, owner, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, store.orders)
}

func TestCreateOrderWithAffiliateFixesCommission(t *testing.T) {
	svc, store, _, _, _ := setupService()

	in := standardCreateInput()
	in.AffiliateCode = "AFF10"
	res, err := svc.CreateOrder(context.Background(), owner, in)
	require.NoError(t, err)

	comm := store.commissions[res.Order.ID]
	require.NotNil(t, comm)
	assert.Equal(t, CommissionPending, comm.Status)
	assert.Equal(t, int64(100), comm.AmountCents) // 1000 × 10%
}

func TestCreateOrderRejectsUnknownAffiliate(t *testing.T) {
	svc, store, _, _, _ := setupService()

	for _, code := range []string{"NOPE", "INACTIVE"} {
		in := standardCreateInput()
		in.AffiliateCode = code
		_, err := svc.CreateOrder(context.Background(), owner, in)
		assert.ErrorIs(t, err, ErrInvalidAffiliateCode, code)
	}
	assert.Empty(t, store.orders)
}

func TestCreateOrderCollectsOffers(t *testing.T) {
	svc, _, cat, _, _ := setupService()
	cat.offers = []Offer{
		activeOffer("small", false, 10),
		activeOffer("big", false, 20),
	}

	res, err := svc.CreateOrder(context.Background(), owner, standardCreateInput())
	require.NoError(t, err)
	require.Len(t, res.Offers, 1)
	assert.Equal(t, "big", res.Offers[0].ID)
}

func TestCreateFlashOrderAttachesReferralLink(t *testing.T) {
	svc, _, cat, _, _ := setupService()
	cat.link = "AFF10"

	o, err := svc.CreateFlashOrder(context.Background(), owner, "addr-1", "", "ring the bell")
	require.NoError(t, err)
	assert.True(t, o.Flash)
	assert.Equal(t, StatusDraft, o.Status)
	assert.Zero(t, o.TotalCents)
	assert.Empty(t, o.Items)
	assert.Equal(t, "AFF10", o.AffiliateCode)
	assert.Equal(t, "ring the bell", o.Note)
}

func TestCompleteFlashOrderPricesAndCollects(t *testing.T) {
	svc, store, _, rw, _ := setupService()
	ctx := context.Background()

	flash, err := svc.CreateFlashOrder(ctx, owner, "addr-1", "", "")
	require.NoError(t, err)

	done, err := svc.CompleteFlashOrder(ctx, admin, flash.ID, CompleteFlashInput{
		ServiceID:     "standard",
		ServiceTypeID: "wash",
		Items:         []ItemInput{{ArticleID: "blanket", Qty: 3, Premium: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCollecting, done.Status)
	assert.Equal(t, int64(900), done.TotalCents)
	require.Len(t, done.Items, 1)
	assert.Equal(t, int64(300), done.Items[0].UnitPriceCents)

	stored, _ := store.Get(ctx, flash.ID)
	assert.Equal(t, int64(900), stored.TotalCents)
	assert.Equal(t, done.TotalCents, stored.Subtotal())
	assert.Equal(t, int64(9), rw.provisional[flash.ID])
}

func TestCompleteFlashOrderGuards(t *testing.T) {
	svc, store, _, _, _ := setupService()
	ctx := context.Background()
	in := CompleteFlashInput{
		ServiceID:     "standard",
		ServiceTypeID: "wash",
		Items:         []ItemInput{{ArticleID: "shirt", Qty: 1}},
	}

	// not a flash order
	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)
	_, err = svc.CompleteFlashOrder(ctx, admin, res.Order.ID, in)
	assert.ErrorIs(t, err, ErrInvalidState)

	// flash but no longer DRAFT
	flash, err := svc.CreateFlashOrder(ctx, owner, "addr-1", "", "")
	require.NoError(t, err)
	_, err = svc.CompleteFlashOrder(ctx, admin, flash.ID, in)
	require.NoError(t, err)
	before, _ := store.Get(ctx, flash.ID)
	_, err = svc.CompleteFlashOrder(ctx, admin, flash.ID, in)
	assert.ErrorIs(t, err, ErrInvalidState)
	after, _ := store.Get(ctx, flash.ID)
	assert.Equal(t, before.Version, after.Version, "rejected completion must not write")

	_, err = svc.CompleteFlashOrder(ctx, admin, "missing", in)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPatchNoteBlankDeletesNonBlankUpserts(t *testing.T) {
	svc, store, _, _, _ := setupService()
	ctx := context.Background()

	in := standardCreateInput()
	in.Note = "fragile buttons"
	res, err := svc.CreateOrder(ctx, owner, in)
	require.NoError(t, err)
	id := res.Order.ID

	blank := "   "
	o, err := svc.PatchOrderFields(ctx, owner, id, Patch{Note: &blank})
	require.NoError(t, err)
	assert.Empty(t, o.Note)
	stored, _ := store.Get(ctx, id)
	assert.Empty(t, stored.Note)

	text := "use the side door"
	o, err = svc.PatchOrderFields(ctx, owner, id, Patch{Note: &text})
	require.NoError(t, err)
	assert.Equal(t, "use the side door", o.Note)
}

func TestPatchAffiliateCodeValidation(t *testing.T) {
	svc, store, _, _, _ := setupService()
	ctx := context.Background()

	in := standardCreateInput()
	in.AffiliateCode = "AFF10"
	res, err := svc.CreateOrder(ctx, owner, in)
	require.NoError(t, err)
	id := res.Order.ID

	bad := "BOGUS"
	_, err = svc.PatchOrderFields(ctx, owner, id, Patch{AffiliateCode: &bad})
	assert.ErrorIs(t, err, ErrInvalidAffiliateCode)
	stored, _ := store.Get(ctx, id)
	assert.Equal(t, "AFF10", stored.AffiliateCode, "stored code unchanged on rejection")

	// clearing is always allowed
	none := ""
	o, err := svc.PatchOrderFields(ctx, owner, id, Patch{AffiliateCode: &none})
	require.NoError(t, err)
	assert.Empty(t, o.AffiliateCode)
}

func TestPatchItemsReplacesWholesaleUnderNewServiceType(t *testing.T) {
	svc, store, cat, _, _ := setupService()
	ctx := context.Background()
	cat.entries = append(cat.entries, PriceEntry{
		ArticleID: "shirt", ServiceTypeID: "dry-clean", ServiceID: "standard",
		BasePriceCents: 900, PremiumPriceCents: 1300,
	})

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)
	id := res.Order.ID

	newType := "dry-clean"
	o, err := svc.PatchOrderFields(ctx, admin, id, Patch{
		ServiceTypeID: &newType,
		Items:         []ItemInput{{ArticleID: "shirt", Qty: 1}},
	})
	require.NoError(t, err)

	// price must come from the just-updated service type
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(900), o.Items[0].UnitPriceCents)
	assert.Equal(t, int64(900), o.TotalCents)
	stored, _ := store.Get(ctx, id)
	assert.Equal(t, stored.TotalCents, stored.Subtotal())
}

func TestPatchAuthorization(t *testing.T) {
	svc, _, _, _, _ := setupService()
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)
	id := res.Order.ID
	method := "card"

	_, err = svc.PatchOrderFields(ctx, Caller{}, id, Patch{PaymentMethod: &method})
	assert.ErrorIs(t, err, ErrUnauthorized)

	stranger := Caller{ID: "user-2", Role: RoleUser}
	_, err = svc.PatchOrderFields(ctx, stranger, id, Patch{PaymentMethod: &method})
	assert.ErrorIs(t, err, ErrForbidden)

	// a plain owner may not move status through a patch
	next := StatusCollecting
	_, err = svc.PatchOrderFields(ctx, owner, id, Patch{Status: &next})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.PatchOrderFields(ctx, admin, id, Patch{Status: &next})
	assert.NoError(t, err)
}

func TestPatchDetectsConcurrentModification(t *testing.T) {
	svc, store, _, _, _ := setupService()
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)
	id := res.Order.ID

	store.beforeUpdate = func() {
		store.orders[id].Version++ // another request commits first
		store.beforeUpdate = nil
	}
	method := "card"
	_, err = svc.PatchOrderFields(ctx, owner, id, Patch{PaymentMethod: &method})
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestUpdateStatusFullChainConfirmsPointsOnce(t *testing.T) {
	svc, store, _, rw, nt := setupService()
	ctx := context.Background()

	in := standardCreateInput()
	in.AffiliateCode = "AFF10"
	res, err := svc.CreateOrder(ctx, owner, in)
	require.NoError(t, err)
	id := res.Order.ID
	// the pending commission row exists where the orchestrator looks
	rw.commissions[id] = store.commissions[id]

	for _, next := range []Status{
		StatusCollecting, StatusCollected, StatusProcessing,
		StatusReady, StatusDelivering, StatusDelivered,
	} {
		_, err := svc.UpdateStatus(ctx, driver, id, next)
		require.NoError(t, err, "to %s", next)
	}

	assert.Equal(t, 1, rw.confirmCalls, "exactly one confirmation for the delivery")
	assert.True(t, rw.confirmed[id])
	assert.Equal(t, CommissionApproved, rw.commissions[id].Status)

	// re-delivering is impossible: DELIVERED is terminal
	_, err = svc.UpdateStatus(ctx, driver, id, StatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, rw.confirmCalls)

	// created + six status notifications
	assert.Len(t, nt.events, 7)
}

func TestUpdateStatusAuthorization(t *testing.T) {
	svc, _, _, _, _ := setupService()
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, Caller{}, res.Order.ID, StatusCollecting)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.UpdateStatus(ctx, owner, res.Order.ID, StatusCollecting)
	assert.ErrorIs(t, err, ErrForbidden)

	for _, c := range []Caller{admin, driver} {
		svc2, _, _, _, _ := setupService()
		r2, err := svc2.CreateOrder(ctx, owner, standardCreateInput())
		require.NoError(t, err)
		_, err = svc2.UpdateStatus(ctx, c, r2.Order.ID, StatusCollecting)
		assert.NoError(t, err, string(c.Role))
	}
}

func TestUpdateStatusRejectsSkipping(t *testing.T) {
	svc, _, _, _, _ := setupService()
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, admin, res.Order.ID, StatusReady)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancellationReversesProvisionalPoints(t *testing.T) {
	svc, _, _, rw, _ := setupService()
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)
	id := res.Order.ID
	require.Equal(t, int64(10), rw.provisional[id])

	_, err = svc.UpdateStatus(ctx, admin, id, StatusCancelled)
	require.NoError(t, err)
	assert.True(t, rw.reversed[id])
	assert.False(t, rw.confirmed[id])

	balance, _ := rw.Balance(ctx, owner.ID)
	assert.Zero(t, balance)
}

func TestDeleteOrderIsSuperAdminOnly(t *testing.T) {
	svc, store, _, _, _ := setupService()
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)
	id := res.Order.ID

	assert.ErrorIs(t, svc.DeleteOrder(ctx, owner, id), ErrForbidden)
	assert.ErrorIs(t, svc.DeleteOrder(ctx, admin, id), ErrForbidden)
	require.NoError(t, svc.DeleteOrder(ctx, superAdm, id))
	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteOrder(ctx, superAdm, id), ErrNotFound)
}

func TestGetOrderOwnershipAndStaffAccess(t *testing.T) {
	svc, _, _, _, _ := setupService()
	ctx := context.Background()

	res, err := svc.CreateOrder(ctx, owner, standardCreateInput())
	require.NoError(t, err)
	id := res.Order.ID

	_, err = svc.GetOrder(ctx, owner, id)
	assert.NoError(t, err)
	_, err = svc.GetOrder(ctx, driver, id)
	assert.NoError(t, err)
	_, err = svc.GetOrder(ctx, Caller{ID: "user-2", Role: RoleUser}, id)
	assert.ErrorIs(t, err, ErrForbidden)
}
