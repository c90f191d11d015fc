package orders

import "time"

type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleDelivery   Role = "DELIVERY"
)

// Caller is the already-authenticated identity attached to a request.
// Credential verification happens upstream; an empty ID means anonymous.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) admin() bool {
	return c.Role == RoleAdmin || c.Role == RoleSuperAdmin
}

func (c Caller) staff() bool {
	return c.admin() || c.Role == RoleDelivery
}

type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	ServiceID     string      `json:"service_id,omitempty"`
	ServiceTypeID string      `json:"service_type_id,omitempty"`
	AddressID     string      `json:"address_id"`
	Status        Status      `json:"status"`
	TotalCents    int64       `json:"total_cents"`
	Recurrence    string      `json:"recurrence,omitempty"`
	CollectionAt  *time.Time  `json:"collection_at,omitempty"`
	DeliveryAt    *time.Time  `json:"delivery_at,omitempty"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	AffiliateCode string      `json:"affiliate_code,omitempty"`
	Flash         bool        `json:"flash"`
	Version       int64       `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Items         []OrderItem `json:"items"`
	Note          string      `json:"note,omitempty"`
}

// Subtotal is the derived total: qty × unit price summed over all items.
// The persisted TotalCents must always equal it.
func (o *Order) Subtotal() int64 {
	var total int64
	for _, it := range o.Items {
		total += int64(it.Qty) * it.UnitPriceCents
	}
	return total
}

type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ArticleID      string `json:"article_id"`
	ServiceID      string `json:"service_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Premium        bool   `json:"premium"`
	WeightGrams    int64  `json:"weight_grams,omitempty"`
}

// ItemInput is the client-facing line item. Unit prices are never taken
// from the client; they are resolved against the price catalog.
type ItemInput struct {
	ArticleID   string `json:"article_id"`
	ServiceID   string `json:"service_id,omitempty"`
	Qty         int    `json:"qty"`
	Premium     bool   `json:"premium,omitempty"`
	WeightGrams int64  `json:"weight_grams,omitempty"`
}

// PriceEntry is keyed by the full (article, service type, service) triple.
// Lookups by any subset of the triple are not allowed: a partial match can
// pick up an entry belonging to a different service.
type PriceEntry struct {
	ArticleID         string
	ServiceTypeID     string
	ServiceID         string
	BasePriceCents    int64
	PremiumPriceCents int64
}

type Offer struct {
	ID               string     `json:"id"`
	Active           bool       `json:"-"`
	StartsAt         *time.Time `json:"-"`
	EndsAt           *time.Time `json:"-"`
	Cumulative       bool       `json:"cumulative"`
	MinPurchaseCents int64      `json:"-"`
	ArticleIDs       []string   `json:"-"` // empty = any article qualifies
	DiscountValue    int64      `json:"discount_value"`
}

type Affiliate struct {
	Code           string
	CommissionRate float64 // percent of order total
	Active         bool
}

type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "PENDING"
	CommissionApproved CommissionStatus = "APPROVED"
)

// CommissionTransaction holds the affiliate cut for one order. The amount
// is fixed when the order total is first known and never recomputed, even
// if the affiliate's rate changes later.
type CommissionTransaction struct {
	ID            string
	OrderID       string
	AffiliateCode string
	AmountCents   int64
	Status        CommissionStatus
}

type PointsState string

const (
	PointsProvisional PointsState = "PROVISIONAL"
	PointsConfirmed   PointsState = "CONFIRMED"
	PointsReversed    PointsState = "REVERSED"
)
