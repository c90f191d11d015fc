package orders

import "context"

// FallbackUnitPriceCents is the sentinel unit price for items whose triple
// has no catalog entry. A missing entry never fails the order; the line is
// priced at the sentinel and flagged so operators can review it.
const FallbackUnitPriceCents = 1

// Resolver computes unit prices against the read-only price catalog.
// Lookups always use the full (article, service type, service) triple.
type Resolver struct {
	Catalog Catalog
}

type QuoteLine struct {
	ArticleID      string `json:"article_id"`
	ServiceID      string `json:"service_id"`
	Qty            int    `json:"qty"`
	Premium        bool   `json:"premium"`
	WeightGrams    int64  `json:"weight_grams,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
	Fallback       bool   `json:"fallback,omitempty"`
}

// Quote is the pricing breakdown for one cart.
type Quote struct {
	Lines      []QuoteLine `json:"lines"`
	TotalCents int64       `json:"total_cents"`
	// Missing lists article ids priced at the sentinel because no catalog
	// entry matched their triple.
	Missing []string `json:"missing,omitempty"`
}

// Price issues one catalog query for the whole cart, constrained to the
// cart's article-id set and the order's (serviceTypeID, serviceID), then
// maps in memory. Never one query per item.
func (r *Resolver) Price(ctx context.Context, serviceTypeID, serviceID string, items []ItemInput) (*Quote, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if !seen[it.ArticleID] {
			seen[it.ArticleID] = true
			ids = append(ids, it.ArticleID)
		}
	}

	entries, err := r.Catalog.PriceEntries(ctx, serviceTypeID, serviceID, ids)
	if err != nil {
		return nil, persistence(err)
	}
	byArticle := make(map[string]PriceEntry, len(entries))
	for _, e := range entries {
		byArticle[e.ArticleID] = e
	}

	q := &Quote{Lines: make([]QuoteLine, 0, len(items))}
	missing := make(map[string]bool)
	for _, it := range items {
		svc := it.ServiceID
		if svc == "" {
			svc = serviceID
		}
		line := QuoteLine{
			ArticleID:   it.ArticleID,
			ServiceID:   svc,
			Qty:         it.Qty,
			Premium:     it.Premium,
			WeightGrams: it.WeightGrams,
		}
		if e, ok := byArticle[it.ArticleID]; ok {
			if it.Premium {
				line.UnitPriceCents = e.PremiumPriceCents
			} else {
				line.UnitPriceCents = e.BasePriceCents
			}
		} else {
			line.UnitPriceCents = FallbackUnitPriceCents
			line.Fallback = true
			if !missing[it.ArticleID] {
				missing[it.ArticleID] = true
				q.Missing = append(q.Missing, it.ArticleID)
			}
		}
		line.LineTotalCents = int64(line.Qty) * line.UnitPriceCents
		q.TotalCents += line.LineTotalCents
		q.Lines = append(q.Lines, line)
	}
	return q, nil
}

// ResolveUnitPrice prices a single triple. Mostly useful for spot checks;
// order flows go through Price to keep the lookup batched.
func (r *Resolver) ResolveUnitPrice(ctx context.Context, articleID, serviceID, serviceTypeID string, premium bool) (int64, error) {
	q, err := r.Price(ctx, serviceTypeID, serviceID, []ItemInput{{ArticleID: articleID, ServiceID: serviceID, Qty: 1, Premium: premium}})
	if err != nil {
		return 0, err
	}
	return q.Lines[0].UnitPriceCents, nil
}
