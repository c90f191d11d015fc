package orders

import "time"

// SelectOffers picks the discount offers that apply to a cart from the
// user's active subscriptions. Selection is greedy, not combinatorial:
// offers are plain percentage/amount discounts, so if any exclusive
// (non-cumulative) offer is eligible the single highest-valued one wins
// and every other offer is dropped; otherwise all eligible cumulative
// offers stack.
func SelectOffers(now time.Time, offers []Offer, items []ItemInput, subtotalCents int64) []Offer {
	var cumulative []Offer
	var bestExclusive *Offer
	for i := range offers {
		o := offers[i]
		if !eligible(now, o, items, subtotalCents) {
			continue
		}
		if o.Cumulative {
			cumulative = append(cumulative, o)
			continue
		}
		// ties resolve to the first encountered
		if bestExclusive == nil || o.DiscountValue > bestExclusive.DiscountValue {
			bestExclusive = &offers[i]
		}
	}
	if bestExclusive != nil {
		return []Offer{*bestExclusive}
	}
	return cumulative
}

// eligible checks an offer's constraints against the cart. A constraint
// the offer does not define is treated as unconstrained, not as a failure.
func eligible(now time.Time, o Offer, items []ItemInput, subtotalCents int64) bool {
	if !o.Active {
		return false
	}
	if o.StartsAt != nil && now.Before(*o.StartsAt) {
		return false
	}
	if o.EndsAt != nil && now.After(*o.EndsAt) {
		return false
	}
	if o.MinPurchaseCents > 0 && subtotalCents < o.MinPurchaseCents {
		return false
	}
	if len(o.ArticleIDs) > 0 {
		allowed := make(map[string]bool, len(o.ArticleIDs))
		for _, id := range o.ArticleIDs {
			allowed[id] = true
		}
		found := false
		for _, it := range items {
			if allowed[it.ArticleID] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
