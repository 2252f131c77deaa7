package model

import "time"

// PriceRecord is one entry in the temporal price ledger for a
// (product, chain) pair. A nil ValidTo marks an open record, i.e. the price
// currently in effect. Discount 0 is a regular price; >0 a promotion.
//
// Ledger invariants: at most one open regular record exists per
// (product, chain); promotional records are append-only and only ever
// filtered by validity at read time.
type PriceRecord struct {
	ID        int64      `json:"id"`
	ProductID int64      `json:"product_id"`
	ChainID   int64      `json:"chain_id"`
	PriceBGN  float64    `json:"price_bgn"`
	PriceEUR  float64    `json:"price_eur"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
	Discount  int        `json:"discount"`
}

// Open reports whether the record is still in effect (no validity end).
func (r PriceRecord) Open() bool {
	return r.ValidTo == nil
}

// Regular reports whether the record is a non-promotional price.
func (r PriceRecord) Regular() bool {
	return r.Discount == 0
}

// ValidAt reports whether the record covers the given instant. ValidFrom is
// inclusive; ValidTo is an inclusive end when set.
func (r PriceRecord) ValidAt(t time.Time) bool {
	if t.Before(r.ValidFrom) {
		return false
	}
	if r.ValidTo != nil && t.After(*r.ValidTo) {
		return false
	}
	return true
}
