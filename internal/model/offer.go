package model

import "time"

// RawOffer is one product-chain sighting as produced by the per-site
// scrapers. Fields are whatever the source pages expose; normalization into
// the canonical catalog happens downstream in the unification oracle.
type RawOffer struct {
	Chain       string     `json:"chain"`
	Name        string     `json:"name"`
	Brand       string     `json:"brand,omitempty"`
	Category    string     `json:"category,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	PriceBGN    float64    `json:"price_bgn"`
	PriceEUR    float64    `json:"price_eur"`
	OldPriceBGN *float64   `json:"old_price_bgn,omitempty"`
	OldPriceEUR *float64   `json:"old_price_eur,omitempty"`
	Discount    int        `json:"discount"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
}

// UnifiedProduct is the oracle's canonical view of one product: a resolved
// identity plus the per-chain price facts observed in the current cycle.
type UnifiedProduct struct {
	Name        string       `json:"name"`
	Brand       string       `json:"brand,omitempty"`
	Category    string       `json:"category"`
	Unit        string       `json:"unit"`
	ImageURL    string       `json:"image_url,omitempty"`
	ChainPrices []ChainPrice `json:"chain_prices"`
}

// ChainPrice is a single chain's price observation for a unified product,
// possibly including the previous ("old") regular price when the current
// price is promotional. Discount is a percentage; 0 means a regular price.
type ChainPrice struct {
	Chain       string     `json:"chain"`
	PriceBGN    float64    `json:"price_bgn"`
	PriceEUR    float64    `json:"price_eur"`
	OldPriceBGN *float64   `json:"old_price_bgn,omitempty"`
	OldPriceEUR *float64   `json:"old_price_eur,omitempty"`
	Discount    int        `json:"discount"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
}

// Promotional reports whether the fact carries a discounted price.
func (p ChainPrice) Promotional() bool {
	return p.Discount > 0
}

// HasOldPrice reports whether the fact carries the prior regular price
// alongside the current one.
func (p ChainPrice) HasOldPrice() bool {
	return p.OldPriceBGN != nil || p.OldPriceEUR != nil
}
