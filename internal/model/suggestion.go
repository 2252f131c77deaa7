package model

// ItemPrice is one cart item's effective price at a chosen chain. Promo is
// set when the effective price came from a currently valid promotion rather
// than the regular price.
type ItemPrice struct {
	ProductID    int64   `json:"product_id"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	UnitPriceBGN float64 `json:"unit_price_bgn"`
	UnitPriceEUR float64 `json:"unit_price_eur"`
	Promo        bool    `json:"promo"`
}

// StoreOption is the computed answer to "which store is cheapest for this
// cart". Covered of Priceable expresses coverage: items the chain prices out
// of the items priced anywhere. Items with no valid price at any chain are
// excluded from both counts.
type StoreOption struct {
	Chain     StoreChain  `json:"chain"`
	Items     []ItemPrice `json:"items"`
	TotalBGN  float64     `json:"total_bgn"`
	TotalEUR  float64     `json:"total_eur"`
	Covered   int         `json:"covered"`
	Priceable int         `json:"priceable"`
}

// FullCoverage reports whether the chain prices every priceable cart item.
func (o StoreOption) FullCoverage() bool {
	return o.Priceable > 0 && o.Covered == o.Priceable
}
