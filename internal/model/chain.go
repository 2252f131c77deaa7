package model

// StoreChain is an immutable registry entry for a retail chain whose
// catalog is scraped. Chains are seeded once and never mutated by ingestion.
type StoreChain struct {
	ID         int64  `json:"id"`
	PublicID   string `json:"public_id"`
	Name       string `json:"name"`
	CatalogURL string `json:"catalog_url"`
}
