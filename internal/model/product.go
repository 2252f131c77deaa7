package model

// CategoryOther is the catch-all category the unification oracle assigns to
// offers it cannot classify. Products landing here are discarded before
// catalog resolution.
const CategoryOther = "Other"

// Category is a product category, created lazily on first sighting.
// Name is the natural key.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is a catalog entry deduplicated across chains. Since no universal
// barcode is guaranteed by scraping, the natural key is (name, brand,
// category); an empty brand means "no brand".
type Product struct {
	ID         int64  `json:"id"`
	PublicID   string `json:"public_id"`
	Name       string `json:"name"`
	Brand      string `json:"brand,omitempty"`
	CategoryID int64  `json:"category_id"`
	Barcode    string `json:"barcode,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	Unit       string `json:"unit,omitempty"`
}
