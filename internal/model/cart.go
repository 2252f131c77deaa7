package model

// Cart is a user's shopping cart. Mutation lives outside this core; the
// suggestion engine only reads it.
type Cart struct {
	ID     int64      `json:"id"`
	UserID int64      `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// CartItem references a catalog product with a quantity. Product is
// populated on reads that resolve items for suggestion.
type CartItem struct {
	ID        int64    `json:"id"`
	CartID    int64    `json:"cart_id"`
	ProductID int64    `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}
