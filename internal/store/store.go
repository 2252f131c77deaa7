// Package store defines the persistence surface for the price-comparison
// core and its Postgres and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

// ErrNotFound marks a domain-level miss (no such row). Callers distinguish
// it from system failures with eris.Is.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface consumed by the catalog resolver,
// the price ledger and the suggestion engine.
type Store interface {
	// Chains (immutable reference data)
	CreateChain(ctx context.Context, chain model.StoreChain) (*model.StoreChain, error)
	GetChainByName(ctx context.Context, name string) (*model.StoreChain, error)
	ListChains(ctx context.Context) ([]model.StoreChain, error)
	SeedChains(ctx context.Context, chains []model.StoreChain) (int64, error)

	// Categories
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)

	// Products
	GetProduct(ctx context.Context, name, brand string, categoryID int64) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)

	// Price ledger
	GetOpenRegularPrice(ctx context.Context, productID, chainID int64) (*model.PriceRecord, error)
	FindPromoPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error)
	InsertPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error)
	ClosePrice(ctx context.Context, id int64, validTo time.Time) error
	ListValidPrices(ctx context.Context, productIDs []int64, at time.Time) ([]model.PriceRecord, error)
	ListPriceHistory(ctx context.Context, productID, chainID int64) ([]model.PriceRecord, error)

	// Carts (read-only here; mutation lives outside this core)
	GetCart(ctx context.Context, cartID int64) (*model.Cart, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
