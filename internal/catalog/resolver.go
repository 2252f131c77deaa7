// Package catalog resolves unified products into persistent catalog
// entities. It is the only component that creates categories and products.
package catalog

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/store"
)

// Store is the persistence surface the resolver needs. Satisfied by
// store.Store.
type Store interface {
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	GetProduct(ctx context.Context, name, brand string, categoryID int64) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
}

// Resolver resolves or lazily creates Category and Product entities for
// unified products. Deduplication is keyed by (name, brand, category) since
// scraping guarantees no universal barcode.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the catalog product for a unified product, creating the
// category and product on first sighting. Repeated calls with the same
// identity return the same product without duplication. Barcode is left
// unset; it is not derivable from scraping.
func (r *Resolver) Resolve(ctx context.Context, up model.UnifiedProduct) (*model.Product, error) {
	name := canonicalName(up.Name)
	brand := canonicalName(up.Brand)
	if name == "" {
		return nil, eris.New("catalog: product name is empty")
	}
	if up.Category == "" || up.Category == model.CategoryOther {
		return nil, eris.Errorf("catalog: product %q has no resolvable category", name)
	}

	category, err := r.store.GetCategoryByName(ctx, up.Category)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(err, "catalog: lookup category %s", up.Category)
		}
		category, err = r.store.CreateCategory(ctx, up.Category)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: create category %s", up.Category)
		}
		zap.L().Info("catalog: category created", zap.String("name", category.Name))
	}

	product, err := r.store.GetProduct(ctx, name, brand, category.ID)
	if err == nil {
		return product, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "catalog: lookup product %s", name)
	}

	product, err = r.store.CreateProduct(ctx, model.Product{
		Name:       name,
		Brand:      brand,
		CategoryID: category.ID,
		ImageURL:   up.ImageURL,
		Unit:       up.Unit,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: create product %s", name)
	}
	zap.L().Info("catalog: product created",
		zap.String("name", product.Name),
		zap.String("brand", product.Brand),
		zap.String("category", category.Name),
	)
	return product, nil
}

// canonicalName trims and collapses internal whitespace so that identity
// comparison is stable across scrape runs.
func canonicalName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
