package unify

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/batch"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

// CategorySource supplies the closed category vocabulary passed to the
// oracle. Satisfied by store.Store.
type CategorySource interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// Normalizer batches raw offers through the unification oracle and applies
// validation and filtering to the results.
type Normalizer struct {
	categories CategorySource
	unifier    Unifier
	opts       batch.Options
}

// NewNormalizer constructs a Normalizer with the given batching parameters.
func NewNormalizer(categories CategorySource, unifier Unifier, opts batch.Options) *Normalizer {
	return &Normalizer{
		categories: categories,
		unifier:    unifier,
		opts:       opts,
	}
}

// UnifyAndFilter normalizes raw offers into unified products. The category
// vocabulary is loaded once up front; each chunk is sent to the oracle by the
// batcher. A chunk whose response cannot be parsed contributes zero products
// (logged, not fatal); transport failures after retries fail the run.
// Discounts are canonicalized to non-negative magnitudes and products the
// oracle could not classify (the "Other" category) are dropped.
func (n *Normalizer) UnifyAndFilter(ctx context.Context, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
	if len(offers) == 0 {
		return nil, nil
	}

	vocabulary, err := n.categories.ListCategories(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "unify: load category vocabulary")
	}

	unified, err := batch.Process(ctx, offers, n.opts, func(ctx context.Context, chunk []model.RawOffer) ([]model.UnifiedProduct, error) {
		products, err := n.unifier.Unify(ctx, vocabulary, chunk)
		if err != nil {
			if eris.Is(err, ErrMalformedResponse) {
				zap.L().Warn("unify: dropping unparseable oracle batch",
					zap.Int("offers", len(chunk)),
					zap.Error(err),
				)
				return nil, nil
			}
			return nil, err
		}
		return products, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "unify: process batches")
	}

	kept := make([]model.UnifiedProduct, 0, len(unified))
	var dropped int
	for _, p := range unified {
		canonicalizeDiscounts(&p)
		if p.Category == model.CategoryOther {
			dropped++
			continue
		}
		kept = append(kept, p)
	}

	zap.L().Info("unify: cycle normalized",
		zap.Int("offers", len(offers)),
		zap.Int("unified", len(unified)),
		zap.Int("dropped_other", dropped),
	)
	return kept, nil
}

// canonicalizeDiscounts forces every discount to its absolute value. Some
// source scrapers emit "-15" for a 15 percent reduction.
func canonicalizeDiscounts(p *model.UnifiedProduct) {
	for i := range p.ChainPrices {
		if p.ChainPrices[i].Discount < 0 {
			p.ChainPrices[i].Discount = -p.ChainPrices[i].Discount
		}
	}
}
