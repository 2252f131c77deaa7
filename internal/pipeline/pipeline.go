// Package pipeline runs a full ingestion pass: normalize raw offers into
// unified products, resolve each against the catalog, and record its chain
// prices in the ledger.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

// Normalizer turns scraped offers into catalog-ready products.
type Normalizer interface {
	UnifyAndFilter(ctx context.Context, offers []model.RawOffer) ([]model.UnifiedProduct, error)
}

// Resolver maps a unified product onto the catalog.
type Resolver interface {
	Resolve(ctx context.Context, up model.UnifiedProduct) (*model.Product, error)
}

// Recorder persists a product's chain prices.
type Recorder interface {
	Ingest(ctx context.Context, product *model.Product, facts []model.ChainPrice) error
}

// Result summarizes one ingestion run.
type Result struct {
	Offers   int
	Unified  int
	Recorded int
	Failed   int
}

// Pipeline wires the three stages together. Products are persisted
// concurrently up to maxConcurrent; one product failing does not stop the
// others.
type Pipeline struct {
	normalizer    Normalizer
	resolver      Resolver
	recorder      Recorder
	maxConcurrent int
}

func New(n Normalizer, r Resolver, rec Recorder, maxConcurrent int) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pipeline{normalizer: n, resolver: r, recorder: rec, maxConcurrent: maxConcurrent}
}

// Run ingests one batch of raw offers end to end. Normalization failure
// aborts the run; per-product resolution or recording failures are logged
// and counted but do not stop the rest.
func (p *Pipeline) Run(ctx context.Context, offers []model.RawOffer) (Result, error) {
	result := Result{Offers: len(offers)}
	if len(offers) == 0 {
		return result, nil
	}

	unified, err := p.normalizer.UnifyAndFilter(ctx, offers)
	if err != nil {
		return result, eris.Wrap(err, "pipeline: normalize offers")
	}
	result.Unified = len(unified)

	var recorded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for _, up := range unified {
		up := up
		g.Go(func() error {
			if err := p.persistProduct(gctx, up); err != nil {
				failed.Add(1)
				zap.L().Error("product ingestion failed",
					zap.String("product", up.Name),
					zap.String("brand", up.Brand),
					zap.Error(err))
				return nil
			}
			recorded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, eris.Wrap(err, "pipeline: persist products")
	}

	result.Recorded = int(recorded.Load())
	result.Failed = int(failed.Load())
	zap.L().Info("ingestion run finished",
		zap.Int("offers", result.Offers),
		zap.Int("unified", result.Unified),
		zap.Int("recorded", result.Recorded),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (p *Pipeline) persistProduct(ctx context.Context, up model.UnifiedProduct) error {
	product, err := p.resolver.Resolve(ctx, up)
	if err != nil {
		return eris.Wrap(err, "pipeline: resolve product")
	}
	if err := p.recorder.Ingest(ctx, product, up.ChainPrices); err != nil {
		return eris.Wrap(err, "pipeline: record prices")
	}
	return nil
}
