// Package ledger maintains the temporal price history for resolved
// products. It exclusively owns PriceRecord lifecycle: regular prices are
// modeled as open-ended intervals closed on change, promotions are
// append-only with idempotent re-ingestion.
package ledger

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/store"
)

// Store is the persistence surface the ledger needs. Satisfied by
// store.Store.
type Store interface {
	GetChainByName(ctx context.Context, name string) (*model.StoreChain, error)
	GetOpenRegularPrice(ctx context.Context, productID, chainID int64) (*model.PriceRecord, error)
	FindPromoPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error)
	InsertPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error)
	ClosePrice(ctx context.Context, id int64, validTo time.Time) error
}

// Ledger ingests chain price facts for resolved products. All read-then-write
// decisions are scoped to one (product, chain) key, so concurrent Ingest
// calls for different products need no coordination; the partial unique
// index on open regular records backstops same-key races.
type Ledger struct {
	store Store

	mu     sync.Mutex
	chains map[string]*model.StoreChain // nil entry = known-unknown chain
}

// NewLedger constructs a Ledger.
func NewLedger(s Store) *Ledger {
	return &Ledger{
		store:  s,
		chains: make(map[string]*model.StoreChain),
	}
}

// Ingest records all chain price facts observed for one product in the
// current scrape cycle. Facts referencing unknown chains are skipped; a
// persistence failure on one fact is logged and does not abort the rest.
func (l *Ledger) Ingest(ctx context.Context, product *model.Product, facts []model.ChainPrice) error {
	if product == nil {
		return eris.New("ledger: nil product")
	}

	log := zap.L().With(zap.Int64("product_id", product.ID), zap.String("product", product.Name))

	var ingested, skipped, failed int
	for _, fact := range facts {
		chain, err := l.resolveChain(ctx, fact.Chain)
		if err != nil {
			log.Error("ledger: chain lookup failed", zap.String("chain", fact.Chain), zap.Error(err))
			failed++
			continue
		}
		if chain == nil {
			log.Warn("ledger: skipping fact for unknown chain", zap.String("chain", fact.Chain))
			skipped++
			continue
		}

		if err := l.ingestFact(ctx, product, chain, fact); err != nil {
			log.Error("ledger: fact ingestion failed",
				zap.String("chain", chain.Name),
				zap.Float64("price_bgn", fact.PriceBGN),
				zap.Error(err),
			)
			failed++
			continue
		}
		ingested++
	}

	log.Debug("ledger: product ingested",
		zap.Int("facts", len(facts)),
		zap.Int("ingested", ingested),
		zap.Int("skipped_unknown_chain", skipped),
		zap.Int("failed", failed),
	)
	return nil
}

// ingestFact classifies one fact and applies the corresponding writes.
func (l *Ledger) ingestFact(ctx context.Context, product *model.Product, chain *model.StoreChain, fact model.ChainPrice) error {
	if fact.HasOldPrice() {
		// The fact carries both a promotional price and the prior regular
		// price: the regular timeline moves to the old amount, the current
		// amount lands as a promotion.
		oldBGN := derefOr(fact.OldPriceBGN, fact.PriceBGN)
		oldEUR := derefOr(fact.OldPriceEUR, fact.PriceEUR)

		discount := fact.Discount
		if discount == 0 {
			discount = deriveDiscount(oldBGN, fact.PriceBGN)
		}
		if discount == 0 {
			// No actual reduction: fold into a plain regular update.
			return l.updateRegular(ctx, product.ID, chain.ID, fact.PriceBGN, fact.PriceEUR, fact.ValidFrom)
		}

		if err := l.updateRegular(ctx, product.ID, chain.ID, oldBGN, oldEUR, fact.ValidFrom); err != nil {
			return err
		}
		return l.upsertPromo(ctx, model.PriceRecord{
			ProductID: product.ID,
			ChainID:   chain.ID,
			PriceBGN:  fact.PriceBGN,
			PriceEUR:  fact.PriceEUR,
			ValidFrom: fact.ValidFrom,
			ValidTo:   fact.ValidTo,
			Discount:  discount,
		})
	}

	if fact.Promotional() {
		return l.upsertPromo(ctx, model.PriceRecord{
			ProductID: product.ID,
			ChainID:   chain.ID,
			PriceBGN:  fact.PriceBGN,
			PriceEUR:  fact.PriceEUR,
			ValidFrom: fact.ValidFrom,
			ValidTo:   fact.ValidTo,
			Discount:  fact.Discount,
		})
	}

	return l.updateRegular(ctx, product.ID, chain.ID, fact.PriceBGN, fact.PriceEUR, fact.ValidFrom)
}

// updateRegular maintains the single open regular record per
// (product, chain): insert when absent, close-and-reopen on amount change,
// no write when the amount is stable.
func (l *Ledger) updateRegular(ctx context.Context, productID, chainID int64, priceBGN, priceEUR float64, validFrom time.Time) error {
	open, err := l.store.GetOpenRegularPrice(ctx, productID, chainID)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			return eris.Wrap(err, "ledger: lookup open regular price")
		}
		_, err = l.store.InsertPrice(ctx, model.PriceRecord{
			ProductID: productID,
			ChainID:   chainID,
			PriceBGN:  priceBGN,
			PriceEUR:  priceEUR,
			ValidFrom: validFrom,
		})
		return eris.Wrap(err, "ledger: insert regular price")
	}

	if sameAmount(open.PriceBGN, priceBGN) && sameAmount(open.PriceEUR, priceEUR) {
		// Stable price: no write, keeps history bounded.
		return nil
	}

	if err := l.store.ClosePrice(ctx, open.ID, validFrom); err != nil {
		return eris.Wrap(err, "ledger: close regular price")
	}
	_, err = l.store.InsertPrice(ctx, model.PriceRecord{
		ProductID: productID,
		ChainID:   chainID,
		PriceBGN:  priceBGN,
		PriceEUR:  priceEUR,
		ValidFrom: validFrom,
	})
	return eris.Wrap(err, "ledger: insert regular price")
}

// upsertPromo inserts a promotional record unless an identical one already
// exists, making repeated scrapes of an unchanged promotion a no-op.
func (l *Ledger) upsertPromo(ctx context.Context, rec model.PriceRecord) error {
	_, err := l.store.FindPromoPrice(ctx, rec)
	if err == nil {
		return nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return eris.Wrap(err, "ledger: lookup promo price")
	}
	_, err = l.store.InsertPrice(ctx, rec)
	return eris.Wrap(err, "ledger: insert promo price")
}

// resolveChain returns the chain for a name, nil when the registry has no
// such chain. Lookups are cached; chains are immutable reference data.
func (l *Ledger) resolveChain(ctx context.Context, name string) (*model.StoreChain, error) {
	l.mu.Lock()
	chain, cached := l.chains[name]
	l.mu.Unlock()
	if cached {
		return chain, nil
	}

	chain, err := l.store.GetChainByName(ctx, name)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			l.mu.Lock()
			l.chains[name] = nil
			l.mu.Unlock()
			return nil, nil
		}
		return nil, err
	}

	l.mu.Lock()
	l.chains[name] = chain
	l.mu.Unlock()
	return chain, nil
}

// deriveDiscount computes a percent-off magnitude from an old and new price
// when the scraper omitted it. Returns 0 when there is no real reduction.
func deriveDiscount(oldPrice, newPrice float64) int {
	if oldPrice <= 0 || newPrice >= oldPrice {
		return 0
	}
	return int(math.Round((oldPrice - newPrice) / oldPrice * 100))
}

// sameAmount compares prices at cent precision. Stored amounts round-trip
// through NUMERIC(12,2), so a scraped fact with extra decimals must not
// register as a price change.
func sameAmount(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

func derefOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}
