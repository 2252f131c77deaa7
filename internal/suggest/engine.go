// Package suggest answers "which store chain is cheapest for this cart"
// from the price timeline: per item and chain the effective price is the
// lowest of the regular price and any promotion valid right now.
package suggest

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

// ErrNoViableStore is returned when no chain has a valid price for any
// cart item.
var ErrNoViableStore = eris.New("suggest: no chain prices any cart item")

// Store is the read surface the engine needs.
type Store interface {
	GetCart(ctx context.Context, cartID int64) (*model.Cart, error)
	ListChains(ctx context.Context) ([]model.StoreChain, error)
	ListValidPrices(ctx context.Context, productIDs []int64, at time.Time) ([]model.PriceRecord, error)
}

// Engine computes cheapest-store suggestions. The clock is injectable so
// tests can pin "now".
type Engine struct {
	store Store
	now   func() time.Time
	coll  *collate.Collator
}

func NewEngine(s Store) *Engine {
	return &Engine{
		store: s,
		now:   time.Now,
		coll:  collate.New(language.Bulgarian),
	}
}

// effectivePrice is the winning record for one (product, chain) cell.
type effectivePrice struct {
	bgn   float64
	eur   float64
	promo bool
}

// CheapestStore ranks every known chain against the cart and returns the
// options best-first. Chains with full coverage of the priceable items come
// before partial ones; within a tier lower total wins, higher coverage
// breaks partial ties, and the Bulgarian collation of the chain name makes
// the order deterministic. Items no chain prices are left out of totals and
// coverage counts.
func (e *Engine) CheapestStore(ctx context.Context, cartID int64) ([]model.StoreOption, error) {
	cart, err := e.store.GetCart(ctx, cartID)
	if err != nil {
		return nil, eris.Wrap(err, "suggest: load cart")
	}
	if len(cart.Items) == 0 {
		return nil, ErrNoViableStore
	}

	chains, err := e.store.ListChains(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "suggest: list chains")
	}

	productIDs := make([]int64, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	now := e.now()
	records, err := e.store.ListValidPrices(ctx, productIDs, now)
	if err != nil {
		return nil, eris.Wrap(err, "suggest: list valid prices")
	}

	best := pickEffective(records, now)

	// An item counts toward coverage only if at least one chain prices it.
	priceable := make(map[int64]bool, len(cart.Items))
	for key := range best {
		priceable[key.productID] = true
	}
	priceableCount := 0
	for _, item := range cart.Items {
		if priceable[item.ProductID] {
			priceableCount++
		}
	}
	if priceableCount == 0 {
		return nil, ErrNoViableStore
	}

	options := make([]model.StoreOption, 0, len(chains))
	for _, chain := range chains {
		opt := model.StoreOption{Chain: chain, Priceable: priceableCount}
		for _, item := range cart.Items {
			price, ok := best[cell{item.ProductID, chain.ID}]
			if !ok {
				continue
			}
			name := ""
			if item.Product != nil {
				name = item.Product.Name
			}
			opt.Items = append(opt.Items, model.ItemPrice{
				ProductID:    item.ProductID,
				Name:         name,
				Quantity:     item.Quantity,
				UnitPriceBGN: price.bgn,
				UnitPriceEUR: price.eur,
				Promo:        price.promo,
			})
			opt.TotalBGN += price.bgn * float64(item.Quantity)
			opt.TotalEUR += price.eur * float64(item.Quantity)
			opt.Covered++
		}
		if opt.Covered > 0 {
			options = append(options, opt)
		}
	}
	if len(options) == 0 {
		return nil, ErrNoViableStore
	}

	sort.SliceStable(options, func(i, j int) bool {
		return e.less(options[i], options[j])
	})
	return options, nil
}

func (e *Engine) less(a, b model.StoreOption) bool {
	if a.FullCoverage() != b.FullCoverage() {
		return a.FullCoverage()
	}
	if a.FullCoverage() {
		if a.TotalBGN != b.TotalBGN {
			return a.TotalBGN < b.TotalBGN
		}
		return e.coll.CompareString(a.Chain.Name, b.Chain.Name) < 0
	}
	if a.Covered != b.Covered {
		return a.Covered > b.Covered
	}
	if a.TotalBGN != b.TotalBGN {
		return a.TotalBGN < b.TotalBGN
	}
	return e.coll.CompareString(a.Chain.Name, b.Chain.Name) < 0
}

type cell struct {
	productID int64
	chainID   int64
}

// pickEffective reduces the valid records to the cheapest one per
// (product, chain). Ties between a regular price and an equal promotion go
// to the regular record.
func pickEffective(records []model.PriceRecord, now time.Time) map[cell]effectivePrice {
	best := make(map[cell]effectivePrice)
	for _, rec := range records {
		if !rec.ValidAt(now) {
			continue
		}
		key := cell{rec.ProductID, rec.ChainID}
		candidate := effectivePrice{bgn: rec.PriceBGN, eur: rec.PriceEUR, promo: !rec.Regular()}
		current, ok := best[key]
		if !ok || candidate.bgn < current.bgn {
			best[key] = candidate
			continue
		}
		if candidate.bgn == current.bgn && current.promo && !candidate.promo {
			best[key] = candidate
		}
	}
	return best
}
