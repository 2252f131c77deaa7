package suggest

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/store"
)

type memSuggestStore struct {
	cart    *model.Cart
	chains  []model.StoreChain
	records []model.PriceRecord
}

func (m *memSuggestStore) GetCart(ctx context.Context, cartID int64) (*model.Cart, error) {
	if m.cart == nil || m.cart.ID != cartID {
		return nil, store.ErrNotFound
	}
	return m.cart, nil
}

func (m *memSuggestStore) ListChains(ctx context.Context) ([]model.StoreChain, error) {
	return m.chains, nil
}

func (m *memSuggestStore) ListValidPrices(ctx context.Context, productIDs []int64, at time.Time) ([]model.PriceRecord, error) {
	want := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		want[id] = true
	}
	var out []model.PriceRecord
	for _, r := range m.records {
		if want[r.ProductID] && r.ValidAt(at) {
			out = append(out, r)
		}
	}
	return out, nil
}

var fixedNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestEngine(s Store) *Engine {
	e := NewEngine(s)
	e.now = func() time.Time { return fixedNow }
	return e
}

func open(productID, chainID int64, bgn, eur float64) model.PriceRecord {
	return model.PriceRecord{
		ProductID: productID,
		ChainID:   chainID,
		PriceBGN:  bgn,
		PriceEUR:  eur,
		ValidFrom: fixedNow.AddDate(0, -1, 0),
	}
}

func promo(productID, chainID int64, bgn, eur float64, daysLeft int) model.PriceRecord {
	to := fixedNow.AddDate(0, 0, daysLeft)
	return model.PriceRecord{
		ProductID: productID,
		ChainID:   chainID,
		PriceBGN:  bgn,
		PriceEUR:  eur,
		ValidFrom: fixedNow.AddDate(0, 0, -3),
		ValidTo:   &to,
		Discount:  20,
	}
}

func cartWith(items ...model.CartItem) *model.Cart {
	return &model.Cart{ID: 1, UserID: 7, Items: items}
}

func item(productID int64, qty int, name string) model.CartItem {
	return model.CartItem{ProductID: productID, Quantity: qty, Product: &model.Product{ID: productID, Name: name}}
}

func TestCheapestStore_FullCoverageBeatsCheaperPartial(t *testing.T) {
	ms := &memSuggestStore{
		cart: cartWith(item(1, 2, "Кисело мляко"), item(2, 1, "Хляб")),
		chains: []model.StoreChain{
			{ID: 1, Name: "Фантастико"},
			{ID: 2, Name: "Билла"},
		},
		records: []model.PriceRecord{
			open(1, 1, 3.00, 1.53),
			open(2, 1, 5.00, 2.56),
			open(1, 2, 2.50, 1.28), // cheaper but misses product 2
		},
	}
	e := newTestEngine(ms)

	options, err := e.CheapestStore(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, options, 2)

	assert.Equal(t, "Фантастико", options[0].Chain.Name)
	assert.True(t, options[0].FullCoverage())
	assert.InDelta(t, 11.00, options[0].TotalBGN, 1e-9)

	assert.Equal(t, "Билла", options[1].Chain.Name)
	assert.False(t, options[1].FullCoverage())
	assert.Equal(t, 1, options[1].Covered)
	assert.Equal(t, 2, options[1].Priceable)
}

func TestCheapestStore_PromoWinsWhenCheaper(t *testing.T) {
	ms := &memSuggestStore{
		cart:   cartWith(item(1, 1, "Олио")),
		chains: []model.StoreChain{{ID: 1, Name: "Лидл"}},
		records: []model.PriceRecord{
			open(1, 1, 4.00, 2.05),
			promo(1, 1, 3.20, 1.64, 5),
		},
	}
	e := newTestEngine(ms)

	options, err := e.CheapestStore(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, options, 1)
	require.Len(t, options[0].Items, 1)
	assert.InDelta(t, 3.20, options[0].Items[0].UnitPriceBGN, 1e-9)
	assert.True(t, options[0].Items[0].Promo)
}

func TestCheapestStore_ExpiredPromoIgnored(t *testing.T) {
	ms := &memSuggestStore{
		cart:   cartWith(item(1, 1, "Олио")),
		chains: []model.StoreChain{{ID: 1, Name: "Лидл"}},
		records: []model.PriceRecord{
			open(1, 1, 4.00, 2.05),
			promo(1, 1, 3.20, 1.64, -1),
		},
	}
	e := newTestEngine(ms)

	options, err := e.CheapestStore(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, options[0].Items, 1)
	assert.InDelta(t, 4.00, options[0].Items[0].UnitPriceBGN, 1e-9)
	assert.False(t, options[0].Items[0].Promo)
}

func TestCheapestStore_UnpricedItemExcludedEverywhere(t *testing.T) {
	ms := &memSuggestStore{
		cart:   cartWith(item(1, 1, "Олио"), item(99, 3, "Шафран")),
		chains: []model.StoreChain{{ID: 1, Name: "Лидл"}},
		records: []model.PriceRecord{
			open(1, 1, 4.00, 2.05),
		},
	}
	e := newTestEngine(ms)

	options, err := e.CheapestStore(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, 1, options[0].Priceable)
	assert.Equal(t, 1, options[0].Covered)
	assert.True(t, options[0].FullCoverage())
	assert.InDelta(t, 4.00, options[0].TotalBGN, 1e-9)
}

func TestCheapestStore_CostTieBrokenByName(t *testing.T) {
	ms := &memSuggestStore{
		cart: cartWith(item(1, 1, "Олио")),
		chains: []model.StoreChain{
			{ID: 2, Name: "Фантастико"},
			{ID: 1, Name: "Билла"},
		},
		records: []model.PriceRecord{
			open(1, 1, 4.00, 2.05),
			open(1, 2, 4.00, 2.05),
		},
	}
	e := newTestEngine(ms)

	options, err := e.CheapestStore(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "Билла", options[0].Chain.Name)
	assert.Equal(t, "Фантастико", options[1].Chain.Name)
}

func TestCheapestStore_MissingCart(t *testing.T) {
	e := newTestEngine(&memSuggestStore{})

	_, err := e.CheapestStore(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestCheapestStore_NothingPriced(t *testing.T) {
	ms := &memSuggestStore{
		cart:   cartWith(item(1, 1, "Олио")),
		chains: []model.StoreChain{{ID: 1, Name: "Лидл"}},
	}
	e := newTestEngine(ms)

	_, err := e.CheapestStore(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoViableStore))
}

func TestCheapestStore_EmptyCart(t *testing.T) {
	ms := &memSuggestStore{cart: cartWith()}
	e := newTestEngine(ms)

	_, err := e.CheapestStore(context.Background(), 1)
	assert.True(t, eris.Is(err, ErrNoViableStore))
}

func TestPickEffective_EqualPricePrefersRegular(t *testing.T) {
	records := []model.PriceRecord{
		promo(1, 1, 4.00, 2.05, 5),
		open(1, 1, 4.00, 2.05),
	}
	best := pickEffective(records, fixedNow)
	require.Len(t, best, 1)
	assert.False(t, best[cell{1, 1}].promo)
}
