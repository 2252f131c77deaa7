package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/store"
)

// End-to-end ledger semantics against the real SQLite store, exercising the
// driver's dynamic promo lookup and null handling rather than a fake.
func TestIngest_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	cat, err := st.CreateCategory(ctx, "Млечни продукти")
	require.NoError(t, err)
	product, err := st.CreateProduct(ctx, model.Product{Name: "Прясно мляко 3.6%", Brand: "Верея", CategoryID: cat.ID})
	require.NoError(t, err)
	chain, err := st.CreateChain(ctx, model.StoreChain{Name: "Lidl"})
	require.NoError(t, err)

	l := NewLedger(st)

	// Regular price appears, then moves.
	first := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Ingest(ctx, product, []model.ChainPrice{{
		Chain: "Lidl", PriceBGN: 10.00, PriceEUR: 5.11, ValidFrom: first,
	}}))
	require.NoError(t, l.Ingest(ctx, product, []model.ChainPrice{{
		Chain: "Lidl", PriceBGN: 12.00, PriceEUR: 6.14, ValidFrom: second,
	}}))

	history, err := st.ListPriceHistory(ctx, product.ID, chain.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[0].ValidTo)
	assert.True(t, history[0].ValidTo.Equal(second))
	assert.Nil(t, history[1].ValidTo)
	assert.Equal(t, 12.00, history[1].PriceBGN)

	// A promotion with the prior regular price: the regular timeline moves
	// to the old amount, the promo lands alongside.
	oldBGN, oldEUR := 2.50, 1.28
	promoFrom := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	promoTo := promoFrom.AddDate(0, 0, 7)
	fact := model.ChainPrice{
		Chain:       "Lidl",
		PriceBGN:    2.10,
		PriceEUR:    1.07,
		OldPriceBGN: &oldBGN,
		OldPriceEUR: &oldEUR,
		Discount:    16,
		ValidFrom:   promoFrom,
		ValidTo:     &promoTo,
	}
	require.NoError(t, l.Ingest(ctx, product, []model.ChainPrice{fact}))

	open, err := st.GetOpenRegularPrice(ctx, product.ID, chain.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.50, open.PriceBGN)

	// Re-ingesting the same brochure adds nothing.
	require.NoError(t, l.Ingest(ctx, product, []model.ChainPrice{fact}))

	history, err = st.ListPriceHistory(ctx, product.ID, chain.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	valid, err := st.ListValidPrices(ctx, []int64{product.ID}, promoFrom.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, valid, 2)
	assert.True(t, valid[0].Regular())
	assert.Equal(t, 16, valid[1].Discount)
}
