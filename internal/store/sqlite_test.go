package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// seedProduct creates a category, product and chain and returns their ids.
func seedProduct(t *testing.T, s *SQLiteStore) (productID, chainID int64) {
	t.Helper()
	ctx := context.Background()

	cat, err := s.CreateCategory(ctx, "Млечни продукти")
	require.NoError(t, err)
	p, err := s.CreateProduct(ctx, model.Product{Name: "Прясно мляко 3.6%", Brand: "Верея", CategoryID: cat.ID})
	require.NoError(t, err)
	c, err := s.CreateChain(ctx, model.StoreChain{Name: "Lidl", CatalogURL: "https://www.lidl.bg/c/promo"})
	require.NoError(t, err)
	return p.ID, c.ID
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSQLiteChainRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	created, err := s.CreateChain(ctx, model.StoreChain{Name: "Billa", CatalogURL: "https://www.billa.bg/promocii"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.NotEmpty(t, created.PublicID)

	got, err := s.GetChainByName(ctx, "Billa")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "https://www.billa.bg/promocii", got.CatalogURL)

	_, err = s.GetChainByName(ctx, "Tesco")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteSeedChains(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	n, err := s.SeedChains(ctx, []model.StoreChain{
		{Name: "Kaufland"},
		{Name: "Billa"},
		{Name: "Lidl"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	chains, err := s.ListChains(ctx)
	require.NoError(t, err)
	require.Len(t, chains, 3)
	assert.Equal(t, "Billa", chains[0].Name)
	assert.Equal(t, "Lidl", chains[2].Name)
}

func TestSQLiteCategoryUpsert(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	first, err := s.CreateCategory(ctx, "Хляб и тестени")
	require.NoError(t, err)
	second, err := s.CreateCategory(ctx, "Хляб и тестени")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := s.GetCategoryByName(ctx, "Хляб и тестени")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.GetCategoryByName(ctx, "Несъществуваща")
	assert.True(t, eris.Is(err, ErrNotFound))

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestSQLiteProductNullColumns(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	cat, err := s.CreateCategory(ctx, "Млечни продукти")
	require.NoError(t, err)

	// Empty optional fields land as NULL and scan back as empty strings.
	created, err := s.CreateProduct(ctx, model.Product{Name: "Кисело мляко", CategoryID: cat.ID, Unit: "бр"})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, "Кисело мляко", "", cat.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Empty(t, got.Barcode)
	assert.Empty(t, got.ImageURL)
	assert.Equal(t, "бр", got.Unit)

	_, err = s.GetProduct(ctx, "Кисело мляко", "Верея", cat.ID)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteOpenRegularLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	productID, chainID := seedProduct(t, s)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	inserted, err := s.InsertPrice(ctx, model.PriceRecord{
		ProductID: productID, ChainID: chainID,
		PriceBGN: 2.49, PriceEUR: 1.27, ValidFrom: from,
	})
	require.NoError(t, err)
	assert.NotZero(t, inserted.ID)

	open, err := s.GetOpenRegularPrice(ctx, productID, chainID)
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, open.ID)
	assert.Nil(t, open.ValidTo)
	assert.True(t, open.ValidFrom.Equal(from))

	closeAt := from.AddDate(0, 0, 30)
	require.NoError(t, s.ClosePrice(ctx, open.ID, closeAt))

	_, err = s.GetOpenRegularPrice(ctx, productID, chainID)
	assert.True(t, eris.Is(err, ErrNotFound))

	history, err := s.ListPriceHistory(ctx, productID, chainID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ValidTo)
	assert.True(t, history[0].ValidTo.Equal(closeAt))
}

func TestSQLiteClosePriceMissing(t *testing.T) {
	s := newSQLiteStore(t)

	err := s.ClosePrice(context.Background(), 404, time.Now().UTC())
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteFindPromoPrice(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	productID, chainID := seedProduct(t, s)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	promo := model.PriceRecord{
		ProductID: productID, ChainID: chainID,
		PriceBGN: 2.10, PriceEUR: 1.07,
		ValidFrom: from, ValidTo: &to, Discount: 16,
	}
	inserted, err := s.InsertPrice(ctx, promo)
	require.NoError(t, err)

	found, err := s.FindPromoPrice(ctx, promo)
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, found.ID)
	assert.Equal(t, 16, found.Discount)
	require.NotNil(t, found.ValidTo)
	assert.True(t, found.ValidTo.Equal(to))

	// A different discount is a different promotion.
	other := promo
	other.Discount = 25
	_, err = s.FindPromoPrice(ctx, other)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteFindPromoPrice_OpenEnded(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	productID, chainID := seedProduct(t, s)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	promo := model.PriceRecord{
		ProductID: productID, ChainID: chainID,
		PriceBGN: 5.55, PriceEUR: 2.84,
		ValidFrom: from, Discount: 30,
	}
	_, err := s.InsertPrice(ctx, promo)
	require.NoError(t, err)

	found, err := s.FindPromoPrice(ctx, promo)
	require.NoError(t, err)
	assert.Nil(t, found.ValidTo)

	// The nil/non-nil valid_to branches must not match each other.
	to := from.AddDate(0, 0, 7)
	bounded := promo
	bounded.ValidTo = &to
	_, err = s.FindPromoPrice(ctx, bounded)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteListValidPrices(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	productID, chainID := seedProduct(t, s)

	at := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	monthAgo := at.AddDate(0, -1, 0)
	liveTo := at.AddDate(0, 0, 5)
	expiredTo := at.AddDate(0, 0, -1)

	for _, rec := range []model.PriceRecord{
		{ProductID: productID, ChainID: chainID, PriceBGN: 2.49, PriceEUR: 1.27, ValidFrom: monthAgo},
		{ProductID: productID, ChainID: chainID, PriceBGN: 2.10, PriceEUR: 1.07, ValidFrom: monthAgo, ValidTo: &liveTo, Discount: 16},
		{ProductID: productID, ChainID: chainID, PriceBGN: 1.99, PriceEUR: 1.02, ValidFrom: monthAgo, ValidTo: &expiredTo, Discount: 20},
	} {
		_, err := s.InsertPrice(ctx, rec)
		require.NoError(t, err)
	}

	records, err := s.ListValidPrices(ctx, []int64{productID, productID + 100}, at)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Regular())
	assert.Equal(t, 16, records[1].Discount)

	none, err := s.ListValidPrices(ctx, nil, at)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteGetCart(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	productID, _ := seedProduct(t, s)

	res, err := s.db.ExecContext(ctx, `INSERT INTO carts (user_id) VALUES (7)`)
	require.NoError(t, err)
	cartID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, 2)`,
		cartID, productID)
	require.NoError(t, err)

	cart, err := s.GetCart(ctx, cartID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cart.UserID)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	require.NotNil(t, cart.Items[0].Product)
	assert.Equal(t, "Прясно мляко 3.6%", cart.Items[0].Product.Name)

	_, err = s.GetCart(ctx, cartID+1)
	assert.True(t, eris.Is(err, ErrNotFound))
}
