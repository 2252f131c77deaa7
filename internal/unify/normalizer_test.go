package unify

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/batch"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

type fakeCategories struct {
	cats  []model.Category
	calls int
	err   error
}

func (f *fakeCategories) ListCategories(ctx context.Context) ([]model.Category, error) {
	f.calls++
	return f.cats, f.err
}

// fakeUnifier maps each chunk through fn.
type fakeUnifier struct {
	fn    func(vocab []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error)
	calls int
}

func (f *fakeUnifier) Unify(ctx context.Context, vocab []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
	f.calls++
	return f.fn(vocab, offers)
}

func testOpts() batch.Options {
	return batch.Options{BatchSize: 2, Concurrency: 2}
}

func TestUnifyAndFilter_DiscountCanonicalized(t *testing.T) {
	unifier := &fakeUnifier{fn: func(_ []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
		return []model.UnifiedProduct{{
			Name:     "Сирене",
			Category: "Млечни продукти",
			ChainPrices: []model.ChainPrice{
				{Chain: "Lidl", PriceBGN: 9.99, Discount: -15},
			},
		}}, nil
	}}
	n := NewNormalizer(&fakeCategories{}, unifier, testOpts())

	products, err := n.UnifyAndFilter(context.Background(), []model.RawOffer{{Name: "сирене"}})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 15, products[0].ChainPrices[0].Discount)
}

func TestUnifyAndFilter_DropsOtherCategory(t *testing.T) {
	unifier := &fakeUnifier{fn: func(_ []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
		return []model.UnifiedProduct{
			{Name: "Мистериозен артикул", Category: model.CategoryOther},
			{Name: "Хляб", Category: "Хлебни изделия"},
		}, nil
	}}
	n := NewNormalizer(&fakeCategories{}, unifier, testOpts())

	products, err := n.UnifyAndFilter(context.Background(), []model.RawOffer{{Name: "x"}, {Name: "y"}})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Хляб", products[0].Name)
}

func TestUnifyAndFilter_VocabularyLoadedOnce(t *testing.T) {
	cats := &fakeCategories{cats: []model.Category{{ID: 1, Name: "Напитки"}}}
	var seenVocabs [][]model.Category
	unifier := &fakeUnifier{fn: func(vocab []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
		seenVocabs = append(seenVocabs, vocab)
		return nil, nil
	}}
	n := NewNormalizer(cats, unifier, testOpts())

	// 5 offers with batch size 2 => 3 chunks.
	offers := make([]model.RawOffer, 5)
	_, err := n.UnifyAndFilter(context.Background(), offers)
	require.NoError(t, err)
	assert.Equal(t, 1, cats.calls)
	assert.Equal(t, 3, unifier.calls)
	for _, v := range seenVocabs {
		assert.Equal(t, cats.cats, v)
	}
}

func TestUnifyAndFilter_MalformedBatchContributesNothing(t *testing.T) {
	unifier := &fakeUnifier{fn: func(_ []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
		// First chunk (contains offer "bad") fails to parse; second succeeds.
		if offers[0].Name == "bad" {
			return nil, eris.Wrap(ErrMalformedResponse, "junk")
		}
		return []model.UnifiedProduct{{Name: "Кашкавал", Category: "Млечни продукти"}}, nil
	}}
	n := NewNormalizer(&fakeCategories{}, unifier, batch.Options{BatchSize: 1, Concurrency: 1})

	products, err := n.UnifyAndFilter(context.Background(), []model.RawOffer{{Name: "bad"}, {Name: "ok"}})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Кашкавал", products[0].Name)
}

func TestUnifyAndFilter_TransportErrorFailsRun(t *testing.T) {
	unifier := &fakeUnifier{fn: func(_ []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
		return nil, eris.New("connection refused")
	}}
	n := NewNormalizer(&fakeCategories{}, unifier, testOpts())

	_, err := n.UnifyAndFilter(context.Background(), []model.RawOffer{{Name: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUnifyAndFilter_EmptyInput(t *testing.T) {
	cats := &fakeCategories{}
	unifier := &fakeUnifier{fn: func(_ []model.Category, _ []model.RawOffer) ([]model.UnifiedProduct, error) {
		return nil, nil
	}}
	n := NewNormalizer(cats, unifier, testOpts())

	products, err := n.UnifyAndFilter(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, products)
	assert.Zero(t, cats.calls)
	assert.Zero(t, unifier.calls)
}

func TestUnifyAndFilter_VocabularyLoadFailure(t *testing.T) {
	cats := &fakeCategories{err: eris.New("db down")}
	n := NewNormalizer(cats, &fakeUnifier{fn: nil}, testOpts())

	_, err := n.UnifyAndFilter(context.Background(), []model.RawOffer{{Name: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load category vocabulary")
}
