// Package unify turns heterogeneous scraped offers into canonical unified
// products by batching them through an external normalization oracle.
package unify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/resilience"
	"github.com/AtanasChobanov/PromoMania-sub001/pkg/anthropic"
)

// ErrMalformedResponse marks an oracle reply that could not be parsed into
// the expected structure. The normalizer downgrades it to an empty batch
// instead of failing the run.
var ErrMalformedResponse = eris.New("unify: malformed oracle response")

// Unifier is the text-to-structured-data capability the normalizer depends
// on. Production binds it to Claude; tests substitute deterministic fakes.
type Unifier interface {
	Unify(ctx context.Context, vocabulary []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error)
}

const unifySystemPrompt = `You are a retail product catalog normalizer for Bulgarian store chains.

You receive raw scraped price offers (one per product-chain sighting) and a closed category vocabulary. Merge sightings of the same real-world product across chains into one unified product and assign it a category from the vocabulary. Use "Other" only when no vocabulary category fits.

Rules:
- Product identity is (name, brand): normalize spelling and casing, strip package noise from names, keep the unit separate.
- Every input offer must appear in exactly one unified product's chain_prices.
- Copy prices, old prices, discount and validity windows through unchanged.
- Respond with ONLY a JSON array matching this schema, no prose:
[{"name": string, "brand": string?, "category": string, "unit": string, "image_url": string?, "chain_prices": [{"chain": string, "price_bgn": number, "price_eur": number, "old_price_bgn": number?, "old_price_eur": number?, "discount": number, "valid_from": string (RFC 3339), "valid_to": string? (RFC 3339)}]}]`

// ClaudeUnifier implements Unifier on top of the Anthropic client.
type ClaudeUnifier struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     resilience.RetryConfig
}

// NewClaudeUnifier builds the production oracle binding.
func NewClaudeUnifier(client anthropic.Client, modelID string, maxTokens int64, retryAttempts int) *ClaudeUnifier {
	retry := resilience.DefaultRetryConfig()
	if retryAttempts > 0 {
		retry.MaxAttempts = retryAttempts
	}
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("unify: retrying oracle call",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	// A parse failure is a model output problem, not a transport fault;
	// retrying the identical request rarely helps and burns quota.
	retry.ShouldRetry = func(err error) bool {
		return !eris.Is(err, ErrMalformedResponse)
	}
	return &ClaudeUnifier{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		retry:     retry,
	}
}

func (u *ClaudeUnifier) Unify(ctx context.Context, vocabulary []model.Category, offers []model.RawOffer) ([]model.UnifiedProduct, error) {
	if len(offers) == 0 {
		return nil, nil
	}

	vocabJSON, err := json.Marshal(vocabulary)
	if err != nil {
		return nil, eris.Wrap(err, "unify: marshal vocabulary")
	}
	offersJSON, err := json.Marshal(offers)
	if err != nil {
		return nil, eris.Wrap(err, "unify: marshal offers")
	}

	req := anthropic.MessageRequest{
		Model:     u.model,
		MaxTokens: u.maxTokens,
		System: []anthropic.SystemBlock{
			{Text: unifySystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Category vocabulary:\n%s\n\nRaw offers:\n%s", vocabJSON, offersJSON)},
		},
	}

	resp, err := resilience.DoVal(ctx, u.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return u.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "unify: oracle call")
	}

	products, err := parseUnifiedProducts(resp.Text())
	if err != nil {
		return nil, err
	}

	zap.L().Debug("unify: oracle batch parsed",
		zap.Int("offers", len(offers)),
		zap.Int("products", len(products)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return products, nil
}

// parseUnifiedProducts decodes the oracle's JSON array, tolerating markdown
// fences and surrounding prose.
func parseUnifiedProducts(text string) ([]model.UnifiedProduct, error) {
	cleaned := cleanJSONArray(text)
	if cleaned == "" {
		return nil, eris.Wrap(ErrMalformedResponse, "no JSON array in response")
	}

	var products []model.UnifiedProduct
	if err := json.Unmarshal([]byte(cleaned), &products); err != nil {
		return nil, eris.Wrap(ErrMalformedResponse, err.Error())
	}
	return products, nil
}

// cleanJSONArray strips markdown code fences and isolates the outermost JSON
// array in the text.
func cleanJSONArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
