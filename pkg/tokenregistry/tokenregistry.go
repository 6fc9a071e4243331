// Package tokenregistry implements the Token/Cost Registry (spec §4.4):
// a lazily-fetched model catalog mapping "<provider>:<model>" to context
// limits and per-token pricing, plus a family→tokenizer mapping used to
// estimate token counts without a network round-trip per call.
//
// Grounded on the teacher's per-provider pricing tables
// (pkg/llm/anthropic/pricing.go, pkg/llm/google/pricing.go): an exact-id
// lookup falling back to a model-name substring match, generalized here into
// a single provider-agnostic catalog fetched once instead of compiled in
// per-provider, since the spec wants the registry sourced from a live
// catalog rather than hardcoded tables.
package tokenregistry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/weftctx/weft/pkg/engine"
	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/logger"
)

// ModelInfo is one catalog entry (spec §4.4's field list). Prices are
// dollars per million tokens, matching engine.Estimate's
// `tokens/1e6 * inputPrice` cost formula.
type ModelInfo struct {
	Provider        string
	Model           string
	Family          string
	ContextLimit    int
	OutputLimit     int
	InputPrice      float64
	OutputPrice     float64
	CacheReadPrice  float64
	CacheWritePrice float64
	ReasoningPrice  float64
}

const (
	defaultCatalogURL  = "https://models.dev/api.json"
	defaultHTTPTimeout = 10 * time.Second
)

// Registry implements engine.TokenCounter. The catalog is fetched at
// most once (sync.Once, per the teacher's BinaryPathCache idiom in
// pkg/binaries/binaries.go) regardless of how many goroutines call
// CountTokens/Limits/InputPricePerMillion concurrently.
type Registry struct {
	catalogURL string
	httpClient *http.Client
	fetchAttempts uint

	tokenizers Tokenizers

	once     sync.Once
	mu       sync.RWMutex
	catalog  map[string]ModelInfo
	loadErr  error
	preloaded bool
}

var _ engine.TokenCounter = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithCatalogURL overrides the default models.dev endpoint.
func WithCatalogURL(url string) Option {
	return func(r *Registry) { r.catalogURL = url }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.httpClient = c }
}

// WithFetchAttempts overrides the retry-go attempt count for the
// catalog fetch (default 3).
func WithFetchAttempts(n uint) Option {
	return func(r *Registry) { r.fetchAttempts = n }
}

// WithStaticCatalog preloads the registry with a fixed catalog and
// skips the network fetch entirely. Used by tests and by callers that
// already have pricing data (e.g. offline eval runs).
func WithStaticCatalog(catalog map[string]ModelInfo) Option {
	return func(r *Registry) {
		r.catalog = catalog
		r.preloaded = true
	}
}

// WithFamilyTokenizer registers a tokenizer for a model family, used
// instead of the default byte-pair tokenizer when the looked-up
// ModelInfo.Family matches.
func WithFamilyTokenizer(family string, tok Tokenizer) Option {
	return func(r *Registry) { r.tokenizers.register(family, tok) }
}

// New constructs a Registry. The catalog is not fetched until the first
// call that needs it.
func New(opts ...Option) *Registry {
	r := &Registry{
		catalogURL:    defaultCatalogURL,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
		fetchAttempts: 3,
		tokenizers:    newTokenizers(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ensureLoaded performs the one-time catalog fetch (spec §4.4 "one
// network load, idempotent").
func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.once.Do(func() {
		if r.preloaded {
			return
		}
		catalog, err := fetchCatalog(ctx, r.httpClient, r.catalogURL, r.fetchAttempts)
		r.mu.Lock()
		r.catalog, r.loadErr = catalog, err
		r.mu.Unlock()
		if err != nil {
			logger.G(ctx).WithError(err).Warn("failed to fetch model catalog, falling back to built-in defaults")
			r.mu.Lock()
			r.catalog, r.loadErr = builtinCatalog(), nil
			r.mu.Unlock()
		}
	})
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadErr
}

// lookup resolves a "<provider>:<model>" id to a catalog entry, falling
// back to a case-insensitive model-name substring match the way the teacher's
// getModelPricing does (pkg/llm/anthropic/pricing.go).
func (r *Registry) lookup(ctx context.Context, modelID string) (ModelInfo, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return ModelInfo{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.catalog[modelID]; ok {
		return info, nil
	}

	_, model, _ := strings.Cut(modelID, ":")
	lowerModel := strings.ToLower(model)
	var best ModelInfo
	found := false
	for _, info := range r.catalog {
		if info.Model == "" {
			continue
		}
		if strings.Contains(lowerModel, strings.ToLower(info.Model)) || strings.Contains(strings.ToLower(info.Model), lowerModel) {
			best, found = info, true
			break
		}
	}
	if !found {
		return ModelInfo{}, errs.NotFound("no catalog entry for model %q", modelID)
	}
	return best, nil
}

// CountTokens implements engine.TokenCounter.
func (r *Registry) CountTokens(ctx context.Context, modelID string, text string) (int, error) {
	info, err := r.lookup(ctx, modelID)
	if err != nil {
		return 0, err
	}
	return r.tokenizers.forFamily(info.Family).Count(text), nil
}

// Limits implements engine.TokenCounter.
func (r *Registry) Limits(ctx context.Context, modelID string) (int, int, error) {
	info, err := r.lookup(ctx, modelID)
	if err != nil {
		return 0, 0, err
	}
	return info.ContextLimit, info.OutputLimit, nil
}

// InputPricePerMillion implements engine.TokenCounter.
func (r *Registry) InputPricePerMillion(ctx context.Context, modelID string) (float64, error) {
	info, err := r.lookup(ctx, modelID)
	if err != nil {
		return 0, err
	}
	return info.InputPrice, nil
}

func catalogKey(provider, model string) string {
	return fmt.Sprintf("%s:%s", provider, model)
}

// retryableFetch is split out so tests can exercise the retry.Do wiring
// shape without making a real HTTP call (grounded on the teacher's
// createChatCompletionWithRetry, pkg/llm/openai/openai.go).
func retryableFetch(ctx context.Context, attempts uint, fn func() error) error {
	return retry.Do(
		fn,
		retry.Attempts(attempts),
		retry.Context(ctx),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	)
}
