package tokenregistry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/tokenregistry"
)

func staticRegistry() *tokenregistry.Registry {
	return tokenregistry.New(tokenregistry.WithStaticCatalog(map[string]tokenregistry.ModelInfo{
		"openai:gpt-4o": {
			Provider: "openai", Model: "gpt-4o", Family: "gpt",
			ContextLimit: 128_000, OutputLimit: 16_384,
			InputPrice: 2.50, OutputPrice: 10.00,
		},
	}))
}

func TestCountTokensPositiveForNonEmptyText(t *testing.T) {
	ctx := context.Background()
	r := staticRegistry()

	tokens, err := r.CountTokens(ctx, "openai:gpt-4o", "You are helpful.")
	require.NoError(t, err)
	assert.Greater(t, tokens, 0)
}

func TestCountTokensZeroForEmptyText(t *testing.T) {
	ctx := context.Background()
	r := staticRegistry()

	tokens, err := r.CountTokens(ctx, "openai:gpt-4o", "")
	require.NoError(t, err)
	assert.Equal(t, 0, tokens)
}

func TestLimitsAndPriceRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := staticRegistry()

	contextLimit, outputLimit, err := r.Limits(ctx, "openai:gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 128_000, contextLimit)
	assert.Equal(t, 16_384, outputLimit)

	price, err := r.InputPricePerMillion(ctx, "openai:gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 2.50, price)
}

func TestLookupUnknownModelIsNotFound(t *testing.T) {
	ctx := context.Background()
	r := staticRegistry()

	_, err := r.CountTokens(ctx, "openai:does-not-exist", "hi")
	assert.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestCatalogLoadedOnce(t *testing.T) {
	ctx := context.Background()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"openai":{"id":"openai","models":{"gpt-4o":{"id":"gpt-4o","family":"gpt","limit":{"context":128000,"output":16384},"cost":{"input":2.5,"output":10}}}}}`))
	}))
	defer srv.Close()
	r := tokenregistry.New(tokenregistry.WithCatalogURL(srv.URL))

	_, err := r.CountTokens(ctx, "openai:gpt-4o", "first call")
	require.NoError(t, err)
	_, err = r.CountTokens(ctx, "openai:gpt-4o", "second call")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
