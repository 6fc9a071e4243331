package tokenregistry

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/weftctx/weft/pkg/errs"
)

// providerCatalog is the subset of models.dev's response shape the
// registry consumes: providers keyed by id, each with a map of model id
// to pricing/limit fields. Unknown/extra fields are ignored by
// encoding/json's default unmarshal behavior.
type providerCatalog struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Models map[string]struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Family string `json:"family"`
		Limit  struct {
			Context int `json:"context"`
			Output  int `json:"output"`
		} `json:"limit"`
		Cost struct {
			Input      float64 `json:"input"`
			Output     float64 `json:"output"`
			CacheRead  float64 `json:"cache_read"`
			CacheWrite float64 `json:"cache_write"`
			Reasoning  float64 `json:"reasoning"`
		} `json:"cost"`
	} `json:"models"`
}

// fetchCatalog performs the single network load described in spec §4.4,
// retried per retryableFetch, and flattens the provider/model nesting
// into the registry's "<provider>:<model>" keyed map.
func fetchCatalog(ctx context.Context, client *http.Client, url string, attempts uint) (map[string]ModelInfo, error) {
	var raw map[string]providerCatalog
	err := retryableFetch(ctx, attempts, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errs.Model("model catalog fetch returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&raw)
	})
	if err != nil {
		return nil, errs.Model("failed to fetch model catalog from %s: %v", url, err)
	}

	catalog := make(map[string]ModelInfo)
	for provider, pc := range raw {
		for modelID, m := range pc.Models {
			family := m.Family
			if family == "" {
				family = familyFromModelID(modelID)
			}
			catalog[catalogKey(provider, modelID)] = ModelInfo{
				Provider:        provider,
				Model:           modelID,
				Family:          family,
				ContextLimit:    m.Limit.Context,
				OutputLimit:     m.Limit.Output,
				InputPrice:      m.Cost.Input,
				OutputPrice:     m.Cost.Output,
				CacheReadPrice:  m.Cost.CacheRead,
				CacheWritePrice: m.Cost.CacheWrite,
				ReasoningPrice:  m.Cost.Reasoning,
			}
		}
	}
	return catalog, nil
}

// familyFromModelID derives a coarse family name from a model id
// (e.g. "claude-sonnet-4-20250514" -> "claude", "gpt-4o" -> "gpt"),
// mirroring the substring families the teacher's pricing tables key on.
func familyFromModelID(modelID string) string {
	for _, prefix := range []string{"claude", "gpt", "o1", "o3", "o4", "gemini", "llama", "mistral", "deepseek"} {
		if len(modelID) >= len(prefix) && modelID[:len(prefix)] == prefix {
			return prefix
		}
	}
	return "default"
}

// builtinCatalog seeds a handful of well-known models so estimate()
// keeps working if the live catalog can't be reached (spec doesn't
// mandate this, but an engine with zero offline fallback would make
// every cost estimate depend on network availability, which the
// teacher's pricing tables never do).
func builtinCatalog() map[string]ModelInfo {
	return map[string]ModelInfo{
		"openai:gpt-4o": {
			Provider: "openai", Model: "gpt-4o", Family: "gpt",
			ContextLimit: 128_000, OutputLimit: 16_384,
			InputPrice: 2.50, OutputPrice: 10.00,
		},
		"openai:gpt-4o-mini": {
			Provider: "openai", Model: "gpt-4o-mini", Family: "gpt",
			ContextLimit: 128_000, OutputLimit: 16_384,
			InputPrice: 0.15, OutputPrice: 0.60,
		},
		"anthropic:claude-sonnet-4-0": {
			Provider: "anthropic", Model: "claude-sonnet-4-0", Family: "claude",
			ContextLimit: 200_000, OutputLimit: 64_000,
			InputPrice: 3.00, OutputPrice: 15.00,
		},
		"anthropic:claude-3-5-haiku-latest": {
			Provider: "anthropic", Model: "claude-3-5-haiku-latest", Family: "claude",
			ContextLimit: 200_000, OutputLimit: 8_192,
			InputPrice: 0.80, OutputPrice: 4.00,
		},
	}
}
