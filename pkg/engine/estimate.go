package engine

import (
	"context"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
)

// TokenCounter is the engine's view of the token/cost registry (pkg/
// tokenregistry implements it): per-model tokenization and pricing, spec
// §4.4. Kept as an interface here so the engine doesn't import the
// registry's network-fetch machinery.
type TokenCounter interface {
	CountTokens(ctx context.Context, modelID, text string) (int, error)
	Limits(ctx context.Context, modelID string) (contextLimit, outputLimit int, err error)
	InputPricePerMillion(ctx context.Context, modelID string) (float64, error)
}

// FragmentEstimate is one fragment's contribution to an Estimate.
type FragmentEstimate struct {
	Name   string
	Tokens int
}

// Limits mirrors the model catalog's context/output token limits.
type Limits struct {
	ContextLimit int
	OutputLimit  int
}

// Estimate is the result of estimate(modelId) (spec §4.2.1, §4.4).
type Estimate struct {
	Tokens         int
	Cost           float64
	Limits         Limits
	ExceedsContext bool
	Fragments      []FragmentEstimate
}

// Estimate renders non-message fragments, walks the persisted chain plus
// the pending queue, and counts tokens per fragment with the model's
// family-specific tokenizer (spec §4.2.1 estimate(modelId)). Fragment
// breakdowns render each fragment independently, so Σ FragmentEstimate
// may slightly exceed Tokens (computed from the joint rendering); both
// are reported per spec §4.4.
func (e *Engine) Estimate(ctx context.Context, renderer render.Renderer, counter TokenCounter, modelID string) (Estimate, error) {
	var result Estimate
	err := e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		if err := e.resolveLazies(ctx); err != nil {
			return err
		}

		chainFragments, err := e.persistedChainAsFragments(ctx)
		if err != nil {
			return err
		}

		all := make([]*fragment.Fragment, 0, len(e.systemFragments)+len(chainFragments)+len(e.pending))
		all = append(all, e.systemFragments...)
		all = append(all, chainFragments...)
		all = append(all, e.pending...)

		joint, err := renderer.Render(all, render.Options{})
		if err != nil {
			return errs.Model("failed to render fragments for estimate: %v", err)
		}
		jointTokens, err := counter.CountTokens(ctx, modelID, joint)
		if err != nil {
			return err
		}

		breakdown := make([]FragmentEstimate, 0, len(all))
		for _, f := range all {
			text, err := renderer.Render([]*fragment.Fragment{f}, render.Options{})
			if err != nil {
				return errs.Model("failed to render fragment %q for estimate: %v", f.Name, err)
			}
			tokens, err := counter.CountTokens(ctx, modelID, text)
			if err != nil {
				return err
			}
			breakdown = append(breakdown, FragmentEstimate{Name: f.Name, Tokens: tokens})
		}

		contextLimit, outputLimit, err := counter.Limits(ctx, modelID)
		if err != nil {
			return err
		}
		inputPrice, err := counter.InputPricePerMillion(ctx, modelID)
		if err != nil {
			return err
		}

		result = Estimate{
			Tokens:         jointTokens,
			Cost:           float64(jointTokens) / 1e6 * inputPrice,
			Limits:         Limits{ContextLimit: contextLimit, OutputLimit: outputLimit},
			ExceedsContext: contextLimit > 0 && jointTokens > contextLimit,
			Fragments:      breakdown,
		}
		return nil
	})
	return result, err
}
