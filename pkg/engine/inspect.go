package engine

import (
	"context"
	"time"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
	"github.com/weftctx/weft/pkg/store"
)

// InspectionFragments groups a fragment inventory by bucket (spec §4.2.1
// inspect: "fragments (context/pending/persisted)").
type InspectionFragments struct {
	Context   []string // names of current system-prompt fragments
	Pending   []string // names of queued, not-yet-saved message fragments
	Persisted []string // names of messages in the current branch's chain
}

// InspectionMeta is the fully serializable identity/timing envelope.
type InspectionMeta struct {
	ChatID    string
	Branch    string
	Timestamp time.Time
}

// Inspection is the result of inspect({modelId, renderer}) (spec §4.2.1):
// a fully serializable debugging snapshot of the engine's current state.
type Inspection struct {
	Estimate     Estimate
	SystemPrompt string
	Fragments    InspectionFragments
	Graph        store.Graph
	Meta         InspectionMeta
}

// Inspect returns a fully serializable snapshot: estimate, rendered
// system prompt, fragment inventory by bucket, the chat's full graph, and
// identity/timestamp metadata (spec §4.2.1).
func (e *Engine) Inspect(ctx context.Context, renderer render.Renderer, counter TokenCounter, modelID string) (Inspection, error) {
	estimate, err := e.Estimate(ctx, renderer, counter, modelID)
	if err != nil {
		return Inspection{}, err
	}

	var result Inspection
	err = e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}

		prompt, err := renderer.Render(e.systemFragments, render.Options{})
		if err != nil {
			return err
		}

		persisted, err := e.persistedChainAsFragments(ctx)
		if err != nil {
			return err
		}

		graph, err := e.store.GetGraph(ctx, e.chatID)
		if err != nil {
			return err
		}

		result = Inspection{
			Estimate:     estimate,
			SystemPrompt: prompt,
			Fragments: InspectionFragments{
				Context:   fragmentNames(e.systemFragments),
				Pending:   fragmentNames(e.pending),
				Persisted: fragmentNames(persisted),
			},
			Graph: graph,
			Meta: InspectionMeta{
				ChatID:    e.chatID,
				Branch:    e.branch.Name,
				Timestamp: time.Now(),
			},
		}
		return nil
	})
	return result, err
}

func fragmentNames(items []*fragment.Fragment) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return names
}
