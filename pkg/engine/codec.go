package engine

import (
	"context"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/fragment"
)

// resolveLazies assigns a concrete id to every unresolved lazy fragment in
// the pending queue, per spec §4.2.2. "last-assistant" walks the pending
// queue (most recent first, skipping lazies) and then the persisted chain
// from the current head backwards for the most recent message whose
// Name == "assistant"; if found, the lazy is materialized with that id so
// save() updates it in place. If none exists anywhere, a new id is minted
// instead of failing — the lazy becomes a new message rather than an
// in-place correction, per spec §4.2.2.
func (e *Engine) resolveLazies(ctx context.Context) error {
	for _, f := range e.pending {
		if !f.IsLazy() {
			continue
		}
		switch f.Lazy {
		case fragment.ResolveLastAssistant:
			id, err := e.lastAssistantID(ctx, f)
			if err != nil {
				return err
			}
			f.ID = id
			f.Lazy = ""
		default:
			return errs.Validation("unknown lazy resolution tag %q", f.Lazy)
		}
	}
	return nil
}

const assistantRole = "assistant"

func (e *Engine) lastAssistantID(ctx context.Context, self *fragment.Fragment) (string, error) {
	for i := len(e.pending) - 1; i >= 0; i-- {
		candidate := e.pending[i]
		if candidate == self || candidate.IsLazy() {
			continue
		}
		if candidate.Name == assistantRole {
			return candidate.ID, nil
		}
	}

	if e.branch.HeadMessageID == "" {
		return newID(), nil
	}
	chain, err := e.store.GetMessageChain(ctx, e.chatID, e.branch.HeadMessageID)
	if err != nil {
		return "", err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Deleted {
			continue
		}
		if chain[i].Name == assistantRole {
			return chain[i].ID, nil
		}
	}
	return newID(), nil
}
