package engine

import "context"

// Usage is one turn's token/cost accounting, additively merged into chat
// metadata by trackUsage (spec §4.2.1).
type Usage struct {
	TokensIn  int
	TokensOut int
	CostUSD   float64
	Turns     int
}

func (u Usage) asMetadata() map[string]any {
	return map[string]any{
		"usage_tokens_in":  float64(u.TokensIn),
		"usage_tokens_out": float64(u.TokensOut),
		"usage_cost_usd":   u.CostUSD,
		"usage_turns":      float64(u.Turns),
	}
}

// TrackUsage re-reads chat metadata (to avoid clobbering concurrent
// writers) and deep-merges numeric usage fields additively (spec §4.2.1).
// Writes unconditionally, even when the delta is zero, matching the
// source system's behavior (DESIGN.md Open Question decision).
func (e *Engine) TrackUsage(ctx context.Context, usage Usage) error {
	return e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		chat, err := e.store.GetChat(ctx, e.chatID)
		if err != nil {
			return err
		}
		merged := cloneMetadata(chat.Metadata)
		for k, v := range usage.asMetadata() {
			merged[k] = addNumeric(merged[k], v)
		}
		if err := e.store.UpdateChatMetadata(ctx, e.chatID, merged); err != nil {
			return err
		}
		e.chat.Metadata = merged
		return nil
	})
}

func addNumeric(existing any, delta any) any {
	existingF, _ := existing.(float64)
	deltaF, _ := delta.(float64)
	return existingF + deltaF
}
