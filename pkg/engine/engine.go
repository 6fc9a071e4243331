// Package engine implements the Context Engine (spec §4.2): the front-door
// object that holds in-memory non-message fragments and pending messages,
// resolves the final system prompt and message list, manages branches and
// checkpoints, tracks usage, and lazily resolves deferred fragment ids.
//
// Grounded on the teacher's Thread interface shape (pkg/types/llm/thread.go)
// generalized from "one provider's flat message array" to "a branching DAG
// with lazy-ID resolution and pluggable storage."
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/weftctx/weft/pkg/engine/chatlock"
	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/logger"
	"github.com/weftctx/weft/pkg/render"
	"github.com/weftctx/weft/pkg/store"
	"github.com/weftctx/weft/pkg/tracing"
)

// CodecFactory reconstructs a fragment.Codec for a persisted message given
// its stored data, keyed by message kind (the message fragment's Name,
// e.g. "user", "assistant", "tool_result"). Spec §9: "codec as an interface
// implemented per message kind."
type CodecFactory func(data []byte) (fragment.Codec, error)

// Message is one decoded entry in a resolve() result.
type Message struct {
	ID   string
	Role string
	Parts []fragment.Part
}

// ResolveResult is the output of resolve(): a rendered system prompt plus
// the full decoded message list (persisted chain + pending).
type ResolveResult struct {
	SystemPrompt string
	Messages     []Message
}

// BranchInfo describes a branch after a branch-mutating operation.
type BranchInfo struct {
	ID            string
	Name          string
	HeadMessageID string
	IsActive      bool
}

// CheckpointInfo describes a checkpoint after checkpoint().
type CheckpointInfo struct {
	ID        string
	Name      string
	MessageID string
}

// SaveOptions controls save() behavior.
type SaveOptions struct {
	// Branch defaults to true when unset; pass a pointer so the
	// "branch:false" in-place-update path (guardrail correction) is
	// distinguishable from the zero value.
	Branch *bool
}

func (o SaveOptions) branch() bool {
	if o.Branch == nil {
		return true
	}
	return *o.Branch
}

// SaveResult is the output of save().
type SaveResult struct {
	HeadMessageID string
}

// Engine is the front-door object for one chat's mutation surface. An
// Engine instance is not safe for concurrent use by itself; callers share
// a chatlock.Table across engines mutating the same store to serialize
// writers per spec §5.
type Engine struct {
	store  store.ContextStore
	locks  *chatlock.Table
	codecs map[string]CodecFactory

	chatID string
	userID string

	initialMetadata map[string]any
	metadataMerged  bool

	chat   *store.Chat
	branch *store.Branch

	systemFragments []*fragment.Fragment
	pending         []*fragment.Fragment
}

// Option configures a new Engine.
type Option func(*Engine)

// WithInitialMetadata supplies metadata merged into the chat record on
// first touch only.
func WithInitialMetadata(metadata map[string]any) Option {
	return func(e *Engine) { e.initialMetadata = metadata }
}

// New constructs an Engine bound to one chat. Chat/branch initialization
// is deferred to the first call that requires persistence (spec §4.2.3).
func New(s store.ContextStore, locks *chatlock.Table, chatID, userID string, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		locks:  locks,
		codecs: make(map[string]CodecFactory),
		chatID: chatID,
		userID: userID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterCodec maps a message kind to its decode factory.
func (e *Engine) RegisterCodec(kind string, factory CodecFactory) {
	e.codecs[kind] = factory
}

func (e *Engine) withLock(f func() error) error {
	mu := e.locks.For(e.chatID)
	mu.Lock()
	defer mu.Unlock()
	return f()
}

// ensureInitialized auto-creates the chat and its "main" branch on first
// use, and merges initialMetadata exactly once (spec §4.2.3, §3 Chat).
func (e *Engine) ensureInitialized(ctx context.Context) error {
	if e.chat != nil && e.branch != nil {
		return nil
	}

	chat, err := e.store.GetChat(ctx, e.chatID)
	if errs.IsNotFound(err) {
		now := time.Now()
		chat = store.Chat{
			ID:        e.chatID,
			UserID:    e.userID,
			Metadata:  cloneMetadata(e.initialMetadata),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if createErr := e.store.CreateChat(ctx, chat); createErr != nil {
			return createErr
		}
		logger.G(ctx).WithField("chat_id", e.chatID).Debug("created chat on first touch")
		e.metadataMerged = true
	} else if err != nil {
		return err
	} else if !e.metadataMerged && len(e.initialMetadata) > 0 {
		merged := cloneMetadata(chat.Metadata)
		for k, v := range e.initialMetadata {
			merged[k] = v
		}
		if updErr := e.store.UpdateChatMetadata(ctx, e.chatID, merged); updErr != nil {
			return updErr
		}
		chat.Metadata = merged
		e.metadataMerged = true
	}
	e.chat = &chat

	branch, err := e.store.GetActiveBranch(ctx, e.chatID)
	if err != nil {
		return errs.Storage(err, "chat %s has no active branch after initialization", e.chatID)
	}
	e.branch = &branch

	return nil
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Set classifies each fragment: message fragments join the pending queue,
// all others join the in-memory system-prompt bucket. Set is append-only;
// repeated identical calls merely append (spec §4.2.1).
func (e *Engine) Set(frags ...*fragment.Fragment) {
	for _, f := range frags {
		if f.IsMessage() {
			e.pending = append(e.pending, f)
		} else {
			e.systemFragments = append(e.systemFragments, f)
		}
	}
}

// Pending returns the current pending-message queue (read-only use).
func (e *Engine) Pending() []*fragment.Fragment { return e.pending }

// SystemFragments returns the current non-message fragment bucket.
func (e *Engine) SystemFragments() []*fragment.Fragment { return e.systemFragments }

// Resolve renders the system prompt and decodes the full message list:
// persisted chain (root to current head) followed by pending messages.
// Lazy fragments are resolved first; resolve() does not mutate the store.
func (e *Engine) Resolve(ctx context.Context, renderer render.Renderer) (ResolveResult, error) {
	var result ResolveResult
	err := tracing.WithSpan(ctx, "engine.resolve", func(ctx context.Context) error {
		return e.resolveLocked(ctx, renderer, &result)
	}, attribute.String("chat_id", e.chatID))
	return result, err
}

func (e *Engine) resolveLocked(ctx context.Context, renderer render.Renderer, result *ResolveResult) error {
	return e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		if err := e.resolveLazies(ctx); err != nil {
			return err
		}

		prompt, err := renderer.Render(e.systemFragments, render.Options{})
		if err != nil {
			return errs.Model("failed to render system prompt: %v", err)
		}
		result.SystemPrompt = prompt

		messages, err := e.decodePersistedChain(ctx)
		if err != nil {
			return err
		}
		result.Messages = append(result.Messages, messages...)

		for _, f := range e.pending {
			msg, err := e.decodeFragment(f)
			if err != nil {
				return err
			}
			result.Messages = append(result.Messages, msg)
		}
		return nil
	})
}

func (e *Engine) decodePersistedChain(ctx context.Context) ([]Message, error) {
	if e.branch.HeadMessageID == "" {
		return nil, nil
	}
	chain, err := e.store.GetMessageChain(ctx, e.chatID, e.branch.HeadMessageID)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(chain))
	for _, m := range chain {
		if m.Deleted {
			continue
		}
		factory, ok := e.codecs[m.Name]
		if !ok {
			return nil, errs.Model("no codec registered for message kind %q", m.Name)
		}
		codec, err := factory(m.Data)
		if err != nil {
			return nil, errs.Model("failed to construct codec for message %s: %v", m.ID, err)
		}
		decoded, err := codec.Decode()
		if err != nil {
			return nil, errs.Model("failed to decode message %s: %v", m.ID, err)
		}
		messages = append(messages, Message{ID: m.ID, Role: decoded.Role, Parts: decoded.Parts})
	}
	return messages, nil
}

func (e *Engine) decodeFragment(f *fragment.Fragment) (Message, error) {
	if f.Codec == nil {
		return Message{}, errs.Model("pending fragment %q has no codec after lazy resolution", f.Name)
	}
	decoded, err := f.Codec.Decode()
	if err != nil {
		return Message{}, errs.Model("failed to decode pending fragment %q: %v", f.Name, err)
	}
	return Message{ID: f.ID, Role: decoded.Role, Parts: decoded.Parts}, nil
}

// persistedChainAsFragments decodes the persisted chain into throwaway
// fragments carrying the decoded text as Scalar data, for estimate()'s
// renderer pass (spec §4.2.1 estimate: "walks the message chain").
func (e *Engine) persistedChainAsFragments(ctx context.Context) ([]*fragment.Fragment, error) {
	if e.branch.HeadMessageID == "" {
		return nil, nil
	}
	chain, err := e.store.GetMessageChain(ctx, e.chatID, e.branch.HeadMessageID)
	if err != nil {
		return nil, err
	}
	out := make([]*fragment.Fragment, 0, len(chain))
	for _, m := range chain {
		if m.Deleted {
			continue
		}
		factory, ok := e.codecs[m.Name]
		if !ok {
			return nil, errs.Model("no codec registered for message kind %q", m.Name)
		}
		codec, err := factory(m.Data)
		if err != nil {
			return nil, errs.Model("failed to construct codec for message %s: %v", m.ID, err)
		}
		decoded, err := codec.Decode()
		if err != nil {
			return nil, errs.Model("failed to decode message %s: %v", m.ID, err)
		}
		var text string
		for _, p := range decoded.Parts {
			text += p.Text
		}
		out = append(out, &fragment.Fragment{ID: m.ID, Name: m.Name, Type: fragment.TypeMessage, Data: fragment.Scalar{V: text}})
	}
	return out, nil
}

func newID() string { return uuid.NewString() }
