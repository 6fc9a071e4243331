package engine

import (
	"context"
	"time"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/logger"
	"github.com/weftctx/weft/pkg/store"
)

// encodeFragment produces the storage bytes for a message fragment: its
// codec's Encode() when present, or its raw Data tree JSON-marshaled
// otherwise (message fragments created without a codec).
func encodeFragment(f *fragment.Fragment) ([]byte, error) {
	if f.Codec != nil {
		b, err := f.Codec.Encode()
		if err != nil {
			return nil, errs.Model("failed to encode fragment %q: %v", f.Name, err)
		}
		return b, nil
	}
	return fragment.EncodeValue(f.Data)
}

// Save flushes the pending message queue to storage (spec §4.2.2). Lazy
// fragments are resolved first. Each fragment is then routed through the
// upsert/fork/append decision tree:
//
//   - branch:false and the fragment's id matches an existing message:
//     overwrite that message's data in place (id and parentId unchanged,
//     branch head untouched). This is the guardrail in-place-correction
//     path.
//   - branch:true (default) and the fragment's id matches an existing
//     message that has a parent: rewind to that parent (creating a new
//     branch, preserving history) and reissue the fragment with a fresh
//     id as the new branch's head.
//   - branch:true and the fragment's id matches an existing ROOT message
//     (no parent): rejected with a validation error (Open Question #1,
//     DESIGN.md).
//   - the fragment's id is empty or does not match any persisted message:
//     appended as a new message parented at the current branch head.
//
// An empty pending queue is a no-op that returns the current head.
func (e *Engine) Save(ctx context.Context, opts SaveOptions) (SaveResult, error) {
	var result SaveResult
	err := e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		if err := e.resolveLazies(ctx); err != nil {
			return err
		}
		if len(e.pending) == 0 {
			result.HeadMessageID = e.branch.HeadMessageID
			return nil
		}

		branch := opts.branch()
		for _, f := range e.pending {
			headID, err := e.saveOne(ctx, f, branch)
			if err != nil {
				return err
			}
			result.HeadMessageID = headID
		}
		e.pending = nil
		return nil
	})
	return result, err
}

func (e *Engine) saveOne(ctx context.Context, f *fragment.Fragment, branch bool) (string, error) {
	data, err := encodeFragment(f)
	if err != nil {
		return "", err
	}

	if f.ID != "" {
		existing, err := e.store.GetMessage(ctx, e.chatID, f.ID)
		switch {
		case errs.IsNotFound(err):
			// Falls through to the append path below.
		case err != nil:
			return "", err
		default:
			return e.saveExisting(ctx, f, existing, data, branch)
		}
	}

	id := f.ID
	if id == "" {
		id = newID()
	}
	msg := store.Message{
		ID:        id,
		ChatID:    e.chatID,
		ParentID:  e.branch.HeadMessageID,
		Name:      f.Name,
		Type:      string(f.Type),
		Data:      data,
		CreatedAt: time.Now(),
	}
	if err := e.store.InsertMessage(ctx, msg); err != nil {
		return "", err
	}
	if err := e.store.AdvanceBranchHead(ctx, e.chatID, e.branch.Name, id); err != nil {
		return "", err
	}
	e.branch.HeadMessageID = id
	return id, nil
}

func (e *Engine) saveExisting(ctx context.Context, f *fragment.Fragment, existing store.Message, data []byte, branch bool) (string, error) {
	if !branch {
		if err := e.store.UpdateMessageData(ctx, e.chatID, existing.ID, data); err != nil {
			return "", err
		}
		logger.G(ctx).WithField("message_id", existing.ID).Debug("updated message in place")
		if existing.ID == e.branch.HeadMessageID {
			return existing.ID, nil
		}
		return e.branch.HeadMessageID, nil
	}

	if existing.ParentID == "" {
		return "", errs.Validation("cannot branch from root message %s: it has no parent to rewind to", existing.ID)
	}

	newBranch, err := e.newBranchFrom(ctx, existing.ParentID, true)
	if err != nil {
		return "", err
	}

	freshID := newID()
	msg := store.Message{
		ID:        freshID,
		ChatID:    e.chatID,
		ParentID:  existing.ParentID,
		Name:      f.Name,
		Type:      string(f.Type),
		Data:      data,
		CreatedAt: time.Now(),
	}
	if err := e.store.InsertMessage(ctx, msg); err != nil {
		return "", err
	}
	if err := e.store.AdvanceBranchHead(ctx, e.chatID, newBranch.Name, freshID); err != nil {
		return "", err
	}
	e.branch.HeadMessageID = freshID
	return freshID, nil
}
