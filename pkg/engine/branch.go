package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/store"
)

func errBranchHasNoMessages(branch string) error {
	return errs.Validation("cannot checkpoint branch %q: it has no messages", branch)
}

var versionSuffix = regexp.MustCompile(`-v(\d+)$`)

// branchPrefix strips a trailing "-vN" suffix from a branch name, per the
// rewind naming rule worked out in spec §8 scenario 2.
func branchPrefix(name string) string {
	if loc := versionSuffix.FindStringSubmatchIndex(name); loc != nil {
		return name[:loc[0]]
	}
	return name
}

// nextRewindName computes the new branch name for a rewind from `from`,
// given the chat's existing branch names. The first-ever rewind from
// "main" yields "main-v2": the active branch itself counts toward its
// own prefix's match set, so n starts at 1 and is incremented once more
// for the new branch being created.
func nextRewindName(from string, existing []string) string {
	prefix := branchPrefix(from)
	n := 0
	for _, name := range existing {
		if name == prefix || strings.HasPrefix(name, prefix+"-v") {
			n++
		}
	}
	return prefix + "-v" + strconv.Itoa(n+1)
}

// Rewind creates a new branch headed at messageID, activates it, and
// clears the pending queue (spec §4.2.1/§4.2.4). messageID must belong
// to the engine's chat; a message from a different chat is a hard error
// (spec §4.2.3). Everything after messageID on the old branch is excluded
// from the new branch's chain, while the history up to and including
// messageID is preserved.
func (e *Engine) Rewind(ctx context.Context, messageID string) (BranchInfo, error) {
	var info BranchInfo
	err := e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		if _, err := e.store.GetMessage(ctx, e.chatID, messageID); err != nil {
			return err
		}
		b, err := e.newBranchFrom(ctx, messageID, true)
		if err != nil {
			return err
		}
		e.pending = nil
		info = branchInfoFrom(b, true)
		return nil
	})
	return info, err
}

// newBranchFrom creates a branch headed at headMessageID, named per the
// rewind counting rule relative to the currently active branch, and
// activates it only when activate is true. Used by Rewind, Restore,
// save()'s fork path (all activate), and Btw (does not activate).
func (e *Engine) newBranchFrom(ctx context.Context, headMessageID string, activate bool) (store.Branch, error) {
	branches, err := e.store.ListBranches(ctx, e.chatID)
	if err != nil {
		return store.Branch{}, err
	}
	names := make([]string, len(branches))
	for i, b := range branches {
		names[i] = b.Name
	}

	newName := nextRewindName(e.branch.Name, names)
	rec := store.Branch{
		ID:            newID(),
		ChatID:        e.chatID,
		Name:          newName,
		HeadMessageID: headMessageID,
		CreatedAt:     time.Now(),
	}
	if err := e.store.CreateBranch(ctx, rec); err != nil {
		return store.Branch{}, err
	}
	if !activate {
		return rec, nil
	}
	if err := e.store.SetActiveBranch(ctx, e.chatID, newName); err != nil {
		return store.Branch{}, err
	}
	b, err := e.store.GetBranch(ctx, e.chatID, newName)
	if err != nil {
		return store.Branch{}, err
	}
	e.branch = &b
	return b, nil
}

// SwitchBranch atomically deactivates all branches, activates the named
// one, and clears the pending queue (spec §4.2.1/§4.2.4).
func (e *Engine) SwitchBranch(ctx context.Context, name string) (BranchInfo, error) {
	var info BranchInfo
	err := e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		if _, err := e.store.GetBranch(ctx, e.chatID, name); err != nil {
			return err
		}
		if err := e.store.SetActiveBranch(ctx, e.chatID, name); err != nil {
			return err
		}
		b, err := e.store.GetBranch(ctx, e.chatID, name)
		if err != nil {
			return err
		}
		e.branch = &b
		e.pending = nil
		info = branchInfoFrom(b, true)
		return nil
	})
	return info, err
}

// Checkpoint records a named, branch-independent pointer to the current
// branch head (spec §4.2.1/§4.2.5). Re-checkpointing an existing name
// overwrites it. Fails if the branch has no messages.
func (e *Engine) Checkpoint(ctx context.Context, name string) (CheckpointInfo, error) {
	var info CheckpointInfo
	err := e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		if e.branch.HeadMessageID == "" {
			return errBranchHasNoMessages(e.branch.Name)
		}
		cp := store.Checkpoint{
			ID:        newID(),
			ChatID:    e.chatID,
			Name:      name,
			MessageID: e.branch.HeadMessageID,
			CreatedAt: time.Now(),
		}
		if err := e.store.SetCheckpoint(ctx, cp); err != nil {
			return err
		}
		saved, err := e.store.GetCheckpoint(ctx, e.chatID, name)
		if err != nil {
			return err
		}
		info = CheckpointInfo{ID: saved.ID, Name: saved.Name, MessageID: saved.MessageID}
		return nil
	})
	return info, err
}

// Restore is equivalent to rewind(checkpoint.messageId) (spec §4.2.1).
func (e *Engine) Restore(ctx context.Context, name string) (BranchInfo, error) {
	var info BranchInfo
	err := e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		cp, err := e.store.GetCheckpoint(ctx, e.chatID, name)
		if err != nil {
			return err
		}
		b, err := e.newBranchFrom(ctx, cp.MessageID, true)
		if err != nil {
			return err
		}
		e.pending = nil
		info = branchInfoFrom(b, true)
		return nil
	})
	return info, err
}

// Btw creates a new branch from the current head without switching to
// it (spec §4.2.1/§4.2.6): a way to stake out a named point in history to
// return to later without disturbing the live branch.
func (e *Engine) Btw(ctx context.Context) (BranchInfo, error) {
	var info BranchInfo
	err := e.withLock(func() error {
		if err := e.ensureInitialized(ctx); err != nil {
			return err
		}
		b, err := e.newBranchFrom(ctx, e.branch.HeadMessageID, false)
		if err != nil {
			return err
		}
		info = branchInfoFrom(b, false)
		return nil
	})
	return info, err
}

func branchInfoFrom(b store.Branch, active bool) BranchInfo {
	return BranchInfo{ID: b.ID, Name: b.Name, HeadMessageID: b.HeadMessageID, IsActive: active}
}
