package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.bolt")
	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	return s
}

func seedChat(t *testing.T, s *Store) store.Chat {
	t.Helper()
	chat := store.Chat{
		ID:        uuid.NewString(),
		UserID:    "u1",
		Metadata:  map[string]any{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.CreateChat(context.Background(), chat))
	return chat
}

func TestCreateChatCreatesMainBranch(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s)

	branch, err := s.GetBranch(context.Background(), chat.ID, "main")
	require.NoError(t, err)
	assert.True(t, branch.IsActive)
}

func TestMessageChainChronologicalOrder(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertMessage(ctx, store.Message{ID: "m1", ChatID: chat.ID, Name: "user", Data: []byte("Hello"), CreatedAt: time.Now()}))
	require.NoError(t, s.InsertMessage(ctx, store.Message{ID: "m2", ChatID: chat.ID, ParentID: "m1", Name: "assistant", Data: []byte("Hi"), CreatedAt: time.Now().Add(time.Second)}))

	chain, err := s.GetMessageChain(ctx, chat.ID, "m2")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "m1", chain[0].ID)
	assert.Equal(t, "m2", chain[1].ID)
}

func TestInsertMessageRejectsSelfParent(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s)

	err := s.InsertMessage(context.Background(), store.Message{ID: "m1", ParentID: "m1", ChatID: chat.ID, Name: "user", Data: []byte("x"), CreatedAt: time.Now()})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestSetActiveBranchDeactivatesOthers(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s)
	ctx := context.Background()

	require.NoError(t, s.CreateBranch(ctx, store.Branch{ID: "b2", ChatID: chat.ID, Name: "alt", CreatedAt: time.Now()}))
	require.NoError(t, s.SetActiveBranch(ctx, chat.ID, "alt"))

	branches, err := s.ListBranches(ctx, chat.ID)
	require.NoError(t, err)

	activeCount := 0
	for _, b := range branches {
		if b.IsActive {
			activeCount++
			assert.Equal(t, "alt", b.Name)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestDeleteChatCascades(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertMessage(ctx, store.Message{ID: "m1", ChatID: chat.ID, Name: "user", Data: []byte("hi"), CreatedAt: time.Now()}))
	require.NoError(t, s.SetCheckpoint(ctx, store.Checkpoint{ID: "cp1", ChatID: chat.ID, Name: "cp", MessageID: "m1", CreatedAt: time.Now()}))

	require.NoError(t, s.DeleteChat(ctx, chat.ID))

	_, err := s.GetChat(ctx, chat.ID)
	assert.True(t, errs.IsNotFound(err))

	_, err = s.GetMessage(ctx, chat.ID, "m1")
	assert.True(t, errs.IsNotFound(err))

	_, err = s.GetCheckpoint(ctx, chat.ID, "cp")
	assert.True(t, errs.IsNotFound(err))

	branches, err := s.ListBranches(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestSearchFindsSubstring(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertMessage(ctx, store.Message{ID: "m1", ChatID: chat.ID, Name: "user", Data: []byte("the quick brown fox"), CreatedAt: time.Now()}))

	results, err := s.Search(ctx, chat.ID, "QUICK")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float64(1), results[0].Rank)
}

func TestCheckpointOverwritesOnDuplicateName(t *testing.T) {
	s := newTestStore(t)
	chat := seedChat(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertMessage(ctx, store.Message{ID: "m1", ChatID: chat.ID, Name: "user", Data: []byte("a"), CreatedAt: time.Now()}))
	require.NoError(t, s.InsertMessage(ctx, store.Message{ID: "m2", ChatID: chat.ID, ParentID: "m1", Name: "assistant", Data: []byte("b"), CreatedAt: time.Now()}))

	require.NoError(t, s.SetCheckpoint(ctx, store.Checkpoint{ID: "cp1", ChatID: chat.ID, Name: "n", MessageID: "m1", CreatedAt: time.Now()}))
	require.NoError(t, s.SetCheckpoint(ctx, store.Checkpoint{ID: "cp1", ChatID: chat.ID, Name: "n", MessageID: "m2", CreatedAt: time.Now()}))

	cp, err := s.GetCheckpoint(ctx, chat.ID, "n")
	require.NoError(t, err)
	assert.Equal(t, "m2", cp.MessageID)
}
