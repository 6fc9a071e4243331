package evalstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/eval"
	"github.com/weftctx/weft/pkg/eval/evalstore"
)

func newTestStore(t *testing.T) *evalstore.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "eval.db")
	store, err := evalstore.New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureSuiteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.EnsureSuite(ctx, "arithmetic")
	require.NoError(t, err)
	b, err := store.EnsureSuite(ctx, "arithmetic")
	require.NoError(t, err)

	require.Equal(t, a.ID, b.ID)
}

func TestSaveCaseAndListCasesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	suite, err := store.EnsureSuite(ctx, "arithmetic")
	require.NoError(t, err)
	run, err := store.CreateRun(ctx, suite.ID, "gpt-4o", 1)
	require.NoError(t, err)

	result := eval.CaseResult{
		Index:     0,
		Input:     "2+2",
		Output:    "4",
		Expected:  "4",
		Scores:    map[string]float64{"exact_match": 1},
		LatencyMs: 12,
		TokensIn:  5,
		TokensOut: 1,
		Pass:      true,
	}
	require.NoError(t, store.SaveCase(ctx, result, run.ID))

	cases, err := store.ListCases(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "4", cases[0].Output)
	require.Equal(t, 1.0, cases[0].Scores["exact_match"])
}

func TestFinishRunPersistsSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	suite, err := store.EnsureSuite(ctx, "arithmetic")
	require.NoError(t, err)
	run, err := store.CreateRun(ctx, suite.ID, "gpt-4o", 2)
	require.NoError(t, err)

	summary := eval.Summary{RunID: run.ID, TotalCases: 2, PassCount: 1, FailCount: 1}
	require.NoError(t, store.FinishRun(ctx, run.ID, "completed", summary))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, "completed", got.Status)
	require.Equal(t, 1, got.PassCount)
	require.Equal(t, 1, got.FailCount)
	require.NotNil(t, got.FinishedAt)
}

func TestGetRunUnknownIDIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), "does-not-exist")
	require.Error(t, err)
	require.True(t, errs.IsNotFound(err))
}
