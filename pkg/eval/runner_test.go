package eval_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/eval"
	"github.com/weftctx/weft/pkg/eval/evalstore"
)

func newTestStore(t *testing.T) *evalstore.Store {
	t.Helper()
	store, err := evalstore.New(context.Background(), filepath.Join(t.TempDir(), "eval.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestRunSingleCaseScoresAndPersists covers spec §8 scenario 5: a
// single-case eval run with an exact-match scorer.
func TestRunSingleCaseScoresAndPersists(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	task := func(_ context.Context, input any) (any, int, int, error) {
		return fmt.Sprint(input), 5, 1, nil
	}

	cfg := eval.Config{
		Name:    "arithmetic",
		Model:   "gpt-4o",
		Dataset: eval.StaticDataset([]eval.CaseInput{{Input: "4", Expected: "4"}}),
		Task:    task,
		Scorers: map[string]eval.ScorerFunc{"exact_match": eval.ExactMatch},
		Store:   store,
		Emitter: eval.NoopEmitter{},
	}

	summary, err := eval.NewRunner().Run(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalCases)
	require.Equal(t, 1, summary.PassCount)
	require.Equal(t, 0, summary.FailCount)
	require.Equal(t, 1.0, summary.MeanScores["exact_match"])
}

// TestRunTimeoutYieldsZeroScore covers spec §8 scenario 6: a case whose
// task exceeds the configured timeout scores zero and fails.
func TestRunTimeoutYieldsZeroScore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	task := func(taskCtx context.Context, _ any) (any, int, int, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return "too late", 0, 0, nil
		case <-taskCtx.Done():
			return "", 0, 0, taskCtx.Err()
		}
	}

	cfg := eval.Config{
		Name:    "slow",
		Model:   "gpt-4o",
		Dataset: eval.StaticDataset([]eval.CaseInput{{Input: "x", Expected: "x"}}),
		Task:    task,
		Scorers: map[string]eval.ScorerFunc{"exact_match": eval.ExactMatch},
		Store:   store,
		Emitter: eval.NoopEmitter{},
		Timeout: 10 * time.Millisecond,
	}

	summary, err := eval.NewRunner().Run(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, summary.PassCount)
	require.Equal(t, 1, summary.FailCount)
	require.Equal(t, 0.0, summary.MeanScores["exact_match"])
}

// TestRunAveragesAcrossTrials covers multi-trial averaging (spec
// §4.5.1 step 5: "if trials>1, scores are averaged").
func TestRunAveragesAcrossTrials(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	call := 0
	task := func(_ context.Context, _ any) (any, int, int, error) {
		call++
		if call%2 == 0 {
			return "4", 4, 1, nil
		}
		return "5", 4, 1, nil
	}

	cfg := eval.Config{
		Name:    "flaky",
		Model:   "gpt-4o",
		Dataset: eval.StaticDataset([]eval.CaseInput{{Input: "2+2", Expected: "4"}}),
		Task:    task,
		Scorers: map[string]eval.ScorerFunc{"exact_match": eval.ExactMatch},
		Store:   store,
		Emitter: eval.NoopEmitter{},
		Trials:  2,
	}

	summary, err := eval.NewRunner().Run(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 0.5, summary.MeanScores["exact_match"])
}
