package compare_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/eval"
	"github.com/weftctx/weft/pkg/eval/compare"
)

func TestCompareRunsClassifiesDeltas(t *testing.T) {
	baseline := []eval.PersistedCase{
		{Index: 0, Output: "4", Scores: map[string]float64{"exact_match": 1.0}, LatencyMs: 100},
		{Index: 1, Output: "wrong", Scores: map[string]float64{"exact_match": 0.0}, LatencyMs: 100},
	}
	candidate := []eval.PersistedCase{
		{Index: 0, Output: "4", Scores: map[string]float64{"exact_match": 1.0}, LatencyMs: 100},
		{Index: 1, Output: "5", Scores: map[string]float64{"exact_match": 0.6}, LatencyMs: 120},
	}

	result := compare.CompareRuns(baseline, candidate, "run-a", "run-b", compare.Options{})

	require.Len(t, result.Cases, 2)
	require.Empty(t, result.Warnings)

	var case1 compare.CaseComparison
	for _, c := range result.Cases {
		if c.Index == 1 {
			case1 = c
		}
	}
	require.Equal(t, "improved", case1.ScoreDeltas[0].Status)
	require.NotEmpty(t, case1.Diff)
	require.InDelta(t, 10.0, result.Cost.LatencyMsDelta, 0.0001)
}

func TestCompareRunsFlagsRegression(t *testing.T) {
	baseline := []eval.PersistedCase{
		{Index: 0, Scores: map[string]float64{"exact_match": 0.9}},
	}
	candidate := []eval.PersistedCase{
		{Index: 0, Scores: map[string]float64{"exact_match": 0.3}},
	}

	result := compare.CompareRuns(baseline, candidate, "run-a", "run-b", compare.Options{})

	require.Len(t, result.Regressions, 1)
	require.Equal(t, "exact_match", result.Regressions[0].Scorer)
}

func TestCompareRunsWarnsOnMissingCase(t *testing.T) {
	baseline := []eval.PersistedCase{{Index: 0}, {Index: 1}}
	candidate := []eval.PersistedCase{{Index: 0}}

	result := compare.CompareRuns(baseline, candidate, "run-a", "run-b", compare.Options{})

	require.Len(t, result.Cases, 1)
	require.NotEmpty(t, result.Warnings)
}
