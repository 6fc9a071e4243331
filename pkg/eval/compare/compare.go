// Package compare implements CompareRuns (spec §4.5.3): per-case
// per-scorer deltas between a baseline and candidate run, classified
// improved/regressed/unchanged, plus cost deltas and a human-readable
// diff of changed outputs rendered with go-udiff, exactly as the
// teacher renders file-edit diffs in pkg/tools/apply_patch.go.
package compare

import (
	"fmt"

	"github.com/aymanbagabas/go-udiff"

	"github.com/weftctx/weft/pkg/eval"
)

const (
	defaultTolerance           = 0.01
	defaultRegressionThreshold = 0.05
)

// Options configures CompareRuns; zero values take spec defaults.
type Options struct {
	Tolerance           float64
	RegressionThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = defaultTolerance
	}
	if o.RegressionThreshold <= 0 {
		o.RegressionThreshold = defaultRegressionThreshold
	}
	return o
}

// ScoreDelta classifies one scorer's change for one case.
type ScoreDelta struct {
	Scorer     string
	Baseline   float64
	Candidate  float64
	Delta      float64
	Status     string // "improved", "regressed", "unchanged"
}

// CaseComparison is one case's comparison, present only when the case
// index exists in both runs.
type CaseComparison struct {
	Index       int
	ScoreDeltas []ScoreDelta
	Diff        string
}

// CostDelta summarizes a latency/token change between the two runs.
type CostDelta struct {
	LatencyMsDelta  float64
	TokensInDelta   float64
	TokensOutDelta  float64
}

// ScorerRegression flags a scorer whose mean delta crossed the
// regression threshold.
type ScorerRegression struct {
	Scorer    string
	MeanDelta float64
}

// Result is CompareRuns's return value.
type Result struct {
	BaselineID  string
	CandidateID string
	Cases       []CaseComparison
	Regressions []ScorerRegression
	Cost        CostDelta
	Warnings    []string
}

// CompareRuns compares baseline and candidate runs loaded from store,
// per spec §4.5.3.
func CompareRuns(baseline, candidate []eval.PersistedCase, baselineID, candidateID string, opts Options) Result {
	opts = opts.withDefaults()

	baseByIndex := make(map[int]eval.PersistedCase, len(baseline))
	for _, c := range baseline {
		baseByIndex[c.Index] = c
	}
	candByIndex := make(map[int]eval.PersistedCase, len(candidate))
	for _, c := range candidate {
		candByIndex[c.Index] = c
	}

	result := Result{BaselineID: baselineID, CandidateID: candidateID}
	scorerSums := map[string]float64{}
	scorerCounts := map[string]int{}
	var latencySum, tokensInSum, tokensOutSum float64
	var costCount int

	for idx, base := range baseByIndex {
		cand, ok := candByIndex[idx]
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("case %d present in baseline but missing from candidate", idx))
			continue
		}

		cc := CaseComparison{Index: idx}
		for scorer, baseScore := range base.Scores {
			candScore, ok := cand.Scores[scorer]
			if !ok {
				result.Warnings = append(result.Warnings, fmt.Sprintf("case %d: scorer %q missing from candidate", idx, scorer))
				continue
			}
			delta := candScore - baseScore
			status := "unchanged"
			if delta > opts.Tolerance {
				status = "improved"
			} else if delta < -opts.Tolerance {
				status = "regressed"
			}
			cc.ScoreDeltas = append(cc.ScoreDeltas, ScoreDelta{
				Scorer: scorer, Baseline: baseScore, Candidate: candScore, Delta: delta, Status: status,
			})
			scorerSums[scorer] += delta
			scorerCounts[scorer]++
		}

		if fmt.Sprint(base.Output) != fmt.Sprint(cand.Output) {
			cc.Diff = udiff.Unified(
				fmt.Sprintf("case-%d/baseline", idx), fmt.Sprintf("case-%d/candidate", idx),
				fmt.Sprint(base.Output), fmt.Sprint(cand.Output),
			)
		}

		result.Cases = append(result.Cases, cc)

		latencySum += float64(cand.LatencyMs - base.LatencyMs)
		tokensInSum += float64(cand.TokensIn - base.TokensIn)
		tokensOutSum += float64(cand.TokensOut - base.TokensOut)
		costCount++
	}

	for idx := range candByIndex {
		if _, ok := baseByIndex[idx]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("case %d present in candidate but missing from baseline", idx))
		}
	}

	for scorer, sum := range scorerSums {
		if scorerCounts[scorer] == 0 {
			continue
		}
		mean := sum / float64(scorerCounts[scorer])
		if mean < -opts.RegressionThreshold {
			result.Regressions = append(result.Regressions, ScorerRegression{Scorer: scorer, MeanDelta: mean})
		}
	}

	if costCount > 0 {
		result.Cost = CostDelta{
			LatencyMsDelta: latencySum / float64(costCount),
			TokensInDelta:  tokensInSum / float64(costCount),
			TokensOutDelta: tokensOutSum / float64(costCount),
		}
	}

	return result
}
