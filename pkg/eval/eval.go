// Package eval implements the Eval Engine (spec §4.5): a one-shot driver
// that runs a dataset of cases through a task and a set of scorers with
// bounded concurrency, trials, per-case timeouts, and persistence.
package eval

import (
	"context"
	"time"
)

// CaseInput is one materialized dataset entry (spec §4.5.1 step 1).
type CaseInput struct {
	Index    int
	Input    any
	Expected any
}

// TaskFunc runs one case input and returns its output plus token usage.
type TaskFunc func(ctx context.Context, input any) (output any, tokensIn, tokensOut int, err error)

// ScorerFunc scores a task's output against the case's expected value,
// returning a value that should lie in [0,1] (enforced by clamp, spec §8
// "Score clamping").
type ScorerFunc func(ctx context.Context, output, expected any) (float64, error)

// CaseResult is the outcome of running one case (all trials averaged).
type CaseResult struct {
	Index     int
	Input     any
	Output    any
	Expected  any
	Scores    map[string]float64
	Error     string
	LatencyMs int64
	TokensIn  int
	TokensOut int
	Pass      bool
}

// Summary is runEval's return value (spec §4.5.2).
type Summary struct {
	RunID      string
	TotalCases int
	PassCount  int
	FailCount  int
	MeanScores map[string]float64
}

// Dataset materializes a finite sequence of case inputs (spec §4.5.1
// step 1: "materialization is required because subsequent batches
// reference indexes").
type Dataset func(ctx context.Context) ([]CaseInput, error)

// StaticDataset wraps an already-materialized slice of cases as a
// Dataset, assigning sequential indexes regardless of what the caller
// set.
func StaticDataset(cases []CaseInput) Dataset {
	return func(ctx context.Context) ([]CaseInput, error) {
		out := make([]CaseInput, len(cases))
		for i, c := range cases {
			c.Index = i
			out[i] = c
		}
		return out, nil
	}
}

// Config bundles everything runEval needs (spec §4.5).
type Config struct {
	Name           string
	Model          string
	Dataset        Dataset
	Task           TaskFunc
	Scorers        map[string]ScorerFunc
	Store          Store
	Emitter        Emitter
	SuiteID        string
	MaxConcurrency int
	BatchSize      int
	Timeout        time.Duration
	Trials         int
	Threshold      float64
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Trials <= 0 {
		c.Trials = 1
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	return c
}
