package eval

import (
	"context"
	"time"
)

// Suite groups runs of the same named eval over time.
type Suite struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Run is one execution of runEval against a suite.
type Run struct {
	ID         string
	SuiteID    string
	Model      string
	Status     string // "running", "completed", "failed"
	TotalCases int
	PassCount  int
	FailCount  int
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// PersistedCase is one case's stored outcome plus its scores, joined
// for compare.CompareRuns's convenience.
type PersistedCase struct {
	RunID     string
	Index     int
	Input     any
	Output    any
	Expected  any
	Error     string
	LatencyMs int64
	TokensIn  int
	TokensOut int
	Scores    map[string]float64
}

// Store is the eval engine's persistence contract (spec §6 "eval
// tables suites, runs, cases, scores, prompts"); pkg/eval/evalstore
// implements it against SQLite via sqlx, reusing pkg/store/migrate and
// pkg/store/sqlstore.
type Store interface {
	EnsureSuite(ctx context.Context, name string) (Suite, error)
	CreateRun(ctx context.Context, suiteID, model string, totalCases int) (Run, error)
	SaveCase(ctx context.Context, result CaseResult, runID string) error
	FinishRun(ctx context.Context, runID, status string, summary Summary) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListCases(ctx context.Context, runID string) ([]PersistedCase, error)
}
