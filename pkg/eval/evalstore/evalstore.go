// Package evalstore implements eval.Store against SQLite via sqlx,
// reusing pkg/store/migrate for schema management and pkg/store/sqlstore
// for WAL-mode connection setup (spec §6 "eval tables suites, runs,
// cases, scores, prompts").
package evalstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/eval"
	"github.com/weftctx/weft/pkg/store/migrate"
	"github.com/weftctx/weft/pkg/store/sqlstore"
)

// Store implements eval.Store against a SQLite database.
type Store struct {
	db *sqlx.DB
}

var _ eval.Store = (*Store)(nil)

// New opens (creating if needed) a SQLite-backed eval store at dbPath
// and brings its schema up to date.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sqlstore.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	runner := migrate.NewRunner(db)
	if err := runner.Run(ctx, migrations()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run eval store migrations")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSuite finds the suite named name, creating it on first use.
func (s *Store) EnsureSuite(ctx context.Context, name string) (eval.Suite, error) {
	var existing dbSuite
	err := s.db.GetContext(ctx, &existing, `SELECT id, name, created_at FROM suites WHERE name = ?`, name)
	if err == nil {
		return existing.toDomain(), nil
	}
	if err != sql.ErrNoRows {
		return eval.Suite{}, errs.Storage(err, "failed to look up suite")
	}

	suite := dbSuite{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO suites (id, name, created_at) VALUES (:id, :name, :created_at)
	`, suite)
	if err != nil {
		return eval.Suite{}, errs.Storage(err, "failed to create suite")
	}
	return suite.toDomain(), nil
}

// CreateRun starts a new run under suiteID.
func (s *Store) CreateRun(ctx context.Context, suiteID, model string, totalCases int) (eval.Run, error) {
	run := dbRun{
		ID:         uuid.NewString(),
		SuiteID:    suiteID,
		Model:      model,
		Status:     "running",
		TotalCases: totalCases,
		CreatedAt:  time.Now(),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, suite_id, model, status, total_cases, pass_count, fail_count, created_at)
		VALUES (:id, :suite_id, :model, :status, :total_cases, :pass_count, :fail_count, :created_at)
	`, run)
	if err != nil {
		return eval.Run{}, errs.Storage(err, "failed to create run")
	}
	return run.toDomain(), nil
}

// SaveCase persists a case and its per-scorer scores in one transaction
// (spec §4.5.1 step 7: "persist case+scores (both writes inside one
// transaction each)").
func (s *Store) SaveCase(ctx context.Context, result eval.CaseResult, runID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.Storage(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	c := dbCase{
		ID:        uuid.NewString(),
		RunID:     runID,
		Idx:       result.Index,
		Input:     jsonField{Data: result.Input},
		Output:    jsonField{Data: result.Output},
		Expected:  jsonField{Data: result.Expected},
		Error:     result.Error,
		LatencyMs: result.LatencyMs,
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
		CreatedAt: time.Now(),
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO cases (id, run_id, idx, input, output, expected, error, latency_ms, tokens_in, tokens_out, created_at)
		VALUES (:id, :run_id, :idx, :input, :output, :expected, :error, :latency_ms, :tokens_in, :tokens_out, :created_at)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			output = excluded.output, expected = excluded.expected, error = excluded.error,
			latency_ms = excluded.latency_ms, tokens_in = excluded.tokens_in, tokens_out = excluded.tokens_out
	`, c)
	if err != nil {
		return errs.Storage(err, "failed to insert case")
	}
	// On conflict the existing row keeps its id; attach scores to that id.
	if err := tx.GetContext(ctx, &c.ID, "SELECT id FROM cases WHERE run_id = ? AND idx = ?", runID, result.Index); err != nil {
		return errs.Storage(err, "failed to look up case id")
	}

	for name, value := range result.Scores {
		score := dbScore{ID: uuid.NewString(), CaseID: c.ID, Scorer: name, Value: value}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO scores (id, case_id, scorer, value) VALUES (:id, :case_id, :scorer, :value)
			ON CONFLICT(case_id, scorer) DO UPDATE SET value = excluded.value
		`, score)
		if err != nil {
			return errs.Storage(err, "failed to insert score")
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage(err, "failed to commit case")
	}
	return nil
}

// FinishRun marks runID as finished and stores its summary totals.
func (s *Store) FinishRun(ctx context.Context, runID, status string, summary eval.Summary) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, pass_count = ?, fail_count = ?, finished_at = ? WHERE id = ?
	`, status, summary.PassCount, summary.FailCount, now, runID)
	if err != nil {
		return errs.Storage(err, "failed to finish run")
	}
	return nil
}

// GetRun loads one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (eval.Run, error) {
	var r dbRun
	err := s.db.GetContext(ctx, &r, `
		SELECT id, suite_id, model, status, total_cases, pass_count, fail_count, created_at, finished_at
		FROM runs WHERE id = ?
	`, runID)
	if err == sql.ErrNoRows {
		return eval.Run{}, errs.NotFound("run %s not found", runID)
	}
	if err != nil {
		return eval.Run{}, errs.Storage(err, "failed to load run")
	}
	return r.toDomain(), nil
}

// ListCases returns every persisted case for runID, with scores joined,
// ordered by index (spec §4.5.3 uses this to drive compare.CompareRuns).
func (s *Store) ListCases(ctx context.Context, runID string) ([]eval.PersistedCase, error) {
	var rows []dbCase
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, run_id, idx, input, output, expected, error, latency_ms, tokens_in, tokens_out, created_at
		FROM cases WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, errs.Storage(err, "failed to list cases")
	}

	cases := make([]eval.PersistedCase, len(rows))
	for i, row := range rows {
		var scores []dbScore
		if err := s.db.SelectContext(ctx, &scores, `SELECT id, case_id, scorer, value FROM scores WHERE case_id = ?`, row.ID); err != nil {
			return nil, errs.Storage(err, "failed to list scores")
		}
		scoreMap := make(map[string]float64, len(scores))
		for _, sc := range scores {
			scoreMap[sc.Scorer] = sc.Value
		}

		cases[i] = eval.PersistedCase{
			RunID:     runID,
			Index:     row.Idx,
			Input:     row.Input.Data,
			Output:    row.Output.Data,
			Expected:  row.Expected.Data,
			Error:     row.Error,
			LatencyMs: row.LatencyMs,
			TokensIn:  row.TokensIn,
			TokensOut: row.TokensOut,
			Scores:    scoreMap,
		}
	}
	return cases, nil
}
