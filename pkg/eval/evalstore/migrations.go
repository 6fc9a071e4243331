package evalstore

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/weftctx/weft/pkg/store/migrate"
)

// migrations returns every migration for the eval schema, in the order
// named in spec §6: suites, runs, cases, scores, prompts.
func migrations() []migrate.Migration {
	return []migrate.Migration{
		migration20260201000000CreateSuites(),
		migration20260201000100CreateRuns(),
		migration20260201000200CreateCases(),
		migration20260201000300CreateScores(),
		migration20260201000400CreatePrompts(),
	}
}

func migration20260201000000CreateSuites() migrate.Migration {
	return migrate.Migration{
		Version:     20260201000000,
		Description: "create suites table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS suites (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					created_at DATETIME NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create suites table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS suites")
			return errors.Wrap(err, "failed to drop suites table")
		},
	}
}

func migration20260201000100CreateRuns() migrate.Migration {
	return migrate.Migration{
		Version:     20260201000100,
		Description: "create runs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					suite_id TEXT NOT NULL REFERENCES suites(id) ON DELETE CASCADE,
					model TEXT NOT NULL,
					status TEXT NOT NULL,
					total_cases INTEGER NOT NULL DEFAULT 0,
					pass_count INTEGER NOT NULL DEFAULT 0,
					fail_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					finished_at DATETIME
				)
			`)
			if err != nil {
				return errors.Wrap(err, "failed to create runs table")
			}
			_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_suite_id ON runs(suite_id)`)
			return errors.Wrap(err, "failed to create runs suite_id index")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS runs")
			return errors.Wrap(err, "failed to drop runs table")
		},
	}
}

func migration20260201000200CreateCases() migrate.Migration {
	return migrate.Migration{
		Version:     20260201000200,
		Description: "create cases table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS cases (
					id TEXT PRIMARY KEY,
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					idx INTEGER NOT NULL,
					input TEXT NOT NULL,
					output TEXT,
					expected TEXT,
					error TEXT,
					latency_ms INTEGER NOT NULL DEFAULT 0,
					tokens_in INTEGER NOT NULL DEFAULT 0,
					tokens_out INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					UNIQUE(run_id, idx)
				)
			`)
			if err != nil {
				return errors.Wrap(err, "failed to create cases table")
			}
			_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_cases_run_id ON cases(run_id)`)
			return errors.Wrap(err, "failed to create cases run_id index")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS cases")
			return errors.Wrap(err, "failed to drop cases table")
		},
	}
}

func migration20260201000300CreateScores() migrate.Migration {
	return migrate.Migration{
		Version:     20260201000300,
		Description: "create scores table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS scores (
					id TEXT PRIMARY KEY,
					case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
					scorer TEXT NOT NULL,
					value REAL NOT NULL,
					UNIQUE(case_id, scorer)
				)
			`)
			if err != nil {
				return errors.Wrap(err, "failed to create scores table")
			}
			_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_scores_case_id ON scores(case_id)`)
			return errors.Wrap(err, "failed to create scores case_id index")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS scores")
			return errors.Wrap(err, "failed to drop scores table")
		},
	}
}

func migration20260201000400CreatePrompts() migrate.Migration {
	return migrate.Migration{
		Version:     20260201000400,
		Description: "create prompts table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS prompts (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					version TEXT NOT NULL,
					body TEXT NOT NULL,
					metadata TEXT,
					created_at DATETIME NOT NULL,
					UNIQUE(name, version)
				)
			`)
			return errors.Wrap(err, "failed to create prompts table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS prompts")
			return errors.Wrap(err, "failed to drop prompts table")
		},
	}
}
