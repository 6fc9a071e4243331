package promptlib

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/weftctx/weft/pkg/errs"
)

// SQLStore implements Store against the prompts table created by
// pkg/eval/evalstore's migrations (name TEXT, version TEXT, unique
// (name,version)); version is stored as its decimal string so it shares
// the table's schema with other prompt-tracking tooling.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an already-migrated eval database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) NextVersion(ctx context.Context, name string) (int, error) {
	var versions []string
	err := s.db.SelectContext(ctx, &versions, `SELECT version FROM prompts WHERE name = ?`, name)
	if err != nil {
		return 0, errs.Storage(err, "failed to look up prompt versions")
	}
	max := 0
	for _, v := range versions {
		n, err := strconv.Atoi(v)
		if err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

func (s *SQLStore) SavePrompt(ctx context.Context, p Prompt) error {
	metadata := `{"description":"` + p.Description + `"}`
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (id, name, version, body, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, strconv.Itoa(p.Version), p.Content, metadata, p.CreatedAt)
	if err != nil {
		return errs.Storage(err, "failed to save prompt")
	}
	return nil
}

func (s *SQLStore) GetPrompt(ctx context.Context, name string, version int) (Prompt, error) {
	return s.scanOne(ctx, `SELECT id, name, version, body, created_at FROM prompts WHERE name = ? AND version = ?`,
		name, strconv.Itoa(version))
}

func (s *SQLStore) LatestPrompt(ctx context.Context, name string) (Prompt, error) {
	return s.scanOne(ctx, `
		SELECT id, name, version, body, created_at FROM prompts
		WHERE name = ? ORDER BY CAST(version AS INTEGER) DESC LIMIT 1
	`, name)
}

func (s *SQLStore) scanOne(ctx context.Context, query string, args ...any) (Prompt, error) {
	var row struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Version   string    `db:"version"`
		Body      string    `db:"body"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return Prompt{}, errs.NotFound("prompt not found")
	}
	if err != nil {
		return Prompt{}, errs.Storage(err, "failed to load prompt")
	}
	version, _ := strconv.Atoi(row.Version)
	return Prompt{ID: row.ID, Name: row.Name, Version: version, Content: row.Body, CreatedAt: row.CreatedAt}, nil
}
