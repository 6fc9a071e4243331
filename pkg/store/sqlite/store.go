// Package sqlite implements store.ContextStore over SQLite via sqlx and
// modernc.org/sqlite (pure Go, no cgo), with FTS5 full-text search.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/store"
	"github.com/weftctx/weft/pkg/store/migrate"
	"github.com/weftctx/weft/pkg/store/sqlstore"
)

const maxChainHops = 10000

// Store implements store.ContextStore against a SQLite database.
type Store struct {
	db *sqlx.DB
}

// New opens (creating if needed) a SQLite-backed context store at dbPath
// and brings its schema up to date.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sqlstore.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	runner := migrate.NewRunner(db)
	if err := runner.Run(ctx, migrations()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateChat(ctx context.Context, chat store.Chat) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	dc := fromChat(chat)
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, metadata, created_at, updated_at)
		VALUES (:id, :user_id, :title, :metadata, :created_at, :updated_at)
	`, dc)
	if err != nil {
		return errs.Storage(err, "failed to insert chat")
	}

	mainBranch := store.Branch{
		ID:        chat.ID + ":main",
		ChatID:    chat.ID,
		Name:      "main",
		IsActive:  true,
		CreatedAt: chat.CreatedAt,
	}
	if err := insertBranchTx(ctx, tx, mainBranch); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetChat(ctx context.Context, chatID string) (store.Chat, error) {
	var dc dbChat
	err := s.db.GetContext(ctx, &dc, `SELECT id, user_id, title, metadata, created_at, updated_at FROM chats WHERE id = ?`, chatID)
	if err == sql.ErrNoRows {
		return store.Chat{}, errs.NotFound("chat %s not found", chatID)
	}
	if err != nil {
		return store.Chat{}, errs.Storage(err, "failed to load chat")
	}
	return dc.toDomain(), nil
}

func (s *Store) UpdateChatMetadata(ctx context.Context, chatID string, metadata map[string]any) error {
	field := JSONField[map[string]any]{Data: metadata}
	value, err := field.Value()
	if err != nil {
		return errs.Storage(err, "failed to marshal chat metadata")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET metadata = ?, updated_at = ? WHERE id = ?`, value, time.Now(), chatID)
	if err != nil {
		return errs.Storage(err, "failed to update chat metadata")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("chat %s not found", chatID)
	}
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmts := []string{
		"DELETE FROM messages_fts WHERE chat_id = ?",
		"DELETE FROM checkpoints WHERE chat_id = ?",
		"DELETE FROM branches WHERE chat_id = ?",
		"DELETE FROM messages WHERE chat_id = ?",
		"DELETE FROM chats WHERE id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, chatID); err != nil {
			return errs.Storage(err, "failed to cascade delete chat %s", chatID)
		}
	}
	return tx.Commit()
}

func (s *Store) InsertMessage(ctx context.Context, msg store.Message) error {
	if msg.ID != "" && msg.ID == msg.ParentID {
		return errs.Validation("message id %s cannot be its own parent", msg.ID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	dm := fromMessage(msg)
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO messages (id, chat_id, parent_id, name, type, data, deleted, created_at)
		VALUES (:id, :chat_id, :parent_id, :name, :type, :data, :deleted, :created_at)
	`, dm)
	if err != nil {
		return errs.Storage(err, "failed to insert message")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages_fts (message_id, chat_id, name, content) VALUES (?, ?, ?, ?)
	`, msg.ID, msg.ChatID, msg.Name, string(msg.Data))
	if err != nil {
		return errs.Storage(err, "failed to index message for search")
	}

	return tx.Commit()
}

func (s *Store) GetMessage(ctx context.Context, chatID, messageID string) (store.Message, error) {
	var dm dbMessage
	err := s.db.GetContext(ctx, &dm, `
		SELECT id, chat_id, parent_id, name, type, data, deleted, created_at
		FROM messages WHERE chat_id = ? AND id = ?
	`, chatID, messageID)
	if err == sql.ErrNoRows {
		return store.Message{}, errs.NotFound("message %s not found", messageID)
	}
	if err != nil {
		return store.Message{}, errs.Storage(err, "failed to load message")
	}
	return dm.toDomain(), nil
}

func (s *Store) UpdateMessageData(ctx context.Context, chatID, messageID string, data []byte) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET data = ? WHERE chat_id = ? AND id = ?`, data, chatID, messageID)
	if err != nil {
		return errs.Storage(err, "failed to update message data")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("message %s not found", messageID)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE messages_fts SET content = ? WHERE chat_id = ? AND message_id = ?`, string(data), chatID, messageID)
	if err != nil {
		return errs.Storage(err, "failed to update search index")
	}
	return nil
}

// GetMessageChain walks parentId from headID to root and returns the chain
// chronologically (root first), bounded to maxChainHops.
func (s *Store) GetMessageChain(ctx context.Context, chatID, headID string) ([]store.Message, error) {
	var chain []store.Message
	currentID := headID

	for hops := 0; currentID != ""; hops++ {
		if hops >= maxChainHops {
			return nil, errs.Storage(nil, "message chain exceeds %d hops, possible cycle", maxChainHops)
		}
		msg, err := s.GetMessage(ctx, chatID, currentID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, msg)
		currentID = msg.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func insertBranchTx(ctx context.Context, tx *sqlx.Tx, branch store.Branch) error {
	var headID *string
	if branch.HeadMessageID != "" {
		headID = &branch.HeadMessageID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO branches (id, chat_id, name, head_message_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, branch.ID, branch.ChatID, branch.Name, headID, branch.IsActive, branch.CreatedAt)
	if err != nil {
		return errs.Storage(err, "failed to insert branch %s", branch.Name)
	}
	return nil
}

func (s *Store) CreateBranch(ctx context.Context, branch store.Branch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := insertBranchTx(ctx, tx, branch); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetBranch(ctx context.Context, chatID, name string) (store.Branch, error) {
	var db dbBranch
	err := s.db.GetContext(ctx, &db, `
		SELECT id, chat_id, name, head_message_id, is_active, created_at
		FROM branches WHERE chat_id = ? AND name = ?
	`, chatID, name)
	if err == sql.ErrNoRows {
		return store.Branch{}, errs.NotFound("branch %s not found", name)
	}
	if err != nil {
		return store.Branch{}, errs.Storage(err, "failed to load branch")
	}
	return db.toDomain(), nil
}

func (s *Store) GetActiveBranch(ctx context.Context, chatID string) (store.Branch, error) {
	var db dbBranch
	err := s.db.GetContext(ctx, &db, `
		SELECT id, chat_id, name, head_message_id, is_active, created_at
		FROM branches WHERE chat_id = ? AND is_active = 1
	`, chatID)
	if err == sql.ErrNoRows {
		return store.Branch{}, errs.NotFound("no active branch for chat %s", chatID)
	}
	if err != nil {
		return store.Branch{}, errs.Storage(err, "failed to load active branch")
	}
	return db.toDomain(), nil
}

func (s *Store) ListBranches(ctx context.Context, chatID string) ([]store.Branch, error) {
	var dbs []dbBranch
	err := s.db.SelectContext(ctx, &dbs, `
		SELECT id, chat_id, name, head_message_id, is_active, created_at
		FROM branches WHERE chat_id = ? ORDER BY created_at
	`, chatID)
	if err != nil {
		return nil, errs.Storage(err, "failed to list branches")
	}
	branches := make([]store.Branch, len(dbs))
	for i := range dbs {
		branches[i] = dbs[i].toDomain()
	}
	return branches, nil
}

// SetActiveBranch deactivates every branch in the chat and activates name,
// in one transaction so concurrent switches serialize on SQLite's writer lock.
func (s *Store) SetActiveBranch(ctx context.Context, chatID, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE branches SET is_active = 0 WHERE chat_id = ?`, chatID); err != nil {
		return errs.Storage(err, "failed to deactivate branches")
	}

	res, err := tx.ExecContext(ctx, `UPDATE branches SET is_active = 1 WHERE chat_id = ? AND name = ?`, chatID, name)
	if err != nil {
		return errs.Storage(err, "failed to activate branch %s", name)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("branch %s not found", name)
	}

	return tx.Commit()
}

func (s *Store) AdvanceBranchHead(ctx context.Context, chatID, branchName, headMessageID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE branches SET head_message_id = ? WHERE chat_id = ? AND name = ?
	`, headMessageID, chatID, branchName)
	if err != nil {
		return errs.Storage(err, "failed to advance branch head")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("branch %s not found", branchName)
	}
	return nil
}

func (s *Store) SetCheckpoint(ctx context.Context, cp store.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, chat_id, name, message_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, name) DO UPDATE SET message_id = excluded.message_id
	`, cp.ID, cp.ChatID, cp.Name, cp.MessageID, cp.CreatedAt)
	if err != nil {
		return errs.Storage(err, "failed to set checkpoint %s", cp.Name)
	}
	return nil
}

func (s *Store) GetCheckpoint(ctx context.Context, chatID, name string) (store.Checkpoint, error) {
	var dc dbCheckpoint
	err := s.db.GetContext(ctx, &dc, `
		SELECT id, chat_id, name, message_id, created_at FROM checkpoints WHERE chat_id = ? AND name = ?
	`, chatID, name)
	if err == sql.ErrNoRows {
		return store.Checkpoint{}, errs.NotFound("checkpoint %s not found", name)
	}
	if err != nil {
		return store.Checkpoint{}, errs.Storage(err, "failed to load checkpoint")
	}
	return dc.toDomain(), nil
}

// Search uses FTS5 MATCH when the query tokenizes cleanly; it falls back to
// a LIKE scan (rank always 1) on any FTS syntax error, per spec §4.1.
func (s *Store) Search(ctx context.Context, chatID, query string) ([]store.SearchResult, error) {
	type ftsRow struct {
		MessageID string  `db:"message_id"`
		Content   string  `db:"content"`
		Rank      float64 `db:"rank"`
	}

	var rows []ftsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT message_id, content, bm25(messages_fts) AS rank
		FROM messages_fts WHERE chat_id = ? AND messages_fts MATCH ?
		ORDER BY rank
	`, chatID, query)

	if err != nil {
		return s.searchFallback(ctx, chatID, query)
	}

	results := make([]store.SearchResult, 0, len(rows))
	for _, r := range rows {
		msg, err := s.GetMessage(ctx, chatID, r.MessageID)
		if err != nil {
			continue
		}
		results = append(results, store.SearchResult{
			Message: msg,
			Rank:    r.Rank,
			Snippet: snippet(r.Content),
		})
	}
	return results, nil
}

func (s *Store) searchFallback(ctx context.Context, chatID, query string) ([]store.SearchResult, error) {
	var dms []dbMessage
	pattern := "%" + strings.ToLower(query) + "%"
	err := s.db.SelectContext(ctx, &dms, `
		SELECT id, chat_id, parent_id, name, type, data, deleted, created_at
		FROM messages WHERE chat_id = ? AND LOWER(data) LIKE ?
		ORDER BY created_at
	`, chatID, pattern)
	if err != nil {
		return nil, errs.Storage(err, "failed to search messages")
	}

	results := make([]store.SearchResult, len(dms))
	for i, dm := range dms {
		results[i] = store.SearchResult{
			Message: dm.toDomain(),
			Rank:    1,
			Snippet: snippet(string(dm.Data)),
		}
	}
	return results, nil
}

func snippet(content string) string {
	if len(content) <= 200 {
		return content
	}
	return content[:197] + "..."
}

func (s *Store) GetGraph(ctx context.Context, chatID string) (store.Graph, error) {
	var dms []dbMessage
	err := s.db.SelectContext(ctx, &dms, `
		SELECT id, chat_id, parent_id, name, type, data, deleted, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at
	`, chatID)
	if err != nil {
		return store.Graph{}, errs.Storage(err, "failed to load graph nodes")
	}

	nodes := make([]store.GraphNode, len(dms))
	for i, dm := range dms {
		msg := dm.toDomain()
		preview := string(msg.Data)
		if len(preview) > 50 {
			preview = preview[:50]
		}
		nodes[i] = store.GraphNode{
			ID:        msg.ID,
			ParentID:  msg.ParentID,
			Role:      msg.Name,
			Preview:   preview,
			CreatedAt: msg.CreatedAt,
			Deleted:   msg.Deleted,
		}
	}

	branches, err := s.ListBranches(ctx, chatID)
	if err != nil {
		return store.Graph{}, err
	}

	var dcs []dbCheckpoint
	err = s.db.SelectContext(ctx, &dcs, `
		SELECT id, chat_id, name, message_id, created_at FROM checkpoints WHERE chat_id = ? ORDER BY created_at
	`, chatID)
	if err != nil {
		return store.Graph{}, errs.Storage(err, "failed to load checkpoints")
	}
	checkpoints := make([]store.Checkpoint, len(dcs))
	for i := range dcs {
		checkpoints[i] = dcs[i].toDomain()
	}

	return store.Graph{Nodes: nodes, Branches: branches, Checkpoints: checkpoints}, nil
}
