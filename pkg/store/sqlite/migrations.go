package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/weftctx/weft/pkg/store/migrate"
)

// migrations returns every migration for the context-store schema, in the
// order named in spec §6: chats, messages, branches, checkpoints, FTS.
func migrations() []migrate.Migration {
	return []migrate.Migration{
		migration20260101000000CreateChats(),
		migration20260101000100CreateMessages(),
		migration20260101000200CreateBranches(),
		migration20260101000300CreateCheckpoints(),
		migration20260101000400CreateMessagesFTS(),
	}
}

func migration20260101000000CreateChats() migrate.Migration {
	return migrate.Migration{
		Version:     20260101000000,
		Description: "create chats table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS chats (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					title TEXT,
					metadata TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create chats table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS chats")
			return errors.Wrap(err, "failed to drop chats table")
		},
	}
}

func migration20260101000100CreateMessages() migrate.Migration {
	return migrate.Migration{
		Version:     20260101000100,
		Description: "create messages table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS messages (
					id TEXT PRIMARY KEY,
					chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
					parent_id TEXT,
					name TEXT NOT NULL,
					type TEXT,
					data TEXT NOT NULL,
					deleted BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					CHECK (id != parent_id)
				)
			`)
			if err != nil {
				return errors.Wrap(err, "failed to create messages table")
			}
			_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id)`)
			return errors.Wrap(err, "failed to create messages chat_id index")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS messages")
			return errors.Wrap(err, "failed to drop messages table")
		},
	}
}

func migration20260101000200CreateBranches() migrate.Migration {
	return migrate.Migration{
		Version:     20260101000200,
		Description: "create branches table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS branches (
					id TEXT PRIMARY KEY,
					chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					head_message_id TEXT,
					is_active BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					UNIQUE(chat_id, name)
				)
			`)
			return errors.Wrap(err, "failed to create branches table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS branches")
			return errors.Wrap(err, "failed to drop branches table")
		},
	}
}

func migration20260101000300CreateCheckpoints() migrate.Migration {
	return migrate.Migration{
		Version:     20260101000300,
		Description: "create checkpoints table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS checkpoints (
					id TEXT PRIMARY KEY,
					chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					message_id TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					UNIQUE(chat_id, name)
				)
			`)
			return errors.Wrap(err, "failed to create checkpoints table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS checkpoints")
			return errors.Wrap(err, "failed to drop checkpoints table")
		},
	}
}

func migration20260101000400CreateMessagesFTS() migrate.Migration {
	return migrate.Migration{
		Version:     20260101000400,
		Description: "create messages_fts virtual table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
					message_id UNINDEXED,
					chat_id UNINDEXED,
					name UNINDEXED,
					content
				)
			`)
			return errors.Wrap(err, "failed to create messages_fts table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS messages_fts")
			return errors.Wrap(err, "failed to drop messages_fts table")
		},
	}
}
