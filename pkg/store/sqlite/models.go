package sqlite

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/weftctx/weft/pkg/store"
)

// JSONField adapts an arbitrary Go value to a TEXT column via JSON.
type JSONField[T any] struct {
	Data T
}

func (j *JSONField[T]) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into JSONField", value)
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, &j.Data)
}

func (j JSONField[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

type dbChat struct {
	ID        string                    `db:"id"`
	UserID    string                    `db:"user_id"`
	Title     *string                   `db:"title"`
	Metadata  JSONField[map[string]any] `db:"metadata"`
	CreatedAt time.Time                 `db:"created_at"`
	UpdatedAt time.Time                 `db:"updated_at"`
}

func (c *dbChat) toDomain() store.Chat {
	chat := store.Chat{
		ID:        c.ID,
		UserID:    c.UserID,
		Metadata:  c.Metadata.Data,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Title != nil {
		chat.Title = *c.Title
	}
	return chat
}

func fromChat(c store.Chat) *dbChat {
	dc := &dbChat{
		ID:        c.ID,
		UserID:    c.UserID,
		Metadata:  JSONField[map[string]any]{Data: c.Metadata},
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Title != "" {
		dc.Title = &c.Title
	}
	return dc
}

type dbMessage struct {
	ID        string    `db:"id"`
	ChatID    string    `db:"chat_id"`
	ParentID  *string   `db:"parent_id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	Deleted   bool      `db:"deleted"`
}

func (m *dbMessage) toDomain() store.Message {
	msg := store.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Name:      m.Name,
		Type:      m.Type,
		Data:      m.Data,
		CreatedAt: m.CreatedAt,
		Deleted:   m.Deleted,
	}
	if m.ParentID != nil {
		msg.ParentID = *m.ParentID
	}
	return msg
}

func fromMessage(m store.Message) *dbMessage {
	dm := &dbMessage{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Name:      m.Name,
		Type:      m.Type,
		Data:      m.Data,
		CreatedAt: m.CreatedAt,
		Deleted:   m.Deleted,
	}
	if m.ParentID != "" {
		dm.ParentID = &m.ParentID
	}
	return dm
}

type dbBranch struct {
	ID            string    `db:"id"`
	ChatID        string    `db:"chat_id"`
	Name          string    `db:"name"`
	HeadMessageID *string   `db:"head_message_id"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
}

func (b *dbBranch) toDomain() store.Branch {
	branch := store.Branch{
		ID:        b.ID,
		ChatID:    b.ChatID,
		Name:      b.Name,
		IsActive:  b.IsActive,
		CreatedAt: b.CreatedAt,
	}
	if b.HeadMessageID != nil {
		branch.HeadMessageID = *b.HeadMessageID
	}
	return branch
}

type dbCheckpoint struct {
	ID        string    `db:"id"`
	ChatID    string    `db:"chat_id"`
	Name      string    `db:"name"`
	MessageID string    `db:"message_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (c *dbCheckpoint) toDomain() store.Checkpoint {
	return store.Checkpoint{
		ID:        c.ID,
		ChatID:    c.ChatID,
		Name:      c.Name,
		MessageID: c.MessageID,
		CreatedAt: c.CreatedAt,
	}
}
