// Package boltstore implements store.ContextStore as an embedded KV file
// backend over go.etcd.io/bbolt, grounded on the teacher's operation-scoped
// bbolt access pattern (pkg/conversations/bbolt_store.go): each operation
// opens, uses, and closes its own *bbolt.DB handle rather than holding one
// connection for the process lifetime, so the file lock is held only for
// the duration of a single call and multiple processes can take turns.
//
// Full-text search has no native bbolt equivalent, so this backend keeps a
// search_index bucket holding each message's content and searches it with
// a LIKE-style linear scan, always reporting rank = 1, per spec §4.1.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"go.etcd.io/bbolt"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/store"
)

var (
	bucketChats       = []byte("chats")
	bucketMessages    = []byte("messages")
	bucketBranches    = []byte("branches")
	bucketCheckpoints = []byte("checkpoints")
	bucketSearchIndex = []byte("search_index")
)

// Store implements store.ContextStore over a single bbolt file.
type Store struct {
	dbPath string
}

// New creates (if needed) the database directory and buckets at dbPath.
func New(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	s := &Store{dbPath: dbPath}
	if err := s.withDB(func(db *bbolt.DB) error { return s.ensureBuckets(db) }); err != nil {
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

// withDB opens a fresh connection for one operation and closes it on return.
func (s *Store) withDB(operation func(*bbolt.DB) error) error {
	db, err := bbolt.Open(s.dbPath, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer db.Close()
	return operation(db)
}

func (s *Store) ensureBuckets(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketChats, bucketMessages, bucketBranches, bucketCheckpoints, bucketSearchIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// chatLock serializes mutations for a single chat across processes,
// grounded on the teacher's lockedfile-based feedback/steer stores.
func (s *Store) chatLock(chatID string) (func(), error) {
	lockPath := s.dbPath + "." + chatID + ".lock"
	unlock, err := lockedfile.MutexAt(lockPath).Lock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to acquire lock for chat %s", chatID)
	}
	return unlock, nil
}

type boltChat struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (c boltChat) toDomain() store.Chat {
	return store.Chat{ID: c.ID, UserID: c.UserID, Title: c.Title, Metadata: c.Metadata, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

type boltMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	ParentID  string    `json:"parentId,omitempty"`
	Name      string    `json:"name"`
	Type      string    `json:"type,omitempty"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	Deleted   bool      `json:"deleted,omitempty"`
}

func (m boltMessage) toDomain() store.Message {
	return store.Message{ID: m.ID, ChatID: m.ChatID, ParentID: m.ParentID, Name: m.Name, Type: m.Type, Data: m.Data, CreatedAt: m.CreatedAt, Deleted: m.Deleted}
}

type boltBranch struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chatId"`
	Name          string    `json:"name"`
	HeadMessageID string    `json:"headMessageId,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (b boltBranch) toDomain() store.Branch {
	return store.Branch{ID: b.ID, ChatID: b.ChatID, Name: b.Name, HeadMessageID: b.HeadMessageID, IsActive: b.IsActive, CreatedAt: b.CreatedAt}
}

type boltCheckpoint struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Name      string    `json:"name"`
	MessageID string    `json:"messageId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c boltCheckpoint) toDomain() store.Checkpoint {
	return store.Checkpoint{ID: c.ID, ChatID: c.ChatID, Name: c.Name, MessageID: c.MessageID, CreatedAt: c.CreatedAt}
}

func messageKey(chatID, id string) []byte  { return []byte(chatID + ":" + id) }
func branchKey(chatID, name string) []byte { return []byte(chatID + ":" + name) }

func (s *Store) CreateChat(ctx context.Context, chat store.Chat) error {
	unlock, err := s.chatLock(chat.ID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bc := boltChat{ID: chat.ID, UserID: chat.UserID, Title: chat.Title, Metadata: chat.Metadata, CreatedAt: chat.CreatedAt, UpdatedAt: chat.UpdatedAt}
			data, err := json.Marshal(bc)
			if err != nil {
				return errs.Storage(err, "failed to marshal chat")
			}
			if err := tx.Bucket(bucketChats).Put([]byte(chat.ID), data); err != nil {
				return errs.Storage(err, "failed to save chat")
			}

			mainBranch := boltBranch{ID: chat.ID + ":main", ChatID: chat.ID, Name: "main", IsActive: true, CreatedAt: chat.CreatedAt}
			bdata, err := json.Marshal(mainBranch)
			if err != nil {
				return errs.Storage(err, "failed to marshal branch")
			}
			return tx.Bucket(bucketBranches).Put(branchKey(chat.ID, "main"), bdata)
		})
	})
}

func (s *Store) GetChat(ctx context.Context, chatID string) (store.Chat, error) {
	var chat store.Chat
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			data := tx.Bucket(bucketChats).Get([]byte(chatID))
			if data == nil {
				return errs.NotFound("chat %s not found", chatID)
			}
			var bc boltChat
			if err := json.Unmarshal(data, &bc); err != nil {
				return errs.Storage(err, "failed to decode chat")
			}
			chat = bc.toDomain()
			return nil
		})
	})
	return chat, err
}

func (s *Store) UpdateChatMetadata(ctx context.Context, chatID string, metadata map[string]any) error {
	unlock, err := s.chatLock(chatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket(bucketChats)
			data := bucket.Get([]byte(chatID))
			if data == nil {
				return errs.NotFound("chat %s not found", chatID)
			}
			var bc boltChat
			if err := json.Unmarshal(data, &bc); err != nil {
				return errs.Storage(err, "failed to decode chat")
			}
			bc.Metadata = metadata
			bc.UpdatedAt = time.Now()
			updated, err := json.Marshal(bc)
			if err != nil {
				return errs.Storage(err, "failed to marshal chat")
			}
			return bucket.Put([]byte(chatID), updated)
		})
	})
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	unlock, err := s.chatLock(chatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			deletePrefixed(tx.Bucket(bucketMessages), []byte(chatID+":"))
			deletePrefixed(tx.Bucket(bucketBranches), []byte(chatID+":"))
			deletePrefixed(tx.Bucket(bucketCheckpoints), []byte(chatID+":"))
			deletePrefixed(tx.Bucket(bucketSearchIndex), []byte(chatID+":"))
			return tx.Bucket(bucketChats).Delete([]byte(chatID))
		})
	})
}

func deletePrefixed(bucket *bbolt.Bucket, prefix []byte) {
	cursor := bucket.Cursor()
	var keys [][]byte
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		keys = append(keys, append([]byte{}, k...))
	}
	for _, k := range keys {
		bucket.Delete(k)
	}
}

func (s *Store) InsertMessage(ctx context.Context, msg store.Message) error {
	if msg.ID != "" && msg.ID == msg.ParentID {
		return errs.Validation("message id %s cannot be its own parent", msg.ID)
	}

	unlock, err := s.chatLock(msg.ChatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bm := boltMessage{ID: msg.ID, ChatID: msg.ChatID, ParentID: msg.ParentID, Name: msg.Name, Type: msg.Type, Data: msg.Data, CreatedAt: msg.CreatedAt, Deleted: msg.Deleted}
			data, err := json.Marshal(bm)
			if err != nil {
				return errs.Storage(err, "failed to marshal message")
			}
			if err := tx.Bucket(bucketMessages).Put(messageKey(msg.ChatID, msg.ID), data); err != nil {
				return errs.Storage(err, "failed to save message")
			}
			return tx.Bucket(bucketSearchIndex).Put(messageKey(msg.ChatID, msg.ID), msg.Data)
		})
	})
}

func (s *Store) GetMessage(ctx context.Context, chatID, messageID string) (store.Message, error) {
	var msg store.Message
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			data := tx.Bucket(bucketMessages).Get(messageKey(chatID, messageID))
			if data == nil {
				return errs.NotFound("message %s not found", messageID)
			}
			var bm boltMessage
			if err := json.Unmarshal(data, &bm); err != nil {
				return errs.Storage(err, "failed to decode message")
			}
			msg = bm.toDomain()
			return nil
		})
	})
	return msg, err
}

func (s *Store) UpdateMessageData(ctx context.Context, chatID, messageID string, data []byte) error {
	unlock, err := s.chatLock(chatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket(bucketMessages)
			key := messageKey(chatID, messageID)
			existing := bucket.Get(key)
			if existing == nil {
				return errs.NotFound("message %s not found", messageID)
			}
			var bm boltMessage
			if err := json.Unmarshal(existing, &bm); err != nil {
				return errs.Storage(err, "failed to decode message")
			}
			bm.Data = data
			updated, err := json.Marshal(bm)
			if err != nil {
				return errs.Storage(err, "failed to marshal message")
			}
			if err := bucket.Put(key, updated); err != nil {
				return errs.Storage(err, "failed to save message")
			}
			return tx.Bucket(bucketSearchIndex).Put(key, data)
		})
	})
}

const maxChainHops = 10000

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

func (s *Store) CreateBranch(ctx context.Context, branch store.Branch) error {
	unlock, err := s.chatLock(branch.ChatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bb := boltBranch{ID: branch.ID, ChatID: branch.ChatID, Name: branch.Name, HeadMessageID: branch.HeadMessageID, IsActive: branch.IsActive, CreatedAt: branch.CreatedAt}
			data, err := json.Marshal(bb)
			if err != nil {
				return errs.Storage(err, "failed to marshal branch")
			}
			return tx.Bucket(bucketBranches).Put(branchKey(branch.ChatID, branch.Name), data)
		})
	})
}

func (s *Store) GetBranch(ctx context.Context, chatID, name string) (store.Branch, error) {
	var branch store.Branch
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			data := tx.Bucket(bucketBranches).Get(branchKey(chatID, name))
			if data == nil {
				return errs.NotFound("branch %s not found", name)
			}
			var bb boltBranch
			if err := json.Unmarshal(data, &bb); err != nil {
				return errs.Storage(err, "failed to decode branch")
			}
			branch = bb.toDomain()
			return nil
		})
	})
	return branch, err
}

func (s *Store) listBranchesTx(tx *bbolt.Tx, chatID string) ([]store.Branch, error) {
	var branches []store.Branch
	cursor := tx.Bucket(bucketBranches).Cursor()
	prefix := []byte(chatID + ":")
	for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
		var bb boltBranch
		if err := json.Unmarshal(v, &bb); err != nil {
			continue
		}
		branches = append(branches, bb.toDomain())
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].CreatedAt.Before(branches[j].CreatedAt) })
	return branches, nil
}

func (s *Store) GetActiveBranch(ctx context.Context, chatID string) (store.Branch, error) {
	branches, err := s.ListBranches(ctx, chatID)
	if err != nil {
		return store.Branch{}, err
	}
	for _, b := range branches {
		if b.IsActive {
			return b, nil
		}
	}
	return store.Branch{}, errs.NotFound("no active branch for chat %s", chatID)
}

func (s *Store) ListBranches(ctx context.Context, chatID string) ([]store.Branch, error) {
	var branches []store.Branch
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			bs, err := s.listBranchesTx(tx, chatID)
			branches = bs
			return err
		})
	})
	return branches, err
}

func (s *Store) SetActiveBranch(ctx context.Context, chatID, name string) error {
	unlock, err := s.chatLock(chatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket(bucketBranches)
			branches, err := s.listBranchesTx(tx, chatID)
			if err != nil {
				return err
			}
			found := false
			for _, b := range branches {
				b.IsActive = b.Name == name
				if b.Name == name {
					found = true
				}
				bb := boltBranch{ID: b.ID, ChatID: b.ChatID, Name: b.Name, HeadMessageID: b.HeadMessageID, IsActive: b.IsActive, CreatedAt: b.CreatedAt}
				data, err := json.Marshal(bb)
				if err != nil {
					return errs.Storage(err, "failed to marshal branch")
				}
				if err := bucket.Put(branchKey(chatID, b.Name), data); err != nil {
					return errs.Storage(err, "failed to update branch")
				}
			}
			if !found {
				return errs.NotFound("branch %s not found", name)
			}
			return nil
		})
	})
}

func (s *Store) AdvanceBranchHead(ctx context.Context, chatID, branchName, headMessageID string) error {
	unlock, err := s.chatLock(chatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket(bucketBranches)
			data := bucket.Get(branchKey(chatID, branchName))
			if data == nil {
				return errs.NotFound("branch %s not found", branchName)
			}
			var bb boltBranch
			if err := json.Unmarshal(data, &bb); err != nil {
				return errs.Storage(err, "failed to decode branch")
			}
			bb.HeadMessageID = headMessageID
			updated, err := json.Marshal(bb)
			if err != nil {
				return errs.Storage(err, "failed to marshal branch")
			}
			return bucket.Put(branchKey(chatID, branchName), updated)
		})
	})
}

func (s *Store) SetCheckpoint(ctx context.Context, cp store.Checkpoint) error {
	unlock, err := s.chatLock(cp.ChatID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			bc := boltCheckpoint{ID: cp.ID, ChatID: cp.ChatID, Name: cp.Name, MessageID: cp.MessageID, CreatedAt: cp.CreatedAt}
			data, err := json.Marshal(bc)
			if err != nil {
				return errs.Storage(err, "failed to marshal checkpoint")
			}
			return tx.Bucket(bucketCheckpoints).Put(branchKey(cp.ChatID, cp.Name), data)
		})
	})
}

func (s *Store) GetCheckpoint(ctx context.Context, chatID, name string) (store.Checkpoint, error) {
	var cp store.Checkpoint
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			data := tx.Bucket(bucketCheckpoints).Get(branchKey(chatID, name))
			if data == nil {
				return errs.NotFound("checkpoint %s not found", name)
			}
			var bc boltCheckpoint
			if err := json.Unmarshal(data, &bc); err != nil {
				return errs.Storage(err, "failed to decode checkpoint")
			}
			cp = bc.toDomain()
			return nil
		})
	})
	return cp, err
}

// Search performs a LIKE-style linear scan over the search_index bucket,
// always reporting rank = 1 (bbolt has no native FTS).
func (s *Store) Search(ctx context.Context, chatID, query string) ([]store.SearchResult, error) {
	var results []store.SearchResult
	needle := strings.ToLower(query)

	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			cursor := tx.Bucket(bucketSearchIndex).Cursor()
			prefix := []byte(chatID + ":")
			for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
				if !strings.Contains(strings.ToLower(string(v)), needle) {
					continue
				}
				msgData := tx.Bucket(bucketMessages).Get(k)
				if msgData == nil {
					continue
				}
				var bm boltMessage
				if err := json.Unmarshal(msgData, &bm); err != nil {
					continue
				}
				results = append(results, store.SearchResult{
					Message: bm.toDomain(),
					Rank:    1,
					Snippet: snippet(string(v)),
				})
			}
			return nil
		})
	})
	return results, err
}

func snippet(content string) string {
	if len(content) <= 200 {
		return content
	}
	return content[:197] + "..."
}

func (s *Store) GetGraph(ctx context.Context, chatID string) (store.Graph, error) {
	var graph store.Graph
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			cursor := tx.Bucket(bucketMessages).Cursor()
			prefix := []byte(chatID + ":")
			var nodes []store.GraphNode
			for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
				var bm boltMessage
				if err := json.Unmarshal(v, &bm); err != nil {
					continue
				}
				preview := string(bm.Data)
				if len(preview) > 50 {
					preview = preview[:50]
				}
				nodes = append(nodes, store.GraphNode{
					ID: bm.ID, ParentID: bm.ParentID, Role: bm.Name, Preview: preview, CreatedAt: bm.CreatedAt, Deleted: bm.Deleted,
				})
			}
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].CreatedAt.Before(nodes[j].CreatedAt) })

			branches, err := s.listBranchesTx(tx, chatID)
			if err != nil {
				return err
			}

			var checkpoints []store.Checkpoint
			cpCursor := tx.Bucket(bucketCheckpoints).Cursor()
			for k, v := cpCursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cpCursor.Next() {
				var bc boltCheckpoint
				if err := json.Unmarshal(v, &bc); err != nil {
					continue
				}
				checkpoints = append(checkpoints, bc.toDomain())
			}

			graph = store.Graph{Nodes: nodes, Branches: branches, Checkpoints: checkpoints}
			return nil
		})
	})
	return graph, err
}
