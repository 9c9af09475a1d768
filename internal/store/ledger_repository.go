package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"messenger-service/internal/models"
)

const msgPrefix = "msg:"

// Entry pairs a persisted message with its append sequence. The sequence
// orders the room log and doubles as the storage key.
type Entry struct {
	Seq     uint64
	Message models.Message
}

// LedgerRepository persists per-room message logs. Messages are keyed
// msg:<roomID>:<seq> so a prefix scan yields one room in send order,
// keeping every mutation O(1) instead of rewriting the whole log.
type LedgerRepository interface {
	Put(roomID string, seq uint64, msg models.Message) error
	Delete(roomID string, seq uint64) error
	Load() (map[string][]Entry, error)
}

// LedgerRepo is the badger-backed implementation.
type LedgerRepo struct {
	db *badger.DB
}

// NewLedgerRepo constructs a LedgerRepo.
func NewLedgerRepo(db *badger.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func msgKey(roomID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", msgPrefix, roomID, seq))
}

// Put writes a message at its sequence slot. Appends and in-place
// mutations (edit, status transition) use the same call.
func (r *LedgerRepo) Put(roomID string, seq uint64, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(msgKey(roomID, seq), data)
	})
}

// Delete removes a message entirely.
func (r *LedgerRepo) Delete(roomID string, seq uint64) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(msgKey(roomID, seq))
	})
}

// Load reads every room log back into memory, in send order per room.
func (r *LedgerRepo) Load() (map[string][]Entry, error) {
	rooms := make(map[string][]Entry)
	prefix := []byte(msgPrefix)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			roomID, seq, err := parseMsgKey(string(item.Key()))
			if err != nil {
				return err
			}
			err = item.Value(func(v []byte) error {
				var msg models.Message
				if err := json.Unmarshal(v, &msg); err != nil {
					return fmt.Errorf("decode message %s: %w", item.Key(), err)
				}
				rooms[roomID] = append(rooms[roomID], Entry{Seq: seq, Message: msg})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func parseMsgKey(key string) (string, uint64, error) {
	rest := strings.TrimPrefix(key, msgPrefix)
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed ledger key %q", key)
	}
	var seq uint64
	if _, err := fmt.Sscanf(rest[idx+1:], "%d", &seq); err != nil {
		return "", 0, fmt.Errorf("malformed ledger key %q: %w", key, err)
	}
	return rest[:idx], seq, nil
}
