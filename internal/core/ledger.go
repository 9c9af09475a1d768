package core

import (
	"log/slog"
	"time"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/store"
)

type ledgerEntry struct {
	seq uint64
	msg *models.Message
}

type roomLog struct {
	entries []*ledgerEntry
	lastSeq uint64
}

// Ledger is the ordered, mutable message log per room. All methods run on
// the reactor goroutine; persistence is synchronous and the in-memory log
// stays authoritative when a write fails.
type Ledger struct {
	log   *slog.Logger
	repo  store.LedgerRepository
	rooms map[string]*roomLog
	index map[string]string // message id -> room id
}

// NewLedger builds an empty ledger on top of the repository.
func NewLedger(log *slog.Logger, repo store.LedgerRepository) *Ledger {
	return &Ledger{
		log:   log,
		repo:  repo,
		rooms: make(map[string]*roomLog),
		index: make(map[string]string),
	}
}

// Load restores every room log from the repository.
func (l *Ledger) Load() error {
	rooms, err := l.repo.Load()
	if err != nil {
		return err
	}
	for roomID, entries := range rooms {
		room := &roomLog{}
		for i := range entries {
			msg := entries[i].Message
			room.entries = append(room.entries, &ledgerEntry{seq: entries[i].Seq, msg: &msg})
			if entries[i].Seq > room.lastSeq {
				room.lastSeq = entries[i].Seq
			}
			l.index[msg.ID] = roomID
		}
		l.rooms[roomID] = room
	}
	return nil
}

func (l *Ledger) room(roomID string) *roomLog {
	room := l.rooms[roomID]
	if room == nil {
		room = &roomLog{}
		l.rooms[roomID] = room
	}
	return room
}

func (l *Ledger) persist(roomID string, seq uint64, msg *models.Message) {
	if err := l.repo.Put(roomID, seq, *msg); err != nil {
		observability.IncPersistenceError()
		l.log.Error("ledger write failed, in-memory state stays authoritative",
			"room", roomID, "message", msg.ID, "err", err)
	}
}

// Append adds a message to the end of its room log and persists it.
func (l *Ledger) Append(msg *models.Message) {
	room := l.room(msg.RoomID)
	room.lastSeq++
	room.entries = append(room.entries, &ledgerEntry{seq: room.lastSeq, msg: msg})
	l.index[msg.ID] = msg.RoomID
	l.persist(msg.RoomID, room.lastSeq, msg)
}

// Messages returns a copy of the room log in send order.
func (l *Ledger) Messages(roomID string) []models.Message {
	room := l.rooms[roomID]
	if room == nil {
		return []models.Message{}
	}
	msgs := make([]models.Message, 0, len(room.entries))
	for _, e := range room.entries {
		msgs = append(msgs, *e.msg)
	}
	return msgs
}

func (l *Ledger) find(messageID string) (*roomLog, *ledgerEntry, string, bool) {
	roomID, ok := l.index[messageID]
	if !ok {
		return nil, nil, "", false
	}
	room := l.rooms[roomID]
	for _, e := range room.entries {
		if e.msg.ID == messageID {
			return room, e, roomID, true
		}
	}
	return nil, nil, "", false
}

// Edit mutates the content of a message owned by callerID. The message
// keeps its id, timestamp and position in the log.
func (l *Ledger) Edit(callerID, messageID, newContent string) (models.Message, error) {
	_, entry, roomID, ok := l.find(messageID)
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	if entry.msg.SenderID != callerID {
		return models.Message{}, ErrNotSender
	}
	now := time.Now().UTC()
	entry.msg.Content = newContent
	entry.msg.Edited = true
	entry.msg.EditedAt = &now
	l.persist(roomID, entry.seq, entry.msg)
	return *entry.msg, nil
}

// Remove hard-deletes a message owned by callerID from its room log.
func (l *Ledger) Remove(callerID, messageID string) (models.Message, error) {
	room, entry, roomID, ok := l.find(messageID)
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	if entry.msg.SenderID != callerID {
		return models.Message{}, ErrNotSender
	}
	for i, e := range room.entries {
		if e == entry {
			room.entries = append(room.entries[:i], room.entries[i+1:]...)
			break
		}
	}
	delete(l.index, messageID)
	if err := l.repo.Delete(roomID, entry.seq); err != nil {
		observability.IncPersistenceError()
		l.log.Error("ledger delete failed", "room", roomID, "message", messageID, "err", err)
	}
	return *entry.msg, nil
}

// AdvanceSender moves every message from senderID in the room that is
// still below status forward to it, returning how many changed.
// Re-applying is idempotent and a status never regresses.
func (l *Ledger) AdvanceSender(roomID, senderID string, status models.MessageStatus) int {
	room := l.rooms[roomID]
	if room == nil {
		return 0
	}
	changed := 0
	for _, e := range room.entries {
		if e.msg.SenderID != senderID {
			continue
		}
		if e.msg.Advance(status) {
			l.persist(roomID, e.seq, e.msg)
			changed++
		}
	}
	return changed
}

// Each walks every message in every room, used to rebuild derived state.
func (l *Ledger) Each(fn func(roomID string, msg models.Message)) {
	for roomID, room := range l.rooms {
		for _, e := range room.entries {
			fn(roomID, *e.msg)
		}
	}
}
