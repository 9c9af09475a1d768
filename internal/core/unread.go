package core

import (
	"github.com/samber/lo"

	"messenger-service/internal/models"
)

// UnreadLedger tracks pending counters per recipient, per sender. Counters
// are cleared in full on acknowledgement, never decremented, and can be
// rebuilt exactly from the message ledger.
type UnreadLedger struct {
	counters map[string]map[string]int
}

// NewUnreadLedger builds an empty unread ledger.
func NewUnreadLedger() *UnreadLedger {
	return &UnreadLedger{counters: make(map[string]map[string]int)}
}

// Increment bumps the recipient's pending counter for the sender and
// returns the new value.
func (u *UnreadLedger) Increment(recipientID, senderID string) int {
	pending := u.counters[recipientID]
	if pending == nil {
		pending = make(map[string]int)
		u.counters[recipientID] = pending
	}
	pending[senderID]++
	return pending[senderID]
}

// Clear removes the recipient's entry for the sender in full. It reports
// whether anything was pending.
func (u *UnreadLedger) Clear(recipientID, senderID string) bool {
	pending, ok := u.counters[recipientID]
	if !ok {
		return false
	}
	if _, ok := pending[senderID]; !ok {
		return false
	}
	delete(pending, senderID)
	if len(pending) == 0 {
		delete(u.counters, recipientID)
	}
	return true
}

// Count returns the pending counter for a sender, zero when absent.
func (u *UnreadLedger) Count(recipientID, senderID string) int {
	return u.counters[recipientID][senderID]
}

// Snapshot returns a copy of the recipient's pending map, keyed by sender.
func (u *UnreadLedger) Snapshot(recipientID string) map[string]int {
	pending, ok := u.counters[recipientID]
	if !ok {
		return map[string]int{}
	}
	return lo.Assign(map[string]int{}, pending)
}

// Rebuild recomputes every counter from the ledger: a message counts while
// it is addressed to someone else and still below read.
func (u *UnreadLedger) Rebuild(ledger *Ledger) {
	u.counters = make(map[string]map[string]int)
	ledger.Each(func(_ string, msg models.Message) {
		if msg.ReceiverID == "" || msg.ReceiverID == msg.SenderID {
			return
		}
		if msg.Status.Rank() >= models.StatusRead.Rank() {
			return
		}
		u.Increment(msg.ReceiverID, msg.SenderID)
	})
}
