package models

import "time"

// MessageType is the closed set of payload variants a message can carry.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageAudio MessageType = "audio"
)

// MessageStatus is the delivery state of a message. Transitions only move
// forward on the lattice sent < delivered < read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Rank returns the position of the status on the delivery lattice.
func (s MessageStatus) Rank() int {
	return statusRank[s]
}

// Message represents a chat message in a room ledger.
type Message struct {
	ID         string        `json:"id"`
	RoomID     string        `json:"roomId"`
	SenderID   string        `json:"senderId"`
	SenderName string        `json:"senderName,omitempty"`
	ReceiverID string        `json:"receiverId,omitempty"`
	Content    string        `json:"content"`
	Type       MessageType   `json:"type"`
	FileName   string        `json:"fileName,omitempty"`
	FileURL    string        `json:"fileUrl,omitempty"`
	Audio      string        `json:"audio,omitempty"`
	Duration   float64       `json:"duration,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Status     MessageStatus `json:"status"`
	ReplyTo    string        `json:"replyTo,omitempty"`
	Edited     bool          `json:"edited,omitempty"`
	EditedAt   *time.Time    `json:"editedAt,omitempty"`
}

// Advance moves the status forward. It reports whether the message changed;
// re-applying a transition or applying a lower one is a no-op.
func (m *Message) Advance(next MessageStatus) bool {
	if next.Rank() <= m.Status.Rank() {
		return false
	}
	m.Status = next
	return true
}
