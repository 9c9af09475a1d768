package models

import "encoding/json"

// Wire event names exchanged over the per-connection channel.
const (
	EventAuthenticate   = "authenticate"
	EventAuthenticated  = "authenticated"
	EventAuthError      = "authentication-error"
	EventJoinRoom       = "join-room"
	EventLoadMessages   = "load-messages"
	EventSendMessage    = "send-message"
	EventNewMessage     = "new-message"
	EventStatusUpdate   = "message-status-update"
	EventMarkRead       = "mark-messages-read"
	EventMessagesReadBy = "messages-read-by"
	EventUnreadUpdate   = "unread-count-update"
	EventUnreadCounts   = "unread-counts"
	EventTyping         = "typing"
	EventUserTyping     = "user-typing"
	EventStatusChange   = "user-status-change"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventCallOffer      = "call-offer"
	EventCallAnswer     = "call-answer"
	EventICECandidate   = "ice-candidate"
	EventCallEnd        = "call-end"
	EventCallReject     = "call-reject"
)

// PresenceEvent is broadcast to every other connection on a presence flip.
type PresenceEvent struct {
	UserID string   `json:"userId"`
	Status Presence `json:"status"`
}

// StatusUpdateEvent carries a delivery-status transition. MessageID "all"
// batches every message from SenderID in the room.
type StatusUpdateEvent struct {
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
	SenderID  string        `json:"senderId,omitempty"`
}

// ReadReceiptEvent tells a sender that their messages were read.
type ReadReceiptEvent struct {
	ReaderID   string `json:"readerId"`
	ReaderName string `json:"readerName"`
}

// UnreadUpdateEvent is an incremental pending-counter push.
type UnreadUpdateEvent struct {
	SenderID string `json:"senderId"`
	Count    int    `json:"count"`
}

// TypingEvent is relayed to the rest of the room as user-typing.
type TypingEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// EditEvent notifies a room of an in-place content mutation.
type EditEvent struct {
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
	RoomID     string `json:"roomId"`
}

// DeleteEvent notifies a room of a hard removal.
type DeleteEvent struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// SignalEvent is a relayed call-signaling payload. From is always the
// verified sender identity; the opaque fields pass through untouched.
type SignalEvent struct {
	From      string          `json:"from"`
	FromName  string          `json:"fromName,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	IsVideo   bool            `json:"isVideo,omitempty"`
}
