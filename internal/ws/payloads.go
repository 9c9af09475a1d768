package ws

import "encoding/json"

// Inbound payload shapes. Validation happens here, at the boundary:
// malformed or unknown shapes are rejected on decode, never deeper in.

type authPayload struct {
	Token string `json:"token" validate:"required"`
}

type joinPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// sendMessagePayload is a closed variant over {text, file, audio}: each
// type requires exactly its own fields.
type sendMessagePayload struct {
	Content    string  `json:"content"`
	ReceiverID string  `json:"receiverId" validate:"required"`
	RoomID     string  `json:"roomId" validate:"required"`
	Type       string  `json:"type" validate:"omitempty,oneof=text file audio"`
	FileName   string  `json:"fileName" validate:"required_if=Type file"`
	FileURL    string  `json:"fileUrl" validate:"required_if=Type file"`
	Audio      string  `json:"audio" validate:"required_if=Type audio"`
	Duration   float64 `json:"duration"`
	ReplyTo    string  `json:"replyTo"`
}

type markReadPayload struct {
	SenderID string `json:"senderId" validate:"required"`
}

type typingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type editPayload struct {
	MessageID  string `json:"messageId" validate:"required"`
	NewContent string `json:"newContent" validate:"required"`
	RoomID     string `json:"roomId"`
}

type deletePayload struct {
	MessageID string `json:"messageId" validate:"required"`
	RoomID    string `json:"roomId"`
}

type signalPayload struct {
	To        string          `json:"to" validate:"required"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
	IsVideo   bool            `json:"isVideo"`
}
