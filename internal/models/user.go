package models

import "time"

// Presence is the connectivity state of a user.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// User is a registered account as stored. It is never rendered to clients
// directly; the API surfaces carry userResponse and Contact views instead.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Avatar       string    `json:"avatar"`
	Status       Presence  `json:"status"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Contact is the API-friendly view of another user.
type Contact struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar"`
	Status   Presence  `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}
