package core

import "errors"

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotSender        = errors.New("caller is not the message sender")
	ErrNotAuthenticated = errors.New("connection is not authenticated")
)

// Conn is the transport handle the engine addresses a client by. Send must
// not block: implementations enqueue into a bounded buffer and fail fast
// when the client cannot keep up.
type Conn interface {
	Send(event string, payload any) error
	Close()
}

// TokenVerifier checks a credential token and returns the identity it
// carries.
type TokenVerifier interface {
	Identity(token string) (userID, username string, err error)
}
