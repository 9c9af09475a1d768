package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/store"
	"messenger-service/internal/telemetry"
)

// session pairs a user identity with its current live connection. Last
// authenticate wins: a fresh session for the same user evicts the prior one.
type session struct {
	conn     Conn
	userID   string
	username string
}

type command interface {
	apply(e *Engine)
}

// Engine is the single reactor owning all shared delivery state: the
// session registry, room subscriptions, the message ledger and the unread
// counters. Every inbound event becomes a command consumed by one
// goroutine, so handlers mutate state to completion without locking and
// sends stay FIFO per room.
type Engine struct {
	log      *slog.Logger
	verifier TokenVerifier
	users    store.UserRepository
	ledger   *Ledger
	unread   *UnreadLedger
	rooms    *roomTable
	audit    *telemetry.AuditEmitter

	commands chan command
	known    map[Conn]struct{}
	sessions map[Conn]*session
	registry map[string]*session
}

// NewEngine wires the reactor. Call Load before Run to restore persisted
// state.
func NewEngine(log *slog.Logger, verifier TokenVerifier, users store.UserRepository, ledger *Ledger, audit *telemetry.AuditEmitter) *Engine {
	return &Engine{
		log:      log,
		verifier: verifier,
		users:    users,
		ledger:   ledger,
		unread:   NewUnreadLedger(),
		rooms:    newRoomTable(),
		audit:    audit,
		commands: make(chan command, 256),
		known:    make(map[Conn]struct{}),
		sessions: make(map[Conn]*session),
		registry: make(map[string]*session),
	}
}

// Load restores the room logs and rebuilds the unread counters from them.
func (e *Engine) Load() error {
	if err := e.ledger.Load(); err != nil {
		return err
	}
	e.unread.Rebuild(e.ledger)
	return nil
}

// Run consumes commands until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.commands:
			cmd.apply(e)
		}
	}
}

func (e *Engine) enqueue(cmd command) {
	e.commands <- cmd
}

// SendInput is a validated send-message request.
type SendInput struct {
	ReceiverID string
	RoomID     string
	Content    string
	Type       models.MessageType
	FileName   string
	FileURL    string
	Audio      string
	Duration   float64
	ReplyTo    string
}

// SignalInput is a relayed call-signaling request addressed by user id.
type SignalInput struct {
	To        string
	Offer     json.RawMessage
	Answer    json.RawMessage
	Candidate json.RawMessage
	IsVideo   bool
}

// Register announces a new connection before it authenticates.
func (e *Engine) Register(conn Conn) {
	e.enqueue(&registerCmd{conn: conn})
}

// Disconnect tears down a connection. The transport guarantees it is
// called exactly once per connection.
func (e *Engine) Disconnect(conn Conn) {
	e.enqueue(&disconnectCmd{conn: conn})
}

// Authenticate validates the token and binds the connection to its user.
func (e *Engine) Authenticate(conn Conn, token string) {
	e.enqueue(&authCmd{conn: conn, token: token})
}

// JoinRoom subscribes the connection and replays the room's full ledger.
func (e *Engine) JoinRoom(conn Conn, roomID string) {
	e.enqueue(&joinCmd{conn: conn, roomID: roomID})
}

// SendMessage appends a message and fans it out to the room.
func (e *Engine) SendMessage(conn Conn, in SendInput) {
	e.enqueue(&sendCmd{conn: conn, in: in})
}

// Typing relays a typing indicator to the rest of the room.
func (e *Engine) Typing(conn Conn, roomID string, isTyping bool) {
	e.enqueue(&typingCmd{conn: conn, roomID: roomID, isTyping: isTyping})
}

// MarkRead acknowledges every pending message from senderID to the caller.
func (e *Engine) MarkRead(conn Conn, senderID string) {
	e.enqueue(&markReadCmd{conn: conn, senderID: senderID})
}

// EditFromConn handles an edit request arriving over the connection.
func (e *Engine) EditFromConn(conn Conn, messageID, newContent string) {
	e.enqueue(&connEditCmd{conn: conn, messageID: messageID, newContent: newContent})
}

// DeleteFromConn handles a delete request arriving over the connection.
func (e *Engine) DeleteFromConn(conn Conn, messageID string) {
	e.enqueue(&connDeleteCmd{conn: conn, messageID: messageID})
}

// Relay forwards a call-signaling event to the addressed user, dropping it
// silently when the target is offline.
func (e *Engine) Relay(conn Conn, kind string, in SignalInput) {
	e.enqueue(&relayCmd{conn: conn, kind: kind, in: in})
}

type mutationResult struct {
	msg models.Message
	err error
}

// Edit performs the ownership-checked edit on behalf of callerID. The REST
// surface and the websocket path share this single ledger mutation.
func (e *Engine) Edit(ctx context.Context, callerID, messageID, newContent string) (models.Message, error) {
	reply := make(chan mutationResult, 1)
	cmd := &editCmd{callerID: callerID, messageID: messageID, newContent: newContent, reply: reply}
	return e.await(ctx, cmd, reply)
}

// Delete performs the ownership-checked hard delete on behalf of callerID.
func (e *Engine) Delete(ctx context.Context, callerID, messageID string) error {
	reply := make(chan mutationResult, 1)
	cmd := &deleteCmd{callerID: callerID, messageID: messageID, reply: reply}
	_, err := e.await(ctx, cmd, reply)
	return err
}

func (e *Engine) await(ctx context.Context, cmd command, reply chan mutationResult) (models.Message, error) {
	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.msg, res.err
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	}
}

// Online reports whether the user currently has a live session.
func (e *Engine) Online(ctx context.Context, userID string) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case e.commands <- &onlineCmd{userID: userID, reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case online := <-reply:
		return online, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (e *Engine) sessionFor(conn Conn) (*session, bool) {
	s, ok := e.sessions[conn]
	return s, ok
}

// publish delivers the event to every subscriber of the room, including
// the sender's own connection unless it is excluded.
func (e *Engine) publish(roomID, event string, payload any, except Conn) {
	for conn := range e.rooms.subscribers(roomID) {
		if conn == except {
			continue
		}
		if err := conn.Send(event, payload); err != nil {
			e.log.Warn("room publish failed", "room", roomID, "event", event, "err", err)
		}
	}
}

// broadcast delivers the event to every known connection except one.
func (e *Engine) broadcast(event string, payload any, except Conn) {
	for conn := range e.known {
		if conn == except {
			continue
		}
		if err := conn.Send(event, payload); err != nil {
			e.log.Warn("broadcast failed", "event", event, "err", err)
		}
	}
}

func (e *Engine) auditEmit(level, text, userID string) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(context.Background(), level, text, "", &userID)
}

type registerCmd struct {
	conn Conn
}

func (c *registerCmd) apply(e *Engine) {
	e.known[c.conn] = struct{}{}
	observability.IncWSActive()
}

type authCmd struct {
	conn  Conn
	token string
}

func (c *authCmd) apply(e *Engine) {
	userID, username, err := e.verifier.Identity(c.token)
	if err != nil {
		observability.IncWSEvent("auth_failed")
		_ = c.conn.Send(models.EventAuthError, map[string]string{"error": "invalid token"})
		return
	}

	if prior, ok := e.registry[userID]; ok && prior.conn != c.conn {
		// Last authenticate wins: the previous session is evicted and its
		// connection closed. The user never goes offline during the swap.
		e.rooms.leaveAll(prior.conn)
		delete(e.sessions, prior.conn)
		prior.conn.Close()
		observability.IncWSEvent("session_evicted")
	}

	s := &session{conn: c.conn, userID: userID, username: username}
	e.sessions[c.conn] = s
	e.registry[userID] = s

	now := time.Now().UTC()
	if err := e.users.UpdatePresence(userID, models.PresenceOnline, now); err != nil && !errors.Is(err, store.ErrUserNotFound) {
		e.log.Error("presence update failed", "user", userID, "err", err)
	}

	_ = c.conn.Send(models.EventAuthenticated, map[string]string{"userId": userID})
	_ = c.conn.Send(models.EventUnreadCounts, e.unread.Snapshot(userID))
	e.broadcast(models.EventStatusChange, models.PresenceEvent{UserID: userID, Status: models.PresenceOnline}, c.conn)
	observability.IncWSEvent("authenticated")
	e.auditEmit("INFO", "user authenticated", userID)
}

type disconnectCmd struct {
	conn Conn
}

func (c *disconnectCmd) apply(e *Engine) {
	if _, ok := e.known[c.conn]; ok {
		delete(e.known, c.conn)
		observability.DecWSActive()
	}
	e.rooms.leaveAll(c.conn)

	s, ok := e.sessions[c.conn]
	if !ok {
		return
	}
	delete(e.sessions, c.conn)

	// An evicted connection must not knock the replacement session offline.
	if current, ok := e.registry[s.userID]; !ok || current != s {
		return
	}
	delete(e.registry, s.userID)

	now := time.Now().UTC()
	if err := e.users.UpdatePresence(s.userID, models.PresenceOffline, now); err != nil && !errors.Is(err, store.ErrUserNotFound) {
		e.log.Error("presence update failed", "user", s.userID, "err", err)
	}
	e.broadcast(models.EventStatusChange, models.PresenceEvent{UserID: s.userID, Status: models.PresenceOffline}, c.conn)
	observability.IncWSEvent("disconnected")
	e.auditEmit("INFO", "user disconnected", s.userID)
}

type joinCmd struct {
	conn   Conn
	roomID string
}

func (c *joinCmd) apply(e *Engine) {
	if _, ok := e.sessionFor(c.conn); !ok {
		return
	}
	e.rooms.join(c.roomID, c.conn)
	// Full replay on every join, in original send order.
	_ = c.conn.Send(models.EventLoadMessages, e.ledger.Messages(c.roomID))
	observability.IncWSEvent("room_joined")
}

type sendCmd struct {
	conn Conn
	in   SendInput
}

func (c *sendCmd) apply(e *Engine) {
	s, ok := e.sessionFor(c.conn)
	if !ok {
		return
	}

	msgType := c.in.Type
	if msgType == "" {
		msgType = models.MessageText
	}
	msg := &models.Message{
		ID:         uuid.NewString(),
		RoomID:     c.in.RoomID,
		SenderID:   s.userID,
		SenderName: s.username,
		ReceiverID: c.in.ReceiverID,
		Content:    c.in.Content,
		Type:       msgType,
		FileName:   c.in.FileName,
		FileURL:    c.in.FileURL,
		Audio:      c.in.Audio,
		Duration:   c.in.Duration,
		Timestamp:  time.Now().UTC(),
		Status:     models.StatusSent,
		ReplyTo:    c.in.ReplyTo,
	}

	// The receiver being online promotes the message before the first
	// broadcast, saving a round trip.
	delivered := false
	if msg.ReceiverID != "" {
		if _, online := e.registry[msg.ReceiverID]; online {
			delivered = msg.Advance(models.StatusDelivered)
		}
	}

	e.ledger.Append(msg)
	e.publish(msg.RoomID, models.EventNewMessage, *msg, nil)
	if delivered {
		e.publish(msg.RoomID, models.EventStatusUpdate, models.StatusUpdateEvent{
			MessageID: msg.ID,
			Status:    models.StatusDelivered,
		}, nil)
	}

	if msg.ReceiverID != "" && msg.ReceiverID != s.userID {
		count := e.unread.Increment(msg.ReceiverID, s.userID)
		if receiver, online := e.registry[msg.ReceiverID]; online {
			_ = receiver.conn.Send(models.EventUnreadUpdate, models.UnreadUpdateEvent{
				SenderID: s.userID,
				Count:    count,
			})
		}
	}
	observability.IncWSEvent("message_sent")
	e.auditEmit("INFO", "message sent", s.userID)
}

type typingCmd struct {
	conn     Conn
	roomID   string
	isTyping bool
}

func (c *typingCmd) apply(e *Engine) {
	s, ok := e.sessionFor(c.conn)
	if !ok {
		return
	}
	// Typing is the one room event the originator does not receive back.
	e.publish(c.roomID, models.EventUserTyping, models.TypingEvent{
		UserID:   s.userID,
		Username: s.username,
		IsTyping: c.isTyping,
	}, c.conn)
}

type markReadCmd struct {
	conn     Conn
	senderID string
}

func (c *markReadCmd) apply(e *Engine) {
	s, ok := e.sessionFor(c.conn)
	if !ok {
		return
	}
	if !e.unread.Clear(s.userID, c.senderID) {
		return
	}

	roomID := RoomID(s.userID, c.senderID)
	e.ledger.AdvanceSender(roomID, c.senderID, models.StatusRead)

	// One batched update for the whole room instead of one per message.
	e.publish(roomID, models.EventStatusUpdate, models.StatusUpdateEvent{
		MessageID: "all",
		Status:    models.StatusRead,
		SenderID:  c.senderID,
	}, nil)

	if sender, online := e.registry[c.senderID]; online {
		_ = sender.conn.Send(models.EventMessagesReadBy, models.ReadReceiptEvent{
			ReaderID:   s.userID,
			ReaderName: s.username,
		})
	}
	observability.IncWSEvent("messages_read")
}

type connEditCmd struct {
	conn       Conn
	messageID  string
	newContent string
}

func (c *connEditCmd) apply(e *Engine) {
	s, ok := e.sessionFor(c.conn)
	if !ok {
		return
	}
	e.editAs(s.userID, c.messageID, c.newContent, nil)
}

type connDeleteCmd struct {
	conn      Conn
	messageID string
}

func (c *connDeleteCmd) apply(e *Engine) {
	s, ok := e.sessionFor(c.conn)
	if !ok {
		return
	}
	e.deleteAs(s.userID, c.messageID, nil)
}

type editCmd struct {
	callerID   string
	messageID  string
	newContent string
	reply      chan mutationResult
}

func (c *editCmd) apply(e *Engine) {
	e.editAs(c.callerID, c.messageID, c.newContent, c.reply)
}

type deleteCmd struct {
	callerID  string
	messageID string
	reply     chan mutationResult
}

func (c *deleteCmd) apply(e *Engine) {
	e.deleteAs(c.callerID, c.messageID, c.reply)
}

func (e *Engine) editAs(callerID, messageID, newContent string, reply chan mutationResult) {
	msg, err := e.ledger.Edit(callerID, messageID, newContent)
	if reply != nil {
		reply <- mutationResult{msg: msg, err: err}
	}
	if err != nil {
		e.log.Warn("edit rejected", "caller", callerID, "message", messageID, "err", err)
		return
	}
	e.publish(msg.RoomID, models.EventMessageEdited, models.EditEvent{
		MessageID:  msg.ID,
		NewContent: msg.Content,
		RoomID:     msg.RoomID,
	}, nil)
	observability.IncWSEvent("message_edited")
	e.auditEmit("INFO", "message edited", callerID)
}

func (e *Engine) deleteAs(callerID, messageID string, reply chan mutationResult) {
	msg, err := e.ledger.Remove(callerID, messageID)
	if reply != nil {
		reply <- mutationResult{msg: msg, err: err}
	}
	if err != nil {
		e.log.Warn("delete rejected", "caller", callerID, "message", messageID, "err", err)
		return
	}
	e.publish(msg.RoomID, models.EventMessageDeleted, models.DeleteEvent{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
	}, nil)
	observability.IncWSEvent("message_deleted")
	e.auditEmit("INFO", "message deleted", callerID)
}

type relayCmd struct {
	conn Conn
	kind string
	in   SignalInput
}

func (c *relayCmd) apply(e *Engine) {
	s, ok := e.sessionFor(c.conn)
	if !ok {
		return
	}
	target, online := e.registry[c.in.To]
	if !online {
		// Not an error: the caller's own timeout is the recovery mechanism.
		observability.IncRelayDrop(c.kind)
		e.log.Debug("signal dropped, target offline", "kind", c.kind, "to", c.in.To)
		return
	}
	_ = target.conn.Send(c.kind, models.SignalEvent{
		From:      s.userID,
		FromName:  s.username,
		Offer:     c.in.Offer,
		Answer:    c.in.Answer,
		Candidate: c.in.Candidate,
		IsVideo:   c.in.IsVideo,
	})
	observability.IncWSEvent("signal_relayed")
}

type onlineCmd struct {
	userID string
	reply  chan bool
}

func (c *onlineCmd) apply(e *Engine) {
	_, online := e.registry[c.userID]
	c.reply <- online
}
