package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/store"
)

type sentEvent struct {
	name    string
	payload any
}

// fakeConn records everything the engine pushes at it.
type fakeConn struct {
	mu     sync.Mutex
	events []sentEvent
	closed bool
}

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{name: event, payload: payload})
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sent(event string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var payloads []any
	for _, e := range c.events {
		if e.name == event {
			payloads = append(payloads, e.payload)
		}
	}
	return payloads
}

func (c *fakeConn) lastPayload(event string) (any, bool) {
	payloads := c.sent(event)
	if len(payloads) == 0 {
		return nil, false
	}
	return payloads[len(payloads)-1], true
}

type staticVerifier map[string][2]string

func (v staticVerifier) Identity(token string) (string, string, error) {
	ident, ok := v[token]
	if !ok {
		return "", "", ErrNotAuthenticated
	}
	return ident[0], ident[1], nil
}

type engineFixture struct {
	engine *Engine
	users  *mocks.UserRepositoryMock
	repo   *mocks.LedgerRepositoryMock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	repo := new(mocks.LedgerRepositoryMock)
	repo.On("Load").Return(map[string][]store.Entry{}, nil).Maybe()
	repo.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	repo.On("Delete", mock.Anything, mock.Anything).Return(nil).Maybe()

	users := new(mocks.UserRepositoryMock)
	users.On("UpdatePresence", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	verifier := staticVerifier{
		"t1": {"u1", "alice"},
		"t2": {"u2", "bob"},
	}

	engine := NewEngine(testLogger(), verifier, users, NewLedger(testLogger(), repo), nil)
	require.NoError(t, engine.Load())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	return &engineFixture{engine: engine, users: users, repo: repo}
}

// settle round-trips a command through the reactor, so every previously
// enqueued command has been applied once it returns.
func (f *engineFixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.engine.Online(ctx, "settle-barrier")
	require.NoError(t, err)
}

func (f *engineFixture) connect(t *testing.T, token string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	f.engine.Register(conn)
	f.engine.Authenticate(conn, token)
	f.settle(t)
	return conn
}

func (f *engineFixture) online(t *testing.T, userID string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	online, err := f.engine.Online(ctx, userID)
	require.NoError(t, err)
	return online
}

func TestAuthenticateBindsSession(t *testing.T) {
	f := newEngineFixture(t)

	conn := f.connect(t, "t1")

	payload, ok := conn.lastPayload(models.EventAuthenticated)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"userId": "u1"}, payload)

	counts, ok := conn.lastPayload(models.EventUnreadCounts)
	require.True(t, ok)
	assert.Equal(t, map[string]int{}, counts)

	assert.True(t, f.online(t, "u1"))
	f.users.AssertCalled(t, "UpdatePresence", "u1", models.PresenceOnline, mock.Anything)
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	f := newEngineFixture(t)

	conn := &fakeConn{}
	f.engine.Register(conn)
	f.engine.Authenticate(conn, "bogus")
	f.settle(t)

	_, ok := conn.lastPayload(models.EventAuthError)
	assert.True(t, ok)
	assert.False(t, f.online(t, "u1"))
}

func TestPresenceBroadcastOnConnectAndDisconnect(t *testing.T) {
	f := newEngineFixture(t)

	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")

	payload, ok := conn1.lastPayload(models.EventStatusChange)
	require.True(t, ok)
	assert.Equal(t, models.PresenceEvent{UserID: "u2", Status: models.PresenceOnline}, payload)

	f.engine.Disconnect(conn2)
	f.settle(t)

	payload, ok = conn1.lastPayload(models.EventStatusChange)
	require.True(t, ok)
	assert.Equal(t, models.PresenceEvent{UserID: "u2", Status: models.PresenceOffline}, payload)
	assert.False(t, f.online(t, "u2"))
}

func TestSendDeliversToOnlineReceiver(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")

	roomID := RoomID("u1", "u2")
	f.engine.JoinRoom(conn1, roomID)
	f.engine.JoinRoom(conn2, roomID)
	f.settle(t)

	replay, ok := conn2.lastPayload(models.EventLoadMessages)
	require.True(t, ok)
	assert.Empty(t, replay.([]models.Message))

	f.engine.SendMessage(conn1, SendInput{ReceiverID: "u2", RoomID: roomID, Content: "hello"})
	f.settle(t)

	// The receiver was online before the first broadcast, so the message
	// already arrives as delivered.
	payload, ok := conn2.lastPayload(models.EventNewMessage)
	require.True(t, ok)
	msg := payload.(models.Message)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, "alice", msg.SenderName)
	assert.Equal(t, models.MessageText, msg.Type)
	assert.Equal(t, models.StatusDelivered, msg.Status)

	update, ok := conn1.lastPayload(models.EventStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, models.StatusUpdateEvent{MessageID: msg.ID, Status: models.StatusDelivered}, update)

	counter, ok := conn2.lastPayload(models.EventUnreadUpdate)
	require.True(t, ok)
	assert.Equal(t, models.UnreadUpdateEvent{SenderID: "u1", Count: 1}, counter)
}

func TestSendToOfflineReceiverStaysSent(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")

	roomID := RoomID("u1", "u2")
	f.engine.JoinRoom(conn1, roomID)
	f.engine.SendMessage(conn1, SendInput{ReceiverID: "u2", RoomID: roomID, Content: "anyone there"})
	f.settle(t)

	payload, ok := conn1.lastPayload(models.EventNewMessage)
	require.True(t, ok)
	assert.Equal(t, models.StatusSent, payload.(models.Message).Status)
	assert.Empty(t, conn1.sent(models.EventStatusUpdate))

	// The counter accrues while the receiver is away and is pushed in the
	// snapshot when they authenticate.
	conn2 := f.connect(t, "t2")
	counts, ok := conn2.lastPayload(models.EventUnreadCounts)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"u1": 1}, counts)
}

func TestMarkReadBatchesAndNotifiesSender(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")

	roomID := RoomID("u1", "u2")
	f.engine.JoinRoom(conn1, roomID)
	f.engine.JoinRoom(conn2, roomID)
	f.engine.SendMessage(conn1, SendInput{ReceiverID: "u2", RoomID: roomID, Content: "one"})
	f.engine.SendMessage(conn1, SendInput{ReceiverID: "u2", RoomID: roomID, Content: "two"})
	f.engine.MarkRead(conn2, "u1")
	f.settle(t)

	update, ok := conn2.lastPayload(models.EventStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, models.StatusUpdateEvent{MessageID: "all", Status: models.StatusRead, SenderID: "u1"}, update)

	receipt, ok := conn1.lastPayload(models.EventMessagesReadBy)
	require.True(t, ok)
	assert.Equal(t, models.ReadReceiptEvent{ReaderID: "u2", ReaderName: "bob"}, receipt)

	// Nothing pending anymore: a repeated ack emits no further updates.
	before := len(conn2.sent(models.EventStatusUpdate))
	f.engine.MarkRead(conn2, "u1")
	f.settle(t)
	assert.Equal(t, before, len(conn2.sent(models.EventStatusUpdate)))
}

func TestEditAndDeleteEnforceOwnership(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")

	roomID := RoomID("u1", "u2")
	f.engine.JoinRoom(conn1, roomID)
	f.engine.JoinRoom(conn2, roomID)
	f.engine.SendMessage(conn1, SendInput{ReceiverID: "u2", RoomID: roomID, Content: "draft"})
	f.settle(t)

	payload, ok := conn2.lastPayload(models.EventNewMessage)
	require.True(t, ok)
	messageID := payload.(models.Message).ID

	ctx := context.Background()

	_, err := f.engine.Edit(ctx, "u2", messageID, "hijacked")
	require.ErrorIs(t, err, ErrNotSender)
	assert.Empty(t, conn2.sent(models.EventMessageEdited))

	edited, err := f.engine.Edit(ctx, "u1", messageID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.Edited)
	f.settle(t)

	event, ok := conn2.lastPayload(models.EventMessageEdited)
	require.True(t, ok)
	assert.Equal(t, models.EditEvent{MessageID: messageID, NewContent: "final", RoomID: roomID}, event)

	require.ErrorIs(t, f.engine.Delete(ctx, "u2", messageID), ErrNotSender)
	require.NoError(t, f.engine.Delete(ctx, "u1", messageID))
	f.settle(t)

	deleted, ok := conn1.lastPayload(models.EventMessageDeleted)
	require.True(t, ok)
	assert.Equal(t, models.DeleteEvent{MessageID: messageID, RoomID: roomID}, deleted)

	require.ErrorIs(t, f.engine.Delete(ctx, "u1", messageID), ErrMessageNotFound)
}

func TestEditFromConnRequiresSession(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	roomID := RoomID("u1", "u2")
	f.engine.JoinRoom(conn1, roomID)
	f.engine.SendMessage(conn1, SendInput{ReceiverID: "u2", RoomID: roomID, Content: "draft"})
	f.settle(t)

	payload, _ := conn1.lastPayload(models.EventNewMessage)
	messageID := payload.(models.Message).ID

	stranger := &fakeConn{}
	f.engine.Register(stranger)
	f.engine.EditFromConn(stranger, messageID, "hijacked")
	f.engine.DeleteFromConn(stranger, messageID)
	f.settle(t)

	assert.Empty(t, conn1.sent(models.EventMessageEdited))
	assert.Empty(t, conn1.sent(models.EventMessageDeleted))
}

func TestLastAuthenticateWins(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")
	replacement := f.connect(t, "t1")

	assert.True(t, conn1.isClosed())
	assert.False(t, replacement.isClosed())

	// The evicted connection's teardown must not knock the fresh session
	// offline or announce the user as gone.
	before := len(conn2.sent(models.EventStatusChange))
	f.engine.Disconnect(conn1)
	f.settle(t)

	assert.True(t, f.online(t, "u1"))
	assert.Equal(t, before, len(conn2.sent(models.EventStatusChange)))

	f.engine.Disconnect(replacement)
	f.settle(t)
	assert.False(t, f.online(t, "u1"))
}

func TestTypingExcludesOriginator(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")

	roomID := RoomID("u1", "u2")
	f.engine.JoinRoom(conn1, roomID)
	f.engine.JoinRoom(conn2, roomID)
	f.engine.Typing(conn1, roomID, true)
	f.settle(t)

	payload, ok := conn2.lastPayload(models.EventUserTyping)
	require.True(t, ok)
	assert.Equal(t, models.TypingEvent{UserID: "u1", Username: "alice", IsTyping: true}, payload)
	assert.Empty(t, conn1.sent(models.EventUserTyping))
}

func TestRelayCarriesVerifiedSender(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")

	offer := json.RawMessage(`{"sdp":"v=0"}`)
	f.engine.Relay(conn1, models.EventCallOffer, SignalInput{To: "u2", Offer: offer, IsVideo: true})
	f.settle(t)

	payload, ok := conn2.lastPayload(models.EventCallOffer)
	require.True(t, ok)
	signal := payload.(models.SignalEvent)
	assert.Equal(t, "u1", signal.From)
	assert.Equal(t, "alice", signal.FromName)
	assert.Equal(t, offer, signal.Offer)
	assert.True(t, signal.IsVideo)
}

func TestRelayDropsWhenTargetOffline(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")

	f.engine.Relay(conn1, models.EventCallOffer, SignalInput{To: "u9"})
	f.settle(t)

	assert.Empty(t, conn1.sent(models.EventCallOffer))
}

func TestSendOrderIsPreserved(t *testing.T) {
	f := newEngineFixture(t)
	conn1 := f.connect(t, "t1")
	conn2 := f.connect(t, "t2")

	roomID := RoomID("u1", "u2")
	f.engine.JoinRoom(conn1, roomID)
	f.engine.JoinRoom(conn2, roomID)
	for _, content := range []string{"a", "b", "c"} {
		f.engine.SendMessage(conn1, SendInput{ReceiverID: "u2", RoomID: roomID, Content: content})
	}
	f.settle(t)

	var got []string
	for _, payload := range conn2.sent(models.EventNewMessage) {
		got = append(got, payload.(models.Message).Content)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	// A latecomer replays the same order.
	late := f.connect(t, "t2")
	f.engine.JoinRoom(late, roomID)
	f.settle(t)

	replay, ok := late.lastPayload(models.EventLoadMessages)
	require.True(t, ok)
	msgs := replay.([]models.Message)
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "c", msgs[2].Content)
}

func TestLoadRebuildsUnreadCounters(t *testing.T) {
	repo := new(mocks.LedgerRepositoryMock)
	repo.On("Load").Return(map[string][]store.Entry{
		"u1-u2": {
			{Seq: 1, Message: models.Message{ID: "m1", RoomID: "u1-u2", SenderID: "u1", ReceiverID: "u2", Status: models.StatusSent}},
			{Seq: 2, Message: models.Message{ID: "m2", RoomID: "u1-u2", SenderID: "u1", ReceiverID: "u2", Status: models.StatusDelivered}},
			{Seq: 3, Message: models.Message{ID: "m3", RoomID: "u1-u2", SenderID: "u2", ReceiverID: "u1", Status: models.StatusRead}},
		},
	}, nil).Once()

	users := new(mocks.UserRepositoryMock)
	users.On("UpdatePresence", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	engine := NewEngine(testLogger(), staticVerifier{"t2": {"u2", "bob"}}, users, NewLedger(testLogger(), repo), nil)
	require.NoError(t, engine.Load())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	f := &engineFixture{engine: engine, users: users, repo: repo}
	conn := f.connect(t, "t2")

	counts, ok := conn.lastPayload(models.EventUnreadCounts)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"u1": 2}, counts)
	repo.AssertExpectations(t)
}
