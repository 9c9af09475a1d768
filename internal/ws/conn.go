package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxFrame   = 512 * 1024
)

var errConnClosed = errors.New("connection closed")

// envelope is the wire framing: a named event with a structured payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Connection adapts a websocket to the engine's Conn contract. Outbound
// frames go through a bounded buffer drained by a single write pump, so
// the engine never blocks on a slow client; a full buffer closes the
// connection instead.
type Connection struct {
	id   string
	log  *slog.Logger
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConnection(log *slog.Logger, wsConn *websocket.Conn, buffer int) *Connection {
	id := newConnID()
	return &Connection{
		id:   id,
		log:  log.With("conn", id),
		ws:   wsConn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Send enqueues an event for delivery.
func (c *Connection) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errConnClosed
	case c.send <- frame:
		return nil
	default:
		c.log.Warn("send buffer full, closing connection", "event", event)
		c.Close()
		return errConnClosed
	}
}

// Close stops the write pump and tears the socket down. Safe to call more
// than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(writeWait)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("websocket write error", "err", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
