package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/core"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// Handler upgrades websocket connections and turns inbound frames into
// engine commands.
type Handler struct {
	log      *slog.Logger
	engine   *core.Engine
	validate *validator.Validate
	buffer   int
}

// NewHandler constructs a Handler. buffer bounds the per-connection
// outbound queue.
func NewHandler(log *slog.Logger, engine *core.Engine, buffer int) *Handler {
	return &Handler{
		log:      log,
		engine:   engine,
		validate: validator.New(),
		buffer:   buffer,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts its read loop. Authentication
// happens over the channel itself, via the authenticate event.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := newConnection(h.log.With("ip", observability.IPFromRequest(c.Request)), wsConn, h.buffer)
	go conn.writePump()
	h.engine.Register(conn)

	go h.readLoop(conn, wsConn)
}

func (h *Handler) readLoop(conn *Connection, wsConn *websocket.Conn) {
	defer func() {
		conn.Close()
		// Exactly once per connection teardown, abrupt loss included.
		h.engine.Disconnect(conn)
	}()

	wsConn.SetReadLimit(maxFrame)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := wsConn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.log.Debug("websocket read error", "err", err)
			}
			return
		}
		h.dispatch(conn, frame)
	}
}

// dispatch decodes one inbound frame. A malformed frame is logged and
// dropped; it never tears the connection down.
func (h *Handler) dispatch(conn *Connection, frame []byte) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		conn.log.Warn("malformed frame", "err", err)
		observability.IncWSEvent("malformed_frame")
		return
	}

	switch env.Event {
	case models.EventAuthenticate:
		var p authPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.engine.Authenticate(conn, p.Token)

	case models.EventJoinRoom:
		var p joinPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.engine.JoinRoom(conn, p.RoomID)

	case models.EventSendMessage:
		var p sendMessagePayload
		if !h.decode(conn, env, &p) {
			return
		}
		if (p.Type == "" || p.Type == string(models.MessageText)) && p.Content == "" {
			conn.log.Warn("rejected payload", "event", env.Event, "err", "text message without content")
			observability.IncWSEvent("rejected_payload")
			return
		}
		h.engine.SendMessage(conn, core.SendInput{
			ReceiverID: p.ReceiverID,
			RoomID:     p.RoomID,
			Content:    p.Content,
			Type:       models.MessageType(p.Type),
			FileName:   p.FileName,
			FileURL:    p.FileURL,
			Audio:      p.Audio,
			Duration:   p.Duration,
			ReplyTo:    p.ReplyTo,
		})

	case models.EventMarkRead:
		var p markReadPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.engine.MarkRead(conn, p.SenderID)

	case models.EventTyping:
		var p typingPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.engine.Typing(conn, p.RoomID, p.IsTyping)

	case models.EventMessageEdited:
		var p editPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.engine.EditFromConn(conn, p.MessageID, p.NewContent)

	case models.EventMessageDeleted:
		var p deletePayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.engine.DeleteFromConn(conn, p.MessageID)

	case models.EventCallOffer, models.EventCallAnswer, models.EventICECandidate,
		models.EventCallEnd, models.EventCallReject:
		var p signalPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.engine.Relay(conn, env.Event, core.SignalInput{
			To:        p.To,
			Offer:     p.Offer,
			Answer:    p.Answer,
			Candidate: p.Candidate,
			IsVideo:   p.IsVideo,
		})

	default:
		conn.log.Warn("unknown event", "event", env.Event)
		observability.IncWSEvent("unknown_event")
	}
}

func (h *Handler) decode(conn *Connection, env envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		conn.log.Warn("rejected payload", "event", env.Event, "err", err)
		observability.IncWSEvent("rejected_payload")
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		conn.log.Warn("rejected payload", "event", env.Event, "err", err)
		observability.IncWSEvent("rejected_payload")
		return false
	}
	return true
}
