package socket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/service/assistant"
	chatservice "github.com/atelierdesign/site-chat/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Handler serves the widget's persistent event channel.
type Handler struct {
	chatSvc   *chatservice.Service
	responder assistant.Responder
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// New creates the websocket handler.
func New(chatSvc *chatservice.Service, responder assistant.Responder, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		responder: responder,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With().Str("component", "chat-ws").Logger(),
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// connection is the per-socket state. Frames are only written from the read
// loop; pings go through WriteControl, which gorilla allows concurrently.
type connection struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	sessionID string
	userID    string
	logger    zerolog.Logger
}

func (c *connection) send(event chat.Event, payload any) error {
	frame, err := chat.NewFrame(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(frame)
}

func (c *connection) sendError(message string) {
	if err := c.send(chat.EventError, chat.ErrorPayload{Message: message}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send error frame")
	}
}

// rejectJoin reports a refused join and closes the socket, so the client
// falls back to disconnected instead of waiting for a confirmation.
func (c *connection) rejectJoin(message string) error {
	c.sendError(message)
	c.logger.Info().Str("reason", message).Msg("join rejected")

	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message)
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug().Err(err).Msg("failed to send close frame")
	}
	return errJoinRejected
}

var errJoinRejected = errors.New("join rejected")

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.chatSvc == nil {
		http.Error(w, "chat service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &connection{conn: conn, logger: h.logger.With().Str("remote_addr", r.RemoteAddr).Logger()}
	c.logger.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, conn, c.logger)

	for {
		var frame chat.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if err := h.handleFrame(ctx, c, frame); err != nil {
			if !errors.Is(err, errJoinRejected) {
				c.logger.Warn().Err(err).Str("event", string(frame.Event)).Msg("failed to handle frame")
			}
			break
		}
	}

	c.logger.Info().Str("session_id", c.sessionID).Msg("websocket disconnected")
}

func pingLoop(ctx context.Context, conn *websocket.Conn, logger zerolog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// handleFrame processes one inbound frame. Protocol problems are reported to
// the client as error frames. Write failures and refused joins end the
// connection.
func (h *Handler) handleFrame(ctx context.Context, c *connection, frame chat.Frame) error {
	switch frame.Event {
	case chat.EventJoin:
		return h.handleJoin(ctx, c, frame)
	case chat.EventMessage:
		return h.handleMessage(ctx, c, frame)
	default:
		c.sendError("unsupported event " + string(frame.Event))
		return nil
	}
}

func (h *Handler) handleJoin(ctx context.Context, c *connection, frame chat.Frame) error {
	var payload chat.JoinPayload
	if err := frame.Decode(&payload); err != nil {
		return c.rejectJoin("invalid join payload")
	}

	session, entries, err := h.chatSvc.JoinSession(ctx, payload.SessionID, payload.UserID)
	if err != nil {
		return c.rejectJoin(clientMessage(err))
	}

	c.sessionID = session.ID
	c.userID = session.UserID
	c.logger = c.logger.With().Str("session_id", session.ID).Logger()
	c.logger.Info().Int("history", len(entries)).Msg("session joined")

	if err := c.send(chat.EventJoined, chat.JoinPayload{SessionID: session.ID, UserID: session.UserID}); err != nil {
		return err
	}

	history := chat.HistoryPayload{Messages: make([]chat.HistoryMessage, 0, len(entries))}
	for _, entry := range entries {
		history.Messages = append(history.Messages, chat.HistoryMessage{
			ID:          chat.WireID(entry.ID),
			Message:     entry.Content,
			MessageType: entry.Sender,
			CreatedAt:   chat.NewTimestamp(entry.CreatedAt),
		})
	}
	return c.send(chat.EventHistory, history)
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, frame chat.Frame) error {
	var payload chat.SendPayload
	if err := frame.Decode(&payload); err != nil {
		c.sendError("invalid message payload")
		return nil
	}
	if c.sessionID == "" {
		c.sendError("join a session before sending messages")
		return nil
	}
	if payload.SessionID != "" && payload.SessionID != c.sessionID {
		c.sendError("message addressed to another session")
		return nil
	}
	if strings.TrimSpace(payload.Message) == "" {
		c.sendError(clientMessage(chatservice.ErrEmptyMessage))
		return nil
	}

	history, err := h.chatSvc.LoadTranscript(ctx, c.sessionID)
	if err != nil {
		c.sendError(clientMessage(err))
		return nil
	}

	userEntry, err := h.chatSvc.SaveMessage(ctx, c.sessionID, chat.MessageTypeUser, payload.Message)
	if err != nil {
		c.sendError(clientMessage(err))
		return nil
	}

	if payload.ClientMessageID != "" {
		if err := c.send(chat.EventAck, chat.AckPayload{ClientMessageID: payload.ClientMessageID}); err != nil {
			return err
		}
	}

	typing := true
	if err := c.send(chat.EventTyping, chat.TypingPayload{IsTyping: &typing}); err != nil {
		return err
	}

	reply, err := h.responder.Respond(ctx, history, payload.Message)
	if err != nil {
		c.logger.Error().Err(err).Msg("responder failed")
		c.sendError("failed to generate response")
		return nil
	}

	botEntry, err := h.chatSvc.SaveMessage(ctx, c.sessionID, chat.MessageTypeBot, reply.Text)
	if err != nil {
		c.sendError(clientMessage(err))
		return nil
	}

	pair := chat.MessagePairPayload{
		UserMessage: chat.WireMessage{
			ID:        chat.WireID(userEntry.ID),
			Message:   userEntry.Content,
			Timestamp: chat.NewTimestamp(userEntry.CreatedAt),
		},
		BotMessage: chat.WireMessage{
			ID:        chat.WireID(botEntry.ID),
			Message:   botEntry.Content,
			Timestamp: chat.NewTimestamp(botEntry.CreatedAt),
			Context:   reply.Context(),
		},
	}
	if err := c.send(chat.EventMessagePair, pair); err != nil {
		return err
	}

	if reply.Complete {
		c.logger.Info().Msg("conversation completed")
		return c.send(chat.EventCompletion, map[string]string{"sessionId": c.sessionID})
	}
	return nil
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, chatservice.ErrSessionRequired),
		errors.Is(err, chatservice.ErrUserRequired),
		errors.Is(err, chatservice.ErrSessionOwned),
		errors.Is(err, chatservice.ErrSessionNotFound),
		errors.Is(err, chatservice.ErrEmptyMessage):
		return err.Error()
	default:
		return "internal error"
	}
}
