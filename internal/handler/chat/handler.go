package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/service/assistant"
	chatService "github.com/atelierdesign/site-chat/internal/service/chat"
	"github.com/atelierdesign/site-chat/pkg/utils"
)

// Handler serves the request/response widget API.
type Handler struct {
	chatSvc   *chatService.Service
	responder assistant.Responder
	logger    zerolog.Logger
}

// New creates the legacy API handler.
func New(chatSvc *chatService.Service, responder assistant.Responder, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		responder: responder,
		logger:    logger.With().Str("component", "chat-api").Logger(),
	}
}

// RegisterRoutes mounts the health and message endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Post("/chatbot/message", h.handleMessage)
}

type messageResponse struct {
	Response  string         `json:"response"`
	ID        string         `json:"id"`
	Timestamp chat.Timestamp `json:"timestamp"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMessage answers one message. Requests that carry both a session and
// a user id are recorded in that session's transcript; bare {"message"}
// bodies from the original widget are answered without being stored.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload chat.SendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(payload.Message)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	var history []chat.Entry
	persist := payload.SessionID != "" && payload.UserID != ""
	if persist {
		_, entries, err := h.chatSvc.JoinSession(ctx, payload.SessionID, payload.UserID)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		history = entries
		if _, err := h.chatSvc.SaveMessage(ctx, payload.SessionID, chat.MessageTypeUser, payload.Message); err != nil {
			h.respondServiceError(w, err)
			return
		}
	}

	reply, err := h.responder.Respond(ctx, history, payload.Message)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", payload.SessionID).Msg("responder failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to generate response")
		return
	}

	out := messageResponse{
		Response:  reply.Text,
		ID:        uuid.NewString(),
		Timestamp: chat.NewTimestamp(time.Now().UTC()),
	}
	if persist {
		entry, err := h.chatSvc.SaveMessage(ctx, payload.SessionID, chat.MessageTypeBot, reply.Text)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		out.ID = entry.ID
		out.Timestamp = chat.NewTimestamp(entry.CreatedAt)
	}

	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionOwned):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrSessionRequired),
		errors.Is(err, chatService.ErrUserRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("chat service failure")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
