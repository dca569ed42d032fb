package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/atelierdesign/site-chat/internal/service/assistant"
	chatService "github.com/atelierdesign/site-chat/internal/service/chat"
)

func TestRouterMountsAPI(t *testing.T) {
	r := NewRouter(chatService.NewService(nil), assistant.NewCannedResponder(), zerolog.Nop())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, resp.Header().Get("Access-Control-Allow-Origin"))

	resp = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chatbot/message", bytes.NewBufferString(`{"message":"hi"}`))
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/chat/ws", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code, "plain GET is not a websocket upgrade")
}
