package socket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/service/assistant"
	chatservice "github.com/atelierdesign/site-chat/internal/service/chat"
)

func dial(t *testing.T) (*websocket.Conn, *chatservice.Service) {
	t.Helper()
	svc := chatservice.NewService(nil)
	r := chi.NewRouter()
	New(svc, assistant.NewCannedResponder(), zerolog.Nop()).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, svc
}

func write(t *testing.T, conn *websocket.Conn, event chat.Event, payload any) {
	t.Helper()
	frame, err := chat.NewFrame(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(frame))
}

func read(t *testing.T, conn *websocket.Conn) chat.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame chat.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func join(t *testing.T, conn *websocket.Conn, sessionID, userID string) chat.HistoryPayload {
	t.Helper()
	write(t, conn, chat.EventJoin, chat.JoinPayload{SessionID: sessionID, UserID: userID})

	joined := read(t, conn)
	require.Equal(t, chat.EventJoined, joined.Event)
	var confirm chat.JoinPayload
	require.NoError(t, joined.Decode(&confirm))
	require.Equal(t, sessionID, confirm.SessionID)

	history := read(t, conn)
	require.Equal(t, chat.EventHistory, history.Event)
	var payload chat.HistoryPayload
	require.NoError(t, history.Decode(&payload))
	return payload
}

func TestJoinEmitsJoinedThenHistory(t *testing.T) {
	conn, _ := dial(t)

	history := join(t, conn, "s1", "u1")
	require.Empty(t, history.Messages)
}

func TestMessageFlow(t *testing.T) {
	conn, svc := dial(t)
	join(t, conn, "s1", "u1")

	write(t, conn, chat.EventMessage, chat.SendPayload{
		SessionID:       "s1",
		UserID:          "u1",
		Message:         "What would a kitchen cost?",
		ClientMessageID: "c1",
	})

	ack := read(t, conn)
	require.Equal(t, chat.EventAck, ack.Event)
	var ackPayload chat.AckPayload
	require.NoError(t, ack.Decode(&ackPayload))
	require.Equal(t, "c1", ackPayload.ClientMessageID)

	require.Equal(t, chat.EventTyping, read(t, conn).Event)

	pairFrame := read(t, conn)
	require.Equal(t, chat.EventMessagePair, pairFrame.Event)
	var pair chat.MessagePairPayload
	require.NoError(t, pairFrame.Decode(&pair))
	require.Equal(t, "What would a kitchen cost?", pair.UserMessage.Message)
	require.NotEmpty(t, pair.BotMessage.Message)
	require.JSONEq(t, `{"topic":"pricing"}`, string(pair.BotMessage.Context))

	entries, err := svc.LoadTranscript(t.Context(), "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRejoinReplaysHistory(t *testing.T) {
	conn, svc := dial(t)
	_, _, err := svc.JoinSession(t.Context(), "s1", "u1")
	require.NoError(t, err)
	_, err = svc.SaveMessage(t.Context(), "s1", chat.MessageTypeUser, "hi")
	require.NoError(t, err)
	_, err = svc.SaveMessage(t.Context(), "s1", chat.MessageTypeBot, "hello")
	require.NoError(t, err)

	history := join(t, conn, "s1", "u1")
	require.Len(t, history.Messages, 2)
	require.Equal(t, chat.OriginUser, history.Messages[0].ToMessage().Origin)
	require.Equal(t, chat.OriginAssistant, history.Messages[1].ToMessage().Origin)
}

func TestCompletionPhraseEmitsCompletion(t *testing.T) {
	conn, _ := dial(t)
	join(t, conn, "s1", "u1")

	write(t, conn, chat.EventMessage, chat.SendPayload{SessionID: "s1", UserID: "u1", Message: "thanks, bye"})

	require.Equal(t, chat.EventTyping, read(t, conn).Event)
	require.Equal(t, chat.EventMessagePair, read(t, conn).Event)
	require.Equal(t, chat.EventCompletion, read(t, conn).Event)
}

func TestMessageBeforeJoinIsRejected(t *testing.T) {
	conn, _ := dial(t)

	write(t, conn, chat.EventMessage, chat.SendPayload{Message: "hello"})

	frame := read(t, conn)
	require.Equal(t, chat.EventError, frame.Event)
	var payload chat.ErrorPayload
	require.NoError(t, frame.Decode(&payload))
	require.Contains(t, payload.Message, "join")
}

func TestJoinOtherUsersSessionIsRejected(t *testing.T) {
	conn, svc := dial(t)
	_, _, err := svc.JoinSession(t.Context(), "s1", "owner")
	require.NoError(t, err)

	write(t, conn, chat.EventJoin, chat.JoinPayload{SessionID: "s1", UserID: "intruder"})

	require.Equal(t, chat.EventError, read(t, conn).Event)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestInvalidJoinClosesConnection(t *testing.T) {
	conn, _ := dial(t)

	write(t, conn, chat.EventJoin, chat.JoinPayload{UserID: "u1"})
	require.Equal(t, chat.EventError, read(t, conn).Event)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestUnknownEventIsReportedAndConnectionSurvives(t *testing.T) {
	conn, _ := dial(t)

	write(t, conn, chat.Event("dance"), map[string]string{})
	require.Equal(t, chat.EventError, read(t, conn).Event)

	join(t, conn, "s1", "u1")
}
