package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/session"
)

func TestRendererPrintsOnlyNewMessages(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "")

	snap := session.Snapshot{State: session.StateActive, Online: true, SessionID: "s1"}
	snap.Messages = []chat.Message{{ID: "1", Text: "hello", Origin: chat.OriginUser}}
	r.render(snap)

	snap.Messages = append(snap.Messages, chat.Message{ID: "2", Text: "welcome", Origin: chat.OriginAssistant})
	r.render(snap)

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "hello"))
	require.Equal(t, 1, strings.Count(out, "welcome"))
	require.Equal(t, 1, strings.Count(out, "online"))
}

func TestRendererReportsStatusChangesAndTyping(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "")

	r.render(session.Snapshot{State: session.StateConnectedNoSession, Online: true})
	r.render(session.Snapshot{State: session.StateConnectedNoSession, Online: true, Typing: true})
	r.render(session.Snapshot{State: session.StateDisconnected})

	out := buf.String()
	require.Contains(t, out, "typing")
	require.Contains(t, out, "offline")
}

func TestRenderMessageVariants(t *testing.T) {
	require.Contains(t, renderMessage(chat.Message{Text: "failed", IsError: true, Origin: chat.OriginAssistant}), "! failed")
	require.Contains(t, renderMessage(chat.Message{Text: "done", IsCompletionNotice: true, Origin: chat.OriginAssistant}), "done")
	require.Contains(t, renderMessage(chat.Message{Text: "hi", Origin: chat.OriginUser}), "you")
}

func TestRendererGreetsEmptyConversation(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, "Hi! How can I help?")

	r.render(session.Snapshot{State: session.StateConnecting})
	r.render(session.Snapshot{State: session.StateActive, Online: true})

	require.Equal(t, 1, strings.Count(buf.String(), "Hi! How can I help?"))
}

func TestRenderMessageShowsTime(t *testing.T) {
	at := time.Date(2025, 1, 2, 9, 41, 0, 0, time.Local)
	require.Contains(t, renderMessage(chat.Message{Text: "hi", Origin: chat.OriginUser, Timestamp: at}), "09:41")
	require.NotContains(t, renderMessage(chat.Message{Text: "hi", Origin: chat.OriginUser}), ":")
}
