package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/session"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	assistantStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#AFAFAF")).
			Padding(0, 1)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Italic(true)
	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787")).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Bold(true)
)

// renderer prints only what changed between snapshots.
type renderer struct {
	out      io.Writer
	greeting string
	printed  int
	state    session.State
	typing   bool
	started  bool
}

func newRenderer(out io.Writer, greeting string) *renderer {
	return &renderer{out: out, greeting: greeting}
}

func (r *renderer) render(snap session.Snapshot) {
	if !r.started || snap.State != r.state {
		fmt.Fprintln(r.out, renderStatus(snap))
		if !r.started && len(snap.Messages) == 0 && r.greeting != "" {
			fmt.Fprintln(r.out, assistantStyle.Render(r.greeting))
		}
		r.state = snap.State
		r.started = true
	}

	for _, msg := range snap.Messages[r.printed:] {
		fmt.Fprintln(r.out, renderMessage(msg))
	}
	r.printed = len(snap.Messages)

	if snap.Typing && !r.typing {
		fmt.Fprintln(r.out, noticeStyle.Render("assistant is typing..."))
	}
	r.typing = snap.Typing
}

func renderStatus(snap session.Snapshot) string {
	var b strings.Builder
	if snap.Online {
		b.WriteString(onlineStyle.Render("● online"))
	} else {
		b.WriteString(offlineStyle.Render("○ offline"))
	}
	b.WriteString(noticeStyle.Render(" (" + snap.State.String()))
	if snap.SessionID != "" {
		b.WriteString(noticeStyle.Render(", session " + snap.SessionID))
	}
	b.WriteString(noticeStyle.Render(")"))
	return b.String()
}

func renderMessage(msg chat.Message) string {
	var body string
	switch {
	case msg.Synthesized() && msg.IsError:
		body = errorStyle.Render("! " + msg.Text)
	case msg.Synthesized():
		body = noticeStyle.Render("~ " + msg.Text + " ~")
	case msg.FromUser():
		body = "you  " + userStyle.Render(msg.Text)
	default:
		body = assistantStyle.Render(msg.Text)
	}

	stamp := formatTime(msg.Timestamp)
	if stamp == "" {
		return body
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, body, " ", timeStyle.Render(stamp))
}

// formatTime renders hours and minutes in local time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04")
}
