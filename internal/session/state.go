package session

import "github.com/atelierdesign/site-chat/internal/model/chat"

// State is the lifecycle position of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedNoSession
	StateJoiningSession
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedNoSession:
		return "connected"
	case StateJoiningSession:
		return "joining"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Online reports whether a transport connection is open in this state.
func (s State) Online() bool {
	return s == StateConnectedNoSession || s == StateJoiningSession || s == StateActive
}

// acceptsConversation reports whether inbound conversation events apply.
func (s State) acceptsConversation() bool {
	return s == StateJoiningSession || s == StateActive
}

// Snapshot is a read-only copy of the session as the presentation layer sees
// it. Messages is never shared with the session.
type Snapshot struct {
	State        State
	Online       bool
	SessionID    string
	UserID       string
	Typing       bool
	PendingSends int
	LastError    string
	Messages     []chat.Message
}

// Last returns the newest message, if any.
func (s Snapshot) Last() (chat.Message, bool) {
	if len(s.Messages) == 0 {
		return chat.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Listener receives a snapshot after every change. It runs on the session
// goroutine and must not call back into the Session synchronously.
type Listener func(Snapshot)
