package chat

import (
	"encoding/json"
	"time"
)

// Origin identifies who authored a message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// Message is one entry of the conversation shown by the widget.
type Message struct {
	ID                 string          `json:"id"`
	Text               string          `json:"text"`
	Origin             Origin          `json:"origin"`
	Timestamp          time.Time       `json:"timestamp"`
	IsError            bool            `json:"isError,omitempty"`
	IsCompletionNotice bool            `json:"isCompletionNotice,omitempty"`
	Context            json.RawMessage `json:"context,omitempty"`
}

// FromUser reports whether the message was authored by the user.
func (m Message) FromUser() bool {
	return m.Origin == OriginUser
}

// Synthesized reports whether the message was produced locally and never
// travelled over the wire.
func (m Message) Synthesized() bool {
	return m.IsError || m.IsCompletionNotice
}
