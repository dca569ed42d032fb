package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event names a frame exchanged with the remote messaging endpoint.
type Event string

const (
	EventJoin        Event = "join"
	EventJoined      Event = "joined"
	EventHistory     Event = "history"
	EventMessage     Event = "message"
	EventMessagePair Event = "message-pair"
	EventReply       Event = "reply"
	EventAck         Event = "ack"
	EventCompletion  Event = "completion"
	EventTyping      Event = "typing"
	EventError       Event = "error"
)

// Wire values of messageType.
const (
	MessageTypeUser = "user"
	MessageTypeBot  = "bot"
)

// OriginForType maps a wire messageType onto an Origin. Anything that is not
// a user message is treated as coming from the assistant.
func OriginForType(messageType string) Origin {
	if messageType == MessageTypeUser {
		return OriginUser
	}
	return OriginAssistant
}

// Frame is the envelope of every event on the wire.
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload as the data of a frame. A nil payload produces a
// frame without data.
func NewFrame(event Event, payload any) (Frame, error) {
	frame := Frame{Event: event}
	if payload == nil {
		return frame, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame.Data = data
	return frame, nil
}

// Decode unmarshals the frame data into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return fmt.Errorf("decode %s payload: empty data", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Event, err)
	}
	return nil
}

// JoinPayload is sent on join and echoed back on confirmation.
type JoinPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// Metadata describes the client sending a message.
type Metadata struct {
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
}

// SendPayload carries one user message to the remote side.
type SendPayload struct {
	SessionID       string   `json:"sessionId"`
	UserID          string   `json:"userId"`
	Message         string   `json:"message"`
	Metadata        Metadata `json:"metadata"`
	ClientMessageID string   `json:"clientMessageId,omitempty"`
}

// HistoryPayload is the one-time replay of earlier messages.
type HistoryPayload struct {
	Messages []HistoryMessage `json:"messages"`
}

// HistoryMessage is one replayed message.
type HistoryMessage struct {
	ID          WireID    `json:"id"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// ToMessage converts the replayed entry into a conversation message.
func (h HistoryMessage) ToMessage() Message {
	return Message{
		ID:        string(h.ID),
		Text:      h.Message,
		Origin:    OriginForType(h.MessageType),
		Timestamp: h.CreatedAt.Time,
	}
}

// WireMessage is one side of a message pair, or a standalone reply.
type WireMessage struct {
	ID        WireID          `json:"id"`
	Message   string          `json:"message"`
	Timestamp Timestamp       `json:"timestamp"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// ToMessage converts the wire message using the supplied origin. Context is
// carried through untouched.
func (w WireMessage) ToMessage(origin Origin) Message {
	return Message{
		ID:        string(w.ID),
		Text:      w.Message,
		Origin:    origin,
		Timestamp: w.Timestamp.Time,
		Context:   w.Context,
	}
}

// MessagePairPayload reports both sides of one exchange.
type MessagePairPayload struct {
	UserMessage WireMessage `json:"userMessage"`
	BotMessage  WireMessage `json:"botMessage"`
}

// AckPayload confirms delivery of a message sent with a client id.
type AckPayload struct {
	ClientMessageID string `json:"clientMessageId"`
}

// TypingPayload toggles the typing indicator. A missing flag means typing.
type TypingPayload struct {
	IsTyping *bool `json:"isTyping,omitempty"`
}

// ErrorPayload is what the relay sends with an error event. Clients treat
// the payload as opaque.
type ErrorPayload struct {
	Message string `json:"message"`
}

// WireID accepts both JSON strings and numbers.
type WireID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *WireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = WireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = WireID(n.String())
	return nil
}

// Timestamp accepts RFC 3339 strings and epoch milliseconds, and always
// encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	millis, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(millis).UTC()
	return nil
}
