package chat

import "time"

// Session captures one conversation held by the relay.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry persists individual turns of a relay session transcript.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message converts a transcript entry into its widget representation.
func (e Entry) Message() Message {
	return Message{
		ID:        e.ID,
		Text:      e.Content,
		Origin:    OriginForType(e.Sender),
		Timestamp: e.CreatedAt,
	}
}
