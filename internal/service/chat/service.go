package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierdesign/site-chat/internal/model/chat"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrSessionRequired = errors.New("session id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionOwned    = errors.New("session belongs to another user")
	ErrEmptyMessage    = errors.New("message is empty")
)

// Store persists relay sessions and their transcripts.
type Store interface {
	CreateSession(ctx context.Context, session chat.Session) error
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	AppendEntry(ctx context.Context, entry chat.Entry) error
	ListEntries(ctx context.Context, sessionID string) ([]chat.Entry, error)
	Close() error
}

// Service encapsulates conversation state management for the relay.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wraps store. A nil store falls back to memory.
func NewService(store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// JoinSession attaches userID to sessionID, creating the session on first
// use, and returns the transcript recorded so far.
func (s *Service) JoinSession(ctx context.Context, sessionID, userID string) (chat.Session, []chat.Entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	userID = strings.TrimSpace(userID)
	if sessionID == "" {
		return chat.Session{}, nil, ErrSessionRequired
	}
	if userID == "" {
		return chat.Session{}, nil, ErrUserRequired
	}

	session, err := s.store.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		session = chat.Session{ID: sessionID, UserID: userID, CreatedAt: s.now()}
		if err := s.store.CreateSession(ctx, session); err != nil {
			return chat.Session{}, nil, err
		}
		return session, nil, nil
	case err != nil:
		return chat.Session{}, nil, err
	}

	if session.UserID != userID {
		return chat.Session{}, nil, ErrSessionOwned
	}

	entries, err := s.store.ListEntries(ctx, sessionID)
	if err != nil {
		return chat.Session{}, nil, err
	}
	return session, entries, nil
}

// SaveMessage appends a message to the session history.
func (s *Service) SaveMessage(ctx context.Context, sessionID, sender, content string) (chat.Entry, error) {
	if sessionID == "" {
		return chat.Entry{}, ErrSessionNotFound
	}
	if strings.TrimSpace(content) == "" {
		return chat.Entry{}, ErrEmptyMessage
	}

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return chat.Entry{}, err
	}

	entry := chat.Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		return chat.Entry{}, err
	}
	return entry, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, sessionID)
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
