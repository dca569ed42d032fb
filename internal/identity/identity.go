// Package identity resolves the per-client user identifier. The identifier is
// generated once and then reused for every later conversation.
package identity

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Store persists the user identifier.
type Store interface {
	// Load returns the stored identifier. ok is false when nothing is stored.
	Load() (id string, ok bool, err error)
	Save(id string) error
}

// NewUserID generates a fresh user identifier.
func NewUserID() string {
	return "user_" + uuid.NewString()
}

// NewSessionID generates a fresh session identifier.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

// Resolve returns the persisted user identifier, generating and saving one
// only when the store is empty. An existing value is never replaced.
func Resolve(store Store) (string, error) {
	id, ok, err := store.Load()
	if err != nil {
		return "", errors.Wrap(err, "load user id")
	}
	if ok && strings.TrimSpace(id) != "" {
		return id, nil
	}

	id = NewUserID()
	if err := store.Save(id); err != nil {
		return "", errors.Wrap(err, "save user id")
	}
	return id, nil
}

// MemoryStore keeps the identifier in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	id    string
	saves int
}

// NewMemoryStore returns a MemoryStore preloaded with id, which may be empty.
func NewMemoryStore(id string) *MemoryStore {
	return &MemoryStore{id: id}
}

// Load implements Store.
func (s *MemoryStore) Load() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.id != "", nil
}

// Save implements Store.
func (s *MemoryStore) Save(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
