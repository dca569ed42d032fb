package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atelierdesign/site-chat/internal/identity"
	"github.com/atelierdesign/site-chat/internal/model/chat"
)

type options struct {
	logger        zerolog.Logger
	listener      Listener
	userID        string
	identityStore identity.Store
	now           func() time.Time
	newID         func() string
	metadata      chat.Metadata
	autoJoin      bool
	autoSessionID string
	reconnect     *ReconnectPolicy
}

func defaultOptions() options {
	return options{
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithListener registers the presentation layer callback.
func WithListener(l Listener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// WithUserID supplies an already resolved user id.
func WithUserID(id string) Option {
	return func(o *options) {
		o.userID = id
	}
}

// WithIdentityStore resolves the user id from store in the background once
// the session starts. Joins fail with ErrPrecondition until it completes.
func WithIdentityStore(store identity.Store) Option {
	return func(o *options) {
		o.identityStore = store
	}
}

// WithClock overrides the time source for local messages.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIDGenerator overrides how local message ids are produced.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		o.newID = newID
	}
}

// WithMetadata sets the client metadata attached to every sent message.
func WithMetadata(md chat.Metadata) Option {
	return func(o *options) {
		o.metadata = md
	}
}

// WithAutoJoin joins sessionID right after the first successful handshake.
// An empty sessionID generates one. Once a session has been active, later
// reconnects never rejoin on their own.
func WithAutoJoin(sessionID string) Option {
	return func(o *options) {
		o.autoJoin = true
		o.autoSessionID = sessionID
	}
}

// WithReconnect enables automatic reconnection after an unexpected
// disconnect. Without it, reconnecting is left to the caller.
func WithReconnect(policy ReconnectPolicy) Option {
	return func(o *options) {
		p := policy
		o.reconnect = &p
	}
}
