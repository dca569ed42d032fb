// Package session owns the lifecycle of one user's conversation with the
// remote design assistant.
//
// Every state change happens on a single goroutine. Public methods hand work
// to that goroutine and return as soon as it has been applied; network calls
// run elsewhere and report back, so an outstanding request never stalls the
// session. Once closed, the session ignores everything that arrives late.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/atelierdesign/site-chat/internal/identity"
	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/transport"
)

// Session is one widget's conversation with the remote assistant.
type Session struct {
	dialer transport.Dialer
	opts   options
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cmds    chan func()
	results chan func()
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error

	snapMu sync.RWMutex
	snap   Snapshot

	// Fields below are owned by the run goroutine.
	state      State
	userID     string
	sessionID  string
	hadSession bool
	replayed   map[string]bool
	typing     bool
	lastErr    string
	messages   []chat.Message
	pending    []pendingSend
	acksSeen   bool

	gen        int
	conn       transport.Conn
	frames     <-chan chat.Frame
	connCancel context.CancelFunc
	outbox     *outbox
	attempt    *connectAttempt
	stopping   bool
}

type pendingSend struct {
	id   string
	text string
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

func (a *connectAttempt) finish(err error) {
	a.err = err
	close(a.done)
}

// New creates a disconnected session and starts its goroutine. Call Connect
// to open the transport and Close to release it.
func New(dialer transport.Dialer, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		dialer:   dialer,
		opts:     o,
		logger:   o.logger.With().Str("component", "session").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan func()),
		results:  make(chan func(), 16),
		done:     make(chan struct{}),
		state:    StateDisconnected,
		userID:   o.userID,
		replayed: make(map[string]bool),
	}
	s.snap = s.buildSnapshot()

	if s.userID == "" && o.identityStore != nil {
		go s.resolveUserID(o.identityStore)
	}

	go s.run()
	return s
}

// Snapshot returns the most recently published snapshot.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	snap := s.snap
	snap.Messages = append([]chat.Message(nil), s.snap.Messages...)
	return snap
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.State
}

// Connect opens the transport and waits for the handshake outcome. Calling
// it while a handshake is running joins that handshake; calling it while
// connected is a no-op. A failed handshake leaves the session Disconnected
// and may be retried.
func (s *Session) Connect(ctx context.Context) error {
	var attempt *connectAttempt
	err := s.call(func() error {
		switch s.state {
		case StateClosed:
			return ErrClosed
		case StateConnecting:
			attempt = s.attempt
			return nil
		case StateDisconnected:
			attempt = &connectAttempt{done: make(chan struct{})}
			s.startDial(attempt)
			return nil
		default:
			return nil
		}
	})
	if err != nil || attempt == nil {
		return err
	}

	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Join asks the remote side to attach this client to sessionID.
func (s *Session) Join(sessionID string) error {
	return s.call(func() error {
		return s.join(sessionID)
	})
}

// SendMessage echoes text into the conversation and queues it for delivery.
// It returns before the remote side has seen the message.
func (s *Session) SendMessage(text string) error {
	return s.call(func() error {
		if s.state == StateClosed {
			return ErrClosed
		}
		if s.state != StateActive {
			return ErrNotConnected
		}

		text = strings.TrimSpace(text)
		if text == "" {
			return ErrPrecondition
		}

		echo := chat.Message{
			ID:        s.opts.newID(),
			Text:      text,
			Origin:    chat.OriginUser,
			Timestamp: s.opts.now(),
		}
		s.messages = append(s.messages, echo)
		s.pending = append(s.pending, pendingSend{id: echo.ID, text: text})
		s.publish()

		frame, err := chat.NewFrame(chat.EventMessage, chat.SendPayload{
			SessionID:       s.sessionID,
			UserID:          s.userID,
			Message:         text,
			Metadata:        s.opts.metadata,
			ClientMessageID: echo.ID,
		})
		if err != nil {
			s.failDelivery(echo.ID, err)
			return nil
		}
		s.outbox.push(outbound{kind: outboundMessage, id: echo.ID, frame: frame})
		return nil
	})
}

// Close tears the session down and releases the transport, whatever state
// it is in. Outstanding sends are abandoned. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.call(func() error {
			s.stopping = true
			s.closeErr = s.dropConn()
			s.state = StateClosed
			s.pending = nil
			s.typing = false
			s.publish()
			s.logger.Info().Str("session_id", s.sessionID).Msg("session closed")
			return nil
		})
		s.cancel()
		<-s.done
	})
	return s.closeErr
}

// call runs fn on the session goroutine and returns its result.
func (s *Session) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// post hands a completion from a helper goroutine back to the session. It
// reports false when the session is gone.
func (s *Session) post(fn func()) bool {
	select {
	case s.results <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) run() {
	defer close(s.done)

	for !s.stopping {
		select {
		case fn := <-s.cmds:
			fn()
		case fn := <-s.results:
			fn()
		case frame, ok := <-s.frames:
			if !ok {
				s.handleDisconnect()
				continue
			}
			s.handleFrame(frame)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) resolveUserID(store identity.Store) {
	id, err := identity.Resolve(store)
	s.post(func() {
		if err != nil {
			s.logger.Error().Err(err).Msg("resolve user id")
			s.lastErr = err.Error()
			s.publish()
			return
		}
		if s.userID == "" {
			s.userID = id
			s.publish()
			s.maybeAutoJoin()
		}
	})
}

func (s *Session) startDial(attempt *connectAttempt) {
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.attempt = attempt
	s.publish()

	go func() {
		conn, err := s.dialer.Dial(s.ctx)
		s.deliverDial(gen, conn, err)
	}()
}

func (s *Session) startReconnect(policy ReconnectPolicy) {
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.attempt = &connectAttempt{done: make(chan struct{})}
	s.publish()
	s.logger.Info().Msg("reconnecting")

	go func() {
		conn, err := policy.dial(s.ctx, s.dialer)
		s.deliverDial(gen, conn, err)
	}()
}

func (s *Session) deliverDial(gen int, conn transport.Conn, err error) {
	ok := s.post(func() {
		s.handleDial(gen, conn, err)
	})
	if !ok && conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) handleDial(gen int, conn transport.Conn, err error) {
	if gen != s.gen || s.state != StateConnecting {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	attempt := s.attempt
	s.attempt = nil

	if err != nil {
		s.logger.Warn().Err(err).Msg("handshake failed")
		s.state = StateDisconnected
		s.lastErr = err.Error()
		s.publish()
		if attempt != nil {
			attempt.finish(err)
		}
		return
	}

	connCtx, connCancel := context.WithCancel(s.ctx)
	s.conn = conn
	s.frames = conn.Frames()
	s.connCancel = connCancel
	s.outbox = newOutbox()
	s.acksSeen = false
	s.state = StateConnectedNoSession
	s.lastErr = ""

	go s.outbox.run(connCtx, conn, func(item outbound, err error) {
		s.post(func() {
			s.handleWrite(gen, item, err)
		})
	})

	s.logger.Info().Msg("connected")
	s.publish()
	if attempt != nil {
		attempt.finish(nil)
	}
	s.maybeAutoJoin()
}

func (s *Session) maybeAutoJoin() {
	if !s.opts.autoJoin || s.hadSession || s.state != StateConnectedNoSession || s.userID == "" {
		return
	}
	sessionID := s.opts.autoSessionID
	if sessionID == "" {
		sessionID = identity.NewSessionID()
		s.opts.autoSessionID = sessionID
	}
	if err := s.join(sessionID); err != nil {
		s.logger.Warn().Err(err).Msg("auto join failed")
	}
}

func (s *Session) join(sessionID string) error {
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateJoiningSession, StateActive:
		return ErrAlreadyJoined
	}
	if s.userID == "" || strings.TrimSpace(sessionID) == "" {
		return ErrPrecondition
	}
	if s.state != StateConnectedNoSession {
		return ErrNotConnected
	}

	frame, err := chat.NewFrame(chat.EventJoin, chat.JoinPayload{SessionID: sessionID, UserID: s.userID})
	if err != nil {
		return err
	}

	s.sessionID = sessionID
	s.state = StateJoiningSession
	s.outbox.push(outbound{kind: outboundJoin, id: sessionID, frame: frame})
	s.logger.Info().Str("session_id", sessionID).Msg("joining session")
	s.publish()
	return nil
}

func (s *Session) handleWrite(gen int, item outbound, err error) {
	if gen != s.gen || err == nil {
		return
	}

	switch item.kind {
	case outboundJoin:
		s.logger.Warn().Err(err).Str("session_id", item.id).Msg("join request failed")
		if s.state == StateJoiningSession {
			s.state = StateConnectedNoSession
		}
		s.lastErr = err.Error()
		s.publish()
	case outboundMessage:
		s.failDelivery(item.id, err)
	}
}

// failDelivery reports one pending send as lost. Sends that were already
// resolved are left alone.
func (s *Session) failDelivery(id string, err error) {
	if !s.resolvePending(id) {
		return
	}
	s.logger.Warn().Err(err).Str("session_id", s.sessionID).Str("message_id", id).Msg("message delivery failed")
	s.appendFailure(DeliveryFailureText)
	s.typing = false
	if err != nil {
		s.lastErr = err.Error()
	}
	s.publish()
}

func (s *Session) resolvePending(id string) bool {
	for i, p := range s.pending {
		if p.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// settle marks the send answered by a reply as delivered. A send whose text
// matches wins; otherwise the oldest one does, unless the remote side acks
// explicitly, in which case unmatched replies settle nothing.
func (s *Session) settle(text string) {
	for i, p := range s.pending {
		if text != "" && p.text == text {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
	if len(s.pending) > 0 && !s.acksSeen {
		s.pending = s.pending[1:]
	}
}

func (s *Session) appendFailure(text string) {
	s.messages = append(s.messages, chat.Message{
		ID:        s.opts.newID(),
		Text:      text,
		Origin:    chat.OriginAssistant,
		Timestamp: s.opts.now(),
		IsError:   true,
	})
}

func (s *Session) dropConn() error {
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	s.conn = nil
	s.frames = nil
	s.outbox = nil
	return err
}

func (s *Session) handleDisconnect() {
	prev := s.state
	_ = s.dropConn()
	s.gen++
	s.state = StateDisconnected
	s.typing = false

	lost := s.pending
	s.pending = nil
	for range lost {
		s.appendFailure(DeliveryFailureText)
	}

	s.logger.Warn().
		Str("session_id", s.sessionID).
		Str("previous_state", prev.String()).
		Int("lost_messages", len(lost)).
		Msg("transport disconnected")
	s.lastErr = "disconnected"
	s.publish()

	if s.opts.reconnect != nil {
		s.startReconnect(*s.opts.reconnect)
	}
}

func (s *Session) handleFrame(frame chat.Frame) {
	log := s.logger.With().Str("event", string(frame.Event)).Str("session_id", s.sessionID).Logger()

	switch frame.Event {
	case chat.EventJoined:
		if s.state != StateJoiningSession {
			log.Debug().Str("state", s.state.String()).Msg("ignoring join confirmation")
			return
		}
		var payload chat.JoinPayload
		if err := frame.Decode(&payload); err == nil && payload.SessionID != "" && payload.SessionID != s.sessionID {
			log.Warn().Str("confirmed_session_id", payload.SessionID).Msg("join confirmation for another session")
			return
		}
		s.state = StateActive
		s.hadSession = true
		log.Info().Msg("session active")
		s.publish()

	case chat.EventHistory:
		if !s.state.acceptsConversation() {
			log.Debug().Msg("ignoring history outside a session")
			return
		}
		if s.replayed[s.sessionID] {
			log.Debug().Msg("ignoring repeated history replay")
			return
		}
		var payload chat.HistoryPayload
		if err := frame.Decode(&payload); err != nil {
			log.Warn().Err(err).Msg("malformed history")
			return
		}
		s.replayed[s.sessionID] = true
		for _, m := range payload.Messages {
			s.messages = append(s.messages, m.ToMessage())
		}
		log.Debug().Int("messages", len(payload.Messages)).Msg("history replayed")
		s.publish()

	case chat.EventMessagePair:
		if !s.state.acceptsConversation() {
			log.Debug().Msg("ignoring message pair outside a session")
			return
		}
		var payload chat.MessagePairPayload
		if err := frame.Decode(&payload); err != nil {
			log.Warn().Err(err).Msg("malformed message pair")
			return
		}
		s.messages = append(s.messages,
			payload.UserMessage.ToMessage(chat.OriginUser),
			payload.BotMessage.ToMessage(chat.OriginAssistant),
		)
		s.settle(payload.UserMessage.Message)
		s.typing = false
		s.publish()

	case chat.EventReply:
		if !s.state.acceptsConversation() {
			log.Debug().Msg("ignoring reply outside a session")
			return
		}
		var payload chat.WireMessage
		if err := frame.Decode(&payload); err != nil {
			log.Warn().Err(err).Msg("malformed reply")
			return
		}
		s.messages = append(s.messages, payload.ToMessage(chat.OriginAssistant))
		s.settle("")
		s.typing = false
		s.publish()

	case chat.EventAck:
		var payload chat.AckPayload
		if err := frame.Decode(&payload); err != nil {
			log.Warn().Err(err).Msg("malformed ack")
			return
		}
		s.acksSeen = true
		if s.resolvePending(payload.ClientMessageID) {
			s.publish()
		}

	case chat.EventCompletion:
		if !s.state.acceptsConversation() {
			log.Debug().Msg("ignoring completion outside a session")
			return
		}
		s.messages = append(s.messages, chat.Message{
			ID:                 s.opts.newID(),
			Text:               CompletionText,
			Origin:             chat.OriginAssistant,
			Timestamp:          s.opts.now(),
			IsCompletionNotice: true,
		})
		s.typing = false
		log.Info().Msg("conversation completed")
		s.publish()

	case chat.EventTyping:
		typing := true
		var payload chat.TypingPayload
		if len(frame.Data) > 0 && json.Unmarshal(frame.Data, &payload) == nil && payload.IsTyping != nil {
			typing = *payload.IsTyping
		}
		if s.typing != typing {
			s.typing = typing
			s.publish()
		}

	case chat.EventError:
		log.Warn().RawJSON("payload", rawOrNull(frame.Data)).Msg("remote reported an error")
		s.pending = nil
		s.typing = false
		s.lastErr = "remote error"
		s.appendFailure(RemoteFailureText)
		s.publish()

	default:
		log.Debug().Msg("ignoring unknown event")
	}
}

func (s *Session) buildSnapshot() Snapshot {
	return Snapshot{
		State:        s.state,
		Online:       s.state.Online(),
		SessionID:    s.sessionID,
		UserID:       s.userID,
		Typing:       s.typing,
		PendingSends: len(s.pending),
		LastError:    s.lastErr,
		Messages:     append([]chat.Message(nil), s.messages...),
	}
}

func (s *Session) publish() {
	snap := s.buildSnapshot()

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	if s.opts.listener != nil {
		view := snap
		view.Messages = append([]chat.Message(nil), snap.Messages...)
		s.opts.listener(view)
	}
}

func rawOrNull(data json.RawMessage) []byte {
	if len(data) == 0 || !json.Valid(data) {
		return []byte("null")
	}
	return data
}
