package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/atelierdesign/site-chat/internal/model/chat"
)

// Legacy widget API paths.
const (
	HealthPath  = "/api/health"
	MessagePath = "/api/chatbot/message"
)

// HTTPOptions configures the request/response transport used by the legacy
// widget API.
type HTTPOptions struct {
	BaseURL     string
	Timeout     time.Duration
	FrameBuffer int
	// MaxFailures is how many consecutive unreachable-backend errors close
	// the connection. HTTP error statuses do not count.
	MaxFailures int
}

// MessageResponse is the body returned by the message endpoint.
type MessageResponse struct {
	Response  string         `json:"response"`
	ID        string         `json:"id,omitempty"`
	Timestamp chat.Timestamp `json:"timestamp"`
}

// HTTPDialer treats a successful health check as the handshake.
type HTTPDialer struct {
	client *resty.Client
	opts   HTTPOptions
	logger zerolog.Logger
}

// NewHTTPDialer creates a dialer against opts.BaseURL.
func NewHTTPDialer(opts HTTPOptions, logger zerolog.Logger) *HTTPDialer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = 16
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &HTTPDialer{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "transport").Str("transport", "http").Logger(),
	}
}

// Dial implements Dialer.
func (d *HTTPDialer) Dial(ctx context.Context) (Conn, error) {
	resp, err := d.client.R().SetContext(ctx).Get(HealthPath)
	if err != nil {
		return nil, errors.Wrap(err, "health check")
	}
	if resp.IsError() {
		return nil, errors.Errorf("health check: unexpected status %s", resp.Status())
	}

	d.logger.Debug().Str("base_url", d.opts.BaseURL).Msg("backend healthy")
	return &httpConn{
		client:      d.client,
		maxFailures: d.opts.MaxFailures,
		frames:      make(chan chat.Frame, d.opts.FrameBuffer),
		done:   make(chan struct{}),
		logger: d.logger,
	}, nil
}

// httpConn turns request/response calls into inbound frames. There is no
// server-side session over HTTP, so joins are confirmed locally. Losing the
// backend for several sends in a row counts as a disconnect.
type httpConn struct {
	client      *resty.Client
	maxFailures int
	failures    atomic.Int32

	mu        sync.RWMutex
	closed    bool
	frames    chan chat.Frame
	done      chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

func (c *httpConn) Frames() <-chan chat.Frame {
	return c.frames
}

func (c *httpConn) Send(ctx context.Context, frame chat.Frame) error {
	switch frame.Event {
	case chat.EventJoin:
		var join chat.JoinPayload
		if err := frame.Decode(&join); err != nil {
			return err
		}
		joined, err := chat.NewFrame(chat.EventJoined, join)
		if err != nil {
			return err
		}
		return c.emit(joined)

	case chat.EventMessage:
		var payload chat.SendPayload
		if err := frame.Decode(&payload); err != nil {
			return err
		}
		return c.postMessage(ctx, payload)

	default:
		return errors.Errorf("event %q is not supported over http", frame.Event)
	}
}

func (c *httpConn) postMessage(ctx context.Context, payload chat.SendPayload) error {
	if typing, err := chat.NewFrame(chat.EventTyping, chat.TypingPayload{}); err == nil {
		_ = c.emit(typing)
	}

	var out MessageResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		SetResult(&out).
		Post(MessagePath)
	if err != nil {
		if ctx.Err() == nil && int(c.failures.Add(1)) >= c.maxFailures {
			c.logger.Warn().Err(err).Int("failures", c.maxFailures).Msg("backend unreachable, closing")
			_ = c.Close()
		}
		return errors.Wrap(err, "post message")
	}
	c.failures.Store(0)
	if resp.IsError() {
		return errors.Errorf("post message: unexpected status %s", resp.Status())
	}

	reply := chat.WireMessage{
		ID:        chat.WireID(out.ID),
		Message:   out.Response,
		Timestamp: out.Timestamp,
	}
	if reply.ID == "" {
		reply.ID = chat.WireID(uuid.NewString())
	}
	if reply.Timestamp.IsZero() {
		reply.Timestamp = chat.NewTimestamp(time.Now())
	}

	frame, err := chat.NewFrame(chat.EventReply, reply)
	if err != nil {
		return err
	}
	return c.emit(frame)
}

func (c *httpConn) emit(frame chat.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	select {
	case c.frames <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *httpConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		close(c.frames)
		c.mu.Unlock()
		c.logger.Debug().Msg("http transport closed")
	})
	return nil
}
