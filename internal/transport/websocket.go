package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/atelierdesign/site-chat/internal/model/chat"
)

// WebSocketOptions configures the websocket transport.
type WebSocketOptions struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	FrameBuffer      int
}

// DefaultWebSocketOptions returns options for url with conservative timeouts.
func DefaultWebSocketOptions(url string) WebSocketOptions {
	return WebSocketOptions{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     54 * time.Second,
		FrameBuffer:      32,
	}
}

// WebSocketDialer opens websocket connections.
type WebSocketDialer struct {
	opts   WebSocketOptions
	logger zerolog.Logger
}

// NewWebSocketDialer creates a dialer for opts.
func NewWebSocketDialer(opts WebSocketOptions, logger zerolog.Logger) *WebSocketDialer {
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = 32
	}
	return &WebSocketDialer{
		opts:   opts,
		logger: logger.With().Str("component", "transport").Str("transport", "websocket").Logger(),
	}
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.opts.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, d.opts.URL, d.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket dial %s: status %d", d.opts.URL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "websocket dial %s", d.opts.URL)
	}

	c := &wsConn{
		conn:   conn,
		opts:   d.opts,
		frames: make(chan chat.Frame, d.opts.FrameBuffer),
		done:   make(chan struct{}),
		logger: d.logger,
	}

	if c.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		})
	}

	go c.readLoop()
	if c.opts.PingInterval > 0 {
		go c.pingLoop()
	}

	d.logger.Debug().Str("url", d.opts.URL).Msg("websocket connected")
	return c, nil
}

type wsConn struct {
	conn   *websocket.Conn
	opts   WebSocketOptions
	frames chan chat.Frame

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

func (c *wsConn) Frames() <-chan chat.Frame {
	return c.frames
}

func (c *wsConn) Send(ctx context.Context, frame chat.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	deadline := time.Time{}
	if c.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(c.opts.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteJSON(frame); err != nil {
		return errors.Wrapf(err, "write %s frame", frame.Event)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.controlTimeout()))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// readLoop owns the frames channel and closes it when the socket dies.
func (c *wsConn) readLoop() {
	defer close(c.frames)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn().Err(err).Msg("websocket read failed")
				} else {
					c.logger.Debug().Err(err).Msg("websocket closed by peer")
				}
			}
			return
		}

		if c.opts.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}

		var frame chat.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.controlTimeout())
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug().Err(err).Msg("websocket ping failed")
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *wsConn) controlTimeout() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return time.Second
}
