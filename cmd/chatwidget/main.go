package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atelierdesign/site-chat/internal/config"
	"github.com/atelierdesign/site-chat/internal/identity"
	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/service/assistant"
	"github.com/atelierdesign/site-chat/internal/session"
	"github.com/atelierdesign/site-chat/internal/transport"
	"github.com/atelierdesign/site-chat/pkg/utils"
)

const userAgent = "site-chat-cli/1.0"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		transportName string
		url           string
		stateFile     string
		sessionID     string
		logLevel      string
		reconnect     bool
	)

	cmd := &cobra.Command{
		Use:   "chatwidget",
		Short: "Terminal front end for the studio's support chat",
		Long: "Connects to the messaging endpoint, joins a session and relays lines typed on stdin.\n" +
			"Commands: /join [session-id], /connect, /status, /quit.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("transport") {
				cfg.Client.Transport = transportName
			}
			if flags.Changed("url") {
				if cfg.Client.Transport == config.TransportHTTP {
					cfg.Client.HTTPBaseURL = url
				} else {
					cfg.Client.WebSocketURL = url
				}
			}
			if flags.Changed("state-file") {
				cfg.Client.StateFile = stateFile
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("reconnect") {
				cfg.Client.Reconnect = reconnect
			}

			logger, err := utils.NewLogger(cfg.LogLevel, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg.Client, sessionID, os.Stdin, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&transportName, "transport", config.TransportWebSocket, "websocket or http (overrides CHAT_TRANSPORT)")
	cmd.Flags().StringVar(&url, "url", "", "endpoint URL for the selected transport")
	cmd.Flags().StringVar(&stateFile, "state-file", "", "where the user id is kept (overrides CHAT_STATE_FILE)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session to join; a new one is generated when empty")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (overrides LOG_LEVEL)")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "reconnect automatically after a dropped connection")
	return cmd
}

func newDialer(cfg config.ClientConfig, logger zerolog.Logger) (transport.Dialer, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		opts := transport.DefaultWebSocketOptions(cfg.WebSocketURL)
		opts.HandshakeTimeout = cfg.HandshakeTimeout
		opts.PingInterval = cfg.PingInterval
		return transport.NewWebSocketDialer(opts, logger), nil
	case config.TransportHTTP:
		return transport.NewHTTPDialer(transport.HTTPOptions{
			BaseURL: cfg.HTTPBaseURL,
			Timeout: cfg.HandshakeTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func sessionOptions(cfg config.ClientConfig, sessionID string, logger zerolog.Logger, listener session.Listener) []session.Option {
	ids := identity.NewFileStore(cfg.StateFile)
	logger.Debug().Str("path", ids.Path()).Msg("identity file")

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithListener(listener),
		session.WithIdentityStore(ids),
		session.WithMetadata(chat.Metadata{UserAgent: userAgent}),
	}
	if cfg.AutoJoin || sessionID != "" {
		opts = append(opts, session.WithAutoJoin(sessionID))
	}
	if cfg.Reconnect {
		policy := session.DefaultReconnectPolicy()
		policy.MaxTries = cfg.ReconnectMaxTries
		policy.MaxInterval = cfg.ReconnectMaxInterval
		opts = append(opts, session.WithReconnect(policy))
	}
	return opts
}

// run drives one chat session: snapshots are rendered by one goroutine while
// another feeds stdin lines into the session.
func run(ctx context.Context, cfg config.ClientConfig, sessionID string, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	dialer, err := newDialer(cfg, logger)
	if err != nil {
		return err
	}
	out = &lockedWriter{w: out}

	// Latest snapshot wins; the renderer only needs the newest state.
	snapshots := make(chan session.Snapshot, 1)
	listener := func(snap session.Snapshot) {
		select {
		case snapshots <- snap:
		default:
			select {
			case <-snapshots:
			default:
			}
			select {
			case snapshots <- snap:
			default:
			}
		}
	}

	s := session.New(dialer, sessionOptions(cfg, sessionID, logger, listener)...)
	defer s.Close()

	eg, egCtx := errgroup.WithContext(ctx)
	r := newRenderer(out, assistant.NewCannedResponder().Greeting())

	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			case snap := <-snapshots:
				r.render(snap)
			}
		}
	})

	eg.Go(func() error {
		if err := s.Connect(egCtx); err != nil {
			fmt.Fprintf(out, "%s\n", errorStyle.Render("could not reach the chat service: "+err.Error()))
		}
		err := readCommands(egCtx, s, in, out)
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
			return errQuit
		}
		return err
	})

	err = eg.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var errQuit = errors.New("quit")

// lockedWriter serializes the renderer and command feedback.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func readCommands(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := handleLine(ctx, s, line, out); err != nil {
				return err
			}
		}
	}
}

func handleLine(ctx context.Context, s *session.Session, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	report := func(err error) {
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	}

	if !strings.HasPrefix(line, "/") {
		report(s.SendMessage(line))
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return errQuit
	case "/connect":
		report(s.Connect(ctx))
	case "/join":
		id := identity.NewSessionID()
		if len(fields) > 1 {
			id = fields[1]
		}
		report(s.Join(id))
	case "/status":
		fmt.Fprintln(out, renderStatus(s.Snapshot()))
	default:
		fmt.Fprintln(out, noticeStyle.Render("unknown command "+fields[0]))
	}
	return nil
}
