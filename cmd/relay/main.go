package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atelierdesign/site-chat/internal/config"
	"github.com/atelierdesign/site-chat/internal/handler"
	"github.com/atelierdesign/site-chat/internal/service/assistant"
	"github.com/atelierdesign/site-chat/internal/service/chat"
	"github.com/atelierdesign/site-chat/pkg/utils"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stderr))
}

// execute runs the root command and reports any failure on stderr.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "relay: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		addr       string
		store      string
		sqlitePath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Development messaging endpoint for the site chat widget",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if flags.Changed("store") {
				cfg.Relay.Store = store
			}
			if flags.Changed("sqlite-path") {
				cfg.Relay.SQLitePath = sqlitePath
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			if _, err := utils.NewLogger(cfg.LogLevel, os.Stderr); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address (overrides PORT)")
	cmd.Flags().StringVar(&store, "store", config.StoreMemory, "transcript store: memory or sqlite (overrides RELAY_STORE)")
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "relay.db", "SQLite file when --store=sqlite (overrides RELAY_SQLITE_PATH)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (overrides LOG_LEVEL)")
	return cmd
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file, continuing with system environment")
	}
	return config.Load()
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Relay)
	if err != nil {
		return err
	}
	chatService := chat.NewService(store)
	defer func() {
		if err := chatService.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close transcript store")
		}
	}()

	router := handler.NewRouter(chatService, assistant.NewCannedResponder(), log.Logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", cfg.Server.Addr).Str("store", cfg.Relay.Store).Msg("relay listening")
	return runServer(ctx, srv)
}

func openStore(cfg config.RelayConfig) (chat.Store, error) {
	if cfg.Store != config.StoreSQLite {
		return chat.NewMemoryStore(), nil
	}
	dsn, err := chat.SQLiteDSNForFile(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return chat.NewSQLiteStore(dsn)
}

func runServer(ctx context.Context, srv *http.Server) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("relay shut down")
		return nil
	})

	return eg.Wait()
}
