package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/frederikbeimgraben/mcssh/internal/adapter/servertap"
	"github.com/frederikbeimgraben/mcssh/internal/config"
	"github.com/frederikbeimgraben/mcssh/internal/hub"
	"github.com/frederikbeimgraben/mcssh/internal/protocol"
	"github.com/frederikbeimgraben/mcssh/internal/repository"
	"github.com/frederikbeimgraben/mcssh/internal/service"
	handler "github.com/frederikbeimgraben/mcssh/internal/transport/http"
	"github.com/frederikbeimgraben/mcssh/internal/transport/sshserver"
	"github.com/frederikbeimgraben/mcssh/internal/ws"
	"github.com/frederikbeimgraben/mcssh/policy"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the SSH server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

// statusSource feeds the status API.
type statusSource struct {
	console *ws.Client
	ssh     *sshserver.Server
}

func (s statusSource) ConsoleConnected() bool { return s.console.Connected() }
func (s statusSource) Sessions() int          { return s.ssh.Sessions() }

func runServe(ctx context.Context, cfg *config.Config) error {
	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("Starting mcssh...")
	log.Printf("SSH listen address: %s", cfg.ListenAddr)
	log.Printf("ServerTap: %s", cfg.APIBaseURL())
	log.Printf("Database: %s", cfg.DatabaseURL)
	if cfg.Secret == "" {
		log.Printf("Warning: no ServerTap secret configured")
	}

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Initialize policy engine
	engine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	// Console fan-out, seeded with persisted scrollback
	h := hub.NewHub(cfg.Scrollback)
	if err := replayScrollback(ctx, db, h, cfg.Scrollback); err != nil {
		log.Printf("Failed to replay scrollback: %v", err)
	}

	// ServerTap adapters
	api := servertap.NewClient(cfg.APIBaseURL(), cfg.Secret, cfg.PlayersTTL)
	api.Players(ctx) // warm the player cache
	console := ws.NewClient(ws.Options{
		URL:            cfg.ConsoleURL(),
		Secret:         cfg.Secret,
		ReconnectDelay: cfg.ReconnectDelay,
		PingInterval:   cfg.PingInterval,
	}, db, h, nil, api)

	// Initialize service
	restarter := &service.CommandRestarter{Argv: cfg.RestartCommand}
	svc := service.New(db, console, api, engine, restarter, cfg.IsAdmin)
	if err := svc.LoadCommands(ctx); err != nil {
		return fmt.Errorf("failed to load known commands: %w", err)
	}
	console.SetLearner(svc)

	// SSH server
	hostKey, err := sshserver.LoadOrCreateHostKey(cfg.HostKeyPath)
	if err != nil {
		return err
	}
	keys, err := sshserver.NewKeyStore(cfg.AuthorizedKeysDir)
	if err != nil {
		return err
	}
	if err := keys.Watch(ctx); err != nil {
		log.Printf("Failed to watch %s, key changes need a restart: %v", keys.Dir(), err)
	}
	srv := sshserver.NewServer(hostKey, keys, svc, h, sshserver.Options{ServerVersion: cfg.ServerVersion})

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	go func() {
		if err := console.Run(ctx); err != nil {
			log.Printf("Console client stopped: %v", err)
		}
	}()

	var statusAPI *echo.Echo
	if cfg.HTTPPort > 0 {
		statusAPI = handler.NewServer(svc, statusSource{console: console, ssh: srv})
		go func() {
			addr := fmt.Sprintf(":%d", cfg.HTTPPort)
			if err := statusAPI.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Status API failed: %v", err)
			}
		}()
		log.Printf("Status API started on port %d", cfg.HTTPPort)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, ln) }()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			log.Printf("SSH server failed: %v", err)
		}
	}

	log.Println("Shutting down mcssh...")
	cancel()

	// Graceful shutdown
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown SSH server gracefully: %v", err)
	}
	if statusAPI != nil {
		if err := statusAPI.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown status API gracefully: %v", err)
		}
	}

	log.Println("mcssh stopped")
	return err
}

// replayScrollback publishes the newest stored console lines.
func replayScrollback(ctx context.Context, db store.Store, h *hub.Hub, limit int) error {
	if limit <= 0 {
		return nil
	}
	records, err := db.RecentMessages(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range records {
		h.Publish(protocol.Format(protocol.ConsoleMessage{
			Message:         r.Message,
			TimestampMillis: r.TimestampMillis,
			Level:           r.Level,
		}, nil))
	}
	return nil
}
