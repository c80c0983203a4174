package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/canvas/api"
	"github.com/hazyhaar/canvas/auth"
	"github.com/hazyhaar/canvas/channel"
	"github.com/hazyhaar/canvas/config"
	"github.com/hazyhaar/canvas/mutlog"
	"github.com/hazyhaar/canvas/observability"
	"github.com/hazyhaar/canvas/session"
	"github.com/hazyhaar/canvas/shield"
)

const (
	shutdownTimeout     = 15 * time.Second
	maintenanceInterval = 10 * time.Second
	cleanupInterval     = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, websocket and MCP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// app is the wired server graph shared by serve and mcp.
type app struct {
	logger  *slog.Logger
	log     *mutlog.Store
	hub     *channel.Hub
	mm      *shield.MaintenanceMode
	limiter *shield.RateLimiter
	srv     *api.Server
}

func newApp(cfg *config.Config, db *sql.DB, logger *slog.Logger) *app {
	a := &app{logger: logger, log: mutlog.NewStore(db)}
	a.hub = channel.NewHub(a.log,
		channel.WithLogger(logger),
		channel.WithPollInterval(cfg.Channel.PollInterval),
		channel.WithQueueSize(cfg.Channel.QueueSize),
		channel.WithSlowSubscriberTimeout(cfg.Channel.SlowTimeout),
		channel.WithRateLimit(rate.Limit(cfg.Channel.PublishRate), cfg.Channel.PublishBurst))

	events := observability.NewEventLogger(db, observability.WithLogger(logger))
	sessions := session.NewManager(session.NewStore(db),
		session.WithPublisher(a.hub),
		session.WithEvents(events),
		session.WithLogger(logger))

	a.mm = shield.NewMaintenanceMode(db, "/healthz")
	a.limiter = shield.NewRateLimiter(cfg.RateLimit, "/healthz", "/s/").
		Rule("/api/login", shield.RateLimitConfig{Rate: 0.2, Burst: 5}).
		Rule("/api/owners", shield.RateLimitConfig{Rate: 0.1, Burst: 3})

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithEvents(events),
		api.WithMaintenance(a.mm),
		api.WithRateLimiter(a.limiter),
		api.WithPublicURL(cfg.PublicURL),
		api.WithSecureCookies(cfg.SecureCookies),
		api.WithSignup(cfg.AllowSignup),
	}
	if cfg.Google.Enabled() {
		opts = append(opts, api.WithGoogle(cfg.Google))
	}
	a.srv = api.New(sessions, a.hub, auth.NewOwners(db), []byte(cfg.SessionSecret), opts...)
	return a
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	a := newApp(cfg, db, logger)
	defer a.hub.Close()
	go a.hub.Run(ctx)
	go a.mm.Run(ctx, maintenanceInterval)
	go a.limiter.Run(ctx)
	go housekeeping(ctx, logger, cfg, a.log)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("canvas: listening", "addr", cfg.Addr, "public_url", cfg.PublicURL, "version", api.Version)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("canvas: shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	// Websockets are hijacked and outlive Shutdown; closing the hub ends them.
	a.hub.Close()
	return httpSrv.Shutdown(shutdownCtx)
}

// housekeeping applies the retention policies until ctx is done.
func housekeeping(ctx context.Context, logger *slog.Logger, cfg *config.Config, log *mutlog.Store) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := prune(ctx, cfg, log); err != nil {
				logger.Warn("canvas: retention cleanup failed", "error", err)
			}
		}
	}
}

// prune deletes expired request logs, events and mutation log entries.
func prune(ctx context.Context, cfg *config.Config, log *mutlog.Store) (int64, error) {
	if err := observability.Cleanup(ctx, log.DB, cfg.Retention); err != nil {
		return 0, err
	}
	return log.Prune(ctx, time.Now().Add(-cfg.MutationRetention))
}
