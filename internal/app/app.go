package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/activity"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store/memory"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	feed            *activity.Feed
	recorder        *activity.Recorder
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt_secret must not be empty")
	}
	if cfg.UsesDevSecret() {
		logger.Warn().Msg("using the built-in development jwt secret; set jwt_secret or WIRECHAT_JWT_SECRET")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(jwtConfig)

	feed := activity.NewFeed(logger, 0)
	recorder := activity.NewRecorder(logger)

	st := memory.New(memory.WithDefaultRoom(cfg.GlobalRoom))
	hub := core.NewHub(st,
		core.WithLogger(logger),
		core.WithGlobalRoom(cfg.GlobalRoom),
		core.WithHistoryLimit(cfg.HistoryLimit),
		core.WithActivitySink(feed),
	)
	gateway := core.NewGateway(authService, hub, cfg.SendBuffer, logger)
	server := transporthttp.NewServer(gateway, authService, recorder, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		feed:            feed,
		recorder:        recorder,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	coreCtx, stopCore := context.WithCancel(ctx)
	defer stopCore()

	if err := a.feed.Subscribe(coreCtx, a.recorder.Handle); err != nil {
		return fmt.Errorf("subscribe activity recorder: %w", err)
	}
	a.feed.Start(coreCtx)

	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(coreCtx)
		close(hubDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopCore()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		// Stopping the hub closes every WebSocket session; Shutdown does not
		// wait for hijacked connections.
		<-hubDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the activity feed.
func (a *App) cleanup() {
	if err := a.feed.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close activity feed")
		return
	}
	stats := a.recorder.Stats()
	a.log.Info().
		Int64("messages", stats.MessagesCreated).
		Int64("connects", stats.Connects).
		Int64("dropped_activity", a.feed.Dropped()).
		Msg("activity feed closed")
}
