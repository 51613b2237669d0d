// Package app wires all components into one explicit server context
// object, constructed at process start and torn down at shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"studyroom/internal/api"
	"studyroom/internal/config"
	"studyroom/internal/graph"
	"studyroom/internal/hub"
	"studyroom/internal/moderation"
	"studyroom/internal/notify"
	"studyroom/internal/presence"
	"studyroom/internal/room"
	"studyroom/internal/router"
	"studyroom/internal/websocket"
	"studyroom/pkg/interfaces"
)

// Application holds every component of the messaging core. There are no
// package-level singletons; everything reachable from here is torn down
// by Stop.
type Application struct {
	config     *config.Config
	logger     zerolog.Logger
	recorder   *graph.Recorder
	presence   *presence.Store
	registry   *websocket.Registry
	directory  *room.Directory
	hub        *hub.Hub
	dispatcher *notify.Dispatcher
	router     *router.Router
	httpServer *http.Server
}

// NewApplication builds the component graph in dependency order:
// graph sink → recorder → presence → registry → directory → hub →
// moderation → dispatcher → router → handlers → HTTP server.
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var recorder *graph.Recorder
	var graphRecorder interfaces.GraphRecorder
	if cfg.Graph.Path != "" {
		sink, err := graph.NewSQLiteSink(cfg.Graph.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open graph sink: %w", err)
		}
		recorder = graph.NewRecorder(sink, cfg.Graph.QueueSize, logger)
		graphRecorder = recorder
	}

	var pres *presence.Store
	if cfg.RedisURL != "" {
		var err error
		pres, err = presence.NewStore(context.Background(), cfg.RedisURL, logger)
		if err != nil {
			// Presence is a best-effort mirror; run without it.
			logger.Warn().Err(err).Msg("presence mirror unavailable, continuing without redis")
			pres = nil
		}
	}

	registry := websocket.NewRegistry(cfg.WebSocket.AllowReplace)
	directory := room.NewDirectory(cfg.Rooms, graphRecorder, logger)
	h := hub.NewHub(registry, directory, pres, logger)

	var moderator interfaces.Moderator
	if cfg.Moderation.URL != "" {
		moderator = moderation.NewHTTPClient(cfg.Moderation.URL, &http.Client{Timeout: cfg.Moderation.Timeout})
	}
	gate := moderation.NewGate(moderator, logger)

	dispatcher := notify.NewDispatcher(h, logger)
	msgRouter := router.NewRouter(h, directory, gate, dispatcher, logger)
	wsHandler := websocket.NewHandler(h, msgRouter, cfg.WebSocket, logger)

	apiServer := api.NewServer(directory, h, logger)
	mux := apiServer.Router()
	mux.Get("/ws/{user_id}", wsHandler.ServeWS)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		recorder:   recorder,
		presence:   pres,
		registry:   registry,
		directory:  directory,
		hub:        h,
		dispatcher: dispatcher,
		router:     msgRouter,
		httpServer: httpServer,
	}, nil
}

// Start begins serving and returns once the listener is up.
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.httpServer.Addr).Msg("starting studyroom server")

	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		a.logger.Info().Msg("studyroom server started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP listener, live
// connections, then the best-effort mirrors.
func (a *Application) Stop(ctx context.Context) error {
	a.logger.Info().Msg("shutting down studyroom server")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("http server shutdown error")
	}

	a.hub.Shutdown(ctx)

	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Error().Err(err).Msg("graph recorder shutdown error")
		}
	}
	if err := a.presence.Close(); err != nil {
		a.logger.Error().Err(err).Msg("presence shutdown error")
	}

	a.logger.Info().Msg("studyroom server shutdown complete")
	return nil
}

// Addr returns the server address for external connections.
func (a *Application) Addr() string {
	return a.httpServer.Addr
}

// Dispatcher exposes the notification dispatcher for operational tooling
// such as platform-wide announcements.
func (a *Application) Dispatcher() *notify.Dispatcher {
	return a.dispatcher
}
