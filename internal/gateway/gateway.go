// ABOUTME: Gateway orchestrator that wires store, engine, broker, and HTTP server
// ABOUTME: Manages component lifecycle, health endpoints, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chatrelay/chatrelay/internal/auth"
	"github.com/chatrelay/chatrelay/internal/bridge"
	"github.com/chatrelay/chatrelay/internal/broker"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/engine"
	"github.com/chatrelay/chatrelay/internal/publish"
	"github.com/chatrelay/chatrelay/internal/store"
	"github.com/chatrelay/chatrelay/internal/wire"
)

// Gateway orchestrates the chatrelay server components: the turn
// submission API, credential issuance, the turn store, and optionally
// an embedded broker hosted on the same listener.
type Gateway struct {
	config     *config.Config
	store      store.Store
	provider   engine.Provider
	bridge     *bridge.Bridge
	publisher  bridge.EventPublisher
	minter     *auth.Minter
	broker     *broker.Broker
	httpServer *http.Server
	logger     *slog.Logger
}

// New assembles a gateway from config. The returned gateway owns the
// store and embedded broker and releases them on Shutdown.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	minter, err := auth.NewMinter([]byte(cfg.Auth.SigningSecret))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating credential minter: %w", err)
	}

	provider, err := engine.New(engine.Options{
		Provider: cfg.Engine.Provider,
		Model:    cfg.Engine.Model,
		APIKey:   cfg.Engine.APIKey,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating engine provider: %w", err)
	}

	g := &Gateway{
		config:   cfg,
		store:    st,
		provider: provider,
		minter:   minter,
		logger:   logger,
	}

	var publisher bridge.EventPublisher
	if cfg.Broker.Embedded {
		g.broker = broker.New(cfg.Broker.APIKey, minter, logger)
		publisher = &localPublisher{broker: g.broker}
	} else {
		publisher = publish.New(cfg.Broker.PublishURL, cfg.Broker.APIKey, nil, logger)
	}
	g.publisher = publisher
	g.bridge = bridge.New(publisher, st, logger)

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           corsMiddleware(cfg.CORS.AllowedOrigins, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /turn", g.handleTurn)
	mux.HandleFunc("GET /credential", g.handleCredential)
	mux.HandleFunc("GET /turns/{messageID}", g.handleGetTurn)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	if g.broker != nil {
		handler := g.broker.Handler()
		mux.Handle("POST /api/publish", handler)
		mux.Handle("GET /connection/websocket", handler)
	}
}

// Handler exposes the assembled HTTP handler, used by tests to run the
// gateway under httptest.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled
// or the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown stops the HTTP server and releases the store and broker.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if g.broker != nil {
		g.broker.Close()
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the gateway can accept turns.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", g.provider.Name())
}

// localPublisher delivers wire events straight to the embedded broker,
// skipping the HTTP round trip an external broker would need.
type localPublisher struct {
	broker *broker.Broker
}

func (p *localPublisher) Publish(_ context.Context, channel string, ev wire.Event) error {
	data, err := wire.Encode(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	p.broker.Publish(channel, data)
	return nil
}
