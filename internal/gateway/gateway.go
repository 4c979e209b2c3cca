// ABOUTME: HTTP server assembly and lifecycle for the pkggate gateway
// ABOUTME: Wires the user store, policy engine, audit log, and middleware behind one mux

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/northloop/pkggate/internal/audit"
	"github.com/northloop/pkggate/internal/auth"
	"github.com/northloop/pkggate/internal/config"
	"github.com/northloop/pkggate/internal/policy"
	"github.com/northloop/pkggate/internal/store"
)

// Gateway serves the authorization and administration API.
type Gateway struct {
	config     *config.Config
	users      store.UserStore
	audit      audit.Log
	middleware *auth.Middleware
	logger     *slog.Logger
	httpServer *http.Server
}

// New assembles a gateway from its dependencies. The middleware is built
// from the config's auth section.
func New(cfg *config.Config, users store.UserStore, engine *policy.Engine, auditLog audit.Log, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	opts := auth.Options{
		EnableAuth:       cfg.Auth.Enabled,
		EnableUserAuth:   cfg.Auth.UserAuth,
		SingleAPIKeyMode: cfg.Auth.SingleAPIKeyMode,
		APIKey:           cfg.Auth.APIKey,
	}

	g := &Gateway{
		config:     cfg,
		users:      users,
		audit:      auditLog,
		middleware: auth.NewMiddleware(opts, users, engine, auditLog, logger),
		logger:     logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// Handler returns the gateway's HTTP routes. Exposed separately so tests can
// drive the mux without a listener.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)

	mux.HandleFunc("POST /v1/authorize", g.handleAuthorize)
	mux.HandleFunc("POST /v1/users", g.handleCreateUser)
	mux.HandleFunc("GET /v1/users", g.handleListUsers)
	mux.HandleFunc("DELETE /v1/users/{username}", g.handleDeleteUser)
	mux.HandleFunc("GET /v1/audit", g.handleListAudit)

	return mux
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	g.logger.Info("gateway listening", "http_addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	g.logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}
