package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/mcp-oauth/security"

	"mcpconnect/internal/config"
	"mcpconnect/internal/oauth"
	"mcpconnect/internal/store"
	"mcpconnect/pkg/logging"
)

// Config configures the HTTP API.
type Config struct {
	ListenAddress string

	// PublicURL enables HSTS when it is https. May be empty.
	PublicURL string

	// RateLimit and Burst bound requests per client IP on the check and
	// callback routes. Zero uses the defaults.
	RateLimit int
	Burst     int

	TrustProxy        bool
	TrustedProxyCount int

	ReadHeaderTimeout time.Duration
}

// ConfigFrom maps the loaded configuration onto Config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		ListenAddress:     cfg.ListenAddress,
		PublicURL:         cfg.PublicURL,
		RateLimit:         cfg.Server.CallbackRateLimit,
		Burst:             cfg.Server.CallbackBurst,
		TrustProxy:        cfg.Server.TrustProxy,
		TrustedProxyCount: cfg.Server.TrustedProxyCount,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

// Server serves the OAuth API for one Manager.
type Server struct {
	cfg     Config
	manager *oauth.Manager
	limiter *security.RateLimiter

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// New creates a Server. Call Shutdown to release the rate limiter.
func New(cfg Config, manager *oauth.Manager) *Server {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = config.DefaultListenAddress
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = config.DefaultCallbackRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = config.DefaultCallbackBurst
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = config.DefaultReadHeaderTimeout
	}
	return &Server{
		cfg:     cfg,
		manager: manager,
		limiter: security.NewRateLimiter(cfg.RateLimit, cfg.Burst, logging.Logger()),
	}
}

// Handler returns the routed API with security headers and request ids.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("POST /api/mcp-servers/{id}/oauth/check", s.rateLimited(http.HandlerFunc(s.handleCheck), rejectJSON))
	mux.Handle("GET "+s.manager.CallbackPath()+"/{id}", s.rateLimited(http.HandlerFunc(s.handleCallback), rejectRedirect))
	mux.HandleFunc("GET /api/mcp-servers/oauth/status", s.handleStatus)

	return security.RequestIDMiddleware(s.withSecurityHeaders(mux))
}

// ListenAndServe binds the listen address and serves until Shutdown. It
// returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ln.Close()
	}
	s.httpServer = httpServer
	s.mu.Unlock()

	logging.Info("Server", "Listening on %s (callbacks under %s)", ln.Addr(), s.manager.CallbackPath())

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and the rate limiter. Later
// calls are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	httpServer := s.httpServer
	s.mu.Unlock()

	s.limiter.Stop()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetSecurityHeaders(w, s.cfg.PublicURL)
		next.ServeHTTP(w, r)
	})
}

// rateLimited answers requests over the per-IP limit with reject.
func (s *Server) rateLimited(next http.Handler, reject http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := security.GetClientIP(r, s.cfg.TrustProxy, s.cfg.TrustedProxyCount)
		if !s.limiter.Allow(ip) {
			logging.Warn("Server", "Rate limit exceeded for %s on %s", ip, r.URL.Path)
			reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rejectJSON(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusTooManyRequests, "Too many requests")
}

// rejectRedirect keeps the browser on the chat UI; the callback route only
// ever answers with a redirect.
func rejectRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, oauth.ErrorRedirect("Too many requests"), http.StatusFound)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.manager.Check(r.Context(), id)
	if err != nil {
		status, msg := checkErrorStatus(err)
		if status == http.StatusInternalServerError {
			logging.Error("Server", err, "OAuth check for %s failed", id)
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func checkErrorStatus(err error) (int, string) {
	switch {
	case store.IsNotFound(err):
		return http.StatusNotFound, "Unknown MCP server"
	case oauth.IsKind(err, oauth.KindConflict):
		return http.StatusConflict, oauth.UserMessage(err)
	case oauth.IsKind(err, oauth.KindMisconfiguration):
		return http.StatusInternalServerError, oauth.UserMessage(err)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	target := s.manager.Callback(r.Context(), r.PathValue("id"), oauth.CallbackParams{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.manager.Statuses(r.Context())
	if err != nil {
		logging.Error("Server", err, "Failed to list OAuth status")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": statuses})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Server", "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
