// Package server implements the DocBox HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Knowmad79/Docbox2026/internal/auth"
	"github.com/Knowmad79/Docbox2026/internal/ratelimit"
	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
	"github.com/Knowmad79/Docbox2026/internal/service/triage"
)

// Server is the DocBox HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer, OpenAPISpec, ExtraRoutes, Middlewares.
type ServerConfig struct {
	// Required dependencies.
	Users  UserStore
	JWTMgr *auth.JWTManager
	Triage *triage.Service
	Shadow *shadow.Service
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	LLMConfigured       bool

	OpenAPISpec []byte // Embedded OpenAPI YAML.

	// ExtraRoutes are registered after the built-in routes and share the
	// auth chain. Middlewares wrap the whole handler; the first is outermost.
	ExtraRoutes []func(mux *http.ServeMux)
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NoopLimiter{}
	}
	h := NewHandlers(HandlersDeps{
		Users:               cfg.Users,
		JWTMgr:              cfg.JWTMgr,
		Triage:              cfg.Triage,
		Shadow:              cfg.Shadow,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
		LLMConfigured:       cfg.LLMConfigured,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	// Unauthenticated ingress is limited per client IP.
	publicRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoints (no auth required, rate limited by IP).
	mux.Handle("POST /auth/register", publicRL(http.HandlerFunc(h.HandleRegister)))
	mux.Handle("POST /auth/login", publicRL(http.HandlerFunc(h.HandleLogin)))
	mux.HandleFunc("GET /auth/me", h.HandleMe)

	// Triage.
	mux.HandleFunc("POST /v1/classify", h.HandleClassify)
	mux.HandleFunc("POST /v1/messages", h.HandleCreateMessage)
	mux.HandleFunc("GET /v1/messages", h.HandleListMessages)
	mux.HandleFunc("GET /v1/messages/by-zone", h.HandleMessagesByZone)
	mux.HandleFunc("GET /v1/messages/{id}", h.HandleGetMessage)
	mux.HandleFunc("DELETE /v1/messages/{id}", h.HandleDeleteMessage)
	mux.HandleFunc("POST /v1/messages/{id}/correct", h.HandleCorrectMessage)
	mux.HandleFunc("POST /v1/messages/{id}/status", h.HandleUpdateStatus)
	mux.HandleFunc("POST /v1/messages/{id}/replied", h.HandleMarkReplied)
	mux.HandleFunc("GET /v1/action-center", h.HandleActionCenter)
	mux.HandleFunc("POST /v1/sync", h.HandleSync)
	mux.HandleFunc("GET /v1/stats", h.HandleStats)
	mux.HandleFunc("POST /v1/demo/seed", h.HandleSeedDemo)

	// Forwarding sources. Inbound mail authenticates by its token.
	mux.HandleFunc("POST /v1/sources", h.HandleCreateSource)
	mux.HandleFunc("GET /v1/sources", h.HandleListSources)
	mux.HandleFunc("DELETE /v1/sources/{id}", h.HandleDeleteSource)
	mux.Handle("POST /inbound/{token}", publicRL(http.HandlerFunc(h.HandleInbound)))

	// Shadow Router.
	mux.Handle("GET /webhooks/nylas", publicRL(http.HandlerFunc(h.HandleNylasChallenge)))
	mux.Handle("POST /webhooks/nylas", publicRL(http.HandlerFunc(h.HandleNylasWebhook)))
	mux.HandleFunc("POST /v1/shadow/replay", h.HandleReplay)
	mux.HandleFunc("GET /v1/vectors", h.HandleListVectors)
	mux.HandleFunc("GET /v1/vectors/deck", h.HandleDailyDeck)
	mux.HandleFunc("GET /v1/vectors/{id}", h.HandleGetVector)
	mux.HandleFunc("GET /v1/vectors/{id}/events", h.HandleVectorEvents)
	mux.HandleFunc("POST /v1/vectors/{id}/transition", h.HandleTransition)

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
