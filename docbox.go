// Package docbox is the public API for embedding the DocBox triage server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := docbox.New(ctx,
//	    docbox.WithVersion(version),
//	    docbox.WithLogger(logger),
//	    docbox.WithLLM(myModel),
//	    docbox.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The root package imports internal/*, but internal/* never imports the root.
// Public types (Email, LLM, MailFetcher) expose no internal types; the
// adapters that bridge them live here.
package docbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/Knowmad79/Docbox2026/api"
	"github.com/Knowmad79/Docbox2026/internal/auth"
	"github.com/Knowmad79/Docbox2026/internal/classifier"
	"github.com/Knowmad79/Docbox2026/internal/config"
	"github.com/Knowmad79/Docbox2026/internal/llm"
	"github.com/Knowmad79/Docbox2026/internal/mailbox"
	"github.com/Knowmad79/Docbox2026/internal/mcp"
	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/ratelimit"
	"github.com/Knowmad79/Docbox2026/internal/server"
	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
	"github.com/Knowmad79/Docbox2026/internal/service/triage"
	"github.com/Knowmad79/Docbox2026/internal/storage/backend"
	"github.com/Knowmad79/Docbox2026/internal/telemetry"
	"github.com/Knowmad79/Docbox2026/internal/vectorizer"
)

// App is the DocBox server lifecycle. Construct with New, run with Run.
type App struct {
	cfg          config.Config
	store        backend.Store
	srv          *server.Server
	shadow       *shadow.Service
	limiter      ratelimit.Limiter
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, opens the store, wires every subsystem and
// returns a ready-to-run App. It starts no goroutines; call Run.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("docbox starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.OTELEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := backend.Open(ctx, backend.Config{
		DatabaseURL:     cfg.DatabaseURL,
		SQLitePath:      cfg.SQLitePath,
		ExtraMigrations: o.extraMigrations,
	}, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	fail := func(err error) (*App, error) {
		store.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, err
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fail(fmt.Errorf("auth: %w", err))
	}

	// Model client: an external override takes priority over configuration.
	var client llm.Client
	if o.llm != nil {
		client = o.llm
		logger.Info("llm provider: external")
	} else {
		client = NewLLMClient(cfg, logger)
	}

	var fetcher mailbox.Fetcher
	if o.fetcher != nil {
		fetcher = &fetcherAdapter{f: o.fetcher}
		logger.Info("mail provider: external")
	} else if fetcher, err = NewMailFetcher(ctx, cfg, logger); err != nil {
		return fail(fmt.Errorf("mailbox: %w", err))
	}

	cls := classifier.New(classifier.Options{
		LLM:                client,
		Overrides:          store,
		OverridesBeforeLLM: cfg.OverridesBeforeLLM,
		Logger:             logger,
	})
	var triageOpts []triage.Option
	if lister, ok := fetcher.(mailbox.Lister); ok {
		triageOpts = append(triageOpts, triage.WithMailbox(lister))
	}
	triageSvc := triage.New(store, cls, cfg.InboundDomain, logger, triageOpts...)
	shadowSvc := shadow.New(store, vectorizer.New(client, vectorizer.WithLogger(logger)), fetcher, shadow.Options{
		Concurrency: cfg.ShadowConcurrency,
		Logger:      logger,
	})

	mcpSrv := mcp.New(triageSvc, shadowSvc, logger, version)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	var extraRoutes []func(*http.ServeMux)
	for _, fn := range o.routeRegistrars {
		extraRoutes = append(extraRoutes, func(mux *http.ServeMux) { fn(mux) })
	}
	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, func(h http.Handler) http.Handler { return mw(h) })
	}

	srv := server.New(server.ServerConfig{
		Users:               store,
		JWTMgr:              jwtMgr,
		Triage:              triageSvc,
		Shadow:              shadowSvc,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		LLMConfigured:       llm.Configured(client),
		OpenAPISpec:         api.OpenAPISpec,
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		srv:          srv,
		shadow:       shadowSvc,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the overdue sweep and the HTTP server, then blocks until ctx is
// cancelled or the server fails. Shutdown runs before Run returns.
func (a *App) Run(ctx context.Context) error {
	go a.sweepLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	if err := a.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops accepting HTTP requests and drains in-flight ones, then
// waits for background webhook work before closing the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("docbox shutting down")

	httpCtx, httpCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownHTTPTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	var drainErr error
	drainCtx, drainCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownDrainTimeout)
	if err := a.shadow.Drain(drainCtx); err != nil {
		a.logger.Error("webhook drain incomplete, in-flight messages will be reprocessed on redelivery",
			"error", err,
			"configured_timeout", a.cfg.ShutdownDrainTimeout,
		)
		drainErr = fmt.Errorf("webhook drain: %w", err)
	}
	drainCancel()

	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())
	a.store.Close(context.Background())

	a.logger.Info("docbox stopped")
	return drainErr
}

// sweepLoop flags vectors whose deadline has passed.
func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.OverdueSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			marked, cleared, err := a.shadow.SweepOverdue(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Warn("overdue sweep failed", "error", err)
				}
				continue
			}
			if marked > 0 || cleared > 0 {
				a.logger.Info("overdue sweep", "marked", marked, "cleared", cleared)
			}
		}
	}
}

// NewLLMClient builds the model client the configuration selects. With no
// provider the Noop client is returned and every caller takes its rule path.
func NewLLMClient(cfg config.Config, logger *slog.Logger) llm.Client {
	switch cfg.ResolvedLLMProvider() {
	case "openai":
		logger.Info("llm provider: openai", "model", cfg.OpenAIModel)
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.LLMTimeout)
	case "ollama":
		logger.Info("llm provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, cfg.LLMTimeout)
	default:
		logger.Warn("no llm provider configured, using rule-based triage")
		return llm.Noop{}
	}
}

// NewMailFetcher builds the provider client the Shadow Router fetches
// webhook messages with. The Nylas and Gmail clients also list the inbox for
// mailbox sync. It returns nil when no provider is configured.
func NewMailFetcher(ctx context.Context, cfg config.Config, logger *slog.Logger) (mailbox.Fetcher, error) {
	switch cfg.MailProvider {
	case "nylas":
		logger.Info("mail provider: nylas", "api_uri", cfg.NylasAPIURI)
		return mailbox.NewNylasFetcher(cfg.NylasAPIKey, cfg.NylasAPIURI, cfg.MailTimeout), nil
	case "gmail":
		logger.Info("mail provider: gmail")
		return mailbox.NewGmailFetcher(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailRefreshToken)
	default:
		logger.Info("mail provider: none (webhooks accepted but not fetched)")
		return nil, nil
	}
}

// fetcherAdapter bridges a public MailFetcher to mailbox.Fetcher.
type fetcherAdapter struct {
	f MailFetcher
}

func (a *fetcherAdapter) Fetch(ctx context.Context, grantID, messageID string) (model.EmailInput, error) {
	e, err := a.f.Fetch(ctx, grantID, messageID)
	if err != nil {
		return model.EmailInput{}, err
	}
	return e.toInput(), nil
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
