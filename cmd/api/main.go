// Package main is the entry point for the assistant server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/capitalize-ai/assistant/internal/config"
	"github.com/capitalize-ai/assistant/internal/dedup"
	"github.com/capitalize-ai/assistant/internal/engine"
	"github.com/capitalize-ai/assistant/internal/gateway"
	"github.com/capitalize-ai/assistant/internal/handler"
	"github.com/capitalize-ai/assistant/internal/llm"
	"github.com/capitalize-ai/assistant/internal/middleware"
	natsclient "github.com/capitalize-ai/assistant/internal/nats"
	"github.com/capitalize-ai/assistant/internal/redact"
	"github.com/capitalize-ai/assistant/internal/service"
	slackbot "github.com/capitalize-ai/assistant/internal/slack"
	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/internal/store/sqlite"
	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/internal/toolprovider/arcade"
	"github.com/capitalize-ai/assistant/internal/toolprovider/local"
	"github.com/capitalize-ai/assistant/pkg/logger"
	"github.com/capitalize-ai/assistant/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.NewFormat(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting assistant",
		zap.String("storage", cfg.StorageType),
		zap.String("tool_provider", cfg.ToolProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Storage
	backend, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer backend.store.Close()

	// LLM clients
	router, err := newRouter(cfg, log)
	if err != nil {
		log.Fatal("failed to create llm clients", zap.Error(err))
	}
	models, err := config.LoadModels(cfg.ModelsFile)
	if err != nil {
		log.Fatal("failed to load model catalog", zap.Error(err))
	}
	models = config.FilterModels(models, router.Has)

	// Tools
	provider, consent, err := newToolProvider(cfg, backend.store, log)
	if err != nil {
		log.Fatal("failed to create tool provider", zap.Error(err))
	}
	catalogCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	tools, err := provider.ListTools(catalogCtx)
	cancel()
	if err != nil {
		log.Fatal("failed to load tool catalog", zap.Error(err))
	}
	log.Info("tool catalog loaded", zap.Int("tools", len(tools)))

	// Engine
	manager := engine.NewManager(
		engine.NewTurnController(router, tools, cfg.LLMMaxTokens),
		gateway.New(provider, log.Named("gateway")),
		engine.NewExecutor(provider, cfg.ToolConcurrency, log.Named("executor")),
		backend.store,
		engine.Config{MaxSteps: cfg.MaxTurnSteps, DeleteOnResume: cfg.SnapshotDeleteOnResume},
		log,
	)

	redactor, err := newRedactor(cfg)
	if err != nil {
		log.Fatal("invalid redaction pattern", zap.Error(err))
	}

	// Initialize services
	profileSvc := service.NewProfileService(backend.store, models, cfg.DefaultProvider, cfg.DefaultModel, log)
	var events service.EventPublisher = service.NopPublisher{}
	if backend.audit != nil {
		events = backend.audit
	}
	conversationSvc := service.NewConversationService(manager, profileSvc, dedup.New(cfg.DedupCapacity), events, service.Options{
		Tools:               tools,
		ShortenDescriptions: cfg.ShortenToolDescriptions,
		SerializeUserTurns:  cfg.SerializeUserTurns,
		Redactor:            redactor,
	}, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(backend.checks...)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	profileHandler := handler.NewProfileHandler(profileSvc, log)
	toolHandler := handler.NewToolHandler(provider, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// OAuth redirects for locally served tools
	if consent != nil {
		oauthHandler := handler.NewOAuthHandler(consent, log)
		r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).
			Get("/oauth/{provider}/callback", oauthHandler.Callback)
	}

	// Slack, authenticated by request signature
	if cfg.SlackBotToken != "" {
		bot := slackbot.NewBot(slackbot.Config{
			SigningSecret: cfg.SlackSigningSecret,
			HistoryLimit:  cfg.SlackHistoryLimit,
		}, slackbot.NewAPI(cfg.SlackBotToken), conversationSvc, profileSvc, log)

		r.Route("/slack", func(r chi.Router) {
			r.Post("/events", bot.Events)
			r.Post("/interactions", bot.Interactions)
			r.Post("/commands", bot.Commands)
		})
	}

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/events", conversationHandler.Event)
		r.Post("/resume", conversationHandler.Resume)

		r.Get("/profile", profileHandler.Get)
		r.Put("/profile", profileHandler.Update)
		r.Get("/models", profileHandler.Models)
		r.Get("/tools", toolHandler.List)

		if backend.audit != nil {
			auditHandler := handler.NewAuditHandler(backend.audit, log)
			r.With(middleware.RequireScope("audit")).Get("/events", auditHandler.List)
		}
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// storage is the selected persistence backend and its readiness checks.
type storage struct {
	store  store.Store
	audit  *natsclient.StreamManager
	checks []handler.ReadinessCheck
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	switch cfg.StorageType {
	case config.StorageNATS:
		client, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return nil, err
		}

		kv, err := natsclient.NewStore(ctx, client, cfg.SnapshotTTL)
		if err != nil {
			client.Close()
			return nil, err
		}

		audit := natsclient.NewStreamManager(client)
		if err := audit.EnsureStream(ctx); err != nil {
			kv.Close()
			return nil, fmt.Errorf("failed to ensure audit stream: %w", err)
		}

		return &storage{
			store: kv,
			audit: audit,
			checks: []handler.ReadinessCheck{{
				Name: "nats",
				Check: func(context.Context) error {
					if !client.IsConnected() {
						return errors.New("not connected")
					}
					return nil
				},
			}},
		}, nil

	case config.StorageSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, cfg.SnapshotTTL, log.Named("sqlite"))
		if err != nil {
			return nil, err
		}
		go db.RunJanitor(ctx, time.Hour)
		return &storage{
			store: db,
			checks: []handler.ReadinessCheck{{
				Name: "sqlite",
				Check: func(ctx context.Context) error {
					_, err := db.Exists(ctx, store.ProfileKey("readiness"))
					return err
				},
			}},
		}, nil

	default:
		log.Warn("using in-memory storage; state is lost on restart")
		return &storage{store: store.NewMemory(cfg.SnapshotTTL)}, nil
	}
}

func newRouter(cfg *config.Config, log *logger.Logger) (*llm.Router, error) {
	var clients []llm.Client
	if cfg.OpenAIAPIKey != "" {
		c, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		clients = append(clients, llm.NewRetryClient(c, cfg.LLMMaxRetries, log.Named("openai")))
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		clients = append(clients, llm.NewRetryClient(c, cfg.LLMMaxRetries, log.Named("anthropic")))
	}

	defaultProvider := cfg.DefaultProvider
	router := llm.NewRouter(defaultProvider, log.Named("llm"), clients...)
	if !router.Has(defaultProvider) && len(clients) > 0 {
		log.Warn("default provider has no api key, falling back",
			zap.String("provider", defaultProvider),
			zap.String("fallback", clients[0].Name()),
		)
		router = llm.NewRouter(clients[0].Name(), log.Named("llm"), clients...)
	}
	return router, nil
}

// newToolProvider returns the configured provider. consent is non-nil
// only for local tools, whose OAuth callback this server receives.
func newToolProvider(cfg *config.Config, kv store.KV, log *logger.Logger) (toolprovider.Provider, *local.Consent, error) {
	if cfg.ToolProvider == config.ToolProviderArcade {
		c, err := arcade.New(arcade.Config{
			APIKey:     cfg.ArcadeAPIKey,
			BaseURL:    cfg.ArcadeBaseURL,
			Toolkits:   cfg.Toolkits,
			MaxRetries: cfg.LLMMaxRetries,
		}, log.Named("arcade"))
		return c, nil, err
	}

	tools := local.UtilityTools(nil)
	configs := make(map[string]*oauth2.Config)
	if cfg.GitHubClientID != "" {
		redirect := strings.TrimRight(cfg.OAuthRedirectBaseURL, "/") + "/oauth/" + local.GitHubProvider + "/callback"
		configs[local.GitHubProvider] = local.GitHubOAuthConfig(cfg.GitHubClientID, cfg.GitHubClientSecret, redirect)
		tools = append(tools, local.GitHubToolkit{Logger: log.Named("github")}.Tools()...)
	}

	consent := local.NewConsent(kv, configs, log.Named("consent"))
	return local.New(consent, log.Named("tools"), tools...), consent, nil
}

// newRedactor returns nil when redaction is disabled. Configured patterns
// replace the built-in ones per category.
func newRedactor(cfg *config.Config) (*redact.Redactor, error) {
	if !cfg.RedactionEnabled {
		return nil, nil
	}
	rc := redact.DefaultConfig()
	for _, o := range []struct {
		dst *string
		src string
	}{
		{&rc.Email, cfg.RedactEmailPattern},
		{&rc.Phone, cfg.RedactPhonePattern},
		{&rc.CreditCard, cfg.RedactCreditCardPattern},
		{&rc.SSN, cfg.RedactSSNPattern},
		{&rc.UserDefined, cfg.RedactUserDefinedPattern},
	} {
		if o.src != "" {
			*o.dst = o.src
		}
	}
	return redact.New(rc)
}
