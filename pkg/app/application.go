package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threadview/threadview/internal/hub"
	"github.com/threadview/threadview/internal/metrics"
	"github.com/threadview/threadview/internal/middleware"
	"github.com/threadview/threadview/internal/providers"
	"github.com/threadview/threadview/internal/ratelimit"
	"github.com/threadview/threadview/internal/services"
	"github.com/threadview/threadview/internal/tracing"
	"github.com/threadview/threadview/pkg/auth"
	"github.com/threadview/threadview/pkg/config"
	"github.com/threadview/threadview/pkg/persistence"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Threads         services.ThreadService
	Approvals       services.ApprovalService
	Preview         services.PreviewService
	Hub             *hub.Hub
	Store           persistence.KV
	Logger          *slog.Logger
	TZ              *time.Location
	AgentValidator  auth.Validator
	ClientValidator auth.Validator
	RateLimiter     ratelimit.Limiter
	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithAgentValidator sets a custom agent validator
func WithAgentValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.AgentValidator = validator
		return nil
	}
}

// WithClientValidator sets a custom client validator
func WithClientValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.ClientValidator = validator
		return nil
	}
}

// WithPersistence overrides the snapshot store, mainly for tests.
func WithPersistence(kv persistence.KV) ApplicationOption {
	return func(app *Application) error {
		app.Store = kv
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("UTC", 0)
	}

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "threadview", "env", cfg.Env)
	slog.SetDefault(logger)

	app := &Application{
		Config: cfg,
		Logger: logger,
		TZ:     loc,
	}

	// Apply options before building defaults so tests can inject fakes.
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if cfg.PersistenceProvider == "redis" || cfg.RateLimit.Ingest.RequestsPerMinute > 0 ||
		cfg.RateLimit.Resume.RequestsPerMinute > 0 || cfg.RateLimit.Admin.RequestsPerMinute > 0 {
		redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		app.RateLimiter = ratelimit.NewTokenBucketLimiter(redisClient)
		if cfg.PersistenceProvider == "redis" {
			metrics.RegisterRedisCollector(redisClient, cfg.SnapshotNamespace, logger)
		}
	}

	if app.Store == nil {
		providerCfg, err := json.Marshal(map[string]any{
			"addr":     cfg.RedisAddr,
			"password": cfg.RedisPassword,
			"db":       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		kv, err := persistence.NewPersistence(
			persistence.ProviderConfig{Type: cfg.PersistenceProvider, Config: providerCfg},
			persistence.PluginConfig{
				Namespace:  cfg.SnapshotNamespace,
				DefaultTTL: time.Duration(cfg.SnapshotTTLSeconds) * time.Second,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("init persistence: %w", err)
		}
		app.Store = kv
	}

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "threadview",
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		OTLPInsecure: cfg.TracingOTLPInsecure,
		SampleRatio:  cfg.TracingSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	app.Hub = hub.New(logger, cfg.StreamBufferSize)
	app.Threads = services.NewThreadService(logger, app.Hub, app.Store,
		time.Duration(cfg.SnapshotTTLSeconds)*time.Second, time.Now)
	app.Approvals = services.NewApprovalService(logger, app.Threads, app.Hub)
	app.Preview = services.NewPreviewService(cfg.PreviewCodeStyle)

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.LoggerMiddleware(logger))
	if cfg.TracingEnabled {
		engine.Use(middleware.TracingMiddleware("threadview"))
	}
	app.Engine = engine

	// Create default validators from config if not provided
	if app.AgentValidator == nil && cfg.AgentAuthProvider != "" {
		validator, err := auth.NewValidator(auth.ProviderConfig{
			Type:   cfg.AgentAuthProvider,
			Config: json.RawMessage(cfg.AgentAuthConfig),
		})
		if err != nil {
			return nil, err
		}
		app.AgentValidator = validator
	}

	if app.ClientValidator == nil && cfg.ClientAuthProvider != "" {
		validator, err := auth.NewValidator(auth.ProviderConfig{
			Type:   cfg.ClientAuthProvider,
			Config: json.RawMessage(cfg.ClientAuthConfig),
		})
		if err != nil {
			return nil, err
		}
		app.ClientValidator = validator
	}

	return app, nil
}
