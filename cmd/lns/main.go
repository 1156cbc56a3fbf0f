// Package main is the entrypoint for the LNS bridge.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/lktlns/lktlns/internal/cache"
	"github.com/lktlns/lktlns/internal/config"
	"github.com/lktlns/lktlns/internal/downstream"
	"github.com/lktlns/lktlns/internal/events"
	"github.com/lktlns/lktlns/internal/everynet"
	"github.com/lktlns/lktlns/internal/handler"
	"github.com/lktlns/lktlns/internal/integration"
	"github.com/lktlns/lktlns/internal/metrics"
	"github.com/lktlns/lktlns/internal/middleware"
	"github.com/lktlns/lktlns/internal/mqtt"
	"github.com/lktlns/lktlns/internal/repository"
	"github.com/lktlns/lktlns/internal/server"
	"github.com/lktlns/lktlns/internal/upstream"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	// Postgres, pgx pool for the hot paths
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// database/sql handle for the integration delivery tables
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql connection",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
		os.Exit(1)
	}
	defer sqlDB.Close()

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Metrics tee: Prometheus for scraping, in-memory for /api/v1/stats
	promRecorder := metrics.NewPrometheus()
	memRecorder := metrics.NewInMemory()
	recorder := metrics.NewTee(promRecorder, memRecorder)

	// Device registry
	registryClient := everynet.NewClient(cfg.RegistryURL, cfg.RegistryToken)
	devices := upstream.NewDeviceStore(registryClient, cacheClient, logger, recorder)
	devices.SetRefreshInterval(cfg.RegistryRefreshInterval)
	if err := devices.Refresh(ctx); err != nil {
		// Sessions may still resolve via cache or per-device lookup.
		logger.Warn("initial registry snapshot failed", slog.String("error", err.Error()))
	}

	// MQTT broker
	broker := mqtt.NewClient(mqtt.Options{
		Host:     cfg.MQTTHost,
		Port:     cfg.MQTTPort,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		UseTLS:   cfg.MQTTUseTLS,
	}, logger, recorder)
	if err := broker.Connect(ctx); err != nil {
		logger.Error("failed to connect to MQTT broker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Workers
	frameRepo := repository.NewFrameRepository(repo)
	framePublisher := events.NewPublisher(cacheClient.Client(), logger, recorder)
	scheduler := downstream.NewScheduler(logger, recorder)

	upWorker := upstream.NewWorker(
		cfg.UplinkAddr, cfg.MQTTPublishTopic,
		devices, broker, framePublisher, scheduler,
		logger, recorder,
	)
	downWorker := downstream.NewWorker(cfg.DownlinkAddr, scheduler, logger, recorder)

	eventsWorker := events.NewWorker(cacheClient.Client(), frameRepo, logger, events.NewConsumerID(), recorder)

	integrationRepo := integration.NewRepository(sqlDB)
	eventsWorker.SetFanout(integration.NewPublisher(integrationRepo, logger))
	integrationWorker := integration.NewWorker(integrationRepo, logger, recorder)

	if err := broker.Subscribe(ctx, cfg.MQTTSubscribeTopic, upWorker.HandleBrokerMessage); err != nil {
		logger.Error("failed to subscribe to downlink topic", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Handlers and router
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient, broker)
	deviceHandler := handler.NewDeviceHandler(devices, logger)
	frameHandler := handler.NewFrameHandler(frameRepo, logger)
	downlinkHandler := handler.NewDownlinkHandler(upWorker, logger)
	statsHandler := handler.NewStatsHandler(memRecorder)
	apiKeyHandler := handler.NewAPIKeyHandler(logger, repo)
	integrationHandler := handler.NewIntegrationHandler(logger, integrationRepo)

	router := setupRouter(routerDeps{
		base:         h,
		health:       healthHandler,
		devices:      deviceHandler,
		frames:       frameHandler,
		downlinks:    downlinkHandler,
		stats:        statsHandler,
		apiKeys:      apiKeyHandler,
		integrations: integrationHandler,
		promHandler:  promRecorder,
		repo:         repo,
		cache:        cacheClient,
		logger:       logger,
	})

	srv := server.New(
		router,
		cfg.HTTPPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Worker lifecycle. Registered in reverse shutdown order: the UDP
	// ingest stops first, the broker connection drops last.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	srv.OnShutdown("mqtt", broker.Shutdown)
	srv.OnShutdown("integration.worker", func(ctx context.Context) error {
		stopWorkers()
		return nil
	})
	srv.OnShutdown("events.worker", eventsWorker.Shutdown)
	srv.OnShutdown("downstream.worker", downWorker.Shutdown)
	srv.OnShutdown("upstream.worker", upWorker.Shutdown)

	runWorker(workerCtx, logger, "upstream.worker", upWorker.Run)
	runWorker(workerCtx, logger, "downstream.worker", downWorker.Run)
	runWorker(workerCtx, logger, "events.worker", eventsWorker.Run)
	runWorker(workerCtx, logger, "integration.worker", integrationWorker.Run)

	logger.Info("starting bridge",
		"http_port", cfg.HTTPPort,
		"uplink_addr", cfg.UplinkAddr,
		"downlink_addr", cfg.DownlinkAddr,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runWorker starts a worker loop in the background; context cancellation
// is the normal exit path and not reported as an error.
func runWorker(ctx context.Context, logger *slog.Logger, name string, run func(context.Context) error) {
	go func() {
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker exited", "worker", name, "error", err)
		}
	}()
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routerDeps struct {
	base         *handler.Handler
	health       *handler.HealthHandler
	devices      *handler.DeviceHandler
	frames       *handler.FrameHandler
	downlinks    *handler.DownlinkHandler
	stats        *handler.StatsHandler
	apiKeys      *handler.APIKeyHandler
	integrations *handler.IntegrationHandler
	promHandler  *metrics.PrometheusRecorder
	repo         *repository.Repository
	cache        *cache.Cache
	logger       *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))

	// Probes and metrics scraping (no auth)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Method("GET", "/metrics", deps.promHandler.Handler())

	authCfg := middleware.AuthConfig{
		Logger:     deps.logger,
		Repository: deps.repo,
		Cache:      deps.cache,
	}

	// Admin API (requires API key)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))

		r.Route("/devices", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", deps.devices.ListDevices)
			r.With(middleware.RequireWrite()).Post("/refresh", deps.devices.RefreshDevices)
		})

		r.With(middleware.RequireRead()).Get("/frames", deps.frames.ListFrames)
		r.With(middleware.RequireRead()).Get("/activity", deps.frames.GetActivity)
		r.With(middleware.RequireRead()).Get("/stats", deps.stats.Stats)

		r.With(middleware.RequireWrite()).Post("/downlinks", deps.downlinks.CreateDownlink)

		r.Route("/integrations", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", deps.integrations.ListIntegrations)
			r.With(middleware.RequireRead()).Get("/{endpoint_id}", deps.integrations.GetIntegration)
			r.With(middleware.RequireRead()).Get("/{endpoint_id}/deliveries", deps.integrations.ListIntegrationDeliveries)
			r.With(middleware.RequireWrite()).Post("/", deps.integrations.CreateIntegration)
			r.With(middleware.RequireWrite()).Patch("/{endpoint_id}", deps.integrations.UpdateIntegration)
			r.With(middleware.RequireWrite()).Post("/{endpoint_id}/deliveries/{delivery_id}/retry", deps.integrations.RetryIntegrationDelivery)
			r.With(middleware.RequireAdmin()).Post("/{endpoint_id}/rotate-secret", deps.integrations.RotateIntegrationSecret)
			r.With(middleware.RequireAdmin()).Delete("/{endpoint_id}", deps.integrations.DeleteIntegration)
		})

		r.Route("/keys", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", deps.apiKeys.ListAPIKeys)
			r.With(middleware.RequireAdmin()).Post("/", deps.apiKeys.CreateAPIKey)
			r.With(middleware.RequireAdmin()).Delete("/{key_id}", deps.apiKeys.RevokeAPIKey)
		})
	})

	r.NotFound(deps.base.NotFound)
	r.MethodNotAllowed(deps.base.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
