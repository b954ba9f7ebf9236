package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/api"
	"github.com/matthiasponsi/token-trackr/internal/config"
	"github.com/matthiasponsi/token-trackr/internal/services/aggregation"
	"github.com/matthiasponsi/token-trackr/internal/services/database"
	"github.com/matthiasponsi/token-trackr/internal/services/pricing"
	"github.com/matthiasponsi/token-trackr/internal/services/usage"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// Server is a fully wired metering service instance.
type Server struct {
	config    *config.Config
	app       *fiber.App
	redis     *redis.Client
	db        *database.DB
	scheduler *aggregation.Scheduler
}

// New creates a new Server instance with the given configuration.
// The cfg parameter is required and must not be nil.
func New(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() to create config")
	}
	return &Server{config: cfg}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}
	listenAddr := ":" + port

	s.app = createFiberApp(s.config)

	// === Infrastructure Setup ===
	db, err := database.New(*s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	s.db = db
	defer func() {
		if err := s.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()

	fiberlog.Infof("Database (%s) initialized successfully", db.DriverName())

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	fiberlog.Info("Database migrations completed successfully")

	s.redis = createRedisClient(s.config)
	if s.redis != nil {
		defer func() {
			if err := s.redis.Close(); err != nil {
				fiberlog.Errorf("Failed to close Redis client: %v", err)
			}
		}()
	}

	// === Services Initialization ===
	pricingEngine := pricing.NewEngine(s.config.Pricing.ConfigPath)
	overrideStore := pricing.NewOverrideStore(db.DB)
	if err := loadPricingOverrides(pricingEngine, overrideStore); err != nil {
		return err
	}

	var cache *usage.SummaryCache
	if s.redis != nil {
		ttl := time.Duration(s.config.Redis.CacheTTLSeconds) * time.Second
		cache = usage.NewSummaryCache(s.redis, ttl)
	}

	usageSvc := usage.NewService(db.DB, pricingEngine, cache)
	usageWorker := usage.NewWorker(usageSvc, runtime.NumCPU(), 1024)
	defer usageWorker.Stop()

	dailyJob := aggregation.NewDailyJob(db.DB)
	monthlyJob := aggregation.NewMonthlyJob(db.DB)

	var reportJob *aggregation.ReportJob
	if s.config.Reports.OutputDir != "" {
		reportJob, err = aggregation.NewReportJob(db.DB, s.config.Reports.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to initialize report job: %w", err)
		}
	}

	// === Middleware Setup ===
	setupMiddleware(s.app, s.config)

	// === Routes Setup ===
	setupRoutes(s.app, s.db, s.redis, usageSvc, usageWorker, pricingEngine, overrideStore, dailyJob, monthlyJob)

	s.app.Get("/", welcomeHandler())

	// === Scheduler ===
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	defer schedulerCancel()

	if s.config.Scheduler.Enabled {
		s.scheduler = aggregation.NewScheduler(dailyJob, monthlyJob, reportJob, s.config.Scheduler)
		go s.scheduler.Start(schedulerCtx)
	} else {
		fiberlog.Info("Scheduler disabled - run aggregation jobs via /api/v1/jobs")
	}

	fmt.Printf("Token Trackr starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	schedulerCancel()

	fiberlog.Info("Server shutting down gracefully...")
	if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	fiberlog.Info("Server shutdown completed successfully")

	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "Token Trackr v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       1 * time.Minute,
		WriteTimeout:      1 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		CaseSensitive:     true,
		StrictRouting:     false,
		ServerHeader:      "TokenTrackr",
	})
}

func setupMiddleware(app *fiber.App, cfg *config.Config) {
	isProd := cfg.IsProduction()

	// Recover middleware (must be first)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	allowedOrigins := cfg.Server.AllowedOrigins
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		MaxAge:       86400,
	}))
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}
}

func createRedisClient(cfg *config.Config) *redis.Client {
	if cfg.Redis == nil || !cfg.Redis.Enabled || cfg.Redis.Addr == "" {
		fiberlog.Info("Redis not configured - summary caching disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		// The cache is read-side only; metering works without it.
		fiberlog.Warnf("Redis connection failed, continuing without cache: %v", err)
		if closeErr := client.Close(); closeErr != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", closeErr)
		}
		return nil
	}

	fiberlog.Info("Redis connection established successfully")
	return client
}

func loadPricingOverrides(engine *pricing.Engine, store *pricing.OverrideStore) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	active, err := store.Active(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pricing overrides: %w", err)
	}
	engine.SetOverrides(active)
	if len(active) > 0 {
		fiberlog.Infof("Loaded %d active pricing overrides", len(active))
	}
	return nil
}

func setupRoutes(
	app *fiber.App,
	db *database.DB,
	redisClient *redis.Client,
	usageSvc *usage.Service,
	usageWorker *usage.Worker,
	pricingEngine *pricing.Engine,
	overrideStore *pricing.OverrideStore,
	dailyJob *aggregation.DailyJob,
	monthlyJob *aggregation.MonthlyJob,
) {
	healthHandler := api.NewHealthHandler(db, redisClient)
	app.Get("/health", healthHandler.HealthCheck)

	usageHandler := api.NewUsageHandler(usageSvc, usageWorker)
	usageHandler.RegisterRoutes(app, "/api/v1/usage")

	tenantHandler := api.NewTenantHandler(usageSvc)
	tenantHandler.RegisterRoutes(app, "/api/v1/tenants")

	pricingHandler := api.NewPricingHandler(pricingEngine, overrideStore)
	pricingHandler.RegisterRoutes(app, "/api/v1")

	jobHandler := api.NewJobHandler(dailyJob, monthlyJob)
	jobHandler.RegisterRoutes(app, "/api/v1/jobs")
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Token Trackr usage metering service",
			"version": "1.0.0",
			"status":  "running",
			"endpoints": fiber.Map{
				"record_usage": "/api/v1/usage",
				"batch_usage":  "/api/v1/usage/batch",
				"summary":      "/api/v1/tenants/:tenantId/summary",
				"health":       "/health",
			},
		})
	}
}
