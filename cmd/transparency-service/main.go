package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lancaster971/pilotproOS-sub000/internal/classifier"
	"github.com/lancaster971/pilotproOS-sub000/internal/config"
	"github.com/lancaster971/pilotproOS-sub000/internal/engine"
	"github.com/lancaster971/pilotproOS-sub000/internal/extract"
	"github.com/lancaster971/pilotproOS-sub000/internal/gate"
	"github.com/lancaster971/pilotproOS-sub000/internal/handlers"
	"github.com/lancaster971/pilotproOS-sub000/internal/repository"
	"github.com/lancaster971/pilotproOS-sub000/internal/services"
	"github.com/lancaster971/pilotproOS-sub000/internal/store"
	"github.com/lancaster971/pilotproOS-sub000/internal/summarize"
	"github.com/lancaster971/pilotproOS-sub000/internal/timeline"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
	"github.com/lancaster971/pilotproOS-sub000/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Infow("Starting Transparency Service",
		"version", "1.0.0",
		"environment", os.Getenv("ENVIRONMENT"))

	// Initialize database
	repo, err := repository.NewPostgres(cfg.Database)
	if err != nil {
		appLogger.Fatalw("Failed to connect to database", "error", err)
	}

	// Initialize stores: Redis when enabled, in-process memory otherwise
	responseStore, summaryStore, breakerStore := buildStores(cfg, appLogger)

	// Initialize metrics
	metricsManager := metrics.New("transparency_service")

	// Initialize circuit breaker and gate
	breakerLog := logrus.New()
	breakerLog.SetFormatter(&logrus.JSONFormatter{})
	breaker := gate.NewBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, breakerStore, breakerLog)
	trustGate := gate.New(breaker, responseStore, cfg.Cache.ResponseTTL, cfg.Timeline.StalenessWindow, appLogger, metricsManager)

	// Initialize the reconstruction pipeline
	nodeClassifier := classifier.New()
	extractor := extract.New()
	summarizer := summarize.NewEngine(cfg.Summarize, cfg.Cache.SummaryTTL, summaryStore, appLogger, metricsManager)
	reconstructor := timeline.NewReconstructor(nodeClassifier, summarizer, extractor, appLogger)

	// Initialize engine client and service
	engineClient := engine.NewHTTPClient(cfg.Engine, appLogger)
	transparencyService := services.NewTransparencyService(
		cfg,
		appLogger,
		repo,
		engineClient,
		trustGate,
		reconstructor,
		metricsManager,
	)

	transparencyService.Refresher().Start()

	// Initialize HTTP server
	app := fiber.New(fiber.Config{
		ServerHeader: "Transparency Service",
		AppName:      "Transparency Service v1.0.0",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			appLogger.Errorw("HTTP error",
				"error", err,
				"status_code", code,
				"method", c.Method(),
				"path", c.Path())

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Tenant-ID,X-Engine-Secret",
	}))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"version":   "1.0.0",
		})
	})

	// Metrics endpoint
	app.Get("/metrics", metricsManager.Handler())

	// Initialize handlers
	timelineHandler := handlers.NewTimelineHandler(transparencyService, cfg.Server.EngineSecret)
	timelineHandler.RegisterRoutes(app)

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Infow("Starting HTTP server", "address", address)

	go func() {
		if err := app.Listen(address); err != nil {
			appLogger.Fatalw("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Infow("Received shutdown signal")

	// Graceful shutdown
	appLogger.Infow("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Errorw("Server shutdown error", "error", err)
	}

	if err := transparencyService.Refresher().Stop(shutdownCtx); err != nil {
		appLogger.Errorw("Refresher shutdown error", "error", err)
	}

	appLogger.Infow("Server shutdown completed")
}

// buildStores returns the response, summary and breaker stores. With Redis
// enabled all three share one client under distinct key prefixes; otherwise
// bounded in-memory stores are used.
func buildStores(cfg *config.Config, log *logger.Logger) (response, summary, breaker store.Store) {
	if !cfg.Redis.Enabled {
		log.Infow("Redis disabled, using in-memory stores")
		return store.NewMemory(0), store.NewMemory(cfg.Cache.SummaryMaxItems), store.NewMemory(0)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warnw("Redis unreachable, falling back to in-memory stores", "error", err)
		return store.NewMemory(0), store.NewMemory(cfg.Cache.SummaryMaxItems), store.NewMemory(0)
	}

	log.Infow("Connected to Redis", "addr", cfg.Redis.GetRedisAddr())
	return store.NewRedis(client, "response"), store.NewRedis(client, "summary"), store.NewRedis(client, "breaker")
}
