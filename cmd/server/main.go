package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/albumforge/api/internal/client"
	"github.com/albumforge/api/internal/config"
	"github.com/albumforge/api/internal/handler"
	"github.com/albumforge/api/internal/middleware"
	"github.com/albumforge/api/internal/queue"
	"github.com/albumforge/api/internal/service"
	"github.com/albumforge/api/internal/store"
	"github.com/albumforge/api/internal/worker"
	ws "github.com/albumforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external generator client
	generator := client.NewSunoGenerator(&cfg.Provider)

	// Initialize R2 client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storageClient = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, provider URLs used directly")
	}

	// Initialize job store and services
	jobStore := store.NewJobStore(redisClient)
	queueCfg := queue.Config{
		AvgJobMinutes: cfg.Scheduler.AvgJobMinutes,
		StuckAfter:    time.Duration(cfg.Scheduler.StuckAfterMinutes) * time.Minute,
	}
	musicService := service.NewMusicService(jobStore, asynqClient, queueCfg)

	// Initialize handlers
	musicHandler := handler.NewMusicHandler(musicService, validate)
	adminHandler := handler.NewAdminHandler(musicService, validate)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)

	// Initialize middleware (with gateway support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"provider": generator.IsConfigured(),
				"storage":  storageClient != nil,
				"auth":     cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Track generation routes
	tracks := api.Group("/tracks")
	tracks.Post("/:trackId/generate", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), musicHandler.Submit)
	tracks.Post("/:trackId/retry", rateLimiter.RetryLimit(cfg.RateLimit.RetryPerHour), musicHandler.Retry)

	// Album routes
	albums := api.Group("/albums")
	albums.Get("/:albumId/music-status", musicHandler.AlbumStatus)
	albums.Post("/:albumId/retry-failed", rateLimiter.RetryLimit(cfg.RateLimit.RetryPerHour), musicHandler.RetryAllFailed)

	// Admin recovery routes
	admin := api.Group("/admin")
	admin.Post("/jobs/:jobId/restart", adminHandler.Restart)
	admin.Post("/jobs/:jobId/fail", adminHandler.MarkFailed)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/albums/:albumId", websocket.New(func(c *websocket.Conn) {
		albumID := c.Params("albumId")
		hub.HandleConnection(c, albumID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, generator, storageClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobStore *store.JobStore,
	generator client.MusicGenerator,
	storageClient client.StorageClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	// Concurrency 1 on a single queue: the provider serves one generation
	// at a time, so jobs drain strictly in enqueue (createdAt) order.
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				"generate": 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	generateWorker := worker.NewGenerateWorker(jobStore, generator, storageClient, hub, cfg.Scheduler)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, generateWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
