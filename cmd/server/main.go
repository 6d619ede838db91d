package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/replyhub/backend/internal/auth"
	"github.com/replyhub/backend/internal/cache"
	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/config"
	"github.com/replyhub/backend/internal/connectors"
	"github.com/replyhub/backend/internal/database"
	"github.com/replyhub/backend/internal/handlers"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/metrics"
	"github.com/replyhub/backend/internal/middleware"
	"github.com/replyhub/backend/internal/telemetry"
	"github.com/replyhub/backend/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== ReplyHub server starting ===",
		zap.String("environment", cfg.Environment))

	metrics.Initialize()

	// Tracing is optional; without an OTLP endpoint spans are dropped
	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "replyhub-backend",
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLP.Endpoint,
		Enabled:      cfg.OTLP.Endpoint != "",
		SamplingRate: 1.0,
	})
	if err != nil {
		logger.Log.Warn("Failed to initialize tracing", zap.Error(err))
	} else if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	// Initialize database
	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Redis carries the changefeed; without it sessions fall back to
	// request/response only
	redisClient, err := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	if err != nil {
		logger.WarnWithFields("Redis unavailable, realtime changefeed disabled", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var publisher *changefeed.Publisher
	if redisClient != nil {
		publisher = changefeed.NewPublisher(redisClient)
	}

	// Auth service
	authService := auth.NewService([]byte(cfg.JWTSecret))

	// Vendor connectors
	ingestor := connectors.NewIngestor(database.DB, publisher)
	registry := connectors.NewRegistry(
		connectors.NewGoogleConnector(cfg.Vendor.GoogleClientID, cfg.Vendor.GoogleClientSecret, database.DB, ingestor),
		connectors.NewFacebookConnector(ingestor),
		connectors.NewInstagramConnector(ingestor),
		connectors.NewTrustpilotConnector(cfg.Vendor.TrustpilotAPIKey, ingestor),
		connectors.NewYelpConnector(cfg.Vendor.YelpAPIKey, ingestor),
	)

	syncService := connectors.NewSyncService(database.DB, registry,
		time.Duration(cfg.Sync.IntervalMinutes)*time.Minute)
	if cfg.Sync.Enabled {
		syncService.Start()
		defer syncService.Stop()
	}

	// WebSocket hub and per-connection sessions
	hub := websocket.NewHub()
	sessions := websocket.NewSessionManager(database.DB, redisClient, publisher, websocket.SessionConfig{
		Throttle:   time.Duration(cfg.Inbox.ThrottleMs) * time.Millisecond,
		CacheLimit: cfg.Inbox.CacheLimit,
	})
	sessions.RegisterHandlers(hub)
	wsHandler := websocket.NewHandler(hub, authService, sessions)
	go hub.Run()

	// REST handlers
	h := handlers.NewHandlers(authService, registry)
	h.SetSyncService(syncService)
	h.SetPublisher(publisher)
	h.SetHub(hub)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.TracingMiddleware("replyhub-backend"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"}
	r.Use(cors.New(corsConfig))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := database.Health(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "replyhub-backend",
		})
	})

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api/v1")
	{
		// Authentication routes (public)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
			authGroup.GET("/me", authService.Middleware(), h.Me)
		}

		// Inbox routes
		interactions := api.Group("/interactions")
		{
			interactions.Use(authService.Middleware())
			if redisClient != nil {
				interactions.Use(middleware.RedisRateLimitMiddleware(300, time.Minute))
			}
			interactions.GET("", h.ListInteractions)
			interactions.GET("/counts", h.GetCounts)
			interactions.PATCH("/:id", h.UpdateInteraction)
			interactions.POST("/bulk_update", h.BulkUpdateInteractions)
			interactions.DELETE("/:id", h.DeleteInteraction)
			interactions.POST("/bulk_delete", h.BulkDeleteInteractions)
			interactions.POST("/:id/reply", h.ReplyToInteraction)
		}

		// Platform management routes
		platforms := api.Group("/platforms")
		{
			platforms.Use(authService.Middleware())
			platforms.GET("", h.ListPlatforms)
			platforms.POST("", h.ConnectPlatform)
			platforms.DELETE("/:platform", h.DisconnectPlatform)
			platforms.POST("/:platform/sync", h.TriggerSync)
		}

		// WebSocket routes
		ws := api.Group("/ws")
		{
			// Auth via query param ?token=... or Authorization header
			ws.GET("", wsHandler.HandleWebSocket)
			ws.GET("/metrics", authService.Middleware(), wsHandler.HandleMetrics)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info("📬 ReplyHub backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close WebSocket sessions first so their subscriptions stop cleanly
	if err := hub.Shutdown(ctx); err != nil {
		logger.Log.Warn("WebSocket shutdown incomplete", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}
