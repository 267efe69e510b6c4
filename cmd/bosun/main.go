package main

import (
	"context"
	"strings"

	"bosun/internal/config"
	"bosun/internal/gateway"
	"bosun/internal/handlers"
	"bosun/internal/metrics"
	"bosun/internal/scheduler"
	"bosun/internal/store"
	"bosun/internal/websocket"
	pkgconfig "bosun/pkg/config"
	"bosun/pkg/logging"
	"bosun/pkg/middleware"
	"bosun/pkg/monitoring"
	"bosun/pkg/redis"
	"bosun/pkg/server"
	"bosun/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("bosun")

	// Load environment variables
	pkgconfig.LoadEnv(logger)

	logger.Info("Starting Bosun (Prompt Scheduler)")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("bosun", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("bosun", version.Version, version.GitCommit)
	serviceMetrics := metrics.New(metricsCollector)

	// Connect to Redis
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := redis.NewClientFromURL(ctx, cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	promptStore := store.NewPromptStore(redisClient, logger)

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	hub.SetConnectionGauge(func(count int) {
		serviceMetrics.ViewerConnections.WithLabelValues("ws").Set(float64(count))
	})
	go hub.Run()

	// Gateway client shared by the scheduler
	gatewayClient := gateway.NewClient(gateway.Config{
		User:     cfg.StreamAPIUser,
		Password: cfg.StreamAPIPassword,
		Logger:   logger,
	})

	// Start the promotion loop
	promptScheduler := scheduler.New(scheduler.Config{
		Streams:     cfg.Streams,
		MinDuration: cfg.PromptMinDuration,
		Store:       promptStore,
		Gateway:     gatewayClient,
		Sink:        hub,
		Metrics:     serviceMetrics,
		Logger:      logger,
	})
	promptScheduler.Start()
	defer promptScheduler.Stop()

	promptHandlers := handlers.NewPromptHandlers(promptStore, hub, cfg, logger, serviceMetrics)

	// Add health checks
	streamKeys := make([]string, 0, len(cfg.Streams))
	for _, s := range cfg.Streams {
		streamKeys = append(streamKeys, s.Key)
	}
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"MULTIPLAYER_STREAM_KEY": strings.Join(streamKeys, ","),
		"REDIS_URL":              cfg.RedisURL,
	}))

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "bosun", healthChecker, metricsCollector)

	// Prompt API and WebSocket routes
	api := router.Group("/api")
	api.POST("/prompts", promptHandlers.HandleSubmitPrompt)
	api.GET("/prompts", promptHandlers.HandleGetPromptState)
	api.PUT("/prompts", promptHandlers.HandleRandomPrompt)
	router.GET("/ws", promptHandlers.HandleWebSocket)

	// Admin routes with service auth
	admin := api.Group("/")
	admin.Use(middleware.ServiceAuthMiddleware(cfg.ServiceToken))
	admin.DELETE("/prompts/current", promptHandlers.HandleClearCurrent)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("bosun", cfg.ServerPort)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
