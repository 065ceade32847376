package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/appforge/appforge/internal/agent"
	"github.com/appforge/appforge/internal/api"
	"github.com/appforge/appforge/internal/chat"
	"github.com/appforge/appforge/internal/common/config"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/events"
	"github.com/appforge/appforge/internal/gateway/websocket"
	"github.com/appforge/appforge/internal/project/builder"
	"github.com/appforge/appforge/internal/project/runner"
	"github.com/appforge/appforge/internal/project/store"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting AppForge server...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Event bus (NATS when configured, in-memory otherwise)
	eventBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer closeBus()

	// 5. Conversation repository (SQLite when configured, in-memory otherwise)
	repo, err := chat.ProvideRepository(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize conversation repository", zap.Error(err))
	}
	defer repo.Close()

	// 6. Project store and process supervision
	projects, err := store.NewStore(cfg.Workspace.Root, eventBus, log)
	if err != nil {
		log.Fatal("Failed to initialize project store", zap.Error(err))
	}
	supervisor := runner.NewSupervisor(projects, cfg.Workspace.BasePort,
		cfg.Workspace.StartupGrace(), cfg.Workspace.StopTimeoutDuration(), log)
	projectBuilder := builder.NewBuilder(projects, supervisor,
		cfg.Workspace.InstallTimeoutDuration(), log)

	// 7. Model capability and chat coordinator
	if cfg.Agent.APIKey == "" {
		log.Warn("No agent API key configured; chat requests will fail upstream")
	}
	capability := agent.NewAnthropicCapability(cfg.Agent)
	coordinator := chat.NewCoordinator(repo, projects, capability, eventBus, log)

	// 8. WebSocket hub relaying project events
	hub := websocket.NewHub(eventBus, log)
	go hub.Run(ctx)
	wsHandler := websocket.NewHandler(hub, log)

	// 9. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.CORS())
	router.Use(api.RequestLogger(log))

	apiGroup := router.Group("/api")
	api.SetupRoutes(apiGroup, coordinator, projects, projectBuilder, supervisor, log)

	router.GET("/ws", wsHandler.HandleConnection)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"service":  "appforge",
			"projects": len(projects.List()),
			"clients":  hub.GetClientCount(),
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 10. Start server in goroutine
	go func() {
		log.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down AppForge server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Take down every project process before exiting.
	if err := supervisor.StopAll(shutdownCtx); err != nil {
		log.Error("Failed to stop project processes", zap.Error(err))
	}

	log.Info("AppForge server stopped")
}
