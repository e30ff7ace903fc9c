package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agentchat-backend/db"
	"agentchat-backend/internal/agent"
	"agentchat-backend/internal/api"
	"agentchat-backend/internal/config"
	"agentchat-backend/internal/handlers"
	applog "agentchat-backend/internal/log"
	"agentchat-backend/internal/services"
	"agentchat-backend/internal/store/postgres"
)

func main() {
	logger := applog.New(applog.Config{})
	logger.Info("starting agentchat backend")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Run migrations, then open the connection pool
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	dbpool, err := pgxpool.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to create database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(dbCtx); err != nil {
		logger.Error("unable to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection pool established")

	// 3. Initialize Dependencies (Store, Runtime, Services, Handlers)
	pgStore := postgres.NewPostgresStore(dbpool)

	runtime := services.NewAgentRuntime(agent.NewRuntime(agent.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		DefaultModel: cfg.DefaultModel,
		ToolRunner:   cfg.ToolRunner,
		ToolEnvKeys:  cfg.ToolEnvKeys,
	}, logger))

	authService := services.NewAuthService(pgStore, cfg, logger)
	agentService := services.NewAgentService(pgStore, runtime, logger)
	mcpService := services.NewMCPService(pgStore, logger)
	chatService := services.NewChatService(pgStore, runtime, services.ChatConfig{
		RunTimeout:     cfg.AgentRunTimeout,
		StreamDebounce: cfg.StreamDebounce,
	}, logger)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer seedCancel()
	if err := agentService.EnsureDefaultAgent(seedCtx); err != nil {
		logger.Error("failed to ensure default agent", "error", err)
		os.Exit(1)
	}

	routerDeps := api.RouterDependencies{
		AuthHandler:  handlers.NewAuthHandler(authService),
		AgentHandler: handlers.NewAgentHandlers(agentService),
		MCPHandler:   handlers.NewMCPHandlers(mcpService),
		ChatHandler:  handlers.NewChatHandlers(chatService, logger),
		Config:       cfg,
	}
	router := api.NewRouter(routerDeps)
	logger.Info("http router configured")

	// 4. Configure and Start HTTP Server
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
		// WriteTimeout stays zero: streaming responses are open-ended.
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listener failed", "port", cfg.HTTPPort, "error", err)
			os.Exit(1)
		}
	}()

	<-stopChan
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
