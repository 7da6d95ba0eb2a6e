// Package main provides the API server entry point for the wallet explorer.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-explorer/internal/api"
	"github.com/wallet-explorer/internal/chain"
	"github.com/wallet-explorer/internal/config"
	"github.com/wallet-explorer/internal/logging"
	"github.com/wallet-explorer/internal/service"
	"github.com/wallet-explorer/internal/storage"
	"github.com/wallet-explorer/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize the graph store and sync state
	graphRepo := storage.NewGraphRepository(postgres)
	syncState := storage.NewRedisSyncStateStore(redis, cfg.Sync.FreshnessWindow)

	// Initialize the chain client and services
	client := chain.NewClient(&cfg.Provider)
	normalizer := chain.NewNormalizer(client.Source())

	syncService := service.NewSyncService(client, normalizer, graphRepo, syncState, cfg.Sync, logger)
	queryService := service.NewQueryService(graphRepo, syncService, syncState, client, cfg.Query)

	logger.Info("Services initialized")

	// Background refresher keeps tracked addresses warm
	var refresher *worker.Refresher
	if cfg.Refresh.Enabled {
		refresher = worker.NewRefresher(graphRepo, syncService, cfg.Refresh.Schedule, logger)
		if err := refresher.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start refresher")
		}
		defer refresher.Stop()
	}

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
	}

	server := api.NewServer(serverConfig, queryService, postgres, redis, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
