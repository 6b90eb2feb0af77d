package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/domain"
	"github.com/reputation-engine/internal/handler"
	"github.com/reputation-engine/internal/kafka"
	"github.com/reputation-engine/internal/postgres"
	"github.com/reputation-engine/internal/redis"
	"github.com/reputation-engine/internal/service"
	"github.com/reputation-engine/internal/websocket"
	"github.com/reputation-engine/internal/worker"
)

// openDirectory and openReferences are the permissive defaults for the
// external account and content collaborators.
type openDirectory struct{}

func (openDirectory) Exists(context.Context, string) (bool, error) { return true, nil }

type openReferences struct{}

func (openReferences) Valid(context.Context, string, string) (bool, error) { return true, nil }

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Build the rank table from configured boundaries
	rankTable, err := domain.NewRankTable(cfg.Ranks.Boundaries)
	if err != nil {
		logger.Error("invalid rank boundaries", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	rankStore, err := redis.NewRankStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rankStore.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	scoringService := service.NewScoringService(
		repo,
		repo,
		rankStore,
		repo,
		rankTable,
		cfg.Scoring,
		cfg.Rewards,
		logger,
	)
	anomalyService := service.NewAnomalyService(repo, repo, cfg.Anomaly, logger)
	leaderboardService := service.NewLeaderboardService(repo, repo, cfg.Leaderboard, logger)
	badgeService := service.NewBadgeService(repo, service.NewStaticMetricSource(), scoringService, cfg.Badges, cfg.Rewards, logger)
	adminService := service.NewAdminService(scoringService, anomalyService, repo, repo, logger)

	scoringService.SetUserDirectory(openDirectory{})
	scoringService.SetReferenceChecker(openReferences{})
	scoringService.SetNotifier(wsHub)
	scoringService.SetAnomalyScanner(anomalyService)
	badgeService.SetNotifier(wsHub)

	decayService := service.NewDecayService(repo, rankStore, rankTable, cfg.Decay, logger)

	// Initialize workers
	syncWorker := worker.NewIndexSyncWorker(scoringService, &cfg.Sync, logger)
	decayWorker := worker.NewDecayWorker(decayService, &cfg.Decay, logger)
	leaderboardWorker := worker.NewLeaderboardWorker(leaderboardService, &cfg.Leaderboard, logger)
	badgeWorker := worker.NewBadgeSweepWorker(badgeService, repo, &cfg.Badges, logger)

	// Rebuild the realtime index from the ledger on startup (recovery)
	logger.Info("rebuilding realtime index from ledger")
	syncWorker.RunOnce(ctx)

	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}
	if cfg.Decay.Enabled {
		if err := decayWorker.Start(ctx); err != nil {
			logger.Error("failed to start decay worker", "error", err)
			os.Exit(1)
		}
	}
	if cfg.Leaderboard.MaterializeEnabled {
		if err := leaderboardWorker.Start(ctx); err != nil {
			logger.Error("failed to start leaderboard worker", "error", err)
			os.Exit(1)
		}
	}
	if cfg.Badges.SweepEnabled {
		if err := badgeWorker.Start(ctx); err != nil {
			logger.Error("failed to start badge sweep worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for high-volume activity ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, scoringService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(scoringService, leaderboardService, badgeService, adminService, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop workers
	for _, stop := range []func() error{syncWorker.Stop, decayWorker.Stop, leaderboardWorker.Stop, badgeWorker.Stop} {
		if err := stop(); err != nil {
			logger.Error("failed to stop worker", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
