package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/service"
)

// LeaderboardWorker rematerializes the current daily, weekly and monthly
// leaderboard snapshots on a fixed interval.
type LeaderboardWorker struct {
	leaderboard *service.LeaderboardService
	config      *config.LeaderboardConfig
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool
}

// NewLeaderboardWorker creates a new leaderboard materialization worker
func NewLeaderboardWorker(leaderboard *service.LeaderboardService, cfg *config.LeaderboardConfig, logger *slog.Logger) *LeaderboardWorker {
	return &LeaderboardWorker{
		leaderboard: leaderboard,
		config:      cfg,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background materialization process
func (w *LeaderboardWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("leaderboard worker started", "interval", w.config.MaterializeInterval)

	go w.run(ctx)
	return nil
}

// Stop stops the background materialization process
func (w *LeaderboardWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("leaderboard worker stopped")
	return nil
}

// run is the main worker loop
func (w *LeaderboardWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.MaterializeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single materialization cycle (useful for manual triggers)
func (w *LeaderboardWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	if err := w.leaderboard.MaterializeAll(ctx); err != nil {
		w.logger.Error("leaderboard materialization failed", "error", err)
		return
	}
	w.logger.Info("leaderboard materialization completed", "duration", time.Since(start))
}

// IsRunning returns whether the worker is currently running
func (w *LeaderboardWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
