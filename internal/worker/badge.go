package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/service"
)

// BadgeSweepWorker periodically re-evaluates badge thresholds for every known
// user. Awards are idempotent, so sweeping the same users repeatedly is safe.
type BadgeSweepWorker struct {
	badges  *service.BadgeService
	ledger  service.ScoreLedger
	config  *config.BadgesConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewBadgeSweepWorker creates a new badge sweep worker
func NewBadgeSweepWorker(badges *service.BadgeService, ledger service.ScoreLedger, cfg *config.BadgesConfig, logger *slog.Logger) *BadgeSweepWorker {
	return &BadgeSweepWorker{
		badges: badges,
		ledger: ledger,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background sweep process
func (w *BadgeSweepWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("badge sweep worker started", "interval", w.config.SweepInterval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sweep process
func (w *BadgeSweepWorker) Stop() error {
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

	w.logger.Info("badge sweep worker stopped")
	return nil
}

// run is the main worker loop
func (w *BadgeSweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.SweepInterval)
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

// RunOnce runs a single sweep over all users
func (w *BadgeSweepWorker) RunOnce(ctx context.Context) {
	start := time.Now()

	userIDs, err := w.ledger.AllUserIDs(ctx)
	if err != nil {
		w.logger.Error("badge sweep failed to list users", "error", err)
		return
	}

	awarded := 0
	errorCount := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		badges, err := w.badges.EvaluateUser(ctx, userID)
		if err != nil {
			w.logger.Error("badge evaluation failed", "user_id", userID, "error", err)
			errorCount++
			continue
		}
		awarded += len(badges)
	}

	w.logger.Info("badge sweep completed",
		"users", len(userIDs),
		"awarded", awarded,
		"errors", errorCount,
		"duration", time.Since(start),
	)
}

// IsRunning returns whether the worker is currently running
func (w *BadgeSweepWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
