package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/service"
)

// IndexSyncWorker periodically rebuilds the realtime rank index from the
// score ledger. The ledger is the source of truth; the rebuild heals any
// drift from best-effort writes or Redis restarts.
type IndexSyncWorker struct {
	scoring *service.ScoringService
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewIndexSyncWorker creates a new index sync worker
func NewIndexSyncWorker(scoring *service.ScoringService, cfg *config.SyncConfig, logger *slog.Logger) *IndexSyncWorker {
	return &IndexSyncWorker{
		scoring: scoring,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *IndexSyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("index sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *IndexSyncWorker) Stop() error {
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

	w.logger.Info("index sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *IndexSyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
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

// RunOnce runs a single rebuild cycle (also used at startup)
func (w *IndexSyncWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	count, err := w.scoring.RebuildIndex(ctx)
	if err != nil {
		w.logger.Error("index rebuild failed", "error", err)
		return
	}
	w.logger.Info("index rebuild completed", "users", count, "duration", time.Since(start))
}

// IsRunning returns whether the worker is currently running
func (w *IndexSyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
