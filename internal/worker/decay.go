package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reputation-engine/internal/config"
	"github.com/reputation-engine/internal/service"
)

// DecayWorker runs the inactivity decay sweep on a fixed interval. The sweep
// itself is single-flight: ticks are consumed one at a time, so a slow pass
// delays the next rather than overlapping it.
type DecayWorker struct {
	decay   *service.DecayService
	config  *config.DecayConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewDecayWorker creates a new decay worker
func NewDecayWorker(decay *service.DecayService, cfg *config.DecayConfig, logger *slog.Logger) *DecayWorker {
	return &DecayWorker{
		decay:  decay,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background decay process
func (w *DecayWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("decay worker started", "interval", w.config.Interval, "inactivity_period", w.config.InactivityPeriod)

	go w.run(ctx)
	return nil
}

// Stop stops the background decay process
func (w *DecayWorker) Stop() error {
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

	w.logger.Info("decay worker stopped")
	return nil
}

// run is the main worker loop
func (w *DecayWorker) run(ctx context.Context) {
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

// RunOnce runs a single decay pass (useful for manual triggers)
func (w *DecayWorker) RunOnce(ctx context.Context) {
	start := time.Now()
	decayed, err := w.decay.Run(ctx)
	if err != nil {
		w.logger.Error("decay pass failed", "decayed", decayed, "error", err)
		return
	}
	w.logger.Info("decay pass completed", "decayed", decayed, "duration", time.Since(start))
}

// IsRunning returns whether the worker is currently running
func (w *DecayWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
