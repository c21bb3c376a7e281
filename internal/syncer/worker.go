package syncer

import (
	"context"
	"log/slog"
	"time"
)

// Connectivity is the read side of the connectivity monitor.
type Connectivity interface {
	Online() bool
}

// Worker triggers sync passes on a fixed interval and on demand (connectivity
// transitions, manual triggers). Failed records simply wait for the next
// trigger; there is no backoff at this layer.
type Worker struct {
	engine   *Engine
	monitor  Connectivity
	interval time.Duration
	trigger  chan struct{}
}

// NewWorker creates a sync worker.
func NewWorker(engine *Engine, monitor Connectivity, interval time.Duration) *Worker {
	return &Worker{
		engine:   engine,
		monitor:  monitor,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a best-effort sync pass. It never blocks; if a trigger is
// already pending the request is dropped, matching the one-pass-at-a-time
// guard in the engine.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "syncer",
		"worker", "queue-sync",
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "syncer",
				"worker", "queue-sync",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.pass(ctx)
		case <-w.trigger:
			w.pass(ctx)
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	if !w.monitor.Online() {
		return
	}
	if _, err := w.engine.Pass(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("sync pass failed",
			"component", "syncer",
			"error", err,
		)
	}
}
