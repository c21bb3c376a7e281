// Package syncer drains the durable queue against the portal. One pass
// replays every pending record oldest-first; a record is deleted strictly
// after the portal acknowledges it, and one failing record never blocks the
// rest of the pass.
package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/civitasgis/ageo-edge/internal/metrics"
	"github.com/civitasgis/ageo-edge/internal/notify"
	"github.com/civitasgis/ageo-edge/internal/store"
	"github.com/civitasgis/ageo-edge/internal/types"
	"github.com/civitasgis/ageo-edge/internal/upstream"
)

// Engine runs sync passes. Only one pass is active at a time; a trigger
// while a pass is running is a no-op, not queued.
type Engine struct {
	store    store.QueueStore
	client   upstream.Submitter
	notifier notify.Notifier
	running  atomic.Bool
}

// NewEngine creates a sync engine.
func NewEngine(qs store.QueueStore, client upstream.Submitter, notifier notify.Notifier) *Engine {
	return &Engine{
		store:    qs,
		client:   client,
		notifier: notifier,
	}
}

// Pass drains the queue once. Per-record failures are absorbed and logged;
// only pass-level orchestration failures (cannot read the store) propagate.
func (e *Engine) Pass(ctx context.Context) (*types.SyncStats, error) {
	if !e.running.CompareAndSwap(false, true) {
		return &types.SyncStats{Skipped: true}, nil
	}
	defer e.running.Store(false)

	start := time.Now()
	stats := &types.SyncStats{}

	pending, err := e.store.List(ctx, store.ListFilter{})
	if err != nil {
		return nil, err
	}
	stats.Pending = len(pending)

	if len(pending) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	slog.Info("sync pass started",
		"component", "syncer",
		"pending", len(pending),
	)

	for i := range pending {
		rec := &pending[i]

		if ctx.Err() != nil {
			break
		}

		atts, err := e.store.GetAttachments(ctx, rec.ID)
		if err != nil {
			slog.Error("failed to load attachments",
				"component", "syncer",
				"record_id", rec.ID,
				"error", err,
			)
			stats.Failed++
			continue
		}

		if err := e.client.Submit(ctx, rec, atts); err != nil {
			// Transport or server-side failure: leave the record in place
			// untouched and continue with the next one. Connectivity state
			// is not ours to flip.
			stats.Failed++
			metrics.SyncFailuresTotal.Inc()
			if markErr := e.store.MarkAttempt(ctx, rec.ID, err.Error()); markErr != nil {
				slog.Error("failed to record attempt",
					"component", "syncer",
					"record_id", rec.ID,
					"error", markErr,
				)
			}
			slog.Warn("record sync failed, will retry",
				"component", "syncer",
				"record_id", rec.ID,
				"url", rec.URL,
				"error", err,
			)
			continue
		}

		// Delete only after the acknowledgment above; never speculatively.
		if err := e.store.DeleteByID(ctx, rec.ID); err != nil {
			slog.Error("failed to delete synced record",
				"component", "syncer",
				"record_id", rec.ID,
				"error", err,
			)
			stats.Failed++
			continue
		}

		stats.Synced++
		metrics.SyncedTotal.Inc()
	}

	if count, err := e.store.CountPending(ctx); err == nil {
		metrics.QueuePending.Set(float64(count))
	}

	stats.Duration = time.Since(start)

	if stats.Synced > 0 {
		e.notifier.Publish(notify.Synced(stats.Synced))
	}
	if stats.Failed > 0 {
		e.notifier.Publish(notify.SyncFailed(stats.Failed))
	}

	slog.Info("sync pass finished",
		"component", "syncer",
		"synced", stats.Synced,
		"failed", stats.Failed,
		"duration_ms", stats.Duration.Milliseconds(),
	)

	return stats, nil
}
