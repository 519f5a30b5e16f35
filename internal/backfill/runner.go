package backfill

import (
	"context"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// DefaultInterval is the pause between chunk calls when Runner.Interval is
// zero.
const DefaultInterval = 5 * time.Second

// Backfiller is the part of the repository a Runner drives.
type Backfiller interface {
	BackfillNextChunk(ctx context.Context, chunkDays int) (bool, error)
	HistoryStatus(ctx context.Context) (types.HistoryStatus, error)
}

// Runner calls BackfillNextChunk once per interval until the history is
// complete or the context ends. It owns only the cadence; each chunk runs to
// completion.
type Runner struct {
	Target    Backfiller
	ChunkDays int
	Interval  time.Duration
	Logger    *slog.Logger

	// OnChunk, if set, is called after every chunk that did work.
	OnChunk func(types.HistoryStatus)
}

// Run blocks until the history is complete (returning nil) or ctx is done
// (returning ctx.Err()). Store errors are logged and retried on the next tick.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	chunk := r.ChunkDays
	if chunk <= 0 {
		chunk = types.DefaultChunkDays
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := r.tick(ctx, chunk, log)
		if err != nil {
			log.Warn("backfill_chunk_failed", "error", err)
		}
		if done {
			log.Info("backfill_complete")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick runs one chunk and reports whether the history is complete.
func (r *Runner) tick(ctx context.Context, chunk int, log *slog.Logger) (bool, error) {
	worked, err := r.Target.BackfillNextChunk(ctx, chunk)
	if err != nil {
		return false, err
	}
	status, err := r.Target.HistoryStatus(ctx)
	if err != nil {
		return false, err
	}
	if worked {
		log.Debug("backfill_chunk_done",
			"indexed_from", string(status.IndexedFrom),
			"complete", status.Complete)
		if r.OnChunk != nil {
			r.OnChunk(status)
		}
	} else if status.Paused {
		log.Debug("backfill_paused")
	}
	return status.Complete, nil
}
