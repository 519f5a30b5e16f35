package backfill

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

// fakeBackfiller completes after a fixed number of chunks.
type fakeBackfiller struct {
	mu        sync.Mutex
	remaining int
	calls     int
	failFirst bool
	paused    bool
	cursor    types.DateKey
}

func (f *fakeBackfiller) BackfillNextChunk(_ context.Context, chunkDays int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failFirst && f.calls == 1 {
		return false, types.ErrStoreUnavailable
	}
	if f.paused || f.remaining == 0 {
		return false, nil
	}
	f.remaining--
	f.cursor = f.cursor.AddDays(-chunkDays)
	return true, nil
}

func (f *fakeBackfiller) HistoryStatus(context.Context) (types.HistoryStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return types.HistoryStatus{
		Bootstrapped: true,
		IndexedFrom:  f.cursor,
		Paused:       f.paused,
		Complete:     f.remaining == 0,
	}, nil
}

func TestRunner_RunsUntilComplete(t *testing.T) {
	target := &fakeBackfiller{remaining: 3, cursor: "20260301"}
	var seen []types.DateKey
	r := &Runner{
		Target:    target,
		ChunkDays: 10,
		Interval:  time.Millisecond,
		OnChunk:   func(s types.HistoryStatus) { seen = append(seen, s.IndexedFrom) },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, []types.DateKey{"20260219", "20260209", "20260130"}, seen)
}

func TestRunner_RetriesAfterError(t *testing.T) {
	target := &fakeBackfiller{remaining: 1, cursor: "20260301", failFirst: true}
	r := &Runner{Target: target, ChunkDays: 30, Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.GreaterOrEqual(t, target.calls, 2)
}

func TestRunner_StopsOnCancelWhilePaused(t *testing.T) {
	target := &fakeBackfiller{remaining: 2, cursor: "20260301", paused: true}
	r := &Runner{Target: target, Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	status, _ := target.HistoryStatus(context.Background())
	assert.Equal(t, types.DateKey("20260301"), status.IndexedFrom, "paused runner must not move the cursor")
}
