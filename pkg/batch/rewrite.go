package batch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/japaniel/tab2kindle/pkg/db"
	"github.com/japaniel/tab2kindle/pkg/dictionary"
)

// Rewriter runs the link resolver over every entry of a store. Entries are
// resolved in parallel; changed explanations are committed in batches.
type Rewriter struct {
	Store *dictionary.EntryStore
	Links *dictionary.LinkResolver
	Log   *slog.Logger

	Workers       int
	BatchSize     int
	FlushInterval time.Duration

	// OnProgress is called periodically with the number of entries resolved
	// so far and the total.
	OnProgress func(done, total int)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) Pool
}

// NewRewriter creates a rewriter with default concurrency settings.
func NewRewriter(store *dictionary.EntryStore, links *dictionary.LinkResolver, log *slog.Logger) *Rewriter {
	return &Rewriter{
		Store:         store,
		Links:         links,
		Log:           log,
		Workers:       4,
		BatchSize:     200,
		FlushInterval: 200 * time.Millisecond,
	}
}

// RewriteStats summarizes a rewrite run.
type RewriteStats struct {
	Entries int
	Changed int
	dictionary.LinkStats
}

// Run rewrites every entry. It returns the first storage error; unresolved
// links are not errors.
func (rw *Rewriter) Run(ctx context.Context) (RewriteStats, error) {
	total := rw.Store.Len()
	workers := max(rw.Workers, 1)

	var pool Pool
	if rw.PoolFactory != nil {
		pool = rw.PoolFactory(workers, workers*2)
	} else {
		pool = NewWorkerPool(workers, workers*2)
	}
	bw := NewBatchWriter(rw.Store.Conn(), rw.BatchSize, rw.FlushInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	bw.OnError = func(error) { cancel() }

	var (
		mu      sync.Mutex
		stats   RewriteStats
		done    atomic.Int64
		every   = int64(max(total/100, 1))
		started = time.Now()
	)
	job := func(e db.Entry) Job {
		return func(ctx context.Context) error {
			text, ls := rw.Links.Rewrite(ctx, e.ID, e.Explanation)
			changed := text != e.Explanation
			mu.Lock()
			stats.Entries++
			stats.LinkStats.Add(ls)
			if changed {
				stats.Changed++
			}
			mu.Unlock()
			if changed {
				id := e.ID
				if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
					return rw.Store.UpdateExplanationTx(ctx, tx, id, text)
				}); err != nil {
					return err
				}
			}
			if n := done.Add(1); rw.OnProgress != nil && (n%every == 0 || n == int64(total)) {
				rw.OnProgress(int(n), total)
			}
			return nil
		}
	}

	pool.Start(ctx)
	iterErr := rw.Store.Iterate(ctx, func(e db.Entry) error {
		return pool.SubmitCtx(ctx, job(e))
	})
	pool.Close()
	writeErr := bw.Close()

	if writeErr != nil {
		return stats, fmt.Errorf("commit rewritten entries: %w", writeErr)
	}
	if err := pool.Err(); err != nil {
		return stats, err
	}
	if iterErr != nil {
		return stats, fmt.Errorf("rewrite aborted: %w", iterErr)
	}
	if n := int(done.Load()); n != total {
		return stats, fmt.Errorf("rewrite aborted after %d of %d entries", n, total)
	}

	rw.Log.Info("link resolution finished",
		slog.Int("entries", stats.Entries),
		slog.Int("changed", stats.Changed),
		slog.Int("resolved", stats.Resolved),
		slog.Int("unresolved", stats.Unresolved),
		slog.Int("skipped", stats.Skipped),
		slog.Duration("elapsed", time.Since(started)),
	)
	return stats, nil
}
