package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/japaniel/tab2kindle/pkg/db"
)

// WriteFunc performs database writes inside a batch transaction.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// ErrWriterClosed is returned by Submit and Close after Close.
var ErrWriterClosed = errors.New("batch writer closed")

// BatchWriter buffers writes and commits them in batches, one transaction
// per batch, from a single committer goroutine. A failing write rolls back
// its whole batch.
type BatchWriter struct {
	conn *sql.DB
	size int

	mu     sync.Mutex
	buf    []WriteFunc
	closed bool

	ticker *time.Ticker
	ctx    context.Context
	cancel context.CancelFunc
	queue  chan []WriteFunc
	wg     sync.WaitGroup

	committed atomic.Int64

	// OnError is called from the committer for every failed batch.
	OnError func(error)

	errMu sync.Mutex
	err   error
}

// NewBatchWriter starts a writer that commits every size writes and, when
// interval is positive, at least that often. A nil conn runs writes with a
// nil transaction.
func NewBatchWriter(conn *sql.DB, size int, interval time.Duration) *BatchWriter {
	if size <= 0 {
		size = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BatchWriter{
		conn:   conn,
		size:   size,
		buf:    make([]WriteFunc, 0, size),
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan []WriteFunc, 2),
	}
	bw.wg.Add(1)
	go bw.commitLoop()
	if interval > 0 {
		bw.ticker = time.NewTicker(interval)
		bw.wg.Add(1)
		go bw.tickLoop()
	}
	return bw
}

// Submit enqueues a write. It blocks while the committer is behind.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.size {
		bw.flushLocked()
	}
	return nil
}

// Committed returns the number of writes committed so far.
func (bw *BatchWriter) Committed() int64 { return bw.committed.Load() }

// flushLocked hands the buffer to the committer. bw.mu must be held.
func (bw *BatchWriter) flushLocked() {
	if len(bw.buf) == 0 {
		return
	}
	pending := bw.buf
	bw.buf = make([]WriteFunc, 0, bw.size)
	select {
	case bw.queue <- pending:
	case <-bw.ctx.Done():
		bw.fail(fmt.Errorf("batch writer: dropping batch of %d writes after shutdown", len(pending)))
	}
}

func (bw *BatchWriter) commitLoop() {
	defer bw.wg.Done()
	for pending := range bw.queue {
		if err := bw.commit(pending); err != nil {
			bw.fail(err)
			continue
		}
		bw.committed.Add(int64(len(pending)))
	}
}

func (bw *BatchWriter) commit(pending []WriteFunc) error {
	// Pending writes still commit while the writer shuts down.
	ctx := context.Background()
	if bw.conn == nil {
		for _, w := range pending {
			if err := w(ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}
	err := db.WithTx(ctx, bw.conn, func(tx *sql.Tx) error {
		for _, w := range pending {
			if err := w(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("batch of %d writes: %w", len(pending), err)
	}
	return nil
}

func (bw *BatchWriter) tickLoop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case <-bw.ticker.C:
			bw.mu.Lock()
			bw.flushLocked()
			bw.mu.Unlock()
		}
	}
}

func (bw *BatchWriter) fail(err error) {
	bw.errMu.Lock()
	if bw.err == nil {
		bw.err = err
	}
	bw.errMu.Unlock()
	if bw.OnError != nil {
		bw.OnError(err)
	}
}

// Close flushes what is buffered, waits for every batch to be committed and
// returns the first error seen.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrWriterClosed
	}
	bw.closed = true
	if bw.ticker != nil {
		bw.ticker.Stop()
	}
	bw.flushLocked()
	bw.mu.Unlock()

	bw.cancel()
	close(bw.queue)
	bw.wg.Wait()

	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.err
}
