package read

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/rowstream/internal/core/domain"
	"github.com/vietddude/rowstream/internal/infra/rpc"
	"github.com/vietddude/rowstream/internal/metrics"
	"github.com/vietddude/rowstream/internal/retry"
)

// Done is returned by Next once the scan has delivered every requested row.
var Done = errors.New("rowstream: no more rows")

// ErrCancelled is returned by Next after the reader was cancelled.
var ErrCancelled = errors.New("rowstream: scan cancelled")

// ScanConfig describes one row scan.
type ScanConfig struct {
	Table  string
	Rows   domain.RowSet
	Filter domain.Filter

	// RowsLimit caps the number of rows delivered. 0 means unlimited.
	RowsLimit int64

	// Retry and Backoff produce the policy instances for this scan.
	// Nil falls back to retry.DefaultConfig.
	Retry   retry.PolicyFactory
	Backoff retry.BackoffFactory
}

// Reader is a lazy, forward-only sequence of rows backed by one or more
// streaming read attempts. On a retryable failure it narrows the row set past
// the last delivered key and retries transparently; callers only ever see
// strictly increasing row keys, each exactly once.
//
// A Reader serves one logical scan, single-threaded. Cancel is the only
// method safe to call from another goroutine.
type Reader struct {
	opener  rpc.StreamOpener
	table   string
	rows    domain.RowSet
	filter  domain.Filter
	limit   int64
	policy  retry.Policy
	backoff retry.Backoff
	scanID  string

	parser *ChunkParser
	stream rpc.RowStream
	chunks []domain.CellChunk

	delivered int64
	lastKey   []byte

	done bool
	err  error

	mu           sync.Mutex
	cancelled    bool
	cancelStream context.CancelFunc
}

// NewReader creates a reader for one scan. The caller's RowSet is copied; the
// original is never mutated across retries.
func NewReader(opener rpc.StreamOpener, cfg ScanConfig) *Reader {
	pf := cfg.Retry
	if pf == nil {
		pf = retry.DefaultConfig.PolicyFactory()
	}
	bf := cfg.Backoff
	if bf == nil {
		bf = retry.DefaultConfig.BackoffFactory()
	}
	return &Reader{
		opener:  opener,
		table:   cfg.Table,
		rows:    cfg.Rows.Clone(),
		filter:  cfg.Filter,
		limit:   cfg.RowsLimit,
		policy:  pf(),
		backoff: bf(),
		scanID:  uuid.NewString(),
	}
}

// Next returns the next row. It returns Done at the clean end of the scan,
// ErrCancelled after Cancel, and a terminal error once the retry policy is
// exhausted. A Reader that returned Done or an error stays in that state.
func (r *Reader) Next(ctx context.Context) (*domain.Row, error) {
	for {
		if r.isCancelled() {
			r.closeStream()
			r.chunks = nil
			return nil, ErrCancelled
		}
		if r.err != nil {
			return nil, r.err
		}
		if r.done {
			return nil, Done
		}

		if r.stream == nil {
			if r.limit > 0 && r.delivered >= r.limit {
				r.done = true
				return nil, Done
			}
			if err := r.openAttempt(ctx); err != nil {
				if errors.Is(err, ErrCancelled) {
					return nil, ErrCancelled
				}
				if err := r.handleFailure(ctx, err); err != nil {
					return nil, err
				}
				continue
			}
		}

		row, err := r.pumpChunks()
		if err != nil {
			if err := r.handleFailure(ctx, err); err != nil {
				return nil, err
			}
			continue
		}
		if row != nil {
			// A retried attempt may replay rows the server already sent.
			// Anything at or below the delivery watermark is a duplicate.
			if len(r.lastKey) > 0 && bytes.Compare(row.Key, r.lastKey) <= 0 {
				continue
			}
			r.delivered++
			r.lastKey = row.Key
			metrics.RowsRead.WithLabelValues(r.table).Inc()
			if r.limit > 0 && r.delivered >= r.limit {
				r.closeStream()
				r.done = true
			}
			return row, nil
		}

		frame, err := r.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if err := r.parser.EndOfInput(); err != nil {
					if err := r.handleFailure(ctx, err); err != nil {
						return nil, err
					}
					continue
				}
				r.closeStream()
				r.done = true
				return nil, Done
			}
			if r.isCancelled() {
				r.closeStream()
				return nil, ErrCancelled
			}
			if err := r.handleFailure(ctx, err); err != nil {
				return nil, err
			}
			continue
		}
		r.chunks = frame.Chunks
	}
}

// pumpChunks feeds buffered chunks into the parser until a row completes or
// the buffer drains.
func (r *Reader) pumpChunks() (*domain.Row, error) {
	for len(r.chunks) > 0 {
		c := &r.chunks[0]
		r.chunks = r.chunks[1:]
		if err := r.parser.Feed(c); err != nil {
			return nil, err
		}
		metrics.ChunksParsed.WithLabelValues(r.table).Inc()
		if r.parser.HasRow() {
			return r.parser.TakeRow()
		}
	}
	return nil, nil
}

// openAttempt builds the request for the current (possibly narrowed) row set
// and opens a fresh stream with a fresh parser.
func (r *Reader) openAttempt(ctx context.Context) error {
	req := &rpc.ReadRowsRequest{
		Table:  r.table,
		Rows:   r.rows,
		Filter: r.filter,
	}
	if r.limit > 0 {
		req.RowsLimit = r.limit - r.delivered
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		cancel()
		return ErrCancelled
	}
	r.cancelStream = cancel
	r.mu.Unlock()

	stream, err := r.opener.OpenReadStream(attemptCtx, req)
	if err != nil {
		return err
	}
	r.stream = stream
	r.parser = NewChunkParser()
	r.chunks = nil
	return nil
}

// handleFailure decides, via the scan's retry policy, whether the failed
// attempt is retried. A nil return means "retry"; a non-nil return is the
// terminal error for the scan. When rows were already delivered, the row set
// is narrowed so none of them is ever re-requested.
func (r *Reader) handleFailure(ctx context.Context, cause error) error {
	r.closeStream()
	r.chunks = nil

	if !r.policy.ShouldRetry(cause) {
		r.err = fmt.Errorf("scan failed: %w", cause)
		return r.err
	}

	if len(r.lastKey) > 0 {
		rows, ok := r.rows.Narrow(r.lastKey)
		if !ok {
			// Everything requested has been delivered already.
			r.done = true
			return nil
		}
		r.rows = rows
	}

	metrics.ScanRetries.WithLabelValues(r.table).Inc()
	slog.Debug("Retrying scan attempt",
		"scan_id", r.scanID,
		"table", r.table,
		"rows_delivered", r.delivered,
		"cause", cause,
	)

	if err := retry.Sleep(ctx, r.backoff.NextDelay()); err != nil {
		r.err = err
		return err
	}
	return nil
}

// Cancel marks the reader cancelled and interrupts the in-flight stream, if
// any. It is idempotent and safe to call from another goroutine at any point,
// including before the first attempt.
func (r *Reader) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	cancel := r.cancelStream
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (r *Reader) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// closeStream cancels the transport context of the current attempt and drops
// the stream handle.
func (r *Reader) closeStream() {
	r.mu.Lock()
	cancel := r.cancelStream
	r.cancelStream = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.stream = nil
	r.parser = nil
}

// LastKey returns the key of the most recently delivered row, or nil when no
// row has been delivered yet.
func (r *Reader) LastKey() []byte {
	return r.lastKey
}
