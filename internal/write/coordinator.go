// Package write implements the partial-failure bulk mutation coordinator:
// batches of per-row writes are sent, classified per entry, and only the
// safe, still-pending subset is resent.
package write

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/rowstream/internal/core/domain"
	"github.com/vietddude/rowstream/internal/infra/rpc"
	"github.com/vietddude/rowstream/internal/infra/storage"
	"github.com/vietddude/rowstream/internal/metrics"
	"github.com/vietddude/rowstream/internal/retry"
)

// FailedEntry is one batch item resolved as permanently failed, carrying its
// original index and the last status observed for it.
type FailedEntry struct {
	Index  int
	Entry  domain.Entry
	Status *statuspb.Status
}

// Err converts the entry's status into an error.
func (f FailedEntry) Err() error {
	return status.ErrorProto(f.Status)
}

// ApplyConfig describes how batches are applied.
type ApplyConfig struct {
	Table string

	// Retry and Backoff produce the policy instances for each Apply call.
	// Nil falls back to retry.DefaultConfig.
	Retry   retry.PolicyFactory
	Backoff retry.BackoffFactory
}

// BulkApplier drives repeated batch mutation attempts until every entry is
// resolved or the retry policy stops. Partial failure is a normal outcome:
// Apply returns the failed entries as data, not as an error.
//
// One Apply call is one logical operation with fresh policy state. A
// BulkApplier may be reused sequentially but not concurrently.
type BulkApplier struct {
	invoker rpc.BatchInvoker
	cfg     ApplyConfig

	// DeadLetters, when set, receives every permanently failed entry after
	// Apply resolves. Recording is best-effort.
	DeadLetters storage.DeadLetterRepository
}

// NewBulkApplier creates an applier over a batch RPC capability.
func NewBulkApplier(invoker rpc.BatchInvoker, cfg ApplyConfig) *BulkApplier {
	return &BulkApplier{invoker: invoker, cfg: cfg}
}

// Apply sends the entries and resolves each one as succeeded or failed,
// retrying the retryable-and-idempotent subset between attempts. The returned
// slice holds only genuine failures, ordered by original index. The error
// return is reserved for operation-level interruption (context cancellation);
// even then the failures collected so far are returned.
func (a *BulkApplier) Apply(ctx context.Context, entries []domain.Entry) ([]FailedEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	pf := a.cfg.Retry
	if pf == nil {
		pf = retry.DefaultConfig.PolicyFactory()
	}
	bf := a.cfg.Backoff
	if bf == nil {
		bf = retry.DefaultConfig.BackoffFactory()
	}
	policy := pf()
	backoff := bf()

	applyID := uuid.NewString()

	pending := make(map[int]domain.Entry, len(entries))
	for i, e := range entries {
		pending[i] = e
	}
	lastStatus := make(map[int]*statuspb.Status)
	var failures []FailedEntry

	for len(pending) > 0 {
		attemptErr := a.attempt(ctx, pending, lastStatus, &failures)

		if attemptErr != nil {
			// Batch-level failure: no per-entry statuses for this round.
			// The batch status stands in for each pending entry, but
			// idempotency still governs which entries may be resent.
			st := status.Convert(attemptErr).Proto()
			for idx, e := range pending {
				if !e.Idempotent() {
					failures = append(failures, FailedEntry{Index: idx, Entry: e, Status: st})
					delete(pending, idx)
					continue
				}
				lastStatus[idx] = st
			}
			if len(pending) == 0 {
				break
			}
			if !policy.ShouldRetry(attemptErr) {
				break
			}
		} else {
			if len(pending) == 0 {
				break
			}
			// Entries are still pending after a completed round: either
			// transient per-entry failures or a short response. The most
			// recent observed status drives the retry decision; a short
			// response with no status at all counts as transient.
			if !policy.ShouldRetry(mostRecentError(pending, lastStatus)) {
				break
			}
		}

		slog.Debug("Retrying pending mutations",
			"apply_id", applyID,
			"table", a.cfg.Table,
			"pending", len(pending),
		)
		if err := retry.Sleep(ctx, backoff.NextDelay()); err != nil {
			drainPending(pending, lastStatus, &failures)
			sortFailures(failures)
			return failures, err
		}
	}

	drainPending(pending, lastStatus, &failures)
	sortFailures(failures)

	metrics.MutationEntries.WithLabelValues(a.cfg.Table, "failed").Add(float64(len(failures)))
	a.recordDeadLetters(ctx, applyID, failures)

	return failures, nil
}

// attempt sends one batch round with every pending entry and folds the
// reported statuses into pending/failures. Entries not reported at all stay
// pending untouched. A non-nil return is the batch-level failure.
func (a *BulkApplier) attempt(
	ctx context.Context,
	pending map[int]domain.Entry,
	lastStatus map[int]*statuspb.Status,
	failures *[]FailedEntry,
) error {
	req := &rpc.MutateRowsRequest{Table: a.cfg.Table}
	for _, idx := range sortedIndices(pending) {
		req.Entries = append(req.Entries, rpc.RequestEntry{Index: idx, Entry: pending[idx]})
	}

	metrics.ApplyAttempts.WithLabelValues(a.cfg.Table).Inc()
	start := time.Now()
	stream, err := a.invoker.OpenMutateStream(ctx, req)
	if err != nil {
		return err
	}

	for {
		results, err := stream.Recv()
		if err != nil {
			metrics.RPCLatency.WithLabelValues("MutateRows").Observe(time.Since(start).Seconds())
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		for _, res := range results {
			entry, ok := pending[res.Index]
			if !ok {
				// Unknown or already-resolved index: ignore.
				continue
			}
			code := codes.Code(res.Status.GetCode())
			switch {
			case code == codes.OK:
				delete(pending, res.Index)
				metrics.MutationEntries.WithLabelValues(a.cfg.Table, "succeeded").Inc()
			case retry.IsTransientCode(code) && entry.Idempotent():
				lastStatus[res.Index] = res.Status
			default:
				*failures = append(*failures, FailedEntry{
					Index:  res.Index,
					Entry:  entry,
					Status: res.Status,
				})
				delete(pending, res.Index)
			}
		}
	}
}

// mostRecentError builds the error the retry policy is consulted with after
// a completed round that left entries pending.
func mostRecentError(pending map[int]domain.Entry, lastStatus map[int]*statuspb.Status) error {
	for _, idx := range sortedIndices(pending) {
		if st := lastStatus[idx]; st != nil {
			return status.ErrorProto(st)
		}
	}
	// Short response: nothing was reported for the pending entries.
	return status.Error(codes.Unavailable, "incomplete mutate response")
}

// drainPending resolves every still-pending entry as failed with its last
// observed status.
func drainPending(
	pending map[int]domain.Entry,
	lastStatus map[int]*statuspb.Status,
	failures *[]FailedEntry,
) {
	for _, idx := range sortedIndices(pending) {
		st := lastStatus[idx]
		if st == nil {
			st = status.New(codes.Unknown, "entry was never resolved").Proto()
		}
		*failures = append(*failures, FailedEntry{Index: idx, Entry: pending[idx], Status: st})
		delete(pending, idx)
	}
}

func sortedIndices(pending map[int]domain.Entry) []int {
	out := make([]int, 0, len(pending))
	for idx := range pending {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func sortFailures(failures []FailedEntry) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Index < failures[j].Index
	})
}

// recordDeadLetters best-effort persists permanent failures for replay.
func (a *BulkApplier) recordDeadLetters(ctx context.Context, applyID string, failures []FailedEntry) {
	if a.DeadLetters == nil || len(failures) == 0 {
		return
	}
	for _, f := range failures {
		dl := &storage.DeadLetter{
			ID:        uuid.NewString(),
			ApplyID:   applyID,
			Table:     a.cfg.Table,
			RowKey:    f.Entry.RowKey,
			Mutations: f.Entry.Mutations,
			Status:    f.Status,
			CreatedAt: time.Now(),
		}
		if err := a.DeadLetters.Add(ctx, dl); err != nil {
			slog.Warn("Failed to record dead letter",
				"apply_id", applyID,
				"table", a.cfg.Table,
				"error", err,
			)
			continue
		}
		metrics.DeadLetters.WithLabelValues(a.cfg.Table).Inc()
	}
}
