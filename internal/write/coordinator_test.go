package write

import (
	"context"
	"io"
	"testing"
	"time"

	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/rowstream/internal/core/domain"
	"github.com/vietddude/rowstream/internal/infra/rpc"
	"github.com/vietddude/rowstream/internal/infra/storage/memory"
	"github.com/vietddude/rowstream/internal/retry"
)

// fakeResultStream yields scripted result batches, then ends with err (nil
// means clean io.EOF).
type fakeResultStream struct {
	batches [][]rpc.EntryResult
	idx     int
	err     error
}

func (s *fakeResultStream) Recv() ([]rpc.EntryResult, error) {
	if s.idx < len(s.batches) {
		b := s.batches[s.idx]
		s.idx++
		return b, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// round scripts one batch attempt: either an open error or a result stream.
type round struct {
	openErr error
	stream  *fakeResultStream
}

type fakeInvoker struct {
	rounds []round
	reqs   []*rpc.MutateRowsRequest
}

func (f *fakeInvoker) OpenMutateStream(
	_ context.Context,
	req *rpc.MutateRowsRequest,
) (rpc.ResultStream, error) {
	f.reqs = append(f.reqs, req)
	if len(f.rounds) == 0 {
		return nil, status.Error(codes.Internal, "no scripted round left")
	}
	r := f.rounds[0]
	f.rounds = f.rounds[1:]
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.stream, nil
}

func okStatus() *statuspb.Status {
	return status.New(codes.OK, "").Proto()
}

func st(c codes.Code, msg string) *statuspb.Status {
	return status.New(c, msg).Proto()
}

func setEntry(key string) domain.Entry {
	return domain.Entry{
		RowKey: []byte(key),
		Mutations: []domain.Mutation{
			domain.SetCell("f", []byte("q"), 100, []byte("v")),
		},
	}
}

func serverTSEntry(key string) domain.Entry {
	return domain.Entry{
		RowKey: []byte(key),
		Mutations: []domain.Mutation{
			domain.SetCell("f", []byte("q"), domain.ServerTimestamp, []byte("v")),
		},
	}
}

func fastApplyConfig(cfg ApplyConfig) ApplyConfig {
	if cfg.Retry == nil {
		cfg.Retry = retry.LimitedErrorCount(3)
	}
	cfg.Backoff = retry.Exponential(time.Microsecond, time.Microsecond)
	return cfg
}

func requestIndices(req *rpc.MutateRowsRequest) []int {
	out := make([]int, 0, len(req.Entries))
	for _, e := range req.Entries {
		out = append(out, e.Index)
	}
	return out
}

func TestBulkApplier_AllSucceed(t *testing.T) {
	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: okStatus()},
			{Index: 1, Status: okStatus()},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), []domain.Entry{setEntry("r1"), setEntry("r2")})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("Expected no failures, got %+v", failed)
	}
	if len(inv.reqs) != 1 {
		t.Errorf("Expected 1 attempt, got %d", len(inv.reqs))
	}
}

func TestBulkApplier_EmptyBatch(t *testing.T) {
	inv := &fakeInvoker{}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), nil)
	if err != nil || failed != nil {
		t.Fatalf("Expected immediate empty result, got %v, %v", failed, err)
	}
	if len(inv.reqs) != 0 {
		t.Errorf("Expected no attempt for an empty batch, got %d", len(inv.reqs))
	}
}

func TestBulkApplier_RetriesOnlyTransientEntries(t *testing.T) {
	// Round 1: entry 0 transient, entry 1 succeeds, entry 2 permanent.
	// Round 2 must carry entry 0 alone, which then succeeds.
	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: st(codes.Unavailable, "busy")},
			{Index: 1, Status: okStatus()},
			{Index: 2, Status: st(codes.InvalidArgument, "bad mutation")},
		}}}},
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: okStatus()},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), []domain.Entry{
		setEntry("r1"), setEntry("r2"), setEntry("r3"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(inv.reqs) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(inv.reqs))
	}
	if idx := requestIndices(inv.reqs[1]); len(idx) != 1 || idx[0] != 0 {
		t.Errorf("Expected round 2 to resend only entry 0, got %v", idx)
	}

	if len(failed) != 1 || failed[0].Index != 2 {
		t.Fatalf("Expected entry 2 as the only failure, got %+v", failed)
	}
	if codes.Code(failed[0].Status.GetCode()) != codes.InvalidArgument {
		t.Errorf("Expected the permanent status to be preserved, got %v", failed[0].Status)
	}
}

func TestBulkApplier_NonIdempotentNotRetried(t *testing.T) {
	// A server-timestamp entry with a transient status must fail immediately
	// with the status from the round that observed it.
	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: st(codes.Unavailable, "busy")},
			{Index: 1, Status: okStatus()},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), []domain.Entry{
		serverTSEntry("r1"), setEntry("r2"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(inv.reqs) != 1 {
		t.Fatalf("Expected no retry for a non-idempotent entry, got %d attempts", len(inv.reqs))
	}
	if len(failed) != 1 || failed[0].Index != 0 {
		t.Fatalf("Expected entry 0 failed, got %+v", failed)
	}
	if status.Code(failed[0].Err()) != codes.Unavailable {
		t.Errorf("Expected the observed transient status, got %v", failed[0].Err())
	}
}

func TestBulkApplier_ShortResponseKeepsEntryPending(t *testing.T) {
	// Round 1 reports nothing for entry 1; it stays pending and is resent.
	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: okStatus()},
		}}}},
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 1, Status: okStatus()},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), []domain.Entry{setEntry("r1"), setEntry("r2")})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("Expected no failures, got %+v", failed)
	}
	if len(inv.reqs) != 2 {
		t.Fatalf("Expected a second attempt for the unreported entry, got %d", len(inv.reqs))
	}
	if idx := requestIndices(inv.reqs[1]); len(idx) != 1 || idx[0] != 1 {
		t.Errorf("Expected only entry 1 resent, got %v", idx)
	}
}

func TestBulkApplier_BatchFailureRespectsIdempotency(t *testing.T) {
	// The whole first round fails at the stream level. The idempotent entry
	// is retried with the batch status as its provisional status; the
	// non-idempotent one fails immediately with that status.
	inv := &fakeInvoker{rounds: []round{
		{openErr: status.Error(codes.Unavailable, "connection reset")},
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: okStatus()},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), []domain.Entry{
		setEntry("r1"), serverTSEntry("r2"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(inv.reqs) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(inv.reqs))
	}
	if idx := requestIndices(inv.reqs[1]); len(idx) != 1 || idx[0] != 0 {
		t.Errorf("Expected only the idempotent entry resent, got %v", idx)
	}
	if len(failed) != 1 || failed[0].Index != 1 {
		t.Fatalf("Expected the non-idempotent entry failed, got %+v", failed)
	}
	if codes.Code(failed[0].Status.GetCode()) != codes.Unavailable {
		t.Errorf("Expected the batch status on the failed entry, got %v", failed[0].Status)
	}
}

func TestBulkApplier_PolicyExhaustionDrainsWithLastStatus(t *testing.T) {
	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: st(codes.Unavailable, "round one")},
		}}}},
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: st(codes.DeadlineExceeded, "round two")},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{
		Table: "t",
		Retry: retry.LimitedErrorCount(1),
	}))

	failed, err := a.Apply(context.Background(), []domain.Entry{setEntry("r1")})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(inv.reqs) != 2 {
		t.Fatalf("Expected initial attempt plus 1 retry, got %d", len(inv.reqs))
	}
	if len(failed) != 1 {
		t.Fatalf("Expected the pending entry drained as failed, got %+v", failed)
	}
	if codes.Code(failed[0].Status.GetCode()) != codes.DeadlineExceeded {
		t.Errorf("Expected the most recent status, got %v", failed[0].Status)
	}
}

func TestBulkApplier_NonRetryableBatchFailure(t *testing.T) {
	inv := &fakeInvoker{rounds: []round{
		{openErr: status.Error(codes.PermissionDenied, "denied")},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), []domain.Entry{setEntry("r1"), setEntry("r2")})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(inv.reqs) != 1 {
		t.Fatalf("Expected a single attempt, got %d", len(inv.reqs))
	}
	if len(failed) != 2 {
		t.Fatalf("Expected both entries failed, got %+v", failed)
	}
	for _, f := range failed {
		if codes.Code(f.Status.GetCode()) != codes.PermissionDenied {
			t.Errorf("Entry %d: expected the batch status, got %v", f.Index, f.Status)
		}
	}
}

func TestBulkApplier_FailuresOrderedByIndex(t *testing.T) {
	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 2, Status: st(codes.InvalidArgument, "bad")},
			{Index: 0, Status: st(codes.NotFound, "missing")},
			{Index: 1, Status: okStatus()},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(context.Background(), []domain.Entry{
		setEntry("r1"), setEntry("r2"), setEntry("r3"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(failed) != 2 || failed[0].Index != 0 || failed[1].Index != 2 {
		t.Fatalf("Expected failures ordered by index [0 2], got %+v", failed)
	}
}

func TestBulkApplier_ContextCancelReturnsCollectedFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: st(codes.Unavailable, "busy")},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))

	failed, err := a.Apply(ctx, []domain.Entry{setEntry("r1")})
	if err == nil {
		t.Fatal("Expected a context error")
	}
	if len(failed) != 1 || failed[0].Index != 0 {
		t.Fatalf("Expected the pending entry drained into failures, got %+v", failed)
	}
}

func TestBulkApplier_RecordsDeadLetters(t *testing.T) {
	inv := &fakeInvoker{rounds: []round{
		{stream: &fakeResultStream{batches: [][]rpc.EntryResult{{
			{Index: 0, Status: st(codes.InvalidArgument, "bad mutation")},
			{Index: 1, Status: okStatus()},
		}}}},
	}}
	a := NewBulkApplier(inv, fastApplyConfig(ApplyConfig{Table: "t"}))
	repo := memory.NewDeadLetterRepo()
	a.DeadLetters = repo

	failed, err := a.Apply(context.Background(), []domain.Entry{setEntry("r1"), setEntry("r2")})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failure, got %+v", failed)
	}

	letters, err := repo.List(context.Background(), "t", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("Expected 1 dead letter, got %d", len(letters))
	}
	if string(letters[0].RowKey) != "r1" {
		t.Errorf("Expected dead letter for r1, got %q", letters[0].RowKey)
	}
	if codes.Code(letters[0].Status.GetCode()) != codes.InvalidArgument {
		t.Errorf("Expected the failure status persisted, got %v", letters[0].Status)
	}
}
