// Package replay re-applies dead-lettered mutation entries in the
// background.
package replay

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/rowstream/internal/core/domain"
	"github.com/vietddude/rowstream/internal/infra/storage"
	"github.com/vietddude/rowstream/internal/write"
)

// WorkerConfig holds configuration for the replay worker.
type WorkerConfig struct {
	Table     string
	Interval  time.Duration // Poll interval when the queue is empty (default: 30s)
	BatchSize int           // Max entries re-applied per round (default: 50)
}

// DefaultConfig returns default worker configuration.
func DefaultConfig(table string) WorkerConfig {
	return WorkerConfig{
		Table:     table,
		Interval:  30 * time.Second,
		BatchSize: 50,
	}
}

// Worker periodically drains the dead-letter store through the bulk applier.
// Entries that apply cleanly are deleted; entries that fail again have their
// attempt counter bumped and stay queued.
type Worker struct {
	cfg     WorkerConfig
	applier *write.BulkApplier
	repo    storage.DeadLetterRepository
	log     *slog.Logger
}

// NewWorker creates a replay worker. The applier must not itself be wired to
// the same dead-letter store, or failed replays would be recorded twice.
func NewWorker(cfg WorkerConfig, applier *write.BulkApplier, repo storage.DeadLetterRepository) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		cfg:     cfg,
		applier: applier,
		repo:    repo,
		log:     slog.Default().With("component", "replay", "table", cfg.Table),
	}
}

// Run starts the worker loop. It returns when ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting replay worker")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Replay worker stopped")
			return nil
		case <-ticker.C:
		}

		if err := w.runOnce(ctx); err != nil {
			w.log.Warn("Replay round failed", "error", err)
		}
	}
}

// runOnce re-applies one batch of dead letters.
func (w *Worker) runOnce(ctx context.Context) error {
	letters, err := w.repo.List(ctx, w.cfg.Table, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(letters) == 0 {
		return nil
	}

	entries := make([]domain.Entry, len(letters))
	for i, dl := range letters {
		entries[i] = domain.Entry{RowKey: dl.RowKey, Mutations: dl.Mutations}
	}

	failures, err := w.applier.Apply(ctx, entries)
	if err != nil {
		return err
	}

	failed := make(map[int]bool, len(failures))
	for _, f := range failures {
		failed[f.Index] = true
	}

	for i, dl := range letters {
		if failed[i] {
			if err := w.repo.Touch(ctx, dl.ID); err != nil {
				w.log.Warn("Failed to bump replay attempts", "id", dl.ID, "error", err)
			}
			continue
		}
		if err := w.repo.Delete(ctx, dl.ID); err != nil {
			w.log.Warn("Failed to delete replayed dead letter", "id", dl.ID, "error", err)
		}
	}

	w.log.Info("Replayed dead letters",
		"total", len(letters),
		"resolved", len(letters)-len(failures),
		"still_failing", len(failures),
	)
	return nil
}
