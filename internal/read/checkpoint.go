package read

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/rowstream/internal/core/domain"
	"github.com/vietddude/rowstream/internal/infra/rpc"
	"github.com/vietddude/rowstream/internal/infra/storage"
)

// DefaultCheckpointInterval is how many delivered rows pass between
// checkpoint writes.
const DefaultCheckpointInterval = 100

// CheckpointedReader wraps a Reader with persisted progress: the key of the
// last delivered row is saved under a scan name, and a restarted process
// resumes past it. Checkpoint writes are best-effort; a failed write logs a
// warning and never fails the scan.
type CheckpointedReader struct {
	reader    *Reader
	store     storage.CheckpointRepository
	name      string
	interval  int
	sinceSave int
	exhausted bool
}

// NewCheckpointedReader creates a reader for the named scan, resuming from
// the stored checkpoint when one exists. interval <= 0 falls back to
// DefaultCheckpointInterval.
func NewCheckpointedReader(
	ctx context.Context,
	opener rpc.StreamOpener,
	cfg ScanConfig,
	store storage.CheckpointRepository,
	name string,
	interval int,
) (*CheckpointedReader, error) {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}

	last, err := store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for scan %s: %w", name, err)
	}

	exhausted := false
	if len(last) > 0 {
		rows, ok := cfg.Rows.Narrow(last)
		if !ok {
			// The previous run delivered everything the set asked for.
			exhausted = true
		} else {
			cfg.Rows = rows
		}
		slog.Info("Resuming scan from checkpoint", "scan", name, "exhausted", exhausted)
	}

	return &CheckpointedReader{
		reader:    NewReader(opener, cfg),
		store:     store,
		name:      name,
		interval:  interval,
		exhausted: exhausted,
	}, nil
}

// Next returns the next row, persisting progress every interval rows and
// clearing the checkpoint at the clean end of the scan.
func (c *CheckpointedReader) Next(ctx context.Context) (*domain.Row, error) {
	if c.exhausted {
		return nil, Done
	}

	row, err := c.reader.Next(ctx)
	if err != nil {
		if err == Done {
			if clearErr := c.store.Clear(ctx, c.name); clearErr != nil {
				slog.Warn("Failed to clear scan checkpoint", "scan", c.name, "error", clearErr)
			}
		}
		return nil, err
	}

	c.sinceSave++
	if c.sinceSave >= c.interval {
		if saveErr := c.store.Save(ctx, c.name, c.reader.LastKey()); saveErr != nil {
			slog.Warn("Failed to save scan checkpoint", "scan", c.name, "error", saveErr)
		} else {
			c.sinceSave = 0
		}
	}
	return row, nil
}

// Cancel cancels the underlying reader.
func (c *CheckpointedReader) Cancel() {
	c.reader.Cancel()
}
