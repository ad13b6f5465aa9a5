package storage

import (
	"context"
	"time"

	statuspb "google.golang.org/genproto/googleapis/rpc/status"

	"github.com/vietddude/rowstream/internal/core/domain"
)

// CheckpointRepository persists the last delivered row key of a named scan,
// so an interrupted scan can resume past it after a restart.
type CheckpointRepository interface {
	// Load returns the stored key for a scan, or nil when none exists.
	Load(ctx context.Context, scan string) ([]byte, error)

	// Save stores the last delivered key for a scan.
	Save(ctx context.Context, scan string, lastKey []byte) error

	// Clear removes the checkpoint for a scan.
	Clear(ctx context.Context, scan string) error
}

// DeadLetter is one permanently failed mutation entry, kept for inspection
// and replay.
type DeadLetter struct {
	ID        string
	ApplyID   string
	Table     string
	RowKey    []byte
	Mutations []domain.Mutation
	Status    *statuspb.Status
	Attempts  int
	CreatedAt time.Time
}

// Families returns the distinct column families the entry's mutations touch.
func (d *DeadLetter) Families() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range d.Mutations {
		if m.Family == "" || seen[m.Family] {
			continue
		}
		seen[m.Family] = true
		out = append(out, m.Family)
	}
	return out
}

// DeadLetterRepository stores permanently failed mutation entries.
type DeadLetterRepository interface {
	// Add records a failed entry.
	Add(ctx context.Context, dl *DeadLetter) error

	// List returns up to limit entries for a table, oldest first.
	List(ctx context.Context, table string, limit int) ([]*DeadLetter, error)

	// Touch increments the replay attempt counter of an entry.
	Touch(ctx context.Context, id string) error

	// Delete removes an entry, typically after a successful replay.
	Delete(ctx context.Context, id string) error
}
