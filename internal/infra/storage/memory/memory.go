// Package memory provides in-memory repository implementations, used in
// tests and as a dependency-free default.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/rowstream/internal/infra/storage"
)

// CheckpointRepo is an in-memory storage.CheckpointRepository.
type CheckpointRepo struct {
	mu     sync.Mutex
	points map[string][]byte
}

// NewCheckpointRepo creates an empty checkpoint repository.
func NewCheckpointRepo() *CheckpointRepo {
	return &CheckpointRepo{points: make(map[string][]byte)}
}

// Load returns the stored key for a scan, or nil when none exists.
func (r *CheckpointRepo) Load(_ context.Context, scan string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.points[scan]), nil
}

// Save stores the last delivered key for a scan.
func (r *CheckpointRepo) Save(_ context.Context, scan string, lastKey []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points[scan] = bytes.Clone(lastKey)
	return nil
}

// Clear removes the checkpoint for a scan.
func (r *CheckpointRepo) Clear(_ context.Context, scan string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.points, scan)
	return nil
}

// DeadLetterRepo is an in-memory storage.DeadLetterRepository.
type DeadLetterRepo struct {
	mu      sync.Mutex
	letters map[string]*storage.DeadLetter
	order   []string
}

// NewDeadLetterRepo creates an empty dead-letter repository.
func NewDeadLetterRepo() *DeadLetterRepo {
	return &DeadLetterRepo{letters: make(map[string]*storage.DeadLetter)}
}

// Add records a failed entry.
func (r *DeadLetterRepo) Add(_ context.Context, dl *storage.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[dl.ID]; !ok {
		r.order = append(r.order, dl.ID)
	}
	cp := *dl
	r.letters[dl.ID] = &cp
	return nil
}

// List returns up to limit entries for a table, oldest first.
func (r *DeadLetterRepo) List(
	_ context.Context,
	table string,
	limit int,
) ([]*storage.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*storage.DeadLetter
	for _, id := range r.order {
		dl := r.letters[id]
		if dl == nil || dl.Table != table {
			continue
		}
		cp := *dl
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Touch increments the replay attempt counter of an entry.
func (r *DeadLetterRepo) Touch(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dl, ok := r.letters[id]
	if !ok {
		return fmt.Errorf("dead letter %s not found", id)
	}
	dl.Attempts++
	return nil
}

// Delete removes an entry.
func (r *DeadLetterRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.letters, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
