package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/vietddude/rowstream/internal/core/domain"
	"github.com/vietddude/rowstream/internal/infra/storage"
)

// DeadLetterRepo implements storage.DeadLetterRepository using PostgreSQL.
type DeadLetterRepo struct {
	db *DB
}

// NewDeadLetterRepo creates a PostgreSQL dead-letter repository.
func NewDeadLetterRepo(db *DB) *DeadLetterRepo {
	return &DeadLetterRepo{db: db}
}

// Add records a failed entry.
func (r *DeadLetterRepo) Add(ctx context.Context, dl *storage.DeadLetter) error {
	mutations, err := json.Marshal(dl.Mutations)
	if err != nil {
		return fmt.Errorf("failed to marshal mutations: %w", err)
	}
	st, err := protojson.Marshal(dl.Status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	query := `
		INSERT INTO dead_letters (id, apply_id, table_name, row_key, mutations, status, families, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err = r.db.ExecContext(
		ctx,
		query,
		dl.ID,
		dl.ApplyID,
		dl.Table,
		dl.RowKey,
		mutations,
		st,
		pq.Array(dl.Families()),
		dl.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to add dead letter: %w", err)
	}
	return nil
}

// List returns up to limit entries for a table, oldest first.
func (r *DeadLetterRepo) List(
	ctx context.Context,
	table string,
	limit int,
) ([]*storage.DeadLetter, error) {
	query := `
		SELECT id, apply_id, table_name, row_key, mutations, status, attempts, created_at
		FROM dead_letters
		WHERE table_name = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}

	var rows []struct {
		ID        string    `db:"id"`
		ApplyID   string    `db:"apply_id"`
		TableName string    `db:"table_name"`
		RowKey    []byte    `db:"row_key"`
		Mutations []byte    `db:"mutations"`
		Status    []byte    `db:"status"`
		Attempts  int       `db:"attempts"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, table, limit); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	out := make([]*storage.DeadLetter, 0, len(rows))
	for _, row := range rows {
		var mutations []domain.Mutation
		if err := json.Unmarshal(row.Mutations, &mutations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mutations for %s: %w", row.ID, err)
		}
		st := &statuspb.Status{}
		if err := protojson.Unmarshal(row.Status, st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status for %s: %w", row.ID, err)
		}
		out = append(out, &storage.DeadLetter{
			ID:        row.ID,
			ApplyID:   row.ApplyID,
			Table:     row.TableName,
			RowKey:    row.RowKey,
			Mutations: mutations,
			Status:    st,
			Attempts:  row.Attempts,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// Touch increments the replay attempt counter of an entry.
func (r *DeadLetterRepo) Touch(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE dead_letters SET attempts = attempts + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch dead letter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("dead letter %s not found", id)
	}
	return nil
}

// Delete removes an entry.
func (r *DeadLetterRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	return nil
}
