package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCheckpointTTL bounds how long an abandoned scan checkpoint lives.
const DefaultCheckpointTTL = 7 * 24 * time.Hour

// CheckpointRepo implements storage.CheckpointRepository on Redis.
type CheckpointRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCheckpointRepo creates a Redis-backed checkpoint repository. ttl <= 0
// falls back to DefaultCheckpointTTL.
func NewCheckpointRepo(client *Client, ttl time.Duration) *CheckpointRepo {
	if ttl <= 0 {
		ttl = DefaultCheckpointTTL
	}
	return &CheckpointRepo{rdb: client.rdb, ttl: ttl}
}

func checkpointKey(scan string) string {
	return fmt.Sprintf("scan_checkpoint:%s", scan)
}

// Load returns the stored key for a scan, or nil when none exists.
func (r *CheckpointRepo) Load(ctx context.Context, scan string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, checkpointKey(scan)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return data, nil
}

// Save stores the last delivered key for a scan, refreshing the TTL.
func (r *CheckpointRepo) Save(ctx context.Context, scan string, lastKey []byte) error {
	if err := r.rdb.Set(ctx, checkpointKey(scan), lastKey, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint for a scan.
func (r *CheckpointRepo) Clear(ctx context.Context, scan string) error {
	if err := r.rdb.Del(ctx, checkpointKey(scan)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
