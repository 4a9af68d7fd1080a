package redis

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// DefaultPrefix namespaces ledger keys.
const DefaultPrefix = "retry"

// RetryLedger implements storage.FailureLedger with a Redis list.
type RetryLedger struct {
	client *Client
	key    string
}

// NewRetryLedger creates a ledger keyed by the output file's absolute path.
func NewRetryLedger(client *Client, prefix, outputPath string) *RetryLedger {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RetryLedger{
		client: client,
		key:    ledgerKey(prefix, outputPath),
	}
}

// Key helpers

// ledgerKey keeps the base name for readability and adds a hash of the
// absolute path so equally named outputs in different directories get their own list.
func ledgerKey(prefix, outputPath string) string {
	path, err := filepath.Abs(outputPath)
	if err != nil {
		path = filepath.Clean(outputPath)
	}
	return fmt.Sprintf("%s:%s:%016x", prefix, filepath.Base(path), xxhash.Sum64String(path))
}

func (l *RetryLedger) String() string {
	return "redis:" + l.key
}

// Add appends id to the list.
func (l *RetryLedger) Add(ctx context.Context, id string) error {
	if err := l.client.rdb.RPush(ctx, l.key, id).Err(); err != nil {
		return fmt.Errorf("%w: rpush failed: %w", domain.ErrIO, err)
	}
	return nil
}

// Load returns the list in insertion order.
func (l *RetryLedger) Load(ctx context.Context) ([]string, error) {
	ids, err := l.client.rdb.LRange(ctx, l.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: lrange failed: %w", domain.ErrIO, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Remove drops every occurrence of id.
func (l *RetryLedger) Remove(ctx context.Context, id string) error {
	if err := l.client.rdb.LRem(ctx, l.key, 0, id).Err(); err != nil {
		return fmt.Errorf("%w: lrem failed: %w", domain.ErrIO, err)
	}
	return nil
}

// Clear deletes the list.
func (l *RetryLedger) Clear(ctx context.Context) error {
	if err := l.client.rdb.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("%w: del failed: %w", domain.ErrIO, err)
	}
	return nil
}
