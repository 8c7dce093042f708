// Package redis keeps the chosen-mint history in a Redis list so several
// selector processes share one exclusion window.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/storage"
)

// DefaultKeyPrefix namespaces the keys written by this package.
const DefaultKeyPrefix = "selector"

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// UsedMintStore implements storage.UsedMintStore on a Redis list.
// RPUSH appends, LRANGE reads the tail.
type UsedMintStore struct {
	client redis.Cmdable
	key    string
	maxLen int64
}

// Option configures UsedMintStore.
type Option func(*UsedMintStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *UsedMintStore) {
		if prefix != "" {
			s.key = prefix + ":used_mints"
		}
	}
}

// WithMaxLen trims the list to the newest n entries after each write.
// Only set it when every reader uses a window of at most n.
func WithMaxLen(n int64) Option {
	return func(s *UsedMintStore) {
		s.maxLen = n
	}
}

// NewUsedMintStore creates a store on the given client.
func NewUsedMintStore(client redis.Cmdable, opts ...Option) *UsedMintStore {
	s := &UsedMintStore{
		client: client,
		key:    DefaultKeyPrefix + ":used_mints",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface check.
var _ storage.UsedMintStore = (*UsedMintStore)(nil)

// Key returns the list key.
func (s *UsedMintStore) Key() string {
	return s.key
}

// MaxLen returns the trim length, 0 when the list is unbounded.
func (s *UsedMintStore) MaxLen() int64 {
	return s.maxLen
}

// Excluded returns every recorded mint when window <= 0, otherwise the mints of the last window recordings.
func (s *UsedMintStore) Excluded(ctx context.Context, window int) (map[string]struct{}, error) {
	start := time.Now()

	first := int64(0)
	if window > 0 {
		first = -int64(window)
	}

	mints, err := s.client.LRange(ctx, s.key, first, -1).Result()
	observability.RecordDBQuery("redis", "excluded", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", s.key, err)
	}

	out := make(map[string]struct{}, len(mints))
	for _, m := range mints {
		out[m] = struct{}{}
	}
	return out, nil
}

// Record appends a chosen mint to the history.
func (s *UsedMintStore) Record(ctx context.Context, mint string) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}
	start := time.Now()

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, s.key, mint)
		if s.maxLen > 0 {
			p.LTrim(ctx, s.key, -s.maxLen, -1)
		}
		return nil
	})
	observability.RecordDBQuery("redis", "record", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("rpush %s: %w", s.key, err)
	}
	return nil
}
