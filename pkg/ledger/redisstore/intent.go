// Package redisstore implements pkg/ledger.IntentStore against Redis,
// grounded on the same SETNX-with-TTL deduplication idiom the pack's
// gateway uses for alert fingerprint deduplication (see
// test/integration/gateway/redis_deduplication_test.go: "Redis TTL
// prevents indefinite deduplication").
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetNXClient is the subset of *redis.Client this store needs, narrowed
// for testability the same way pkg/ingestion narrows go-redis down to
// StreamClient.
type SetNXClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// IntentStore deduplicates LedgerIntent IDs in Redis.
type IntentStore struct {
	Client SetNXClient
	Prefix string // defaults to "ledger:intent:"
}

const defaultPrefix = "ledger:intent:"

func (s *IntentStore) Claim(ctx context.Context, intentID string, ttl time.Duration) (bool, error) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ok, err := s.Client.SetNX(ctx, prefix+intentID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: claim intent: %w", err)
	}
	return ok, nil
}
