// Package store provides a TTL-aware key/value store abstraction shared by
// the response cache, the summary cache and the circuit breaker state, so
// business logic never touches a concrete backend. The in-memory
// implementation backs tests and single-process deployments; the Redis
// implementation backs shared deployments.
package store

import (
	"context"
	"time"
)

// Store is a TTL-aware key/value store. Entries past their TTL are treated
// as absent; eviction is opportunistic, not eager.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
