package gate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lancaster971/pilotproOS-sub000/internal/store"
)

// BreakerState is the per-(tenant,workflow) failure record. A key is open
// while FailureCount has reached the threshold and the cooldown since the
// last failure has not elapsed.
type BreakerState struct {
	FailureCount  int        `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
}

// Breaker tracks consecutive upstream failures per key and suppresses
// refresh attempts during a cooldown window. State lives in the injected
// Store so it can be shared between instances; a single mutex serializes
// read-modify-write cycles to avoid lost failure counts.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	store     store.Store
	log       *logrus.Logger

	mu   sync.Mutex
	keys map[string]bool
	now  func() time.Time
}

// NewBreaker creates a Breaker. threshold is the consecutive failure count
// that opens a key; cooldown is how long it stays open.
func NewBreaker(threshold int, cooldown time.Duration, st store.Store, log *logrus.Logger) *Breaker {
	if log == nil {
		log = logrus.New()
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		store:     st,
		log:       log,
		keys:      make(map[string]bool),
		now:       time.Now,
	}
}

// IsOpen reports whether the key is currently open. An open key whose
// cooldown has elapsed is reset as a side effect and reported closed.
func (b *Breaker) IsOpen(ctx context.Context, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.load(ctx, key)
	if state.FailureCount < b.threshold || state.LastFailureAt == nil {
		return false
	}

	if b.now().Sub(*state.LastFailureAt) >= b.cooldown {
		b.resetLocked(ctx, key)
		b.log.WithFields(logrus.Fields{
			"breaker_key": key,
			"failures":    state.FailureCount,
		}).Info("Circuit breaker cooldown elapsed, resetting")
		return false
	}

	b.log.WithFields(logrus.Fields{
		"breaker_key": key,
		"failures":    state.FailureCount,
	}).Debug("Circuit breaker open, refresh suppressed")
	return true
}

// RecordFailure increments the failure count and stamps the failure time.
func (b *Breaker) RecordFailure(ctx context.Context, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.load(ctx, key)
	state.FailureCount++
	now := b.now()
	state.LastFailureAt = &now
	b.save(ctx, key, state)

	if state.FailureCount == b.threshold {
		b.log.WithFields(logrus.Fields{
			"breaker_key": key,
			"failures":    state.FailureCount,
		}).Warn("Circuit breaker opened")
	}
}

// RecordSuccess zeroes the key after a successful fetch.
func (b *Breaker) RecordSuccess(ctx context.Context, key string) {
	b.Reset(ctx, key)
}

// Reset explicitly zeroes one key.
func (b *Breaker) Reset(ctx context.Context, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked(ctx, key)
}

// ResetAll zeroes every tracked key and returns the keys that were cleared.
func (b *Breaker) ResetAll(ctx context.Context) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cleared := make([]string, 0, len(b.keys))
	for key := range b.keys {
		b.resetLocked(ctx, key)
		cleared = append(cleared, key)
	}
	return cleared
}

func (b *Breaker) resetLocked(ctx context.Context, key string) {
	if err := b.store.Delete(ctx, "breaker:"+key); err != nil {
		b.log.WithField("breaker_key", key).WithError(err).Warn("Failed to delete breaker state")
	}
	delete(b.keys, key)
}

func (b *Breaker) load(ctx context.Context, key string) *BreakerState {
	data, ok, err := b.store.Get(ctx, "breaker:"+key)
	if err != nil || !ok {
		return &BreakerState{}
	}
	var state BreakerState
	if err := json.Unmarshal(data, &state); err != nil {
		return &BreakerState{}
	}
	return &state
}

func (b *Breaker) save(ctx context.Context, key string, state *BreakerState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	// Twice the cooldown so stale entries age out of the store on their own.
	if err := b.store.Set(ctx, "breaker:"+key, data, 2*b.cooldown); err != nil {
		b.log.WithField("breaker_key", key).WithError(err).Warn("Failed to persist breaker state")
		return
	}
	b.keys[key] = true
}
