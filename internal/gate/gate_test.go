package gate

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/store"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewWithWriter("debug", "json", io.Discard)
	require.NoError(t, err)
	return log
}

func quietLogrus() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestBreaker(threshold int, cooldown time.Duration) *Breaker {
	return NewBreaker(threshold, cooldown, store.NewMemory(0), quietLogrus())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(3, 10*time.Minute)

	b.RecordFailure(ctx, "t1:wf1")
	b.RecordFailure(ctx, "t1:wf1")
	assert.False(t, b.IsOpen(ctx, "t1:wf1"))

	b.RecordFailure(ctx, "t1:wf1")
	assert.True(t, b.IsOpen(ctx, "t1:wf1"))
}

func TestBreakerKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(3, 10*time.Minute)

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "t1:wf1")
	}

	assert.True(t, b.IsOpen(ctx, "t1:wf1"))
	assert.False(t, b.IsOpen(ctx, "t1:wf2"))
	assert.False(t, b.IsOpen(ctx, "t2:wf1"))
}

func TestBreakerCooldownElapseResets(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(3, 10*time.Minute)

	now := time.Now()
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "t1:wf1")
	}
	assert.True(t, b.IsOpen(ctx, "t1:wf1"))

	b.now = func() time.Time { return now.Add(11 * time.Minute) }
	assert.False(t, b.IsOpen(ctx, "t1:wf1"))

	// The reset zeroed the count: one new failure must not reopen the key.
	b.RecordFailure(ctx, "t1:wf1")
	assert.False(t, b.IsOpen(ctx, "t1:wf1"))
}

func TestBreakerSuccessResets(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(3, 10*time.Minute)

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "t1:wf1")
	}
	b.RecordSuccess(ctx, "t1:wf1")
	assert.False(t, b.IsOpen(ctx, "t1:wf1"))
}

func TestBreakerResetAll(t *testing.T) {
	ctx := context.Background()
	b := newTestBreaker(1, 10*time.Minute)

	b.RecordFailure(ctx, "t1:wf1")
	b.RecordFailure(ctx, "t1:wf2")

	cleared := b.ResetAll(ctx)
	assert.ElementsMatch(t, []string{"t1:wf1", "t1:wf2"}, cleared)
	assert.False(t, b.IsOpen(ctx, "t1:wf1"))
	assert.False(t, b.IsOpen(ctx, "t1:wf2"))
}

func newTestGate(t *testing.T, breaker *Breaker, staleness time.Duration) *Gate {
	t.Helper()
	return New(breaker, store.NewMemory(0), 30*time.Second, staleness, testLogger(t), nil)
}

func freshRecord(startedAt time.Time) *models.ExecutionRecord {
	enriched := startedAt.Add(time.Second)
	return &models.ExecutionRecord{
		ID:              "exec-1",
		HasDetailedData: true,
		StartedAt:       startedAt,
		EnrichedAt:      &enriched,
	}
}

func TestShouldRefreshNoRecord(t *testing.T) {
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)

	assert.True(t, g.ShouldRefresh(context.Background(), "t1", "wf1", nil, time.Time{}))
}

func TestShouldRefreshNoDetailedData(t *testing.T) {
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)

	record := &models.ExecutionRecord{ID: "exec-1", StartedAt: time.Now()}
	assert.True(t, g.ShouldRefresh(context.Background(), "t1", "wf1", record, time.Time{}))
}

func TestShouldRefreshStaleRecord(t *testing.T) {
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)

	record := freshRecord(time.Now().Add(-time.Hour))
	assert.True(t, g.ShouldRefresh(context.Background(), "t1", "wf1", record, time.Time{}))
}

func TestShouldRefreshWorkflowModifiedAfterEnrichment(t *testing.T) {
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)

	record := freshRecord(time.Now().Add(-time.Minute))
	updatedAt := time.Now()
	assert.True(t, g.ShouldRefresh(context.Background(), "t1", "wf1", record, updatedAt))
}

func TestShouldRefreshFreshRecord(t *testing.T) {
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)

	record := freshRecord(time.Now().Add(-time.Minute))
	assert.False(t, g.ShouldRefresh(context.Background(), "t1", "wf1", record, time.Time{}))
}

func TestShouldRefreshOpenBreakerWinsOverStaleness(t *testing.T) {
	ctx := context.Background()
	breaker := newTestBreaker(3, 10*time.Minute)
	g := newTestGate(t, breaker, 30*time.Minute)

	for i := 0; i < 3; i++ {
		breaker.RecordFailure(ctx, Key("t1", "wf1"))
	}

	// Stale record and no record at all both defer to the open breaker.
	assert.False(t, g.ShouldRefresh(ctx, "t1", "wf1", freshRecord(time.Now().Add(-2*time.Hour)), time.Time{}))
	assert.False(t, g.ShouldRefresh(ctx, "t1", "wf1", nil, time.Time{}))
}

func TestShouldRefreshFailsOpenOnPanic(t *testing.T) {
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)
	g.now = func() time.Time { panic("clock failure") }

	record := freshRecord(time.Now())
	assert.True(t, g.ShouldRefresh(context.Background(), "t1", "wf1", record, time.Time{}))
}

func TestResponseCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)

	response := &models.TimelineResponse{Tier: models.TierLive, TotalExecutions: 7}
	g.StoreResponse(ctx, "t1", "wf1", response)

	cached, ok := g.CachedResponse(ctx, "t1", "wf1")
	require.True(t, ok)
	assert.Equal(t, models.TierLive, cached.Tier)
	assert.Equal(t, int64(7), cached.TotalExecutions)

	// Other keys stay cold.
	_, ok = g.CachedResponse(ctx, "t1", "wf2")
	assert.False(t, ok)
}

func TestRecordFailureInvalidatesResponse(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, newTestBreaker(3, 10*time.Minute), 30*time.Minute)

	g.StoreResponse(ctx, "t1", "wf1", &models.TimelineResponse{Tier: models.TierLive})
	g.RecordFailure(ctx, "t1", "wf1")

	_, ok := g.CachedResponse(ctx, "t1", "wf1")
	assert.False(t, ok)
}
