// Package gate decides, per (tenant, workflow) key, whether stored execution
// data can be trusted or a fresh upstream fetch is needed. It combines a
// short-TTL response cache, a staleness evaluation over the stored record,
// and a per-key circuit breaker that suppresses fetches while the upstream
// engine is failing.
package gate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/store"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

// MetricsRecorder receives gate-level counters. Nil is allowed.
type MetricsRecorder interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	RecordBreakerOpen()
}

// Gate is the cache and circuit-breaker front of the timeline pipeline.
type Gate struct {
	breaker     *Breaker
	cache       store.Store
	responseTTL time.Duration
	staleness   time.Duration
	log         *logger.Logger
	metrics     MetricsRecorder
	now         func() time.Time
}

// New creates a Gate.
func New(breaker *Breaker, cache store.Store, responseTTL, staleness time.Duration, log *logger.Logger, metrics MetricsRecorder) *Gate {
	return &Gate{
		breaker:     breaker,
		cache:       cache,
		responseTTL: responseTTL,
		staleness:   staleness,
		log:         log,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Key builds the breaker/cache key for a tenant and workflow.
func Key(tenantID, workflowID string) string {
	return tenantID + ":" + workflowID
}

// Breaker exposes the underlying breaker for explicit resets.
func (g *Gate) Breaker() *Breaker {
	return g.breaker
}

// ShouldRefresh evaluates, first match wins:
//
//  1. breaker open for the key            -> false (serve existing data)
//  2. no record / no detailed data        -> true
//  3. latest execution older than window  -> true
//  4. workflow modified after enrichment  -> true
//  5. otherwise                           -> false
//
// Internal evaluation errors fail open toward freshness (true).
func (g *Gate) ShouldRefresh(ctx context.Context, tenantID, workflowID string, record *models.ExecutionRecord, workflowUpdatedAt time.Time) (refresh bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Errorw("gate evaluation panic, failing open", "workflow_id", workflowID, "error", r)
			refresh = true
		}
	}()

	key := Key(tenantID, workflowID)

	if g.breaker.IsOpen(ctx, key) {
		if g.metrics != nil {
			g.metrics.RecordBreakerOpen()
		}
		return false
	}

	if record == nil || !record.HasDetailedData {
		return true
	}

	if g.now().Sub(record.StartedAt) > g.staleness {
		return true
	}

	if record.EnrichedAt != nil && workflowUpdatedAt.After(*record.EnrichedAt) {
		return true
	}

	return false
}

// RecordFailure counts a failed fetch against the breaker and drops the
// cached response so a degraded upstream is not masked by a stale cache
// forever.
func (g *Gate) RecordFailure(ctx context.Context, tenantID, workflowID string) {
	key := Key(tenantID, workflowID)
	g.breaker.RecordFailure(ctx, key)
	g.InvalidateResponse(ctx, tenantID, workflowID)
}

// RecordSuccess resets the breaker for the key.
func (g *Gate) RecordSuccess(ctx context.Context, tenantID, workflowID string) {
	g.breaker.RecordSuccess(ctx, Key(tenantID, workflowID))
}

// CachedResponse returns the short-TTL cached timeline response, if any.
func (g *Gate) CachedResponse(ctx context.Context, tenantID, workflowID string) (*models.TimelineResponse, bool) {
	data, ok, err := g.cache.Get(ctx, responseKey(tenantID, workflowID))
	if err != nil || !ok {
		if g.metrics != nil {
			g.metrics.RecordCacheMiss("response")
		}
		return nil, false
	}

	var response models.TimelineResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, false
	}

	if g.metrics != nil {
		g.metrics.RecordCacheHit("response")
	}
	return &response, true
}

// StoreResponse caches a timeline response under the short TTL.
func (g *Gate) StoreResponse(ctx context.Context, tenantID, workflowID string, response *models.TimelineResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, responseKey(tenantID, workflowID), data, g.responseTTL); err != nil {
		g.log.Warnw("response cache write failed", "workflow_id", workflowID, "error", err)
	}
}

// InvalidateResponse drops the cached response for the key. Called on
// authenticated force-refresh, on execution-complete notifications, and on
// failed refresh attempts.
func (g *Gate) InvalidateResponse(ctx context.Context, tenantID, workflowID string) {
	if err := g.cache.Delete(ctx, responseKey(tenantID, workflowID)); err != nil {
		g.log.Warnw("response cache invalidation failed", "workflow_id", workflowID, "error", err)
	}
}

func responseKey(tenantID, workflowID string) string {
	return "timeline:" + tenantID + ":" + workflowID
}
