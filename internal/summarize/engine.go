package summarize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/config"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/store"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

// hashPrefixBytes bounds how much of the serialized payload feeds the cache
// key. Two payloads sharing a 256-byte prefix, node type and node name are
// assumed equal for caching purposes.
const hashPrefixBytes = 256

// MetricsRecorder receives per-strategy counters. Nil is allowed.
type MetricsRecorder interface {
	RecordSummary(strategy string)
}

// Engine routes a payload by size and content kind to a summarizer.
type Engine struct {
	cfg     config.SummarizeConfig
	ttl     time.Duration
	cache   store.Store
	log     *logger.Logger
	metrics MetricsRecorder
}

// NewEngine creates a summarization engine. cache may be nil to disable
// caching; metrics may be nil.
func NewEngine(cfg config.SummarizeConfig, ttl time.Duration, cache store.Store, log *logger.Logger, metrics MetricsRecorder) *Engine {
	return &Engine{cfg: cfg, ttl: ttl, cache: cache, log: log, metrics: metrics}
}

// Summarize classifies the payload and dispatches it:
//
//	size < direct threshold            -> payload verbatim
//	size < pattern threshold + a kind  -> type-specific summarizer
//	size < statistical threshold       -> numeric profile
//	otherwise                          -> pattern summarizer on the same payload
//
// An already-summarized payload passes through unchanged. Errors never
// escape: any panic degrades to the fixed error-fallback summary.
func (e *Engine) Summarize(ctx context.Context, payload models.JSONMap, nodeType, nodeName string) (result *Result) {
	if payload == nil {
		return &Result{Strategy: StrategyDirect, Payload: nil}
	}

	// Idempotent passthrough for cached, already-summarized steps.
	if IsSummaryPayload(payload) {
		return &Result{Strategy: StrategyDirect, Payload: payload, Summary: summaryFromPayload(payload)}
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("summarization panic recovered", "node", nodeName, "error", fmt.Sprint(r))
			summary := e.errorFallback(fmt.Sprint(r))
			result = &Result{Strategy: StrategyErrorFallback, Payload: summary.AsPayload(), Summary: summary}
		}
		if result != nil && e.metrics != nil {
			e.metrics.RecordSummary(result.Strategy)
		}
	}()

	serialized, err := json.Marshal(payload)
	if err != nil {
		summary := e.errorFallback(err.Error())
		return &Result{Strategy: StrategyErrorFallback, Payload: summary.AsPayload(), Summary: summary}
	}
	size := len(serialized)

	if size < e.cfg.DirectBytes {
		return &Result{Strategy: StrategyDirect, Payload: payload}
	}

	cacheKey := e.cacheKey(serialized, nodeType, nodeName)
	if cached := e.cacheGet(ctx, cacheKey); cached != nil {
		return &Result{Strategy: cached.Strategy, Payload: cached.AsPayload(), Summary: cached}
	}

	summary := e.compute(payload, nodeType, nodeName, size)
	e.cachePut(ctx, cacheKey, summary)

	return &Result{Strategy: summary.Strategy, Payload: summary.AsPayload(), Summary: summary}
}

func (e *Engine) compute(payload models.JSONMap, nodeType, nodeName string, size int) *Summary {
	kind := detectKind(payload, nodeType, nodeName)

	if size < e.cfg.PatternBytes && kind != KindUnknown {
		return e.summarizeKind(kind, payload, size)
	}

	if size < e.cfg.StatisticalBytes {
		if values := numericLeaves(map[string]interface{}(payload)); len(values) > 0 {
			return e.summarizeStatistical(payload, size)
		}
	}

	// Too large (or numerically empty) for a structural strategy: degrade
	// deterministically to the pattern path on the same payload.
	if kind == KindUnknown {
		return e.summarizeGeneric(payload, size)
	}
	return e.summarizeKind(kind, payload, size)
}

func (e *Engine) summarizeKind(kind Kind, payload models.JSONMap, size int) *Summary {
	switch kind {
	case KindTabular:
		if rows := extractRows(payload); rows != nil {
			return e.summarizeTabular(rows, size)
		}
	case KindDBResult:
		if rows := extractRows(payload); rows != nil {
			return e.summarizeDBResult(rows, size)
		}
	case KindEmailBatch:
		if rows := extractRows(payload); rows != nil {
			return e.summarizeEmailBatch(rows, size)
		}
	case KindDocument:
		return e.summarizeDocument(payload, size)
	case KindHTTPResponse:
		return e.summarizeHTTPResponse(payload, size)
	}
	return e.summarizeGeneric(payload, size)
}

// summarizeGeneric is the deterministic last-resort profile: top-level shape
// only, no content interpretation.
func (e *Engine) summarizeGeneric(payload models.JSONMap, size int) *Summary {
	typeHistogram := make(map[string]int)
	keys := make([]string, 0, len(payload))
	for key, value := range payload {
		keys = append(keys, key)
		typeHistogram[jsonTypeName(value)]++
	}
	if len(keys) > maxEntities {
		keys = keys[:maxEntities]
	}

	return &Summary{
		Strategy:    StrategyGeneric,
		Title:       fmt.Sprintf("Data object (%d bytes)", size),
		Description: fmt.Sprintf("Structured payload with %d top-level field(s).", len(payload)),
		Metrics: map[string]interface{}{
			"fields":     len(payload),
			"types":      typeHistogram,
			"bytes":      size,
			"field_keys": keys,
		},
		Preview:         keys,
		BusinessInsight: "Payload too large to display; field structure shown instead.",
		Actions:         []string{"view_raw"},
		SourceBytes:     size,
		GeneratedAt:     time.Now().UTC(),
	}
}

// errorFallback is the fixed summary returned when summarization itself
// fails. The original payload is retained upstream, hence PreservedData.
func (e *Engine) errorFallback(message string) *Summary {
	return &Summary{
		Strategy:      StrategyErrorFallback,
		Title:         "Summary unavailable",
		Description:   "The payload could not be summarized.",
		Error:         message,
		PreservedData: true,
		Actions:       []string{"view_raw", "retry_processing"},
		GeneratedAt:   time.Now().UTC(),
	}
}

func (e *Engine) cacheKey(serialized []byte, nodeType, nodeName string) string {
	prefix := serialized
	if len(prefix) > hashPrefixBytes {
		prefix = prefix[:hashPrefixBytes]
	}
	h := sha256.New()
	h.Write(prefix)
	h.Write([]byte(nodeType))
	h.Write([]byte(nodeName))
	return "summary:" + hex.EncodeToString(h.Sum(nil)[:16])
}

func (e *Engine) cacheGet(ctx context.Context, key string) *Summary {
	if e.cache == nil {
		return nil
	}
	data, ok, err := e.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}

func (e *Engine) cachePut(ctx context.Context, key string, summary *Summary) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, e.ttl); err != nil {
		e.log.Warnw("summary cache write failed", "error", err)
	}
}

func jsonTypeName(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}
