// Package summarize turns oversized step payloads into compact,
// content-aware summaries instead of dumping raw JSON. Payloads are routed
// by byte size and detected content kind through type-specific summarizers,
// with a statistical profile and a deterministic pattern fallback behind
// them. Summarization never fails past this package: any error degrades to a
// fixed fallback summary.
package summarize

import (
	"encoding/json"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// Strategy names.
const (
	StrategyDirect        = "direct"
	StrategyTabular       = "tabular"
	StrategyEmailBatch    = "email_batch"
	StrategyDocument      = "document"
	StrategyHTTPResponse  = "http_response"
	StrategyDBResult      = "db_result"
	StrategyStatistical   = "statistical"
	StrategyGeneric       = "generic"
	StrategyErrorFallback = "error_fallback"
)

// markerKey flags a payload as an already-computed summary, so re-running
// the engine over cached steps is an idempotent passthrough.
const markerKey = "_adaptive_summary"

// Summary is the structured output of one summarization pass.
type Summary struct {
	Strategy        string                 `json:"strategy"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Metrics         map[string]interface{} `json:"metrics,omitempty"`
	Preview         interface{}            `json:"preview,omitempty"`
	BusinessInsight string                 `json:"business_insight,omitempty"`
	Actions         []string               `json:"actions,omitempty"`
	SourceBytes     int                    `json:"source_bytes"`
	PreservedData   bool                   `json:"preserved_data,omitempty"`
	Error           string                 `json:"error,omitempty"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// Result is what the engine hands back to callers: the payload to display
// (the original one for the direct tier, a marker-tagged summary otherwise)
// plus the structured summary when one was computed.
type Result struct {
	Strategy string         `json:"strategy"`
	Payload  models.JSONMap `json:"payload,omitempty"`
	Summary  *Summary       `json:"summary,omitempty"`
}

// AsPayload renders the summary as a marker-tagged payload map.
func (s *Summary) AsPayload() models.JSONMap {
	data, err := json.Marshal(s)
	if err != nil {
		return models.JSONMap{markerKey: true, "strategy": s.Strategy}
	}
	var m models.JSONMap
	if err := json.Unmarshal(data, &m); err != nil {
		return models.JSONMap{markerKey: true, "strategy": s.Strategy}
	}
	m[markerKey] = true
	return m
}

// IsSummaryPayload reports whether a payload is an already-computed summary.
func IsSummaryPayload(payload models.JSONMap) bool {
	if payload == nil {
		return false
	}
	marked, ok := payload[markerKey].(bool)
	return ok && marked
}

// summaryFromPayload decodes a marker-tagged payload back into a Summary.
func summaryFromPayload(payload models.JSONMap) *Summary {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}
