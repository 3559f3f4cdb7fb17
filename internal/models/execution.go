package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionStatus is the terminal state of one workflow run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
	ExecutionRunning ExecutionStatus = "running"
)

// Step statuses beyond the execution statuses above.
const (
	StepNotExecuted   = "not-executed"
	StepStructureOnly = "structure-only"
)

// Timeline tiers, in fidelity order.
const (
	TierEnriched      = "enriched"
	TierLive          = "live"
	TierStructureOnly = "structure-only"
)

// ExecutionRecord is one ingested workflow run. RawPayload holds the engine's
// per-node run data tree keyed by node name. CachedSteps and
// CachedBusinessContext are the persisted enrichment snapshot; they are
// idempotently overwritable by re-running reconstruction.
type ExecutionRecord struct {
	ID                    string          `json:"id" gorm:"primaryKey"`
	WorkflowID            string          `json:"workflow_id" gorm:"index:idx_exec_tenant_workflow"`
	TenantID              string          `json:"tenant_id" gorm:"index:idx_exec_tenant_workflow"`
	Status                ExecutionStatus `json:"status" gorm:"index"`
	StartedAt             time.Time       `json:"started_at" gorm:"index"`
	StoppedAt             *time.Time      `json:"stopped_at,omitempty"`
	RawPayload            JSONMap         `json:"raw_payload,omitempty" gorm:"type:jsonb"`
	CachedSteps           TimelineSteps   `json:"cached_steps,omitempty" gorm:"type:jsonb"`
	CachedBusinessContext JSONMap         `json:"cached_business_context,omitempty" gorm:"type:jsonb"`
	HasDetailedData       bool            `json:"has_detailed_data"`
	NodeCount             int             `json:"node_count"`
	SuccessCount          int             `json:"success_count"`
	FailureCount          int             `json:"failure_count"`
	EnrichedAt            *time.Time      `json:"enriched_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TimelineStep is one visible (or classified) step of a reconstructed
// timeline. Derived data: recomputed on each reconstruction, persisted only
// as ExecutionRecord.CachedSteps.
type TimelineStep struct {
	NodeID          string  `json:"node_id"`
	NodeName        string  `json:"node_name"`
	NodeType        string  `json:"node_type"`
	IsVisible       bool    `json:"is_visible"`
	IsTrigger       bool    `json:"is_trigger"`
	CustomOrder     *int    `json:"custom_order,omitempty"`
	Status          string  `json:"status"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	InputPayload    JSONMap `json:"input_payload,omitempty"`
	OutputPayload   JSONMap `json:"output_payload,omitempty"`
	Error           *string `json:"error,omitempty"`
	Summary         string  `json:"summary,omitempty"`
}

// TimelineSteps stores a step list as a single JSONB column.
type TimelineSteps []TimelineStep

func (s TimelineSteps) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *TimelineSteps) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into TimelineSteps", value)
	}
	return json.Unmarshal(bytes, s)
}

// BusinessContext is the open map of facts extracted from step payloads.
// Singular fields keep the first non-empty value found; list fields are
// deduplicated unions.
type BusinessContext struct {
	SenderEmail      string    `json:"sender_email,omitempty"`
	OrderID          string    `json:"order_id,omitempty"`
	Subject          string    `json:"subject,omitempty"`
	Classification   string    `json:"classification,omitempty"`
	Confidence       float64   `json:"confidence,omitempty"`
	AIResponse       string    `json:"ai_response,omitempty"`
	ExtractedEmails  []string  `json:"extracted_emails,omitempty"`
	ExtractedIDs     []string  `json:"extracted_ids,omitempty"`
	ProcessedAmounts []float64 `json:"processed_amounts,omitempty"`
}

// AsJSONMap converts the context for JSONB persistence.
func (bc *BusinessContext) AsJSONMap() JSONMap {
	if bc == nil {
		return nil
	}
	data, err := json.Marshal(bc)
	if err != nil {
		return nil
	}
	var m JSONMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Timeline is the assembled result of one reconstruction.
type Timeline struct {
	WorkflowID      string           `json:"workflow_id"`
	TenantID        string           `json:"tenant_id"`
	Tier            string           `json:"tier"`
	Steps           []TimelineStep   `json:"timeline"`
	BusinessContext *BusinessContext `json:"business_context,omitempty"`
}

// TimelineResponse is the externally returned shape.
type TimelineResponse struct {
	Timeline        []TimelineStep   `json:"timeline"`
	BusinessContext *BusinessContext `json:"business_context,omitempty"`
	Tier            string           `json:"tier"`
	LastExecution   *ExecutionInfo   `json:"last_execution,omitempty"`
	TotalExecutions int64            `json:"total_executions"`
	CachedAt        time.Time        `json:"cached_at"`
}

// ExecutionInfo is the metadata slice of an execution exposed on responses.
type ExecutionInfo struct {
	ID        string          `json:"id"`
	Status    ExecutionStatus `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	StoppedAt *time.Time      `json:"stopped_at,omitempty"`
}

// Info returns the response metadata for a record.
func (r *ExecutionRecord) Info() *ExecutionInfo {
	if r == nil {
		return nil
	}
	return &ExecutionInfo{
		ID:        r.ID,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		StoppedAt: r.StoppedAt,
	}
}
