// Package services orchestrates the transparency pipeline: the gate decides
// whether stored data is trustworthy, the engine client fetches fresh
// executions, the reconstructor assembles the timeline, and the results are
// persisted and cached for the next request.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/config"
	"github.com/lancaster971/pilotproOS-sub000/internal/engine"
	"github.com/lancaster971/pilotproOS-sub000/internal/gate"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/repository"
	"github.com/lancaster971/pilotproOS-sub000/internal/timeline"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
	"github.com/lancaster971/pilotproOS-sub000/pkg/metrics"
)

// RefreshResult is the outcome of an explicit workflow refresh.
type RefreshResult struct {
	ImportedExecutions int  `json:"imported_executions"`
	HasFreshData       bool `json:"has_fresh_data"`
}

// TransparencyService is the application core behind the HTTP handlers.
type TransparencyService struct {
	cfg           *config.Config
	log           *logger.Logger
	repo          repository.ExecutionRepository
	client        engine.Client
	gate          *gate.Gate
	reconstructor *timeline.Reconstructor
	metrics       *metrics.Manager
	refresher     *Refresher
}

// NewTransparencyService wires the service. metrics may be nil.
func NewTransparencyService(
	cfg *config.Config,
	log *logger.Logger,
	repo repository.ExecutionRepository,
	client engine.Client,
	g *gate.Gate,
	reconstructor *timeline.Reconstructor,
	m *metrics.Manager,
) *TransparencyService {
	s := &TransparencyService{
		cfg:           cfg,
		log:           log,
		repo:          repo,
		client:        client,
		gate:          g,
		reconstructor: reconstructor,
		metrics:       m,
	}
	s.refresher = NewRefresher(cfg.Timeline, log, s.processRefreshJob)
	return s
}

// Refresher exposes the background worker for lifecycle management.
func (s *TransparencyService) Refresher() *Refresher {
	return s.refresher
}

// GetTimeline returns the best-available timeline for the key. The response
// cache is consulted first; a refresh is attempted only when the gate says
// the stored data cannot be trusted and the breaker allows it. Upstream
// failures degrade to the last cached data, never to an error, unless there
// has never been a successful fetch at all.
func (s *TransparencyService) GetTimeline(ctx context.Context, tenantID, workflowID string, forceRefresh bool) (*models.TimelineResponse, error) {
	if forceRefresh {
		s.gate.InvalidateResponse(ctx, tenantID, workflowID)
	} else if cached, ok := s.gate.CachedResponse(ctx, tenantID, workflowID); ok {
		s.recordRequest("cached")
		return cached, nil
	}

	record, err := s.repo.LatestByWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		s.log.Errorw("failed to load latest execution", "workflow_id", workflowID, "error", err)
	}

	workflow := s.fetchWorkflow(ctx, tenantID, workflowID)

	var workflowUpdatedAt time.Time
	if workflow != nil {
		workflowUpdatedAt = workflow.UpdatedAt
	}

	if workflow != nil && s.gate.ShouldRefresh(ctx, tenantID, workflowID, record, workflowUpdatedAt) {
		if fresh, err := s.fetchLatestExecution(ctx, tenantID, workflowID); err != nil {
			s.gate.RecordFailure(ctx, tenantID, workflowID)
			s.log.Warnw("refresh failed, serving existing data", "workflow_id", workflowID, "error", err)
		} else {
			s.gate.RecordSuccess(ctx, tenantID, workflowID)
			if fresh != nil {
				record = fresh
			}
		}
	}

	if record == nil && workflow == nil {
		s.recordRequest("error")
		return nil, models.ErrWorkflowNotFound
	}

	started := time.Now()
	tl, err := s.reconstructor.Reconstruct(ctx, &timeline.Input{
		TenantID:   tenantID,
		WorkflowID: workflowID,
		Workflow:   workflow,
		Record:     record,
	})
	if err != nil {
		s.recordRequest("error")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveReconstruct(time.Since(started).Seconds())
		s.metrics.RecordTier(tl.Tier)
	}

	// Persist the enrichment so the next request hits tier 1. Failure here
	// is non-fatal: the caller still gets the timeline.
	if tl.Tier == models.TierLive && record != nil {
		s.persistEnrichment(ctx, record.ID, tl)
	}

	total, err := s.repo.CountByWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		s.log.Warnw("failed to count executions", "workflow_id", workflowID, "error", err)
	}

	response := &models.TimelineResponse{
		Timeline:        tl.Steps,
		BusinessContext: tl.BusinessContext,
		Tier:            tl.Tier,
		LastExecution:   record.Info(),
		TotalExecutions: total,
		CachedAt:        time.Now().UTC(),
	}

	s.gate.StoreResponse(ctx, tenantID, workflowID, response)
	s.recordRequest("ok")
	return response, nil
}

// RefreshWorkflow resets the breaker for the key and imports recent
// executions from the engine.
func (s *TransparencyService) RefreshWorkflow(ctx context.Context, tenantID, workflowID string) (*RefreshResult, error) {
	s.gate.Breaker().Reset(ctx, gate.Key(tenantID, workflowID))
	s.gate.InvalidateResponse(ctx, tenantID, workflowID)

	executions, err := s.client.ListExecutions(ctx, workflowID, s.cfg.Engine.ImportLimit, "")
	if err != nil {
		s.gate.RecordFailure(ctx, tenantID, workflowID)
		s.recordUpstreamFailure("ListExecutions")
		return nil, err
	}

	imported := 0
	for _, exec := range executions {
		record := executionToRecord(&exec, tenantID, workflowID)
		if err := s.repo.Save(ctx, record); err != nil {
			s.log.Warnw("failed to persist imported execution", "execution_id", exec.ID, "error", err)
			continue
		}
		imported++
	}

	hasFreshData := false
	if len(executions) > 0 {
		if _, err := s.fetchLatestExecution(ctx, tenantID, workflowID); err != nil {
			s.gate.RecordFailure(ctx, tenantID, workflowID)
			s.recordUpstreamFailure("GetExecution")
		} else {
			hasFreshData = true
		}
	}

	if hasFreshData || imported > 0 {
		s.gate.RecordSuccess(ctx, tenantID, workflowID)
	}

	return &RefreshResult{ImportedExecutions: imported, HasFreshData: hasFreshData}, nil
}

// NotifyExecutionComplete invalidates the response cache for the key and
// schedules a background refresh. The triggering request returns
// immediately.
func (s *TransparencyService) NotifyExecutionComplete(ctx context.Context, executionID, workflowID, tenantID string) error {
	existing, err := s.repo.GetByID(ctx, executionID)
	if err == nil && existing != nil && existing.TenantID != tenantID {
		return models.ErrAuthorizationDenied
	}

	s.gate.InvalidateResponse(ctx, tenantID, workflowID)

	return s.refresher.Enqueue(refreshJob{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		TenantID:    tenantID,
	})
}

// ResetBreaker clears one key or, when workflowID is empty, every tracked
// key. Returns the cleared keys.
func (s *TransparencyService) ResetBreaker(ctx context.Context, tenantID, workflowID string) []string {
	if workflowID == "" {
		return s.gate.Breaker().ResetAll(ctx)
	}
	key := gate.Key(tenantID, workflowID)
	s.gate.Breaker().Reset(ctx, key)
	return []string{key}
}

// fetchWorkflow loads the definition unless the breaker is open. A fetch
// failure counts against the breaker and yields nil; callers fall back to
// record-only reconstruction.
func (s *TransparencyService) fetchWorkflow(ctx context.Context, tenantID, workflowID string) *models.WorkflowDefinition {
	if s.gate.Breaker().IsOpen(ctx, gate.Key(tenantID, workflowID)) {
		return nil
	}

	workflow, err := s.client.GetWorkflow(ctx, workflowID)
	if err != nil {
		if !errors.Is(err, models.ErrWorkflowNotFound) {
			s.gate.RecordFailure(ctx, tenantID, workflowID)
			s.recordUpstreamFailure("GetWorkflow")
		}
		s.log.Warnw("workflow definition unavailable", "workflow_id", workflowID, "error", err)
		return nil
	}
	return workflow
}

// fetchLatestExecution pulls the newest execution with full run data and
// persists it.
func (s *TransparencyService) fetchLatestExecution(ctx context.Context, tenantID, workflowID string) (*models.ExecutionRecord, error) {
	executions, err := s.client.ListExecutions(ctx, workflowID, 1, "")
	if err != nil {
		s.recordUpstreamFailure("ListExecutions")
		return nil, err
	}
	if len(executions) == 0 {
		return nil, nil
	}

	full, err := s.client.GetExecution(ctx, executions[0].ID, true)
	if err != nil {
		s.recordUpstreamFailure("GetExecution")
		return nil, err
	}

	record := executionToRecord(full, tenantID, workflowID)
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// processRefreshJob is the background half of a completion notification:
// fetch the finished execution, persist it, rebuild and store the
// enrichment.
func (s *TransparencyService) processRefreshJob(ctx context.Context, job refreshJob) error {
	full, err := s.client.GetExecution(ctx, job.ExecutionID, true)
	if err != nil {
		s.gate.RecordFailure(ctx, job.TenantID, job.WorkflowID)
		s.recordUpstreamFailure("GetExecution")
		return err
	}
	s.gate.RecordSuccess(ctx, job.TenantID, job.WorkflowID)

	record := executionToRecord(full, job.TenantID, job.WorkflowID)
	if err := s.repo.Save(ctx, record); err != nil {
		return err
	}

	workflow := s.fetchWorkflow(ctx, job.TenantID, job.WorkflowID)
	tl, err := s.reconstructor.Reconstruct(ctx, &timeline.Input{
		TenantID:   job.TenantID,
		WorkflowID: job.WorkflowID,
		Workflow:   workflow,
		Record:     record,
	})
	if err != nil {
		return err
	}

	if tl.Tier == models.TierLive {
		s.persistEnrichment(ctx, record.ID, tl)
	}
	return nil
}

func (s *TransparencyService) persistEnrichment(ctx context.Context, recordID string, tl *models.Timeline) {
	success, failure := 0, 0
	for _, step := range tl.Steps {
		switch step.Status {
		case string(models.ExecutionSuccess):
			success++
		case string(models.ExecutionError):
			failure++
		}
	}

	enrichment := &repository.Enrichment{
		Steps:           tl.Steps,
		BusinessContext: tl.BusinessContext.AsJSONMap(),
		NodeCount:       len(tl.Steps),
		SuccessCount:    success,
		FailureCount:    failure,
	}
	if err := s.repo.SaveEnrichment(ctx, recordID, enrichment); err != nil {
		s.log.Warnw("failed to persist enrichment", "execution_id", recordID, "error", err)
	}
}

func (s *TransparencyService) recordRequest(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTimelineRequest(outcome)
	}
}

func (s *TransparencyService) recordUpstreamFailure(op string) {
	if s.metrics != nil {
		s.metrics.RecordUpstreamFailure(op)
	}
}

func executionToRecord(exec *engine.Execution, tenantID, workflowID string) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:         exec.ID,
		WorkflowID: workflowID,
		TenantID:   tenantID,
		Status:     exec.Status,
		StartedAt:  exec.StartedAt,
		StoppedAt:  exec.StoppedAt,
		RawPayload: exec.RunData,
	}
}
