package repository

import (
	"context"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// ExecutionRepository is the narrow persistence interface for execution
// records. Enrichment writes are idempotent: re-running reconstruction
// overwrites the same columns with the same values.
type ExecutionRepository interface {
	Save(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	LatestByWorkflow(ctx context.Context, tenantID, workflowID string) (*models.ExecutionRecord, error)
	CountByWorkflow(ctx context.Context, tenantID, workflowID string) (int64, error)
	SaveEnrichment(ctx context.Context, id string, enrichment *Enrichment) error
}

// Enrichment is the snapshot written back after a successful reconstruction.
type Enrichment struct {
	Steps           models.TimelineSteps
	BusinessContext models.JSONMap
	NodeCount       int
	SuccessCount    int
	FailureCount    int
}
