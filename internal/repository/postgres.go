package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lancaster971/pilotproOS-sub000/internal/config"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// PostgresRepository persists execution records in Postgres through gorm.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgres opens the database, applies pool settings and migrates the
// execution record schema.
func NewPostgres(cfg config.DatabaseConfig) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.ExecutionRecord{}); err != nil {
		return nil, err
	}

	return &PostgresRepository{db: db}, nil
}

// Save upserts a record by primary key.
func (r *PostgresRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// LatestByWorkflow returns the most recently started execution for the key,
// or nil when none exists.
func (r *PostgresRepository) LatestByWorkflow(ctx context.Context, tenantID, workflowID string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND workflow_id = ?", tenantID, workflowID).
		Order("started_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *PostgresRepository) CountByWorkflow(ctx context.Context, tenantID, workflowID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ExecutionRecord{}).
		Where("tenant_id = ? AND workflow_id = ?", tenantID, workflowID).
		Count(&count).Error
	return count, err
}

// SaveEnrichment writes the reconstruction snapshot onto the record.
func (r *PostgresRepository) SaveEnrichment(ctx context.Context, id string, enrichment *Enrichment) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.ExecutionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"cached_steps":            enrichment.Steps,
			"cached_business_context": enrichment.BusinessContext,
			"has_detailed_data":       true,
			"node_count":              enrichment.NodeCount,
			"success_count":           enrichment.SuccessCount,
			"failure_count":           enrichment.FailureCount,
			"enriched_at":             now,
		}).Error
}
