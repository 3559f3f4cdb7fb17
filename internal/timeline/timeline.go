// Package timeline reconstructs the human-facing execution timeline for one
// workflow. Three fidelity tiers are tried in order: the enriched snapshot
// persisted on the execution record, a live reconstruction from raw run
// data, and a structure-only rendering of the workflow definition for
// workflows that never ran. Each tier is a strategy with a CanHandle
// predicate, so the fallback chain stays flat and each tier is testable on
// its own.
package timeline

import (
	"context"
	"encoding/json"

	"github.com/lancaster971/pilotproOS-sub000/internal/classifier"
	"github.com/lancaster971/pilotproOS-sub000/internal/extract"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/summarize"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

// Input carries the data available for one reconstruction. Workflow may be
// nil when only a snapshot exists; Record may be nil for never-run
// workflows.
type Input struct {
	TenantID   string
	WorkflowID string
	Workflow   *models.WorkflowDefinition
	Record     *models.ExecutionRecord
}

// Strategy is one fidelity tier.
type Strategy interface {
	Name() string
	CanHandle(in *Input) bool
	Build(ctx context.Context, in *Input) (*models.Timeline, error)
}

// Reconstructor orchestrates classification, tier fallback, data chaining
// and payload summarization.
type Reconstructor struct {
	strategies []Strategy
	extractor  *extract.Extractor
	log        *logger.Logger
}

// NewReconstructor creates a Reconstructor with the standard tier order.
func NewReconstructor(cls *classifier.Classifier, summarizer *summarize.Engine, extractor *extract.Extractor, log *logger.Logger) *Reconstructor {
	return &Reconstructor{
		strategies: []Strategy{
			&enrichedStrategy{},
			&liveStrategy{classifier: cls, summarizer: summarizer, log: log},
			&structureStrategy{classifier: cls},
		},
		extractor: extractor,
		log:       log,
	}
}

// Reconstruct tries each tier in order; the first strategy that can handle
// the input and builds a timeline wins. A tier failure is logged and the
// next tier is tried, so a malformed snapshot degrades instead of erroring.
func (r *Reconstructor) Reconstruct(ctx context.Context, in *Input) (*models.Timeline, error) {
	for _, strategy := range r.strategies {
		if !strategy.CanHandle(in) {
			continue
		}

		timeline, err := strategy.Build(ctx, in)
		if err != nil {
			r.log.Warnw("timeline tier failed, falling back",
				"tier", strategy.Name(), "workflow_id", in.WorkflowID, "error", err)
			continue
		}
		if timeline == nil {
			continue
		}

		timeline.WorkflowID = in.WorkflowID
		timeline.TenantID = in.TenantID
		timeline.Tier = strategy.Name()

		if timeline.BusinessContext == nil {
			timeline.BusinessContext = r.extractor.Extract(timeline.Steps)
		}
		return timeline, nil
	}

	return nil, models.ErrNoExecutionData
}

// chainSteps links each non-trigger step's input to the nearest preceding
// visible step's output. Triggers always have nil input.
func chainSteps(steps []models.TimelineStep) {
	var previousOutput models.JSONMap
	for i := range steps {
		if steps[i].IsTrigger {
			steps[i].InputPayload = nil
		} else {
			steps[i].InputPayload = previousOutput
		}
		if steps[i].OutputPayload != nil {
			previousOutput = steps[i].OutputPayload
		}
	}
}

// decodeCachedContext revives a persisted business context map.
func decodeCachedContext(cached models.JSONMap) *models.BusinessContext {
	if cached == nil {
		return nil
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return nil
	}
	var bc models.BusinessContext
	if err := json.Unmarshal(data, &bc); err != nil {
		return nil
	}
	return &bc
}
