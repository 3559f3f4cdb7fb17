package timeline

import (
	"context"

	"github.com/lancaster971/pilotproOS-sub000/internal/classifier"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/summarize"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

// enrichedStrategy serves the persisted enrichment snapshot: steps are
// already ordered, chained and summarized, only the visibility filter is
// re-applied.
type enrichedStrategy struct{}

func (s *enrichedStrategy) Name() string { return models.TierEnriched }

func (s *enrichedStrategy) CanHandle(in *Input) bool {
	return in.Record != nil && in.Record.HasDetailedData && len(in.Record.CachedSteps) > 0
}

func (s *enrichedStrategy) Build(_ context.Context, in *Input) (*models.Timeline, error) {
	steps := make([]models.TimelineStep, 0, len(in.Record.CachedSteps))
	for _, step := range in.Record.CachedSteps {
		if step.IsVisible {
			steps = append(steps, step)
		}
	}

	return &models.Timeline{
		Steps:           steps,
		BusinessContext: decodeCachedContext(in.Record.CachedBusinessContext),
	}, nil
}

// liveStrategy rebuilds the timeline from the latest execution's raw run
// data and the current workflow definition.
type liveStrategy struct {
	classifier *classifier.Classifier
	summarizer *summarize.Engine
	log        *logger.Logger
}

func (s *liveStrategy) Name() string { return models.TierLive }

func (s *liveStrategy) CanHandle(in *Input) bool {
	return in.Workflow != nil && in.Record != nil && len(in.Record.RawPayload) > 0
}

func (s *liveStrategy) Build(ctx context.Context, in *Input) (*models.Timeline, error) {
	classified := s.classifier.Classify(in.Workflow.Nodes)
	s.classifier.Sort(classified)
	visible := s.classifier.Visible(classified)

	steps := make([]models.TimelineStep, 0, len(visible))
	for _, node := range visible {
		step := models.TimelineStep{
			NodeID:      node.ID,
			NodeName:    node.Name,
			NodeType:    node.Type,
			IsVisible:   true,
			IsTrigger:   node.IsTrigger,
			CustomOrder: node.CustomOrder,
			Status:      models.StepNotExecuted,
		}

		run, ok := in.Record.RawPayload[node.Name]
		if ok {
			parsed, err := parseNodeRun(run)
			if err != nil {
				// A node with broken run data is skipped, not fatal.
				s.log.Warnw("skipping step with malformed run data",
					"node", node.Name, "execution_id", in.Record.ID, "error", err)
				continue
			}
			step.Status = parsed.status
			step.ExecutionTimeMs = parsed.executionTimeMs
			step.Error = parsed.errorMessage
			step.OutputPayload = parsed.output
		}

		steps = append(steps, step)
	}

	// Summarize before chaining so chained inputs reference the payloads
	// callers actually see.
	for i := range steps {
		result := s.summarizer.Summarize(ctx, steps[i].OutputPayload, steps[i].NodeType, steps[i].NodeName)
		steps[i].OutputPayload = result.Payload
		if result.Summary != nil {
			steps[i].Summary = result.Summary.Description
		}
	}

	chainSteps(steps)

	return &models.Timeline{Steps: steps}, nil
}

// structureStrategy renders what would run for a workflow with no execution
// data at all: classified and ordered nodes with empty data fields.
type structureStrategy struct {
	classifier *classifier.Classifier
}

func (s *structureStrategy) Name() string { return models.TierStructureOnly }

func (s *structureStrategy) CanHandle(in *Input) bool {
	return in.Workflow != nil
}

func (s *structureStrategy) Build(_ context.Context, in *Input) (*models.Timeline, error) {
	classified := s.classifier.Classify(in.Workflow.Nodes)
	s.classifier.Sort(classified)
	visible := s.classifier.Visible(classified)

	steps := make([]models.TimelineStep, 0, len(visible))
	for _, node := range visible {
		steps = append(steps, models.TimelineStep{
			NodeID:      node.ID,
			NodeName:    node.Name,
			NodeType:    node.Type,
			IsVisible:   true,
			IsTrigger:   node.IsTrigger,
			CustomOrder: node.CustomOrder,
			Status:      models.StepStructureOnly,
		})
	}

	return &models.Timeline{Steps: steps}, nil
}
