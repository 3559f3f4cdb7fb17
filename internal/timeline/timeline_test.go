package timeline

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancaster971/pilotproOS-sub000/internal/classifier"
	"github.com/lancaster971/pilotproOS-sub000/internal/config"
	"github.com/lancaster971/pilotproOS-sub000/internal/extract"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/summarize"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

func testReconstructor(t *testing.T) *Reconstructor {
	t.Helper()
	log, err := logger.NewWithWriter("debug", "json", io.Discard)
	require.NoError(t, err)

	summarizer := summarize.NewEngine(config.SummarizeConfig{
		DirectBytes:      1024,
		PatternBytes:     51200,
		StatisticalBytes: 1048576,
		PreviewRows:      5,
		PreviewChars:     500,
	}, 10*time.Minute, nil, log, nil)

	return NewReconstructor(classifier.New(), summarizer, extract.New(), log)
}

func testWorkflow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:   "wf-1",
		Name: "Order intake",
		Nodes: []models.NodeDefinition{
			{ID: "n-a", Name: "A", Type: "n8n-nodes-base.set", Annotation: "show-2", Position: [2]float64{0, 100}},
			{ID: "n-b", Name: "B", Type: "n8n-nodes-base.set", Annotation: "show-1", Position: [2]float64{0, 200}},
			{ID: "n-t", Name: "Order Webhook", Type: "n8n-nodes-base.webhook", Position: [2]float64{0, 0}},
			{ID: "n-c", Name: "C", Type: "n8n-nodes-base.set", Position: [2]float64{0, 300}},
		},
		UpdatedAt: time.Now().Add(-time.Hour),
	}
}

func successRun(ms float64, output map[string]interface{}) []interface{} {
	run := map[string]interface{}{"executionTime": ms}
	if output != nil {
		run["data"] = map[string]interface{}{
			"main": []interface{}{
				[]interface{}{
					map[string]interface{}{"json": output},
				},
			},
		}
	}
	return []interface{}{run}
}

func errorRun(message string) []interface{} {
	return []interface{}{
		map[string]interface{}{
			"executionTime": 5.0,
			"error":         map[string]interface{}{"message": message},
		},
	}
}

func testRecord(rawPayload models.JSONMap) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		TenantID:   "t1",
		Status:     models.ExecutionSuccess,
		StartedAt:  time.Now().Add(-time.Minute),
		RawPayload: rawPayload,
	}
}

func TestReconstructLiveOrderingAndFiltering(t *testing.T) {
	r := testReconstructor(t)

	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
		"B":             successRun(10, map[string]interface{}{"step": "b"}),
		"A":             successRun(20, map[string]interface{}{"step": "a"}),
		"C":             successRun(30, map[string]interface{}{"step": "c"}),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID:   "t1",
		WorkflowID: "wf-1",
		Workflow:   testWorkflow(),
		Record:     record,
	})
	require.NoError(t, err)

	assert.Equal(t, models.TierLive, tl.Tier)

	names := make([]string, len(tl.Steps))
	for i, step := range tl.Steps {
		names[i] = step.NodeName
	}
	// Trigger first, then show-1 before show-2; C carries no tag and is absent.
	assert.Equal(t, []string{"Order Webhook", "B", "A"}, names)
}

func TestReconstructChainingLaw(t *testing.T) {
	r := testReconstructor(t)

	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
		"B":             successRun(10, map[string]interface{}{"step": "b"}),
		"A":             successRun(20, map[string]interface{}{"step": "a"}),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)
	require.Len(t, tl.Steps, 3)

	assert.True(t, tl.Steps[0].IsTrigger)
	assert.Nil(t, tl.Steps[0].InputPayload)

	assert.Equal(t, tl.Steps[0].OutputPayload, tl.Steps[1].InputPayload)
	assert.Equal(t, tl.Steps[1].OutputPayload, tl.Steps[2].InputPayload)
}

func TestReconstructChainingSkipsEmptyOutputs(t *testing.T) {
	r := testReconstructor(t)

	// B executed but emitted no items; A's input falls back to the trigger's
	// output, the nearest preceding step that produced one.
	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
		"B":             successRun(10, nil),
		"A":             successRun(20, map[string]interface{}{"step": "a"}),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)
	require.Len(t, tl.Steps, 3)

	assert.Nil(t, tl.Steps[1].OutputPayload)
	assert.Equal(t, tl.Steps[0].OutputPayload, tl.Steps[2].InputPayload)
}

func TestReconstructNotExecutedNodes(t *testing.T) {
	r := testReconstructor(t)

	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)
	require.Len(t, tl.Steps, 3)

	assert.Equal(t, models.StepNotExecuted, tl.Steps[1].Status)
	assert.Equal(t, models.StepNotExecuted, tl.Steps[2].Status)
	assert.Nil(t, tl.Steps[1].OutputPayload)
}

func TestReconstructErrorStep(t *testing.T) {
	r := testReconstructor(t)

	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
		"B":             errorRun("connection refused"),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)

	var b *models.TimelineStep
	for i := range tl.Steps {
		if tl.Steps[i].NodeName == "B" {
			b = &tl.Steps[i]
		}
	}
	require.NotNil(t, b)
	assert.Equal(t, string(models.ExecutionError), b.Status)
	require.NotNil(t, b.Error)
	assert.Equal(t, "connection refused", *b.Error)
}

func TestReconstructSkipsMalformedNodeRun(t *testing.T) {
	r := testReconstructor(t)

	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
		"B":             "not a run list",
		"A":             successRun(20, map[string]interface{}{"step": "a"}),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)

	names := make([]string, len(tl.Steps))
	for i, step := range tl.Steps {
		names[i] = step.NodeName
	}
	assert.Equal(t, []string{"Order Webhook", "A"}, names)
}

func TestReconstructLastRunWins(t *testing.T) {
	r := testReconstructor(t)

	runs := append(
		successRun(10, map[string]interface{}{"attempt": "first"}),
		successRun(20, map[string]interface{}{"attempt": "second"})...,
	)
	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
		"B":             runs,
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)

	require.Len(t, tl.Steps, 3)
	assert.Equal(t, "second", tl.Steps[1].OutputPayload["attempt"])
	assert.Equal(t, int64(20), tl.Steps[1].ExecutionTimeMs)
}

func TestReconstructLargeOutputIsSummarizedBeforeChaining(t *testing.T) {
	r := testReconstructor(t)

	rows := make([]interface{}, 0, 100)
	for i := 0; i < 100; i++ {
		rows = append(rows, map[string]interface{}{
			"id":   float64(i),
			"name": strings.Repeat("x", 50),
		})
	}

	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
		"B":             successRun(10, map[string]interface{}{"rows": rows}),
		"A":             successRun(20, map[string]interface{}{"step": "a"}),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)
	require.Len(t, tl.Steps, 3)

	// B's oversized output was replaced by a summary payload, and A's input
	// references the summary, not the raw rows.
	assert.True(t, summarize.IsSummaryPayload(tl.Steps[1].OutputPayload))
	assert.Equal(t, tl.Steps[1].OutputPayload, tl.Steps[2].InputPayload)
	assert.NotEmpty(t, tl.Steps[1].Summary)
}

func TestReconstructEnrichedTier(t *testing.T) {
	r := testReconstructor(t)

	enriched := time.Now().Add(-time.Minute)
	record := &models.ExecutionRecord{
		ID:              "exec-1",
		HasDetailedData: true,
		EnrichedAt:      &enriched,
		CachedSteps: models.TimelineSteps{
			{NodeName: "Order Webhook", IsVisible: true, IsTrigger: true, Status: "success"},
			{NodeName: "Hidden", IsVisible: false, Status: "success"},
			{NodeName: "B", IsVisible: true, Status: "success"},
		},
		CachedBusinessContext: models.JSONMap{"sender_email": "alice@example.com"},
	}

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Record: record,
	})
	require.NoError(t, err)

	assert.Equal(t, models.TierEnriched, tl.Tier)
	require.Len(t, tl.Steps, 2)
	assert.Equal(t, "Order Webhook", tl.Steps[0].NodeName)
	assert.Equal(t, "B", tl.Steps[1].NodeName)

	require.NotNil(t, tl.BusinessContext)
	assert.Equal(t, "alice@example.com", tl.BusinessContext.SenderEmail)
}

func TestReconstructStructureOnlyTier(t *testing.T) {
	r := testReconstructor(t)

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TierStructureOnly, tl.Tier)
	require.Len(t, tl.Steps, 3)
	for _, step := range tl.Steps {
		assert.Equal(t, models.StepStructureOnly, step.Status)
		assert.Nil(t, step.InputPayload)
		assert.Nil(t, step.OutputPayload)
	}
}

func TestReconstructNoDataAtAll(t *testing.T) {
	r := testReconstructor(t)

	_, err := r.Reconstruct(context.Background(), &Input{TenantID: "t1", WorkflowID: "wf-1"})
	assert.ErrorIs(t, err, models.ErrNoExecutionData)
}

func TestReconstructExtractsBusinessContext(t *testing.T) {
	r := testReconstructor(t)

	record := testRecord(models.JSONMap{
		"Order Webhook": successRun(2, map[string]interface{}{
			"from":    "buyer@example.com",
			"subject": "Order #4421",
		}),
	})

	tl, err := r.Reconstruct(context.Background(), &Input{
		TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
	})
	require.NoError(t, err)

	require.NotNil(t, tl.BusinessContext)
	assert.Equal(t, "buyer@example.com", tl.BusinessContext.SenderEmail)
	assert.Equal(t, "Order #4421", tl.BusinessContext.Subject)
	assert.Equal(t, "4421", tl.BusinessContext.OrderID)
}

func TestReconstructIsIdempotent(t *testing.T) {
	r := testReconstructor(t)

	build := func() *models.Timeline {
		record := testRecord(models.JSONMap{
			"Order Webhook": successRun(2, map[string]interface{}{"event": "order.created"}),
			"B":             successRun(10, map[string]interface{}{"step": "b"}),
		})
		tl, err := r.Reconstruct(context.Background(), &Input{
			TenantID: "t1", WorkflowID: "wf-1", Workflow: testWorkflow(), Record: record,
		})
		require.NoError(t, err)
		return tl
	}

	first := build()
	second := build()

	require.Len(t, second.Steps, len(first.Steps))
	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].NodeName, second.Steps[i].NodeName)
		assert.Equal(t, first.Steps[i].Status, second.Steps[i].Status)
		assert.Equal(t, first.Steps[i].OutputPayload, second.Steps[i].OutputPayload)
	}
}
