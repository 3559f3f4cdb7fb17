package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

func step(output models.JSONMap) models.TimelineStep {
	return models.TimelineStep{NodeName: "node", OutputPayload: output}
}

func TestExtractEmailDeduplication(t *testing.T) {
	e := New()

	ctx := e.Extract([]models.TimelineStep{
		step(models.JSONMap{"body": "Contact alice@example.com or ALICE@example.com"}),
		step(models.JSONMap{"note": "alice@example.com again, plus bob@example.com"}),
	})

	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, ctx.ExtractedEmails)
	assert.Equal(t, "alice@example.com", ctx.SenderEmail)
}

func TestExtractFirstMatchWins(t *testing.T) {
	e := New()

	ctx := e.Extract([]models.TimelineStep{
		step(models.JSONMap{"subject": "First subject", "category": "billing"}),
		step(models.JSONMap{"subject": "Second subject", "category": "spam"}),
	})

	assert.Equal(t, "First subject", ctx.Subject)
	assert.Equal(t, "billing", ctx.Classification)
}

func TestExtractIdentifiers(t *testing.T) {
	e := New()

	ctx := e.Extract([]models.TimelineStep{
		step(models.JSONMap{"text": "order #12345 references invoice 998-A"}),
	})

	assert.Contains(t, ctx.ExtractedIDs, "ORDER-12345")
	assert.Contains(t, ctx.ExtractedIDs, "INVOICE-998-A")
	assert.Equal(t, "12345", ctx.OrderID)
}

func TestExtractOrderIDFromField(t *testing.T) {
	e := New()

	ctx := e.Extract([]models.TimelineStep{
		step(models.JSONMap{"order_id": "ORD-778"}),
	})

	assert.Equal(t, "ORD-778", ctx.OrderID)
}

func TestExtractAmounts(t *testing.T) {
	e := New()

	ctx := e.Extract([]models.TimelineStep{
		step(models.JSONMap{"invoice": "Total $1,234.56 with a fee of $10.00 and again $1,234.56"}),
	})

	require.Len(t, ctx.ProcessedAmounts, 2)
	assert.InDelta(t, 1234.56, ctx.ProcessedAmounts[0], 0.001)
	assert.InDelta(t, 10.0, ctx.ProcessedAmounts[1], 0.001)
}

func TestExtractNestedFields(t *testing.T) {
	e := New()

	ctx := e.Extract([]models.TimelineStep{
		step(models.JSONMap{
			"result": map[string]interface{}{
				"analysis": map[string]interface{}{
					"classification": "support_request",
					"confidence":     0.92,
				},
				"ai_response": "We'll get back to you shortly.",
			},
		}),
	})

	assert.Equal(t, "support_request", ctx.Classification)
	assert.InDelta(t, 0.92, ctx.Confidence, 0.001)
	assert.Equal(t, "We'll get back to you shortly.", ctx.AIResponse)
}

func TestExtractFallsBackToInputPayload(t *testing.T) {
	e := New()

	ctx := e.Extract([]models.TimelineStep{
		{
			NodeName:     "node",
			InputPayload: models.JSONMap{"from": "sender@example.com"},
		},
	})

	assert.Equal(t, "sender@example.com", ctx.SenderEmail)
}

func TestExtractIsDeterministicAcrossRuns(t *testing.T) {
	e := New()

	payload := models.JSONMap{
		"zeta":  map[string]interface{}{"email": "zeta@example.com"},
		"alpha": map[string]interface{}{"email": "alpha@example.com"},
	}

	first := e.Extract([]models.TimelineStep{step(payload)})
	for i := 0; i < 10; i++ {
		again := e.Extract([]models.TimelineStep{step(payload)})
		assert.Equal(t, first.SenderEmail, again.SenderEmail)
		assert.Equal(t, first.ExtractedEmails, again.ExtractedEmails)
	}
}

func TestExtractEmptySteps(t *testing.T) {
	e := New()

	ctx := e.Extract(nil)
	require.NotNil(t, ctx)
	assert.Empty(t, ctx.SenderEmail)
	assert.Empty(t, ctx.ExtractedEmails)
}

func TestParseAmountFormats(t *testing.T) {
	tests := []struct {
		raw    string
		amount float64
		ok     bool
	}{
		{"$1,234.56", 1234.56, true},
		{"€1.234,56", 1234.56, true},
		{"$10", 10, true},
		{"10.50", 10.50, true},
		{"not a number", 0, false},
	}

	for _, tt := range tests {
		amount, ok := ParseAmount(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw %q", tt.raw)
		if tt.ok {
			assert.InDelta(t, tt.amount, amount, 0.001, "raw %q", tt.raw)
		}
	}
}
