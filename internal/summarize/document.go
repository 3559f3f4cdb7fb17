package summarize

import (
	"fmt"
	"strings"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/extract"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// Coarse document type keyword rules, first match wins.
var documentTypes = []struct {
	name     string
	keywords []string
}{
	{"invoice", []string{"invoice", "receipt", "amount due", "total due"}},
	{"contract", []string{"contract", "agreement", "terms and conditions", "hereby"}},
	{"report", []string{"report", "analysis", "summary of", "findings"}},
	{"letter", []string{"dear ", "regards", "sincerely"}},
}

const maxEntities = 10

// summarizeDocument profiles a document/PDF-shaped payload: a title, a
// coarse document type, and the dates, amounts and named entities found by
// the shared pattern toolkit.
func (e *Engine) summarizeDocument(payload models.JSONMap, sourceBytes int) *Summary {
	text := documentText(payload)

	title := ""
	if t, ok := payload["title"].(string); ok {
		title = strings.TrimSpace(t)
	}
	if title == "" {
		title = firstLine(text, 80)
	}
	if title == "" {
		title = "Document"
	}

	docType := classifyDocument(text)

	dates := bounded(extract.DatePattern.FindAllString(text, -1), maxEntities)

	var amounts []float64
	for _, raw := range extract.AmountPattern.FindAllString(text, -1) {
		if len(amounts) >= maxEntities {
			break
		}
		if amount, ok := extract.ParseAmount(raw); ok {
			amounts = append(amounts, amount)
		}
	}

	entities := map[string]interface{}{
		"emails": bounded(extract.EmailPattern.FindAllString(text, -1), maxEntities),
		"phones": bounded(extract.PhonePattern.FindAllString(text, -1), maxEntities),
		"names":  bounded(extract.CapitalizedNamePattern.FindAllString(text, -1), maxEntities),
	}

	preview := text
	if len(preview) > e.cfg.PreviewChars {
		preview = preview[:e.cfg.PreviewChars] + "…"
	}

	return &Summary{
		Strategy:    StrategyDocument,
		Title:       title,
		Description: fmt.Sprintf("A %s of %d characters.", docType, len(text)),
		Metrics: map[string]interface{}{
			"document_type": docType,
			"characters":    len(text),
			"dates":         dates,
			"amounts":       amounts,
			"entities":      entities,
		},
		Preview:         preview,
		BusinessInsight: documentInsight(docType, amounts),
		Actions:         []string{"view_document", "download"},
		SourceBytes:     sourceBytes,
		GeneratedAt:     time.Now().UTC(),
	}
}

func classifyDocument(text string) string {
	lower := strings.ToLower(text)
	for _, dt := range documentTypes {
		for _, kw := range dt.keywords {
			if strings.Contains(lower, kw) {
				return dt.name
			}
		}
	}
	return "document"
}

func documentInsight(docType string, amounts []float64) string {
	if len(amounts) > 0 {
		max := amounts[0]
		for _, a := range amounts[1:] {
			if a > max {
				max = a
			}
		}
		return fmt.Sprintf("This %s references %d monetary amount(s), the largest being %.2f.", docType, len(amounts), max)
	}
	return fmt.Sprintf("Classified as a %s by keyword rules.", docType)
}

func firstLine(text string, limit int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > limit {
			line = line[:limit]
		}
		return line
	}
	return ""
}

func bounded(values []string, limit int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, limit)
	for _, v := range values {
		if len(out) >= limit {
			break
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
