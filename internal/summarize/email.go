package summarize

import (
	"fmt"
	"strings"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/extract"
)

// Email category keyword rules. First matching category wins per message.
var emailCategories = []struct {
	name     string
	keywords []string
}{
	{"billing", []string{"invoice", "payment", "receipt", "billing"}},
	{"orders", []string{"order", "purchase", "shipment", "delivery"}},
	{"support", []string{"help", "issue", "problem", "error", "support"}},
	{"marketing", []string{"offer", "sale", "discount", "newsletter", "promo"}},
}

var emailDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// summarizeEmailBatch profiles a batch of email-shaped rows: unique senders,
// the span of days covered, and a keyword category histogram.
func (e *Engine) summarizeEmailBatch(rows []map[string]interface{}, sourceBytes int) *Summary {
	senders := make(map[string]bool)
	histogram := make(map[string]int)
	var earliest, latest time.Time

	for _, row := range rows {
		if sender := rowString(row, "from", "sender", "sender_email"); sender != "" {
			if email := strings.ToLower(extract.EmailPattern.FindString(sender)); email != "" {
				senders[email] = true
			} else {
				senders[strings.ToLower(sender)] = true
			}
		}

		subject := rowString(row, "subject", "title")
		body := rowString(row, "body", "text", "snippet")
		histogram[categorizeEmail(subject+" "+body)]++

		if ts := parseEmailDate(rowString(row, "date", "received_at", "timestamp", "receiveddatetime")); !ts.IsZero() {
			if earliest.IsZero() || ts.Before(earliest) {
				earliest = ts
			}
			if latest.IsZero() || ts.After(latest) {
				latest = ts
			}
		}
	}

	daySpan := 0
	if !earliest.IsZero() {
		daySpan = int(latest.Sub(earliest).Hours()/24) + 1
	}

	preview := make([]map[string]interface{}, 0, e.cfg.PreviewRows)
	for _, row := range rows {
		if len(preview) >= e.cfg.PreviewRows {
			break
		}
		preview = append(preview, map[string]interface{}{
			"from":    rowString(row, "from", "sender", "sender_email"),
			"subject": rowString(row, "subject", "title"),
			"date":    rowString(row, "date", "received_at", "timestamp", "receiveddatetime"),
		})
	}

	return &Summary{
		Strategy: StrategyEmailBatch,
		Title:    fmt.Sprintf("Email batch: %d messages", len(rows)),
		Description: fmt.Sprintf("%d emails from %d unique senders over %d day(s).",
			len(rows), len(senders), daySpan),
		Metrics: map[string]interface{}{
			"messages":       len(rows),
			"unique_senders": len(senders),
			"day_span":       daySpan,
			"categories":     histogram,
		},
		Preview:         preview,
		BusinessInsight: emailInsight(len(rows), histogram),
		Actions:         []string{"view_messages", "export_csv"},
		SourceBytes:     sourceBytes,
		GeneratedAt:     time.Now().UTC(),
	}
}

func categorizeEmail(text string) string {
	lower := strings.ToLower(text)
	for _, cat := range emailCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name
			}
		}
	}
	return "other"
}

func emailInsight(total int, histogram map[string]int) string {
	if total == 0 {
		return "No messages in this batch."
	}
	top, topCount := "", 0
	for name, count := range histogram {
		if count > topCount || (count == topCount && name < top) {
			top, topCount = name, count
		}
	}
	return fmt.Sprintf("Most messages fall under %q (%d of %d).", top, topCount, total)
}

func parseEmailDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range emailDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func rowString(row map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		for rowKey, value := range row {
			if strings.EqualFold(rowKey, key) {
				if s, ok := value.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}
