// Package extract scans timeline step payloads for business facts: email
// addresses, business identifiers, monetary amounts and semantically named
// fields buried anywhere in the payload tree.
package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// Deep-search key sets per target field, all lowercase. The first non-empty
// match anywhere in the payload tree wins and is written once.
var (
	senderKeys         = map[string]bool{"sender": true, "from": true, "sender_email": true, "senderemail": true, "from_email": true, "email": true, "reply_to": true}
	subjectKeys        = map[string]bool{"subject": true, "email_subject": true}
	classificationKeys = map[string]bool{"category": true, "classification": true, "label": true, "intent": true}
	confidenceKeys     = map[string]bool{"confidence": true, "confidence_score": true}
	aiResponseKeys     = map[string]bool{"ai_response": true, "airesponse": true, "ai_reply": true, "assistant_response": true}
	orderKeys          = map[string]bool{"order_id": true, "orderid": true, "order_number": true, "ordernumber": true}
)

// Extractor accumulates business facts across the steps of one timeline.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract scans every step, output payload first with input as fallback, and
// returns the accumulated context. Singular fields keep the first value
// found across steps in order; list fields are deduplicated.
func (e *Extractor) Extract(steps []models.TimelineStep) *models.BusinessContext {
	acc := newAccumulator()

	for _, step := range steps {
		payload := step.OutputPayload
		if len(payload) == 0 {
			payload = step.InputPayload
		}
		if len(payload) == 0 {
			continue
		}

		text := stringify(payload)
		acc.scanText(text)
		acc.deepSearch(map[string]interface{}(payload))
	}

	return acc.result()
}

type accumulator struct {
	ctx         models.BusinessContext
	seenEmails  map[string]bool
	seenIDs     map[string]bool
	seenAmounts map[float64]bool
}

func newAccumulator() *accumulator {
	return &accumulator{
		seenEmails:  make(map[string]bool),
		seenIDs:     make(map[string]bool),
		seenAmounts: make(map[float64]bool),
	}
}

// scanText applies the pattern toolkit in fixed order: emails, identifiers,
// amounts.
func (a *accumulator) scanText(text string) {
	for _, email := range EmailPattern.FindAllString(text, -1) {
		email = strings.ToLower(email)
		if !a.seenEmails[email] {
			a.seenEmails[email] = true
			a.ctx.ExtractedEmails = append(a.ctx.ExtractedEmails, email)
		}
		if a.ctx.SenderEmail == "" {
			a.ctx.SenderEmail = email
		}
	}

	for _, match := range IdentifierPattern.FindAllStringSubmatch(text, -1) {
		id := strings.ToUpper(match[1]) + "-" + match[2]
		if !a.seenIDs[id] {
			a.seenIDs[id] = true
			a.ctx.ExtractedIDs = append(a.ctx.ExtractedIDs, id)
		}
		if a.ctx.OrderID == "" && strings.EqualFold(match[1], "order") {
			a.ctx.OrderID = match[2]
		}
	}

	for _, raw := range AmountPattern.FindAllString(text, -1) {
		amount, ok := ParseAmount(raw)
		if !ok {
			continue
		}
		if !a.seenAmounts[amount] {
			a.seenAmounts[amount] = true
			a.ctx.ProcessedAmounts = append(a.ctx.ProcessedAmounts, amount)
		}
	}
}

// deepSearch walks the payload tree depth-first with map keys in sorted
// order, so extraction is deterministic regardless of map iteration order.
func (a *accumulator) deepSearch(value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			a.matchField(strings.ToLower(key), v[key])
		}
		for _, key := range keys {
			a.deepSearch(v[key])
		}
	case []interface{}:
		for _, item := range v {
			a.deepSearch(item)
		}
	}
}

func (a *accumulator) matchField(key string, value interface{}) {
	switch {
	case senderKeys[key]:
		if a.ctx.SenderEmail == "" {
			if email := firstEmail(value); email != "" {
				a.ctx.SenderEmail = email
			}
		}
	case subjectKeys[key]:
		if a.ctx.Subject == "" {
			a.ctx.Subject = asString(value)
		}
	case classificationKeys[key]:
		if a.ctx.Classification == "" {
			a.ctx.Classification = asString(value)
		}
	case confidenceKeys[key]:
		if a.ctx.Confidence == 0 {
			a.ctx.Confidence = asFloat(value)
		}
	case aiResponseKeys[key]:
		if a.ctx.AIResponse == "" {
			a.ctx.AIResponse = asString(value)
		}
	case orderKeys[key]:
		if a.ctx.OrderID == "" {
			a.ctx.OrderID = asString(value)
		}
	}
}

func (a *accumulator) result() *models.BusinessContext {
	ctx := a.ctx
	return &ctx
}

func stringify(payload models.JSONMap) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}

func firstEmail(value interface{}) string {
	s := asString(value)
	if s == "" {
		return ""
	}
	return strings.ToLower(EmailPattern.FindString(s))
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func asFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
