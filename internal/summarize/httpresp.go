package summarize

import (
	"fmt"
	"sort"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// summarizeHTTPResponse profiles an HTTP/API response payload.
func (e *Engine) summarizeHTTPResponse(payload models.JSONMap, sourceBytes int) *Summary {
	statusCode := httpStatus(payload)

	var headerCount int
	contentType := ""
	if headers, ok := payload["headers"].(map[string]interface{}); ok {
		headerCount = len(headers)
		for key, value := range headers {
			if s, ok := value.(string); ok && (key == "content-type" || key == "Content-Type") {
				contentType = s
			}
		}
	}

	bodyKeys := []string{}
	if body, ok := payload["body"].(map[string]interface{}); ok {
		for key := range body {
			bodyKeys = append(bodyKeys, key)
		}
		sort.Strings(bodyKeys)
		if len(bodyKeys) > maxEntities {
			bodyKeys = bodyKeys[:maxEntities]
		}
	}

	description := "API response"
	if statusCode > 0 {
		description = fmt.Sprintf("API response with status %d.", statusCode)
	}

	return &Summary{
		Strategy:    StrategyHTTPResponse,
		Title:       fmt.Sprintf("HTTP response (%d bytes)", sourceBytes),
		Description: description,
		Metrics: map[string]interface{}{
			"status_code":  statusCode,
			"headers":      headerCount,
			"content_type": contentType,
			"body_keys":    bodyKeys,
		},
		Preview:         bodyKeys,
		BusinessInsight: httpInsight(statusCode),
		Actions:         []string{"view_raw", "replay_request"},
		SourceBytes:     sourceBytes,
		GeneratedAt:     time.Now().UTC(),
	}
}

func httpStatus(payload models.JSONMap) int {
	for _, key := range []string{"statusCode", "status"} {
		switch v := payload[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

func httpInsight(statusCode int) string {
	switch {
	case statusCode == 0:
		return "No status code present in the response payload."
	case statusCode >= 500:
		return "The upstream API reported a server error."
	case statusCode >= 400:
		return "The request was rejected by the upstream API."
	case statusCode >= 300:
		return "The upstream API responded with a redirect."
	default:
		return "The request completed successfully."
	}
}
