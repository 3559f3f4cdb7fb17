package summarize

import (
	"strings"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// Kind is a detected content kind of a payload.
type Kind string

const (
	KindUnknown      Kind = ""
	KindDocument     Kind = "document"
	KindTabular      Kind = "tabular"
	KindEmailBatch   Kind = "email_batch"
	KindHTTPResponse Kind = "http_response"
	KindDBResult     Kind = "db_result"
)

var kindKeywords = []struct {
	kind     Kind
	keywords []string
}{
	{KindDocument, []string{"pdf", "document", "extractfromfile", "readpdf", "file"}},
	{KindTabular, []string{"csv", "spreadsheet", "sheet", "table", "excel"}},
	{KindEmailBatch, []string{"email", "gmail", "imap", "outlook", "mail"}},
	{KindDBResult, []string{"postgres", "mysql", "mariadb", "mongodb", "database", "sql", "query"}},
	{KindHTTPResponse, []string{"http", "api", "request", "webhook", "fetch"}},
}

// Keys whose presence in tabular rows marks them as an email batch.
var emailRowKeys = []string{"from", "sender", "subject"}

// detectKind resolves the content kind of a payload from the originating
// node's type and name first, then from the payload's shape.
func detectKind(payload models.JSONMap, nodeType, nodeName string) Kind {
	haystack := strings.ToLower(nodeType + " " + nodeName)
	for _, entry := range kindKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(haystack, kw) {
				return entry.kind
			}
		}
	}

	rows := extractRows(payload)
	if len(rows) > 0 {
		if rowsLookLikeEmails(rows) {
			return KindEmailBatch
		}
		return KindTabular
	}

	if looksLikeHTTPResponse(payload) {
		return KindHTTPResponse
	}

	if documentText(payload) != "" {
		return KindDocument
	}

	return KindUnknown
}

// extractRows finds the first list-of-objects in the payload: either the
// payload's sole top-level list or one under a conventional collection key.
func extractRows(payload models.JSONMap) []map[string]interface{} {
	for _, key := range []string{"records", "rows", "data", "items", "results", "entries"} {
		if rows := asRowSlice(payload[key]); rows != nil {
			return rows
		}
	}

	if len(payload) == 1 {
		for _, value := range payload {
			if rows := asRowSlice(value); rows != nil {
				return rows
			}
		}
	}

	return nil
}

func asRowSlice(value interface{}) []map[string]interface{} {
	list, ok := value.([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		row, ok := item.(map[string]interface{})
		if !ok {
			return nil
		}
		rows = append(rows, row)
	}
	return rows
}

func rowsLookLikeEmails(rows []map[string]interface{}) bool {
	hits := 0
	for key := range rows[0] {
		lower := strings.ToLower(key)
		for _, emailKey := range emailRowKeys {
			if lower == emailKey {
				hits++
			}
		}
	}
	return hits >= 2
}

func looksLikeHTTPResponse(payload models.JSONMap) bool {
	_, hasStatusCode := payload["statusCode"]
	_, hasStatus := payload["status"]
	_, hasHeaders := payload["headers"]
	_, hasBody := payload["body"]
	return (hasStatusCode || hasStatus) && (hasHeaders || hasBody)
}

// documentText pulls free text out of a document-shaped payload.
func documentText(payload models.JSONMap) string {
	for _, key := range []string{"text", "content", "body", "extracted_text"} {
		if s, ok := payload[key].(string); ok && len(s) > 0 {
			return s
		}
	}
	return ""
}
