package summarize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// tableProfile is the shared analysis over a list of rows, reused by the
// tabular and database-result summarizers.
type tableProfile struct {
	rowCount     int
	columns      []string
	columnTypes  map[string]string
	completeness float64 // ratio of non-null cells
	duplicateRatio float64
	distributions map[string]map[string]int // bounded per-column value counts
}

// maxDistinctTracked bounds the per-column value distribution.
const maxDistinctTracked = 5

func profileRows(rows []map[string]interface{}) *tableProfile {
	p := &tableProfile{
		columnTypes:   make(map[string]string),
		distributions: make(map[string]map[string]int),
	}
	p.rowCount = len(rows)
	if p.rowCount == 0 {
		return p
	}

	// Column order: first row's keys, sorted for determinism, then any key
	// that only appears in later rows.
	seen := make(map[string]bool)
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				p.columns = append(p.columns, key)
			}
		}
	}
	sort.Strings(p.columns)

	totalCells := 0
	filledCells := 0
	rowSignatures := make(map[string]int)

	for _, row := range rows {
		var sig strings.Builder
		for _, col := range p.columns {
			totalCells++
			value, ok := row[col]
			if !ok || value == nil || value == "" {
				sig.WriteString("\x00")
				continue
			}
			filledCells++

			cell := cellString(value)
			sig.WriteString(cell)
			sig.WriteString("\x00")

			p.observeType(col, value)
			p.observeValue(col, cell)
		}
		rowSignatures[sig.String()]++
	}

	if totalCells > 0 {
		p.completeness = float64(filledCells) / float64(totalCells)
	}
	if p.rowCount > 0 {
		p.duplicateRatio = float64(p.rowCount-len(rowSignatures)) / float64(p.rowCount)
	}

	return p
}

func (p *tableProfile) observeType(col string, value interface{}) {
	inferred := inferCellType(value)
	current, ok := p.columnTypes[col]
	switch {
	case !ok:
		p.columnTypes[col] = inferred
	case current != inferred:
		p.columnTypes[col] = "mixed"
	}
}

func (p *tableProfile) observeValue(col, cell string) {
	dist, ok := p.distributions[col]
	if !ok {
		dist = make(map[string]int)
		p.distributions[col] = dist
	}
	if _, tracked := dist[cell]; tracked || len(dist) < maxDistinctTracked {
		dist[cell]++
	}
}

func inferCellType(value interface{}) string {
	switch v := value.(type) {
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case string:
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return "number"
		}
		if _, err := time.Parse("2006-01-02", v); err == nil {
			return "date"
		}
		return "string"
	default:
		return "object"
	}
}

func cellString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// previewRows returns at most limit rows projected onto the profile columns.
func previewRows(rows []map[string]interface{}, columns []string, limit int) []map[string]interface{} {
	if len(rows) < limit {
		limit = len(rows)
	}
	preview := make([]map[string]interface{}, 0, limit)
	for _, row := range rows[:limit] {
		projected := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			projected[col] = row[col]
		}
		preview = append(preview, projected)
	}
	return preview
}

// summarizeTabular builds the summary for CSV/spreadsheet-shaped payloads.
func (e *Engine) summarizeTabular(rows []map[string]interface{}, sourceBytes int) *Summary {
	p := profileRows(rows)

	completenessPct := p.completeness * 100

	return &Summary{
		Strategy: StrategyTabular,
		Title:    fmt.Sprintf("Table: %d rows × %d columns", p.rowCount, len(p.columns)),
		Description: fmt.Sprintf("Tabular data with %d rows and %d columns, %.0f%% complete.",
			p.rowCount, len(p.columns), completenessPct),
		Metrics: map[string]interface{}{
			"rows":            p.rowCount,
			"columns":         len(p.columns),
			"column_names":    p.columns,
			"column_types":    p.columnTypes,
			"completeness":    round2(completenessPct),
			"duplicate_ratio": round2(p.duplicateRatio * 100),
			"distributions":   p.distributions,
		},
		Preview:         previewRows(rows, p.columns, e.cfg.PreviewRows),
		BusinessInsight: tableInsight(p),
		Actions:         []string{"view_full_table", "export_csv"},
		SourceBytes:     sourceBytes,
		GeneratedAt:     time.Now().UTC(),
	}
}

// summarizeDBResult is the database flavor of the table analysis.
func (e *Engine) summarizeDBResult(rows []map[string]interface{}, sourceBytes int) *Summary {
	p := profileRows(rows)

	return &Summary{
		Strategy: StrategyDBResult,
		Title:    fmt.Sprintf("Query result: %d records", p.rowCount),
		Description: fmt.Sprintf("Database result set with %d records across %d fields.",
			p.rowCount, len(p.columns)),
		Metrics: map[string]interface{}{
			"rows":            p.rowCount,
			"columns":         len(p.columns),
			"column_names":    p.columns,
			"column_types":    p.columnTypes,
			"completeness":    round2(p.completeness * 100),
			"duplicate_ratio": round2(p.duplicateRatio * 100),
		},
		Preview:         previewRows(rows, p.columns, e.cfg.PreviewRows),
		BusinessInsight: tableInsight(p),
		Actions:         []string{"view_full_table", "export_csv", "rerun_query"},
		SourceBytes:     sourceBytes,
		GeneratedAt:     time.Now().UTC(),
	}
}

func tableInsight(p *tableProfile) string {
	switch {
	case p.rowCount == 0:
		return "The result set is empty."
	case p.completeness < 0.5:
		return fmt.Sprintf("Over half of the cells are empty (%.0f%% complete); the data may be partial.", p.completeness*100)
	case p.duplicateRatio > 0.2:
		return fmt.Sprintf("%.0f%% of rows are duplicates; consider deduplicating before use.", p.duplicateRatio*100)
	default:
		return fmt.Sprintf("Data looks consistent: %.0f%% of cells populated across %d rows.", p.completeness*100, p.rowCount)
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
