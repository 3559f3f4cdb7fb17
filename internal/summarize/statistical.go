package summarize

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

// numericLeaves flattens every numeric leaf of the payload into one list,
// depth-first with map keys in sorted order so the sequence (and therefore
// the trend label) is deterministic.
func numericLeaves(value interface{}) []float64 {
	var leaves []float64
	var walk func(interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case float64:
			leaves = append(leaves, t)
		case int:
			leaves = append(leaves, float64(t))
		case map[string]interface{}:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		case []interface{}:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(value)
	return leaves
}

type statsProfile struct {
	count    int
	min      float64
	max      float64
	mean     float64
	median   float64
	stddev   float64
	q1       float64
	q3       float64
	outliers []float64
	trend    string
}

func profileNumbers(values []float64) *statsProfile {
	p := &statsProfile{count: len(values), trend: "stable"}
	if p.count == 0 {
		return p
	}

	p.trend = trendLabel(values)

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	p.min = sorted[0]
	p.max = sorted[len(sorted)-1]

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	p.mean = sum / float64(p.count)

	variance := 0.0
	for _, v := range sorted {
		variance += (v - p.mean) * (v - p.mean)
	}
	p.stddev = math.Sqrt(variance / float64(p.count))

	p.median = medianOf(sorted)
	p.q1 = medianOf(sorted[:len(sorted)/2])
	if len(sorted) >= 2 {
		p.q3 = medianOf(sorted[(len(sorted)+1)/2:])
	} else {
		p.q1, p.q3 = p.median, p.median
	}

	iqr := p.q3 - p.q1
	lower := p.q1 - 1.5*iqr
	upper := p.q3 + 1.5*iqr
	for _, v := range sorted {
		if v < lower || v > upper {
			p.outliers = append(p.outliers, v)
		}
	}

	return p
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// trendLabel classifies the sequence by the share of consecutive increases
// versus decreases, ignoring equal neighbors.
func trendLabel(values []float64) string {
	ups, downs := 0, 0
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > values[i-1]:
			ups++
		case values[i] < values[i-1]:
			downs++
		}
	}

	total := ups + downs
	if total == 0 {
		return "stable"
	}
	ratio := float64(ups) / float64(total)
	switch {
	case ratio >= 0.75:
		return "increasing"
	case ratio <= 0.25:
		return "decreasing"
	default:
		return "mixed"
	}
}

// summarizeStatistical builds the numeric profile summary for structurally
// tabular/JSON payloads with no matching content pattern.
func (e *Engine) summarizeStatistical(payload models.JSONMap, sourceBytes int) *Summary {
	values := numericLeaves(map[string]interface{}(payload))
	p := profileNumbers(values)

	previewCount := e.cfg.PreviewRows
	if previewCount > len(values) {
		previewCount = len(values)
	}

	return &Summary{
		Strategy:    StrategyStatistical,
		Title:       fmt.Sprintf("Numeric profile: %d values", p.count),
		Description: fmt.Sprintf("Statistical profile over %d numeric values, trend %s.", p.count, p.trend),
		Metrics: map[string]interface{}{
			"count":    p.count,
			"min":      p.min,
			"max":      p.max,
			"mean":     round2(p.mean),
			"median":   p.median,
			"stddev":   round2(p.stddev),
			"q1":       p.q1,
			"q3":       p.q3,
			"outliers": p.outliers,
			"trend":    p.trend,
		},
		Preview:         values[:previewCount],
		BusinessInsight: statisticalInsight(p),
		Actions:         []string{"view_raw", "export_csv"},
		SourceBytes:     sourceBytes,
		GeneratedAt:     time.Now().UTC(),
	}
}

func statisticalInsight(p *statsProfile) string {
	switch {
	case p.count == 0:
		return "No numeric values found in the payload."
	case len(p.outliers) > 0:
		return fmt.Sprintf("Values trend %s with %d outlier(s) outside the interquartile fences.", p.trend, len(p.outliers))
	default:
		return fmt.Sprintf("Values trend %s with no outliers.", p.trend)
	}
}
