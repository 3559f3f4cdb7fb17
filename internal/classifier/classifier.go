// Package classifier decides which workflow nodes are business-relevant and
// in what order they are displayed. Operators mark nodes with a free-text
// "show" annotation, optionally ranked ("show-1", "show_2"); trigger nodes
// are always visible and always displayed first.
package classifier

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
)

var showOrderPattern = regexp.MustCompile(`(?i)show[-_](\d+)`)

// Known trigger node types. Matching is by suffix or substring so engine
// type names like "n8n-nodes-base.webhook" resolve without an exact list.
var triggerTypes = []string{
	"trigger",
	"webhook",
	"cron",
	"schedule",
	"interval",
	"poll",
}

// Name keywords that mark a node as trigger-like even when its declared type
// does not.
var triggerNameKeywords = []string{
	"trigger",
	"webhook",
	"when ",
	"on new",
	"on update",
}

// Classifier computes per-node visibility and display order.
type Classifier struct{}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify computes visibility attributes for every node. Input order is
// preserved; use Sort for display order.
func (c *Classifier) Classify(nodes []models.NodeDefinition) []models.ClassifiedNode {
	classified := make([]models.ClassifiedNode, 0, len(nodes))
	for _, node := range nodes {
		cn := models.ClassifiedNode{NodeDefinition: node}
		cn.IsTrigger = c.isTrigger(node)
		cn.IsShowTagged, cn.CustomOrder = parseShowTag(node.Annotation)
		cn.IsVisible = cn.IsTrigger || cn.IsShowTagged
		classified = append(classified, cn)
	}
	return classified
}

// Sort orders classified nodes for display, stably:
//  1. triggers before non-triggers
//  2. among non-triggers, non-nil custom order ascending, before any without
//  3. remaining ties by canvas Y position ascending, then name
func (c *Classifier) Sort(nodes []models.ClassifiedNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]

		if a.IsTrigger != b.IsTrigger {
			return a.IsTrigger
		}

		if !a.IsTrigger {
			switch {
			case a.CustomOrder != nil && b.CustomOrder != nil:
				if *a.CustomOrder != *b.CustomOrder {
					return *a.CustomOrder < *b.CustomOrder
				}
			case a.CustomOrder != nil:
				return true
			case b.CustomOrder != nil:
				return false
			}
		}

		if a.Position[1] != b.Position[1] {
			return a.Position[1] < b.Position[1]
		}
		return a.Name < b.Name
	})
}

// Visible filters a sorted classified list down to the visible nodes.
func (c *Classifier) Visible(nodes []models.ClassifiedNode) []models.ClassifiedNode {
	visible := make([]models.ClassifiedNode, 0, len(nodes))
	for _, node := range nodes {
		if node.IsVisible {
			visible = append(visible, node)
		}
	}
	return visible
}

func (c *Classifier) isTrigger(node models.NodeDefinition) bool {
	nodeType := strings.ToLower(node.Type)
	for _, t := range triggerTypes {
		if strings.Contains(nodeType, t) {
			return true
		}
	}

	name := strings.ToLower(node.Name)
	for _, kw := range triggerNameKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// parseShowTag reports whether the annotation carries a "show" tag and, when
// the tag is ranked (show-3, show_3), the declared order. An unranked tag
// leaves the order nil.
func parseShowTag(annotation string) (bool, *int) {
	if !strings.Contains(strings.ToLower(annotation), "show") {
		return false, nil
	}

	match := showOrderPattern.FindStringSubmatch(annotation)
	if match == nil {
		return true, nil
	}

	order, err := strconv.Atoi(match[1])
	if err != nil {
		return true, nil
	}
	return true, &order
}
