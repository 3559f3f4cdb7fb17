package models

import "time"

// NodeDefinition is a single node of a workflow definition as reported by the
// automation engine. Annotation is free text entered by operators; it may
// carry a visibility tag (see classifier).
type NodeDefinition struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Annotation string     `json:"annotation,omitempty"`
	Position   [2]float64 `json:"position"`
}

// WorkflowDefinition mirrors the engine's workflow, read-only.
type WorkflowDefinition struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Active    bool             `json:"active"`
	Nodes     []NodeDefinition `json:"nodes"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ClassifiedNode is a NodeDefinition with computed visibility attributes.
type ClassifiedNode struct {
	NodeDefinition
	IsTrigger    bool `json:"is_trigger"`
	IsShowTagged bool `json:"is_show_tagged"`
	IsVisible    bool `json:"is_visible"`
	CustomOrder  *int `json:"custom_order,omitempty"`
}
