// Package engine is the narrow read-only client for the upstream
// workflow-automation engine. Only three operations are consumed: fetch a
// workflow definition, fetch one execution with its run data, and list
// executions for a workflow. Every call has a bounded timeout; transport and
// 5xx failures surface as UpstreamError so the gate can count them against
// the circuit breaker.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lancaster971/pilotproOS-sub000/internal/config"
	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

// Client is the upstream read API.
type Client interface {
	GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	GetExecution(ctx context.Context, id string, includeData bool) (*Execution, error)
	ListExecutions(ctx context.Context, workflowID string, limit int, status string) ([]Execution, error)
}

// Execution is the engine's view of one run. RunData is the per-node tree
// keyed by node name.
type Execution struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	Status     models.ExecutionStatus `json:"status"`
	StartedAt  time.Time              `json:"startedAt"`
	StoppedAt  *time.Time             `json:"stoppedAt,omitempty"`
	RunData    models.JSONMap         `json:"runData,omitempty"`
}

// HTTPClient talks to the engine's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logger.Logger
}

// NewHTTPClient creates an engine client with the configured fetch timeout.
func NewHTTPClient(cfg config.EngineConfig, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		log:     log,
	}
}

type workflowDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updatedAt"`
	Nodes     []nodeDTO `json:"nodes"`
}

type nodeDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Notes      string     `json:"notes"`
	Annotation string     `json:"annotation"`
	Position   [2]float64 `json:"position"`
}

type executionDTO struct {
	ID         json.Number    `json:"id"`
	WorkflowID json.Number    `json:"workflowId"`
	Status     string         `json:"status"`
	Finished   bool           `json:"finished"`
	StartedAt  time.Time      `json:"startedAt"`
	StoppedAt  *time.Time     `json:"stoppedAt"`
	Data       models.JSONMap `json:"data"`
}

type listDTO struct {
	Data []executionDTO `json:"data"`
}

// GetWorkflow fetches the workflow definition with its node annotations.
func (c *HTTPClient) GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	var dto workflowDTO
	if err := c.get(ctx, "GetWorkflow", "/api/v1/workflows/"+url.PathEscape(id), nil, &dto); err != nil {
		return nil, err
	}

	wf := &models.WorkflowDefinition{
		ID:        dto.ID,
		Name:      dto.Name,
		Active:    dto.Active,
		UpdatedAt: dto.UpdatedAt,
		Nodes:     make([]models.NodeDefinition, 0, len(dto.Nodes)),
	}
	for _, n := range dto.Nodes {
		annotation := n.Annotation
		if annotation == "" {
			annotation = n.Notes
		}
		wf.Nodes = append(wf.Nodes, models.NodeDefinition{
			ID:         n.ID,
			Name:       n.Name,
			Type:       n.Type,
			Annotation: annotation,
			Position:   n.Position,
		})
	}
	return wf, nil
}

// GetExecution fetches one execution, optionally with the full run data.
func (c *HTTPClient) GetExecution(ctx context.Context, id string, includeData bool) (*Execution, error) {
	query := url.Values{}
	if includeData {
		query.Set("includeData", "true")
	}

	var dto executionDTO
	if err := c.get(ctx, "GetExecution", "/api/v1/executions/"+url.PathEscape(id), query, &dto); err != nil {
		return nil, err
	}
	return dtoToExecution(dto), nil
}

// ListExecutions lists executions for a workflow, newest first. status is
// optional.
func (c *HTTPClient) ListExecutions(ctx context.Context, workflowID string, limit int, status string) ([]Execution, error) {
	query := url.Values{}
	query.Set("workflowId", workflowID)
	query.Set("limit", strconv.Itoa(limit))
	if status != "" {
		query.Set("status", status)
	}

	var dto listDTO
	if err := c.get(ctx, "ListExecutions", "/api/v1/executions", query, &dto); err != nil {
		return nil, err
	}

	executions := make([]Execution, 0, len(dto.Data))
	for _, item := range dto.Data {
		executions = append(executions, *dtoToExecution(item))
	}
	return executions, nil
}

func dtoToExecution(dto executionDTO) *Execution {
	exec := &Execution{
		ID:         dto.ID.String(),
		WorkflowID: dto.WorkflowID.String(),
		Status:     models.ExecutionStatus(dto.Status),
		StartedAt:  dto.StartedAt,
		StoppedAt:  dto.StoppedAt,
		RunData:    extractRunData(dto.Data),
	}

	switch exec.Status {
	case models.ExecutionSuccess, models.ExecutionError, models.ExecutionRunning:
	default:
		if dto.Finished {
			exec.Status = models.ExecutionSuccess
		} else {
			exec.Status = models.ExecutionRunning
		}
	}
	return exec
}

// extractRunData digs the per-node run tree out of the engine's
// data.resultData.runData envelope. Missing pieces yield nil rather than an
// error; the reconstructor treats absent run data as tier-3 input.
func extractRunData(data models.JSONMap) models.JSONMap {
	if data == nil {
		return nil
	}
	resultData, ok := data["resultData"].(map[string]interface{})
	if !ok {
		return nil
	}
	runData, ok := resultData["runData"].(map[string]interface{})
	if !ok {
		return nil
	}
	return models.JSONMap(runData)
}

func (c *HTTPClient) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &models.UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warnw("engine request failed", "op", op, "error", err)
		return &models.UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.ErrWorkflowNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warnw("engine request rejected", "op", op, "status", resp.StatusCode)
		return &models.UpstreamError{Op: op, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.UpstreamError{Op: op, Err: err}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", models.ErrMalformedExecution, op, err)
	}
	return nil
}
