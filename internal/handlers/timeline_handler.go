// Package handlers exposes the transparency API over HTTP.
package handlers

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/lancaster971/pilotproOS-sub000/internal/models"
	"github.com/lancaster971/pilotproOS-sub000/internal/services"
)

// ExecutionCompleteRequest is the notification body posted by the workflow
// engine when an execution finishes.
type ExecutionCompleteRequest struct {
	ExecutionID string `json:"execution_id" validate:"required"`
	WorkflowID  string `json:"workflow_id" validate:"required"`
	TenantID    string `json:"tenant_id" validate:"required"`
	Status      string `json:"status" validate:"omitempty,oneof=success error running"`
}

// BreakerResetRequest selects which breaker keys to clear. An empty
// workflow_id clears every tracked key.
type BreakerResetRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// TimelineHandler handles timeline-related HTTP requests.
type TimelineHandler struct {
	service      *services.TransparencyService
	engineSecret string
	validator    *validator.Validate
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(service *services.TransparencyService, engineSecret string) *TimelineHandler {
	return &TimelineHandler{
		service:      service,
		engineSecret: engineSecret,
		validator:    validator.New(),
	}
}

// RegisterRoutes registers the transparency API routes.
func (h *TimelineHandler) RegisterRoutes(app *fiber.App) {
	v1 := app.Group("/api/v1")

	workflows := v1.Group("/workflows")
	workflows.Get("/:workflow_id/timeline", h.GetTimeline)
	workflows.Post("/:workflow_id/refresh", h.RefreshWorkflow)

	v1.Post("/executions/complete", h.ExecutionComplete)
	v1.Post("/circuit-breaker/reset", h.ResetBreaker)
}

// GetTimeline returns the reconstructed timeline for a workflow. The tenant
// comes from the X-Tenant-ID header; ?force_refresh=true bypasses the
// response cache.
func (h *TimelineHandler) GetTimeline(c *fiber.Ctx) error {
	workflowID := c.Params("workflow_id")
	tenantID := c.Get("X-Tenant-ID")
	if tenantID == "" {
		return apiError(c, fiber.StatusBadRequest, "MISSING_TENANT", "X-Tenant-ID header is required", "")
	}

	forceRefresh := c.QueryBool("force_refresh", false)

	response, err := h.service.GetTimeline(c.Context(), tenantID, workflowID, forceRefresh)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(response)
}

// RefreshWorkflow resets the circuit breaker for the workflow and imports
// recent executions from the engine.
func (h *TimelineHandler) RefreshWorkflow(c *fiber.Ctx) error {
	workflowID := c.Params("workflow_id")
	tenantID := c.Get("X-Tenant-ID")
	if tenantID == "" {
		return apiError(c, fiber.StatusBadRequest, "MISSING_TENANT", "X-Tenant-ID header is required", "")
	}

	result, err := h.service.RefreshWorkflow(c.Context(), tenantID, workflowID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(result)
}

// ExecutionComplete receives the engine's completion notification. The
// shared secret in X-Engine-Secret gates the endpoint; work happens in the
// background and the request is acknowledged with 202.
func (h *TimelineHandler) ExecutionComplete(c *fiber.Ctx) error {
	secret := c.Get("X-Engine-Secret")
	if h.engineSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.engineSecret)) != 1 {
		return apiError(c, fiber.StatusUnauthorized, "INVALID_SECRET", "Invalid or missing engine secret", "")
	}

	var req ExecutionCompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", err.Error())
	}

	if err := h.service.NotifyExecutionComplete(c.Context(), req.ExecutionID, req.WorkflowID, req.TenantID); err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted":     true,
		"execution_id": req.ExecutionID,
	})
}

// ResetBreaker clears breaker state for one workflow or all of them and
// returns the unblocked keys.
func (h *TimelineHandler) ResetBreaker(c *fiber.Ctx) error {
	tenantID := c.Get("X-Tenant-ID")
	if tenantID == "" {
		return apiError(c, fiber.StatusBadRequest, "MISSING_TENANT", "X-Tenant-ID header is required", "")
	}

	var req BreakerResetRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apiError(c, fiber.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", err.Error())
		}
	}

	unblocked := h.service.ResetBreaker(c.Context(), tenantID, req.WorkflowID)
	return c.JSON(fiber.Map{"unblocked": unblocked})
}

func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrAuthorizationDenied):
		return apiError(c, fiber.StatusForbidden, "AUTHORIZATION_DENIED", "Workflow belongs to a different tenant", "")
	case errors.Is(err, models.ErrWorkflowNotFound):
		return apiError(c, fiber.StatusNotFound, "WORKFLOW_NOT_FOUND", "Workflow not found", "")
	case errors.Is(err, models.ErrNoExecutionData):
		return apiError(c, fiber.StatusNotFound, "NO_EXECUTION_DATA", "No execution data available for workflow", "")
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return apiError(c, fiber.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Workflow engine is unavailable and no cached data exists", err.Error())
	default:
		return apiError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err.Error())
	}
}

func apiError(c *fiber.Ctx, status int, code, message, details string) error {
	return c.Status(status).JSON(models.APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestIDFrom(c),
	})
}

func requestIDFrom(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok {
		return id
	}
	return ""
}
