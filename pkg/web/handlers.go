// Package web provides the HTTP handlers of the workflow automation API.
package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dukex/automation/pkg/models"
	"github.com/dukex/automation/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
)

// EventIngester accepts business events for dispatch.
type EventIngester interface {
	Ingest(ctx context.Context, eventType models.TriggerType, tenantID string, payload map[string]any) (*models.Event, error)
}

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	HealthCheck() (string, bool)
}

type APIHandlers struct {
	workflowService *services.Workflow
	ingester        EventIngester
	validator       *validator.Validate
	registry        HealthChecker
	clock           clockwork.Clock
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	ingester EventIngester,
	validator *validator.Validate,
	registry HealthChecker,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		ingester:        ingester,
		validator:       validator,
		registry:        registry,
		clock:           clockwork.NewRealClock(),
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	t := router.Group("/tenants/:tenant")
	t.Post("/events", h.IngestEvent)
	t.Get("/stats", h.GetTenantStats)

	w := t.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/deactivate", h.DeactivateWorkflow)
	w.Put("/:id/trigger", h.UpdateTrigger)
	w.Put("/:id/conditions", h.UpdateConditions)
	w.Post("/:id/actions", h.AddAction)
	w.Put("/:id/actions/order", h.ReorderActions)
	w.Patch("/:id/actions/:actionId", h.UpdateAction)
	w.Delete("/:id/actions/:actionId", h.RemoveAction)
	w.Get("/:id/executions", h.GetExecutions)
	w.Get("/:id/stats", h.GetWorkflowStats)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Automation API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Automation API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": h.clock.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

// parseListWorkflowsRequest parses the query parameters for listing workflows.
func parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{TenantID: c.Params("tenant")}

	var err error

	if limitStr := c.Query("limit"); limitStr != "" {
		if req.Limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, err
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if req.Offset, err = strconv.Atoi(offsetStr); err != nil {
			return nil, err
		}
	}

	req.Search = c.Query("search")
	req.TriggerType = models.TriggerType(c.Query("trigger_type"))

	if req.Active, err = queryBool(c, "active"); err != nil {
		return nil, err
	}

	if req.HasSchedule, err = queryBool(c, "has_schedule"); err != nil {
		return nil, err
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func queryBool(c fiber.Ctx, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}

	return &value, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("tenant"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), services.CreateWorkflowRequest{
		TenantID:    c.Params("tenant"),
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Actions:     req.Actions,
		Conditions:  req.Conditions,
		Inactive:    req.Active != nil && !*req.Active,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.UpdateDetails(c.Context(), c.Params("tenant"), c.Params("id"), req.Name, req.Description)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflowService.Delete(c.Context(), c.Params("tenant"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	return h.respond(c)(h.workflowService.Activate(c.Context(), c.Params("tenant"), c.Params("id")))
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	return h.respond(c)(h.workflowService.Deactivate(c.Context(), c.Params("tenant"), c.Params("id")))
}

func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	var trigger models.WorkflowTrigger
	if err := c.Bind().JSON(&trigger); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	return h.respond(c)(h.workflowService.UpdateTrigger(c.Context(), c.Params("tenant"), c.Params("id"), trigger))
}

func (h *APIHandlers) UpdateConditions(c fiber.Ctx) error {
	var req UpdateConditionsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.respond(c)(h.workflowService.UpdateConditions(c.Context(), c.Params("tenant"), c.Params("id"), req.Conditions))
}

func (h *APIHandlers) AddAction(c fiber.Ctx) error {
	var action models.WorkflowAction
	if err := c.Bind().JSON(&action); err != nil {
		return badRequest(c, "Invalid JSON: "+err.Error())
	}

	updated, err := h.workflowService.AddAction(c.Context(), c.Params("tenant"), c.Params("id"), action)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(updated)
}

func (h *APIHandlers) UpdateAction(c fiber.Ctx) error {
	var req UpdateActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	tenantID, workflowID, actionID := c.Params("tenant"), c.Params("id"), c.Params("actionId")

	update := models.ActionUpdate{
		Type:       req.Type,
		Order:      req.Order,
		Conditions: req.Conditions,
		Delay:      req.Delay,
		ClearDelay: req.ClearDelay,
	}

	if len(req.Config) > 0 {
		actionType := models.ActionType("")
		if req.Type != nil {
			actionType = *req.Type
		} else {
			current, err := h.workflowService.FetchByID(c.Context(), tenantID, workflowID)
			if err != nil {
				return handleServiceError(c, err)
			}

			action, ok := current.Action(actionID)
			if !ok {
				return h.respond(c)(h.workflowService.UpdateAction(c.Context(), tenantID, workflowID, actionID, update))
			}

			actionType = action.Type
		}

		cfg, err := models.DecodeActionConfig(actionType, req.Config)
		if err != nil {
			return badRequest(c, err.Error())
		}

		update.Config = cfg
	}

	return h.respond(c)(h.workflowService.UpdateAction(c.Context(), tenantID, workflowID, actionID, update))
}

func (h *APIHandlers) RemoveAction(c fiber.Ctx) error {
	return h.respond(c)(h.workflowService.RemoveAction(c.Context(), c.Params("tenant"), c.Params("id"), c.Params("actionId")))
}

func (h *APIHandlers) ReorderActions(c fiber.Ctx) error {
	var req ReorderActionsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.respond(c)(h.workflowService.ReorderActions(c.Context(), c.Params("tenant"), c.Params("id"), req.Orders))
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit := 50

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		limit = parsed
	}

	executions, err := h.workflowService.Executions(c.Context(), c.Params("tenant"), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	stats, err := h.workflowService.Stats(c.Context(), c.Params("tenant"), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetTenantStats(c fiber.Ctx) error {
	stats, err := h.workflowService.Stats(c.Context(), c.Params("tenant"), "")
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

// IngestEvent accepts a business event; matching workflows run asynchronously.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req IngestEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event, err := h.ingester.Ingest(c.Context(), req.Type, c.Params("tenant"), req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(event)
}

func (h *APIHandlers) respond(c fiber.Ctx) func(*models.Workflow, error) error {
	return func(workflow *models.Workflow, err error) error {
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(workflow)
	}
}
