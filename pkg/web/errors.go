package web

import (
	"errors"

	"github.com/dukex/automation/pkg/services"
	"github.com/dukex/automation/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps the service and engine error taxonomy to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsNotFoundError(err):
		return problem(c, fiber.StatusNotFound, "not_found", err.Error())

	case services.IsValidationError(err), errors.Is(err, workflow.ErrInvalidEvent):
		return problem(c, fiber.StatusBadRequest, "validation_error", err.Error())

	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case services.IsBusinessRuleError(err):
		return problem(c, fiber.StatusUnprocessableEntity, "business_rule_violation", err.Error())

	case errors.Is(err, workflow.ErrManagerClosed):
		return problem(c, fiber.StatusServiceUnavailable, "shutting_down", err.Error())

	default:
		return internalError(c, err)
	}
}
