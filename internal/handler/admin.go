package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/albumforge/api/internal/model"
	"github.com/albumforge/api/internal/service"
	"github.com/albumforge/api/internal/store"
	"github.com/albumforge/api/pkg/response"
)

// AdminHandler exposes the operator recovery actions for stuck jobs.
type AdminHandler struct {
	service   *service.MusicService
	validator *validator.Validate
}

func NewAdminHandler(svc *service.MusicService, v *validator.Validate) *AdminHandler {
	return &AdminHandler{
		service:   svc,
		validator: v,
	}
}

// Restart handles POST /api/admin/jobs/:jobId/restart
func (h *AdminHandler) Restart(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.RestartJob(c.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, service.ErrJobCompleted):
			return response.ValidationError(c, "Completed jobs cannot be restarted", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// MarkFailed handles POST /api/admin/jobs/:jobId/fail
func (h *AdminHandler) MarkFailed(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.AdminFailRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.MarkJobFailed(c.Context(), jobID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, store.ErrConflict):
			return response.ValidationError(c, "Job is not pending or processing", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
