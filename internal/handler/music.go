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

type MusicHandler struct {
	service   *service.MusicService
	validator *validator.Validate
}

func NewMusicHandler(svc *service.MusicService, v *validator.Validate) *MusicHandler {
	return &MusicHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/tracks/:trackId/generate
func (h *MusicHandler) Submit(c *fiber.Ctx) error {
	trackID := c.Params("trackId")
	if trackID == "" {
		return response.ValidationError(c, "Track ID is required", nil)
	}

	var req model.SubmitJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.SubmitJob(c.Context(), trackID, &req)
	if err != nil {
		// ErrConflict here means racing submissions contended on the
		// track slot; to the caller that is the same rejection.
		if errors.Is(err, store.ErrActiveJobExists) || errors.Is(err, store.ErrConflict) {
			return response.SubmissionRejected(c, "Generation already in progress for this track")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Retry handles POST /api/tracks/:trackId/retry
func (h *MusicHandler) Retry(c *fiber.Ctx) error {
	trackID := c.Params("trackId")
	if trackID == "" {
		return response.ValidationError(c, "Track ID is required", nil)
	}

	result, err := h.service.RetryJob(c.Context(), trackID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "No job found for track")
		case errors.Is(err, service.ErrNotRetryable):
			return response.ValidationError(c, "Latest job for track is not failed", nil)
		case errors.Is(err, store.ErrActiveJobExists), errors.Is(err, store.ErrConflict):
			return response.SubmissionRejected(c, "Generation already in progress for this track")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// AlbumStatus handles GET /api/albums/:albumId/music-status
func (h *MusicHandler) AlbumStatus(c *fiber.Ctx) error {
	albumID := c.Params("albumId")
	if albumID == "" {
		return response.ValidationError(c, "Album ID is required", nil)
	}

	result, err := h.service.GetAlbumMusicStatus(c.Context(), albumID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// RetryAllFailed handles POST /api/albums/:albumId/retry-failed
func (h *MusicHandler) RetryAllFailed(c *fiber.Ctx) error {
	albumID := c.Params("albumId")
	if albumID == "" {
		return response.ValidationError(c, "Album ID is required", nil)
	}

	result, err := h.service.RetryAllFailed(c.Context(), albumID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
