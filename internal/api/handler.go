package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/pkg/model"
)

// BuildService defines the interface for executing signing runs.
type BuildService interface {
	Execute(ctx context.Context, req model.BuildRequest) (*model.RunResult, error)
}

// RunReader looks up the cached state of past runs.
type RunReader interface {
	GetRunResult(ctx context.Context, runID string) (*model.RunResult, error)
	GetRunEvents(ctx context.Context, runID string) ([]model.RunEvent, error)
}

// BuildHandler handles HTTP API requests for signing runs.
type BuildHandler struct {
	logger *zap.Logger
	builds BuildService
	runs   RunReader
}

// NewBuildHandler creates a new BuildHandler.
func NewBuildHandler(logger *zap.Logger, builds BuildService, runs RunReader) *BuildHandler {
	return &BuildHandler{
		logger: logger,
		builds: builds,
		runs:   runs,
	}
}

// StartBuildHandler handles build requests.
func (h *BuildHandler) StartBuildHandler(c *fiber.Ctx) error {
	var req model.BuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := h.builds.Execute(c.Context(), req)
	if err != nil {
		h.logger.Error("api.start_build.failed",
			zap.String("client", req.ClientID),
			zap.String("experience", req.ExperienceName),
			zap.Error(err))
		return c.Status(statusForError(err)).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetRunHandler returns the cached state of a run.
func (h *BuildHandler) GetRunHandler(c *fiber.Ctx) error {
	runID := c.Params("id")
	if runID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "run id is required"})
	}

	result, err := h.runs.GetRunResult(c.Context(), runID)
	if err != nil {
		h.logger.Error("api.get_run.failed",
			zap.String("run_id", runID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if result == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// GetRunEventsHandler returns the journaled steps of a run.
func (h *BuildHandler) GetRunEventsHandler(c *fiber.Ctx) error {
	runID := c.Params("id")
	if runID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "run id is required"})
	}

	events, err := h.runs.GetRunEvents(c.Context(), runID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(events) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"events": events})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, model.ErrBuildInProgress):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrAuthentication):
		return fiber.StatusUnauthorized
	case errors.Is(err, model.ErrPromptAborted):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusBadGateway
	}
}
