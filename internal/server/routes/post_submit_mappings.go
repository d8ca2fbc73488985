package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/BioMedGraphica/conn-backend/internal/metrics"
	"github.com/BioMedGraphica/conn-backend/internal/server/middleware"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
)

// SubmitMappingsHandler accepts the user's soft-match selections for a
// paused task and resumes it. Tasks not at the mapping barrier are
// rejected without touching their state.
func SubmitMappingsHandler(c echo.Context) error {
	type submitMappingsBody struct {
		TaskID   string                    `json:"task_id" validate:"required"`
		Mappings []pipeline.FeatureMapping `json:"mappings" validate:"required"`
	}

	type submitMappingsResponse struct {
		Message string `json:"message"`
		TaskID  string `json:"task_id,omitempty"`
		Status  string `json:"status,omitempty"`
	}

	data := new(submitMappingsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitMappingsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitMappingsResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	p := c.(*middleware.AppContext).App.Pipeline

	if err := p.SubmitMappings(ctx, data.TaskID, data.Mappings); err != nil {
		if errors.Is(err, pipeline.ErrUnknownTask) {
			return c.JSON(http.StatusNotFound, submitMappingsResponse{
				Message: "Task not found",
			})
		}
		if errors.Is(err, pipeline.ErrInvalidState) {
			return c.JSON(http.StatusBadRequest, submitMappingsResponse{
				Message: err.Error(),
			})
		}
		logger.Error("[Server] Failed to submit mappings", "task_id", data.TaskID, "err", err)
		return c.JSON(http.StatusInternalServerError, submitMappingsResponse{
			Message: "Internal server error",
		})
	}

	metrics.JobsAwaitingMapping.Dec()

	return c.JSON(http.StatusOK, submitMappingsResponse{
		Message: "Mappings accepted. Resuming processing.",
		TaskID:  data.TaskID,
		Status:  string(pipeline.StatusResuming),
	})
}
