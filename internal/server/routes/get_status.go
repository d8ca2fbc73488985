package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/BioMedGraphica/conn-backend/internal/server/middleware"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
)

// GetTaskStatusHandler returns the stored task record. While the task is
// awaiting mapping the record carries the full candidate sets.
func GetTaskStatusHandler(c echo.Context) error {
	taskID := c.Param("task_id")
	if taskID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing task id"})
	}

	ctx := c.Request().Context()
	p := c.(*middleware.AppContext).App.Pipeline

	record, err := p.GetStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownTask) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Task not found"})
		}
		logger.Error("[Server] Failed to load task status", "task_id", taskID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, record)
}
