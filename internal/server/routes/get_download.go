package routes

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/BioMedGraphica/conn-backend/internal/server/middleware"
	"github.com/BioMedGraphica/conn-backend/internal/storage"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
)

// DownloadResultHandler serves the result archive of a finished task.
// Archives mirrored to S3 redirect to a presigned link; otherwise the
// local zip is streamed as an attachment.
func DownloadResultHandler(c echo.Context) error {
	taskID := c.Param("task_id")
	if taskID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Missing task id"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	record, err := app.Pipeline.GetStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownTask) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Task not found"})
		}
		logger.Error("[Server] Failed to load task status", "task_id", taskID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	if record.Status != pipeline.StatusSuccess {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"message": "Task has not finished successfully",
			"status":  string(record.Status),
		})
	}

	if record.ZipObjectKey != "" && app.S3 != nil {
		link, err := storage.GenerateDownloadLink(ctx, app.S3, record.ZipObjectKey)
		if err == nil {
			return c.Redirect(http.StatusTemporaryRedirect, link)
		}
		logger.Warn("[Server] Presign failed, falling back to local file", "task_id", taskID, "err", err)
	}

	if record.ZipFilePath == "" {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Result archive not found"})
	}
	if _, err := os.Stat(record.ZipFilePath); err != nil {
		logger.Error("[Server] Result archive missing on disk", "task_id", taskID, "path", record.ZipFilePath)
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Result archive not found"})
	}

	return c.Attachment(record.ZipFilePath, record.ZipFilename)
}
