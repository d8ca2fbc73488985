package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/BioMedGraphica/conn-backend/internal/metrics"
	"github.com/BioMedGraphica/conn-backend/internal/server/middleware"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/match"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
)

// SubmitJobHandler accepts a processing job. Configuration errors come
// back as 400 before any state is written; a job with interactive soft
// matches comes back as awaiting_mapping with the candidates available on
// the status endpoint.
func SubmitJobHandler(c echo.Context) error {
	type submitJobBody struct {
		JobID       string               `json:"job_id"`
		Entities    []match.EntityConfig `json:"entities" validate:"required"`
		Label       *match.LabelConfig   `json:"label"`
		Finalize    match.FinalizeConfig `json:"finalize"`
		OutputDir   string               `json:"output_dir" validate:"required"`
		AutoConfirm bool                 `json:"auto_confirm"`
	}

	type submitJobResponse struct {
		Message string `json:"message"`
		TaskID  string `json:"task_id,omitempty"`
		Status  string `json:"status,omitempty"`
	}

	data := new(submitJobBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitJobResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, submitJobResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	p := c.(*middleware.AppContext).App.Pipeline

	taskID, status, err := p.Submit(ctx, pipeline.SubmitParams{
		JobID:       data.JobID,
		Entities:    data.Entities,
		Label:       data.Label,
		Finalize:    data.Finalize,
		OutputDir:   data.OutputDir,
		AutoConfirm: data.AutoConfirm,
	})
	if err != nil {
		logger.Error("[Server] Job submission rejected", "job_id", data.JobID, "err", err)
		return c.JSON(http.StatusBadRequest, submitJobResponse{
			Message: err.Error(),
		})
	}

	metrics.JobsSubmitted.Inc()
	message := "Pipeline started."
	if status == pipeline.StatusAwaitingMapping {
		metrics.JobsAwaitingMapping.Inc()
		message = "Awaiting user mapping selection."
	}

	return c.JSON(http.StatusOK, submitJobResponse{
		Message: message,
		TaskID:  taskID,
		Status:  string(status),
	})
}
