package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BioMedGraphica/conn-backend/internal/server/middleware"
	"github.com/BioMedGraphica/conn-backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Processing routes
	apiRoutes.POST("/processing/submit", routes.SubmitJobHandler)
	apiRoutes.POST("/processing/submit-mappings", routes.SubmitMappingsHandler)
	apiRoutes.GET("/processing/status/:task_id", routes.GetTaskStatusHandler)
	apiRoutes.GET("/processing/download/:task_id", routes.DownloadResultHandler)
	apiRoutes.GET("/processing/config/status", routes.GetConfigStatusHandler)
}
