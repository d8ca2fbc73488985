package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/BioMedGraphica/conn-backend/internal/server/middleware"
)

// GetConfigStatusHandler reports whether the configured reference database
// path is usable for processing.
func GetConfigStatusHandler(c echo.Context) error {
	db := c.(*middleware.AppContext).App.DB
	status := db.Check()

	return c.JSON(http.StatusOK, map[string]any{
		"status": status,
		"ready":  status.Ready(),
	})
}
