package middleware

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
)

// App bundles the shared service handles the route handlers pull from the
// request context.
type App struct {
	Pipeline     *pipeline.Pipeline
	DB           *graphdb.DB
	Queue        *amqp091.Channel
	S3           *s3.Client
	MasterAPIKey string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
