package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioMedGraphica/conn-backend/internal/queue"
	mid "github.com/BioMedGraphica/conn-backend/internal/server/middleware"
	"github.com/BioMedGraphica/conn-backend/internal/storage"
	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/embed"
	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
	"github.com/BioMedGraphica/conn-backend/pkg/taskstore"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := taskstore.NewFromEnv(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to task store", "err", err)
	}

	db := graphdb.New(util.GetEnv("BMG_DATABASE_PATH"))
	if status := db.Check(); !status.Ready() {
		logger.Warn("Reference database is not ready", "path", status.Path)
	}

	embedClient, err := embed.NewFromEnv()
	if err != nil {
		logger.Fatal("Failed to create embedding client", "err", err)
	}

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	p := &pipeline.Pipeline{
		Store: store,
		DB:    db,
		Embed: embedClient,
		Publish: func(_ context.Context, msg pipeline.JobMessage) error {
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			return queue.PublishFIFO(ch, queue.ProcessQueue, data)
		},
	}

	app := &mid.App{
		Pipeline:     p,
		DB:           db,
		Queue:        ch,
		S3:           s3,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("256M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
