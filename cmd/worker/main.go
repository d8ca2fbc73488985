package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioMedGraphica/conn-backend/internal/queue"
	"github.com/BioMedGraphica/conn-backend/internal/storage"
	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/embed"
	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/logger/console"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
	"github.com/BioMedGraphica/conn-backend/pkg/taskstore"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// Task store shared with the API server
	store, err := taskstore.NewFromEnv(ctx)
	if err != nil {
		logger.Fatal("Unable to connect to task store", "err", err)
	}

	// Reference database
	db := graphdb.New(util.GetEnv("BMG_DATABASE_PATH"))
	if status := db.Check(); !status.Ready() {
		logger.Warn("Reference database is not ready", "path", status.Path)
	}

	// Embedding client for auto-confirmed soft matches
	embedClient, err := embed.NewFromEnv()
	if err != nil {
		logger.Fatal("Could not create embedding client", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

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

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one job runs at a
	// time; the per-entity parallelism lives inside the pipeline.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	messageChan := make(chan amqp.Delivery)

	go func() {
		msgs, err := consumerCh.Consume(
			queue.ProcessQueue,
			fmt.Sprintf("%s_consumer", queue.ProcessQueue),
			false, // autoAck
			false, // exclusive
			false, // noLocal
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("Failed to start consuming", "queue", queue.ProcessQueue, "err", err)
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping consumer", "queue", queue.ProcessQueue)
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed", "queue", queue.ProcessQueue)
					return
				}
				messageChan <- msg
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case msg := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", queue.ProcessQueue)

				// Domain failures are recorded on the task record and the
				// message is acked; an error here means the message itself
				// could not be handled.
				processingErr := queue.ProcessJobMessage(ctx, p, s3Client, string(msg.Body))
				if processingErr != nil {
					logger.Error("Error processing message", "queue", queue.ProcessQueue, "err", processingErr)
					queue.SendToDLQ(consumerCh, queue.ProcessQueue, msg)
				} else {
					err = msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", queue.ProcessQueue)
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}
