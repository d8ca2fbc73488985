package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/BioMedGraphica/conn-backend/internal/metrics"
	"github.com/BioMedGraphica/conn-backend/internal/storage"
	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/pipeline"
	"github.com/BioMedGraphica/conn-backend/pkg/taskstore"
)

// ProcessJobMessage executes one job message end to end. Domain failures
// are already recorded on the task record by the pipeline; an error return
// here means the message itself could not be handled and should go to the
// DLQ.
func ProcessJobMessage(
	ctx context.Context,
	p *pipeline.Pipeline,
	s3Client *awss3.Client,
	msg string,
) error {
	data := new(pipeline.JobMessage)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("decode job message: %w", err)
	}
	if data.TaskID == "" {
		return fmt.Errorf("job message carries no task_id")
	}

	logger.Info("[Queue] Processing job", "task_id", data.TaskID, "job_id", data.JobID)
	start := time.Now()

	if err := p.Execute(ctx, data.TaskID); err != nil {
		return err
	}
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	record, err := p.GetStatus(ctx, data.TaskID)
	if err != nil {
		return err
	}
	metrics.JobsByStatus.WithLabelValues(string(record.Status)).Inc()
	for _, unit := range record.Units {
		metrics.UnitResults.WithLabelValues(unit.Kind, unit.Status).Inc()
		if unit.DroppedRows > 0 {
			metrics.RowsDropped.Add(float64(unit.DroppedRows))
		}
	}

	if record.Status == pipeline.StatusSuccess && s3Client != nil && util.GetEnv("AWS_BUCKET") != "" {
		if err := uploadArchive(ctx, p, s3Client, record); err != nil {
			// The archive stays downloadable from local disk; the upload
			// is convenience, not part of the job contract.
			logger.Warn("[Queue] Archive upload failed", "task_id", data.TaskID, "err", err)
		}
	}

	return nil
}

func uploadArchive(
	ctx context.Context,
	p *pipeline.Pipeline,
	s3Client *awss3.Client,
	record *pipeline.TaskStatusRecord,
) error {
	f, err := os.Open(record.ZipFilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	key, err := storage.PutFile(
		ctx,
		s3Client,
		fmt.Sprintf("jobs/%s", record.JobID),
		record.ZipFilename,
		record.TaskID,
		f,
	)
	if err != nil {
		return err
	}

	err = taskstore.UpdateJSON(ctx, p.Store, taskstore.TaskKey(record.TaskID), func(r *pipeline.TaskStatusRecord) {
		r.ZipObjectKey = key
		r.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		return err
	}
	logger.Info("[Queue] Archive uploaded", "task_id", record.TaskID, "key", key)
	return nil
}
