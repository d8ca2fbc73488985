package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/BioMedGraphica/conn-backend/pkg/embed"
	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/match"
	"github.com/BioMedGraphica/conn-backend/pkg/taskstore"
)

// Pipeline wires the orchestrator's collaborators: the durable store, the
// reference database, the embedding client for soft-match candidate
// generation, and the queue publisher.
type Pipeline struct {
	Store   taskstore.Store
	DB      *graphdb.DB
	Embed   embed.Client
	Publish PublishFunc
}

// SubmitParams is the job submission contract. JobID is generated when
// left empty.
type SubmitParams struct {
	JobID       string
	Entities    []match.EntityConfig
	Label       *match.LabelConfig
	Finalize    match.FinalizeConfig
	OutputDir   string
	AutoConfirm bool
}

// Submit validates the configs, persists the continuation and either
// pauses for user mapping (any soft entity, interactive) or dispatches the
// job to the queue. Configuration errors are returned before any state is
// written; the job never starts.
func (p *Pipeline) Submit(ctx context.Context, params SubmitParams) (string, Status, error) {
	if params.JobID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return "", "", fmt.Errorf("generate job id: %w", err)
		}
		params.JobID = id
	}
	if params.OutputDir == "" {
		return "", "", fmt.Errorf("output_dir is required")
	}
	if err := match.ValidateJob(params.Entities, params.Label, params.Finalize); err != nil {
		return "", "", err
	}

	taskID := uuid.NewString()
	now := time.Now().UTC()

	cont := Continuation{
		TaskID:      taskID,
		JobID:       params.JobID,
		Entities:    params.Entities,
		Label:       params.Label,
		Finalize:    params.Finalize,
		OutputDir:   params.OutputDir,
		AutoConfirm: params.AutoConfirm,
	}
	if err := taskstore.SetJSON(ctx, p.Store, taskstore.ContinuationKey(taskID), cont); err != nil {
		return "", "", fmt.Errorf("persist continuation: %w", err)
	}

	record := TaskStatusRecord{
		TaskID:    taskID,
		JobID:     params.JobID,
		Status:    StatusSubmitted,
		Message:   "Pipeline received, preparing tasks.",
		CreatedAt: now,
		UpdatedAt: now,
	}

	var soft []match.EntityConfig
	for _, cfg := range params.Entities {
		if cfg.MatchMode == match.ModeSoft && !cfg.IsVirtual {
			soft = append(soft, cfg)
		}
	}

	// Interactive soft matches generate their candidates synchronously at
	// submission and hold the job at the mapping barrier. With
	// auto-confirm the worker takes the top candidate itself and no pause
	// happens.
	if len(soft) > 0 && !params.AutoConfirm {
		candidates := make([]match.CandidateSet, 0, len(soft))
		for _, cfg := range soft {
			set, err := match.GenerateCandidates(ctx, p.DB, p.Embed, cfg, match.DefaultTopK)
			if err != nil {
				return "", "", fmt.Errorf("generate candidates for %s: %w", cfg.FeatureLabel, err)
			}
			candidates = append(candidates, *set)
		}
		if err := taskstore.SetJSON(ctx, p.Store, taskstore.SoftMatchKey(params.JobID), candidates); err != nil {
			return "", "", fmt.Errorf("persist candidates: %w", err)
		}

		record.Status = StatusAwaitingMapping
		record.Message = "Awaiting user mapping selection."
		record.MappingCandidates = candidates
		if err := taskstore.SetJSON(ctx, p.Store, taskstore.TaskKey(taskID), record); err != nil {
			return "", "", fmt.Errorf("persist task record: %w", err)
		}
		logger.Info("[Pipeline] Job paused for mapping", "task_id", taskID, "job_id", params.JobID, "soft_entities", len(soft))
		return taskID, StatusAwaitingMapping, nil
	}

	if err := taskstore.SetJSON(ctx, p.Store, taskstore.TaskKey(taskID), record); err != nil {
		return "", "", fmt.Errorf("persist task record: %w", err)
	}
	if err := p.Publish(ctx, JobMessage{TaskID: taskID, JobID: params.JobID}); err != nil {
		return "", "", fmt.Errorf("publish job: %w", err)
	}
	logger.Info("[Pipeline] Job submitted", "task_id", taskID, "job_id", params.JobID)
	return taskID, StatusSubmitted, nil
}

// SubmitMappings accepts the user's confirmed mappings for a paused task
// and relaunches the fan-out. Rejected with ErrInvalidState when the task
// is not awaiting mapping; nothing is mutated in that case.
func (p *Pipeline) SubmitMappings(ctx context.Context, taskID string, mappings []FeatureMapping) error {
	var record TaskStatusRecord
	if err := taskstore.GetJSON(ctx, p.Store, taskstore.TaskKey(taskID), &record); err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
		}
		return err
	}
	if record.Status != StatusAwaitingMapping {
		return fmt.Errorf("%w: status is %s", ErrInvalidState, record.Status)
	}

	if err := taskstore.SetJSON(ctx, p.Store, taskstore.MappingsKey(record.JobID), mappings); err != nil {
		return fmt.Errorf("persist mappings: %w", err)
	}

	record.Status = StatusResuming
	record.Message = "Soft match mappings submitted. Resuming processing."
	record.MappingCandidates = nil
	record.UpdatedAt = time.Now().UTC()
	if err := taskstore.SetJSON(ctx, p.Store, taskstore.TaskKey(taskID), record); err != nil {
		return fmt.Errorf("persist task record: %w", err)
	}

	if err := p.Publish(ctx, JobMessage{TaskID: taskID, JobID: record.JobID}); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	logger.Info("[Pipeline] Job resuming after mapping", "task_id", taskID, "job_id", record.JobID)
	return nil
}

// GetStatus returns the current task record. While awaiting_mapping the
// stored candidate sets ride along on the record itself.
func (p *Pipeline) GetStatus(ctx context.Context, taskID string) (*TaskStatusRecord, error) {
	var record TaskStatusRecord
	if err := taskstore.GetJSON(ctx, p.Store, taskstore.TaskKey(taskID), &record); err != nil {
		if errors.Is(err, taskstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
		}
		return nil, err
	}
	return &record, nil
}
