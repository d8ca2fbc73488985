package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/archive"
	"github.com/BioMedGraphica/conn-backend/pkg/artifact"
	"github.com/BioMedGraphica/conn-backend/pkg/finalize"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/match"
	"github.com/BioMedGraphica/conn-backend/pkg/matrix"
	"github.com/BioMedGraphica/conn-backend/pkg/taskstore"
)

// Execute runs one job to a terminal state: reconcile the common samples,
// resolve every entity and the optional label concurrently, join, finalize
// and package. Domain failures are recorded on the task record as FAILURE
// and do not surface as an error; only store access problems do.
//
// Execute is idempotent per unit: a resumed job skips units whose
// artifacts are already durable, and re-runs the cheap read-only sample
// reconciliation.
func (p *Pipeline) Execute(ctx context.Context, taskID string) error {
	var cont Continuation
	if err := taskstore.GetJSON(ctx, p.Store, taskstore.ContinuationKey(taskID), &cont); err != nil {
		return fmt.Errorf("load continuation for %s: %w", taskID, err)
	}

	if err := p.setStatus(ctx, taskID, StatusProcessing, "Main processing tasks running.", nil); err != nil {
		return err
	}
	start := time.Now()

	common, err := match.CommonSamples(cont.Entities)
	if err != nil {
		logger.Error("[Pipeline] Sample reconciliation failed", "task_id", taskID, "err", err)
		return p.fail(ctx, taskID, fmt.Errorf("reconcile samples: %w", err))
	}
	if err := taskstore.SetJSON(ctx, p.Store, taskstore.CommonSamplesKey(cont.JobID), common); err != nil {
		return fmt.Errorf("persist common samples: %w", err)
	}
	logger.Info("[Pipeline] Common samples reconciled", "task_id", taskID, "count", len(common))

	var mappings []FeatureMapping
	if err := taskstore.GetJSON(ctx, p.Store, taskstore.MappingsKey(cont.JobID), &mappings); err != nil {
		if !errors.Is(err, taskstore.ErrNotFound) {
			return fmt.Errorf("load mappings: %w", err)
		}
	}

	// Fan-out: one unit per entity plus one for the label. Units are
	// independent and write to disjoint paths; their failures are
	// captured, never aborting siblings.
	units := make([]UnitResult, 0, len(cont.Entities)+1)
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(util.GetEnvInt("PIPELINE_PARALLEL_UNITS", 4))

	for _, cfg := range cont.Entities {
		cfg := cfg
		g.Go(func() error {
			result := p.runEntityUnit(gCtx, cont, cfg, common, mappings)
			mu.Lock()
			units = append(units, result)
			mu.Unlock()
			return nil
		})
	}
	if cont.Label != nil {
		g.Go(func() error {
			result := p.runLabelUnit(cont, *cont.Label, common)
			mu.Lock()
			units = append(units, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return p.fail(ctx, taskID, err)
	}

	failed := 0
	for _, u := range units {
		if u.Status == UnitError {
			failed++
			logger.Warn("[Pipeline] Unit failed", "task_id", taskID, "feature_label", u.FeatureLabel, "err", u.Error)
		}
	}
	logger.Info("[Pipeline] Fan-out joined", "task_id", taskID, "units", len(units), "failed", failed)

	err = taskstore.UpdateJSON(ctx, p.Store, taskstore.TaskKey(taskID), func(r *TaskStatusRecord) {
		r.Status = StatusFinalizing
		r.Message = "Merging matrices and filtering edges."
		r.CommonSampleCount = len(common)
		r.Units = units
		r.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		return err
	}

	result, err := finalize.Run(p.DB, cont.OutputDir, cont.Finalize)
	if err != nil {
		logger.Error("[Pipeline] Finalize failed", "task_id", taskID, "err", err)
		return p.fail(ctx, taskID, fmt.Errorf("finalize: %w", err))
	}

	zipPath, err := archive.Create(cont.OutputDir, cont.JobID)
	if err != nil {
		logger.Error("[Pipeline] Packaging failed", "task_id", taskID, "err", err)
		return p.fail(ctx, taskID, fmt.Errorf("package output: %w", err))
	}

	err = taskstore.UpdateJSON(ctx, p.Store, taskstore.TaskKey(taskID), func(r *TaskStatusRecord) {
		r.Status = StatusSuccess
		r.Message = "Processing complete."
		r.Finalize = result
		r.ZipFilePath = zipPath
		r.ZipFilename = archive.Filename(cont.JobID)
		r.UpdatedAt = time.Now().UTC()
	})
	if err != nil {
		return err
	}

	logger.Info("[Pipeline] Job complete",
		"task_id", taskID,
		"job_id", cont.JobID,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (p *Pipeline) runEntityUnit(
	ctx context.Context,
	cont Continuation,
	cfg match.EntityConfig,
	common []string,
	mappings []FeatureMapping,
) UnitResult {
	result := UnitResult{FeatureLabel: cfg.FeatureLabel, Kind: UnitHard}
	if cfg.IsVirtual {
		result.Kind = UnitVirtual
	} else if cfg.MatchMode == match.ModeSoft {
		result.Kind = UnitSoft
	}

	if artifact.UnitDone(cont.OutputDir, cfg.FeatureLabel) {
		result.Status = UnitSuccess
		result.Skipped = true
		logger.Debug("[Pipeline] Unit artifacts already durable, skipping", "feature_label", cfg.FeatureLabel)
		return result
	}

	var (
		aligned *matrix.Aligned
		mapping match.RawIDMapping
		stats   match.Stats
		err     error
	)
	switch result.Kind {
	case UnitSoft:
		confirmed := confirmedFor(mappings, cfg.FeatureLabel)
		if confirmed == nil && cont.AutoConfirm {
			var set *match.CandidateSet
			set, err = p.candidatesFor(ctx, cont.JobID, cfg)
			if err != nil {
				break
			}
			confirmed = match.AutoConfirm(set)
		}
		if err == nil && confirmed == nil {
			err = fmt.Errorf("no confirmed mappings for %s", cfg.FeatureLabel)
			break
		}
		if err == nil {
			aligned, mapping, stats, err = match.Apply(p.DB, cfg, common, confirmed)
		}
	default:
		aligned, mapping, stats, err = match.Hard(p.DB, cfg, common)
	}
	if err != nil {
		result.Status = UnitError
		result.Error = err.Error()
		return result
	}

	if err := matrix.WriteNPY(artifact.MatrixPath(cont.OutputDir, cfg.FeatureLabel), aligned.Data); err != nil {
		result.Status = UnitError
		result.Error = err.Error()
		return result
	}
	if err := artifact.WriteIDMap(artifact.IDMapPath(cont.OutputDir, cfg.FeatureLabel), mapping); err != nil {
		result.Status = UnitError
		result.Error = err.Error()
		return result
	}

	result.Status = UnitSuccess
	result.Stats = stats
	return result
}

// candidatesFor returns the candidate set for one soft entity, preferring
// the sets persisted under the job's softmatch key over re-embedding every
// identifier. Freshly generated sets are persisted back, so a resumed job
// reuses them.
func (p *Pipeline) candidatesFor(ctx context.Context, jobID string, cfg match.EntityConfig) (*match.CandidateSet, error) {
	var stored []match.CandidateSet
	err := taskstore.GetJSON(ctx, p.Store, taskstore.SoftMatchKey(jobID), &stored)
	if err != nil && !errors.Is(err, taskstore.ErrNotFound) {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	for i := range stored {
		if stored[i].FeatureLabel == cfg.FeatureLabel {
			return &stored[i], nil
		}
	}

	set, err := match.GenerateCandidates(ctx, p.DB, p.Embed, cfg, match.DefaultTopK)
	if err != nil {
		return nil, err
	}
	stored = append(stored, *set)
	if err := taskstore.SetJSON(ctx, p.Store, taskstore.SoftMatchKey(jobID), stored); err != nil {
		return nil, fmt.Errorf("persist candidates: %w", err)
	}
	return set, nil
}

func (p *Pipeline) runLabelUnit(cont Continuation, cfg match.LabelConfig, common []string) UnitResult {
	result := UnitResult{FeatureLabel: cfg.FeatureLabel, Kind: UnitLabel}

	labels, err := match.Label(cfg, common)
	if err != nil {
		result.Status = UnitError
		result.Error = err.Error()
		return result
	}
	if err := matrix.WriteVectorNPY(artifact.LabelPath(cont.OutputDir, cfg.FeatureLabel), labels); err != nil {
		result.Status = UnitError
		result.Error = err.Error()
		return result
	}

	result.Status = UnitSuccess
	return result
}

func (p *Pipeline) setStatus(ctx context.Context, taskID string, status Status, message string, err error) error {
	return taskstore.UpdateJSON(ctx, p.Store, taskstore.TaskKey(taskID), func(r *TaskStatusRecord) {
		r.Status = status
		r.Message = message
		if err != nil {
			r.Error = err.Error()
		}
		r.UpdatedAt = time.Now().UTC()
	})
}

// fail marks the job FAILURE with the captured error. Failure is terminal;
// the job is never auto-retried.
func (p *Pipeline) fail(ctx context.Context, taskID string, cause error) error {
	return p.setStatus(ctx, taskID, StatusFailure, "Processing failed.", cause)
}
