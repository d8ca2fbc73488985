// Package pipeline orchestrates a processing job: sample reconciliation,
// the concurrent per-entity resolution fan-out, the mapping pause for soft
// matches, finalization and packaging.
//
// The state machine is
//
//	submitted → (awaiting_mapping)? → processing → finalizing → SUCCESS | FAILURE
//
// with resuming as a transient re-entry after mapping confirmation. All
// state lives in the injected task store; the pipeline holds nothing in
// memory across the pause, so submission and execution may happen in
// different processes.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/BioMedGraphica/conn-backend/pkg/finalize"
	"github.com/BioMedGraphica/conn-backend/pkg/match"
)

// Status enumerates the job states. Terminal states are upper-case, part
// of the client contract.
type Status string

const (
	StatusSubmitted       Status = "submitted"
	StatusAwaitingMapping Status = "awaiting_mapping"
	StatusResuming        Status = "resuming"
	StatusProcessing      Status = "processing"
	StatusFinalizing      Status = "finalizing"
	StatusSuccess         Status = "SUCCESS"
	StatusFailure         Status = "FAILURE"
)

// ErrInvalidState marks a mapping submission for a task that is not
// awaiting one. Rejected at the boundary, no state is mutated.
var ErrInvalidState = errors.New("task is not awaiting mapping")

// ErrUnknownTask marks a task id with no stored record.
var ErrUnknownTask = errors.New("unknown task")

// UnitResult is the captured outcome of one fan-out unit. Unit failures
// are recorded here, never thrown across the join barrier.
type UnitResult struct {
	FeatureLabel string `json:"feature_label"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"`

	match.Stats
}

// Unit result kinds.
const (
	UnitHard    = "hard"
	UnitSoft    = "soft"
	UnitVirtual = "virtual"
	UnitLabel   = "label"
)

// Unit result statuses.
const (
	UnitSuccess = "success"
	UnitError   = "error"
)

// TaskStatusRecord is the durable job record, mutated monotonically by
// stage transitions under a single-writer-per-stage discipline.
type TaskStatusRecord struct {
	TaskID  string `json:"task_id"`
	JobID   string `json:"job_id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	CommonSampleCount int          `json:"common_sample_count,omitempty"`
	Units             []UnitResult `json:"units,omitempty"`

	// MappingCandidates is populated while awaiting_mapping so a caller
	// can render a selection UI.
	MappingCandidates []match.CandidateSet `json:"mapping_candidates,omitempty"`

	Finalize     *finalize.Result `json:"finalize,omitempty"`
	ZipFilePath  string           `json:"zip_file_path,omitempty"`
	ZipFilename  string           `json:"zip_filename,omitempty"`
	ZipObjectKey string           `json:"zip_object_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Continuation is the persisted resumption context: everything a worker
// needs to (re)launch the fan-out, written at submission and loaded by
// whoever resumes the job.
type Continuation struct {
	TaskID      string               `json:"task_id"`
	JobID       string               `json:"job_id"`
	Entities    []match.EntityConfig `json:"entities"`
	Label       *match.LabelConfig   `json:"label,omitempty"`
	Finalize    match.FinalizeConfig `json:"finalize"`
	OutputDir   string               `json:"output_dir"`
	AutoConfirm bool                 `json:"auto_confirm,omitempty"`
}

// MappingItem is one user decision: a selected canonical ID, or nil for
// "no match, exclude".
type MappingItem struct {
	OriginalID string  `json:"original_id"`
	SelectedID *string `json:"selected_id"`
}

// FeatureMapping carries the confirmed mappings of one soft-match entity.
type FeatureMapping struct {
	EntityType   string        `json:"entity_type"`
	FeatureLabel string        `json:"feature_label"`
	Mappings     []MappingItem `json:"mappings"`
}

// JobMessage is the queue payload dispatching a job to a worker. All other
// context loads from the store through the continuation.
type JobMessage struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
}

// PublishFunc hands a job message to the task queue.
type PublishFunc func(ctx context.Context, msg JobMessage) error

// confirmedFor flattens the mapping submissions of one feature label into
// the original → canonical form the resolver consumes. Nil selections are
// dropped, which excludes the identifier.
func confirmedFor(mappings []FeatureMapping, featureLabel string) map[string]string {
	for _, m := range mappings {
		if m.FeatureLabel != featureLabel {
			continue
		}
		confirmed := make(map[string]string, len(m.Mappings))
		for _, item := range m.Mappings {
			if item.SelectedID != nil && *item.SelectedID != "" {
				confirmed[item.OriginalID] = *item.SelectedID
			}
		}
		return confirmed
	}
	return nil
}
