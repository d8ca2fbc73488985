// Package match resolves feature-file identifiers against the reference
// knowledge graph, producing aligned feature matrices. Three strategies
// exist: hard match through a registered identifier column, soft match
// through embedding similarity plus confirmed user mappings, and the
// virtual all-zero fallback for entity types declared without data.
package match

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
)

var (
	// ErrNoInputData marks a job with zero eligible input files, a
	// configuration error.
	ErrNoInputData = errors.New("no input files to reconcile samples from")

	// ErrEmptyIntersection marks inputs that share no sample identifier,
	// a data-compatibility error.
	ErrEmptyIntersection = errors.New("input files share no common sample")

	// ErrMalformedInputFile marks a feature file whose sample column
	// cannot be read.
	ErrMalformedInputFile = errors.New("malformed input file")

	// ErrNoUsableMappedData marks a soft-match apply whose confirmed
	// mappings yielded no numeric rows.
	ErrNoUsableMappedData = errors.New("no usable rows after applying mappings")

	// ErrInsufficientColumns marks a label file with fewer than two
	// columns.
	ErrInsufficientColumns = errors.New("label file needs a sample column and a label column")

	// ErrUnsupportedLabelType marks a label encoding other than binary.
	ErrUnsupportedLabelType = errors.New("unsupported label type")
)

// Mode is the closed set of resolution strategies.
type Mode string

const (
	ModeHard Mode = "hard"
	ModeSoft Mode = "soft"
)

// ParseMode parses a match_mode string. The empty string defaults to hard,
// matching the submission contract.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hard":
		return ModeHard, nil
	case "soft":
		return ModeSoft, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", s)
	}
}

// EntityConfig describes one feature file and how its columns resolve to
// canonical IDs. Configs are immutable after submission; a resume
// re-supplies the same configs through the persisted continuation.
type EntityConfig struct {
	FeatureLabel string `json:"feature_label"`
	EntityType   string `json:"entity_type"`
	IDType       string `json:"id_type,omitempty"`
	MatchMode    Mode   `json:"match_mode"`
	FilePath     string `json:"file_path,omitempty"`
	IsVirtual    bool   `json:"is_virtual,omitempty"`
}

// Validate checks the per-variant field rules at construction time, before
// any resolver runs.
func (c EntityConfig) Validate() error {
	if strings.TrimSpace(c.FeatureLabel) == "" {
		return fmt.Errorf("entity config needs a feature_label")
	}
	entityType := bmg.NormalizeEntityType(c.EntityType)
	if !bmg.KnownEntityType(entityType) {
		return fmt.Errorf("unknown entity type %q for %s", c.EntityType, c.FeatureLabel)
	}
	if c.MatchMode != ModeHard && c.MatchMode != ModeSoft {
		return fmt.Errorf("entity %s has invalid match mode %q", c.FeatureLabel, c.MatchMode)
	}

	if c.IsVirtual {
		if c.IDType != "" {
			return fmt.Errorf("virtual entity %s must not set id_type", c.FeatureLabel)
		}
		if c.FilePath != "" {
			return fmt.Errorf("virtual entity %s must not set file_path", c.FeatureLabel)
		}
		return nil
	}

	if c.FilePath == "" {
		return fmt.Errorf("entity %s needs a file_path", c.FeatureLabel)
	}
	switch c.MatchMode {
	case ModeHard:
		if c.IDType == "" {
			return fmt.Errorf("hard-match entity %s needs an id_type", c.FeatureLabel)
		}
		if !bmg.KnownIDType(entityType, c.IDType) {
			return fmt.Errorf("id_type %q is not registered for %s", c.IDType, entityType)
		}
	case ModeSoft:
		if c.IDType != "" {
			return fmt.Errorf("soft-match entity %s must not set id_type", c.FeatureLabel)
		}
	}
	return nil
}

// LabelConfig describes the optional prediction-target file. At most one
// per job.
type LabelConfig struct {
	FeatureLabel string `json:"feature_label"`
	EntityType   string `json:"entity_type"`
	FilePath     string `json:"file_path"`
	LabelType    string `json:"label_type,omitempty"`
}

// Validate checks the label config. Only binary labels are implemented;
// other encodings are an extension point and rejected up front.
func (c LabelConfig) Validate() error {
	if strings.TrimSpace(c.FeatureLabel) == "" {
		return fmt.Errorf("label config needs a feature_label")
	}
	if bmg.NormalizeEntityType(c.EntityType) != bmg.LabelEntityType {
		return fmt.Errorf("label config for %s must have entity_type %q", c.FeatureLabel, bmg.LabelEntityType)
	}
	if c.FilePath == "" {
		return fmt.Errorf("label %s needs a file_path", c.FeatureLabel)
	}
	if c.LabelType != "" && c.LabelType != "binary" {
		return fmt.Errorf("%w: %s", ErrUnsupportedLabelType, c.LabelType)
	}
	return nil
}

// FinalizeConfig controls the merge stage.
type FinalizeConfig struct {
	FileOrder   []string `json:"file_order"`
	ApplyZScore bool     `json:"apply_zscore,omitempty"`
	EdgeTypes   []string `json:"edge_types,omitempty"`
}

// ValidateJob checks a whole submission: per-config rules plus feature
// label uniqueness and finalize references.
func ValidateJob(entities []EntityConfig, label *LabelConfig, finalize FinalizeConfig) error {
	if len(entities) == 0 {
		return fmt.Errorf("job needs at least one entity config")
	}

	labels := make(map[string]struct{}, len(entities)+1)
	for _, cfg := range entities {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, dup := labels[cfg.FeatureLabel]; dup {
			return fmt.Errorf("duplicate feature_label %q", cfg.FeatureLabel)
		}
		labels[cfg.FeatureLabel] = struct{}{}
	}
	if label != nil {
		if err := label.Validate(); err != nil {
			return err
		}
		if _, dup := labels[label.FeatureLabel]; dup {
			return fmt.Errorf("duplicate feature_label %q", label.FeatureLabel)
		}
		labels[label.FeatureLabel] = struct{}{}
	}

	if len(finalize.FileOrder) == 0 {
		return fmt.Errorf("finalize config needs a file_order")
	}
	for _, name := range finalize.FileOrder {
		if _, ok := labels[name]; !ok {
			return fmt.Errorf("file_order names unknown feature_label %q", name)
		}
	}
	return nil
}
