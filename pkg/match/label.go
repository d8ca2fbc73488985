package match

import (
	"fmt"
	"strconv"

	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/loader"
)

// Label aligns the binary label column to the common sample set: first
// column sample key, second column label, restricted and reindexed to
// commonSamples with 0 for missing or non-numeric entries.
func Label(cfg LabelConfig, commonSamples []string) ([]float64, error) {
	if cfg.LabelType != "" && cfg.LabelType != "binary" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLabelType, cfg.LabelType)
	}

	input, err := util.Retry(fileReadRetries, func() (*loader.Table, error) {
		return loader.ReadTable(cfg.FilePath)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInputFile, cfg.FeatureLabel, err)
	}
	if len(input.Columns) < 1 {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientColumns, cfg.FeatureLabel)
	}

	values := make(map[string]float64, len(input.Samples))
	for i, sample := range input.Samples {
		cell := input.Rows[i][0]
		if cell == "" {
			continue
		}
		value, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue
		}
		values[sample] = value
	}

	labels := make([]float64, len(commonSamples))
	for i, sample := range commonSamples {
		labels[i] = values[sample]
	}
	return labels, nil
}
