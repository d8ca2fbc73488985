package match

import (
	"fmt"
	"sort"

	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/loader"
)

const fileReadRetries = 3

// CommonSamples computes the sorted, deduplicated intersection of sample
// identifiers across every non-virtual entity file. Its result becomes the
// row order of every feature matrix and label vector of the job, so the
// sort is load-bearing, not cosmetic.
func CommonSamples(entities []EntityConfig) ([]string, error) {
	counts := make(map[string]int)
	eligible := 0

	for _, cfg := range entities {
		if cfg.IsVirtual {
			continue
		}
		ids, err := util.Retry(fileReadRetries, func() ([]string, error) {
			return loader.ReadSampleColumn(cfg.FilePath)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInputFile, cfg.FeatureLabel, err)
		}
		eligible++
		for _, id := range ids {
			counts[id]++
		}
	}

	if eligible == 0 {
		return nil, ErrNoInputData
	}

	common := make([]string, 0)
	for id, n := range counts {
		if n == eligible {
			common = append(common, id)
		}
	}
	if len(common) == 0 {
		return nil, ErrEmptyIntersection
	}
	sort.Strings(common)
	return common, nil
}
