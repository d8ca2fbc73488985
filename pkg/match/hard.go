package match

import (
	"fmt"

	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/loader"
	"github.com/BioMedGraphica/conn-backend/pkg/matrix"
)

// Hard resolves a feature file deterministically through a registered
// identifier column of the entity's reference table.
//
// A virtual config skips the file entirely and yields the all-zero matrix
// over the full canonical ID list, the designed fallback for declaring an
// entity type present without data. Otherwise raw identifier cells of the
// reference table are exploded on ";" before the join, so synonym lists
// match any of their members.
func Hard(db *graphdb.DB, cfg EntityConfig, commonSamples []string) (*matrix.Aligned, RawIDMapping, Stats, error) {
	table, err := db.EntityTable(cfg.EntityType)
	if err != nil {
		return nil, nil, Stats{}, err
	}
	canonicalIDs := table.CanonicalIDs

	if cfg.IsVirtual {
		aligned := matrix.NewAligned(commonSamples, canonicalIDs)
		return aligned, buildRawIDMapping(canonicalIDs, nil), Stats{}, nil
	}

	if !table.HasColumn(cfg.IDType) {
		return nil, nil, Stats{}, fmt.Errorf("%s: %s table has no %s column", cfg.FeatureLabel, table.Type, cfg.IDType)
	}

	input, err := util.Retry(fileReadRetries, func() (*loader.Table, error) {
		return loader.ReadTable(cfg.FilePath)
	})
	if err != nil {
		return nil, nil, Stats{}, fmt.Errorf("%w: %s: %v", ErrMalformedInputFile, cfg.FeatureLabel, err)
	}

	lookup, err := table.RawToCanonical(cfg.IDType)
	if err != nil {
		return nil, nil, Stats{}, err
	}

	// Restrict the audit mapping to identifiers actually present as
	// feature columns.
	originals := make(map[string]map[string]struct{})
	mapped := 0
	for _, original := range input.Columns {
		canonicals := lookup[original]
		if len(canonicals) == 0 {
			continue
		}
		mapped++
		for _, canonical := range canonicals {
			if originals[canonical] == nil {
				originals[canonical] = make(map[string]struct{})
			}
			originals[canonical][original] = struct{}{}
		}
	}

	aligned, dropped, _ := assembleMatrix(input, lookup, commonSamples, canonicalIDs)
	stats := Stats{
		TotalOriginalIDs: len(input.Columns),
		MappedColumns:    mapped,
		DroppedRows:      dropped,
	}
	return aligned, buildRawIDMapping(canonicalIDs, originals), stats, nil
}
