package match

import (
	"sort"
	"strconv"
	"strings"

	"github.com/BioMedGraphica/conn-backend/pkg/loader"
	"github.com/BioMedGraphica/conn-backend/pkg/matrix"
)

// RawIDRow records which original identifiers fed one canonical ID.
type RawIDRow struct {
	CanonicalID string
	OriginalID  string
}

// RawIDMapping is the audit table emitted next to every feature matrix: one
// row per canonical ID of the entity type, in table order, OriginalID empty
// when nothing matched.
type RawIDMapping []RawIDRow

// Stats carries per-unit diagnostics surfaced on the task status record.
type Stats struct {
	TotalOriginalIDs int `json:"total_original_ids"`
	MappedColumns    int `json:"mapped_columns"`
	DroppedRows      int `json:"dropped_rows"`
}

// buildRawIDMapping lays out the reverse mapping over the full canonical ID
// list. originals holds, per canonical ID, the set of raw identifiers that
// fed it; they are emitted sorted and ";"-joined.
func buildRawIDMapping(canonicalIDs []string, originals map[string]map[string]struct{}) RawIDMapping {
	mapping := make(RawIDMapping, 0, len(canonicalIDs))
	for _, id := range canonicalIDs {
		joined := ""
		if set := originals[id]; len(set) > 0 {
			raws := make([]string, 0, len(set))
			for raw := range set {
				raws = append(raws, raw)
			}
			sort.Strings(raws)
			joined = strings.Join(raws, ";")
		}
		mapping = append(mapping, RawIDRow{CanonicalID: id, OriginalID: joined})
	}
	return mapping
}

// assembleMatrix pivots a wide sample table into the aligned matrix for one
// entity type. lookup maps a raw column identifier to the canonical IDs it
// resolves to; unmapped columns are ignored. Duplicate (sample, canonical)
// contributions are averaged. Rows reindex to commonSamples, columns to
// canonicalIDs, zero-filled on both axes.
//
// Cells that fail numeric coercion are dropped and counted instead of
// failing the unit; empty cells are treated as absent.
func assembleMatrix(
	table *loader.Table,
	lookup map[string][]string,
	commonSamples []string,
	canonicalIDs []string,
) (*matrix.Aligned, int, int) {
	rowIndex := make(map[string]int, len(commonSamples))
	for i, id := range commonSamples {
		rowIndex[id] = i
	}
	colIndex := make(map[string]int, len(canonicalIDs))
	for j, id := range canonicalIDs {
		colIndex[id] = j
	}

	aligned := matrix.NewAligned(commonSamples, canonicalIDs)
	counts := make(map[[2]int]int)
	dropped := 0
	usable := 0

	for ti, sample := range table.Samples {
		r, ok := rowIndex[sample]
		if !ok {
			continue
		}
		row := table.Rows[ti]
		for tj, original := range table.Columns {
			canonicals := lookup[original]
			if len(canonicals) == 0 {
				continue
			}
			cell := row[tj]
			if cell == "" {
				continue
			}
			value, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				dropped++
				continue
			}
			usable++
			for _, canonical := range canonicals {
				c, ok := colIndex[canonical]
				if !ok {
					continue
				}
				key := [2]int{r, c}
				counts[key]++
				aligned.Data.Set(r, c, aligned.Data.At(r, c)+value)
			}
		}
	}

	for key, n := range counts {
		if n > 1 {
			aligned.Data.Set(key[0], key[1], aligned.Data.At(key[0], key[1])/float64(n))
		}
	}

	return aligned, dropped, usable
}
