package match

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
	"github.com/BioMedGraphica/conn-backend/pkg/embed"
	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/loader"
	"github.com/BioMedGraphica/conn-backend/pkg/matrix"
)

// DefaultTopK is the number of candidates offered per identifier.
const DefaultTopK = 5

const generateParallelMax = 4

// CandidateSet holds the ranked candidates for every distinct feature
// column of one soft-match entity, persisted while the job awaits user
// confirmation.
type CandidateSet struct {
	FeatureLabel     string                         `json:"feature_label"`
	EntityType       string                         `json:"entity_type"`
	TotalOriginalIDs int                            `json:"total_original_ids"`
	Candidates       map[string][]graphdb.Candidate `json:"candidates"`
}

// GenerateCandidates embeds every distinct feature-column identifier of the
// file and ranks the entity type's reference embeddings by cosine
// similarity, keeping the top k per identifier. Candidate ranking is too
// error-prone to fully automate; the result is meant for a human to
// confirm.
func GenerateCandidates(
	ctx context.Context,
	db *graphdb.DB,
	client embed.Client,
	cfg EntityConfig,
	k int,
) (*CandidateSet, error) {
	index, err := db.Embeddings(cfg.EntityType)
	if err != nil {
		return nil, err
	}

	input, err := util.RetryWithContext(ctx, fileReadRetries, func(context.Context) (*loader.Table, error) {
		return loader.ReadTable(cfg.FilePath)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedInputFile, cfg.FeatureLabel, err)
	}

	distinct := make(map[string]struct{}, len(input.Columns))
	originals := make([]string, 0, len(input.Columns))
	for _, original := range input.Columns {
		if original == "" {
			continue
		}
		if _, seen := distinct[original]; seen {
			continue
		}
		distinct[original] = struct{}{}
		originals = append(originals, original)
	}
	sort.Strings(originals)

	set := &CandidateSet{
		FeatureLabel:     cfg.FeatureLabel,
		EntityType:       bmg.NormalizeEntityType(cfg.EntityType),
		TotalOriginalIDs: len(originals),
		Candidates:       make(map[string][]graphdb.Candidate, len(originals)),
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(generateParallelMax)
	for _, original := range originals {
		oid := original
		g.Go(func() error {
			query, err := client.Embed(gCtx, oid)
			if err != nil {
				return fmt.Errorf("embed %q: %w", oid, err)
			}
			candidates, err := index.TopK(query, k)
			if err != nil {
				return fmt.Errorf("rank candidates for %q: %w", oid, err)
			}

			mu.Lock()
			set.Candidates[oid] = candidates
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return set, nil
}

// AutoConfirm selects the top candidate for every identifier, the
// non-interactive shortcut past the mapping pause. Identifiers with no
// candidates are excluded.
func AutoConfirm(set *CandidateSet) map[string]string {
	confirmed := make(map[string]string, len(set.Candidates))
	for original, candidates := range set.Candidates {
		if len(candidates) > 0 {
			confirmed[original] = candidates[0].ID
		}
	}
	return confirmed
}

// Apply builds the aligned matrix from user-confirmed assignments.
// confirmed maps original identifiers to canonical IDs; identifiers the
// user excluded are simply absent. An entirely empty confirmed set yields
// the virtual-style all-zero matrix rather than an error.
//
// Canonical column order comes from the entity reference table, so hard,
// soft and virtual matrices of one entity type always share shape.
func Apply(
	db *graphdb.DB,
	cfg EntityConfig,
	commonSamples []string,
	confirmed map[string]string,
) (*matrix.Aligned, RawIDMapping, Stats, error) {
	table, err := db.EntityTable(cfg.EntityType)
	if err != nil {
		return nil, nil, Stats{}, err
	}
	canonicalIDs := table.CanonicalIDs

	originals := make(map[string]map[string]struct{})
	lookup := make(map[string][]string, len(confirmed))
	for original, canonical := range confirmed {
		if canonical == "" {
			continue
		}
		lookup[original] = []string{canonical}
		if originals[canonical] == nil {
			originals[canonical] = make(map[string]struct{})
		}
		originals[canonical][original] = struct{}{}
	}
	mapping := buildRawIDMapping(canonicalIDs, originals)

	if len(lookup) == 0 {
		aligned := matrix.NewAligned(commonSamples, canonicalIDs)
		return aligned, mapping, Stats{}, nil
	}

	input, err := util.Retry(fileReadRetries, func() (*loader.Table, error) {
		return loader.ReadTable(cfg.FilePath)
	})
	if err != nil {
		return nil, nil, Stats{}, fmt.Errorf("%w: %s: %v", ErrMalformedInputFile, cfg.FeatureLabel, err)
	}

	aligned, dropped, usable := assembleMatrix(input, lookup, commonSamples, canonicalIDs)
	if usable == 0 {
		return nil, nil, Stats{}, fmt.Errorf("%w: %s", ErrNoUsableMappedData, cfg.FeatureLabel)
	}

	stats := Stats{
		TotalOriginalIDs: len(input.Columns),
		MappedColumns:    len(lookup),
		DroppedRows:      dropped,
	}
	return aligned, mapping, stats, nil
}
