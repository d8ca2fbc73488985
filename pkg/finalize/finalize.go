// Package finalize merges the per-entity artifacts of a completed fan-out
// into the single feature tensor, label vector, entity index and filtered
// edge list consumed by downstream graph models.
package finalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/BioMedGraphica/conn-backend/pkg/artifact"
	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/logger"
	"github.com/BioMedGraphica/conn-backend/pkg/match"
	"github.com/BioMedGraphica/conn-backend/pkg/matrix"
)

var (
	// ErrNoDataMerged marks a finalize with no feature matrix to merge.
	ErrNoDataMerged = errors.New("no data merged")

	// ErrLabelCountMismatch marks a job without exactly one label vector.
	ErrLabelCountMismatch = errors.New("expected exactly one label vector")
)

// Result summarizes a successful finalize, stored on the task record.
type Result struct {
	ProcessedDataPath  string   `json:"processed_data_path"`
	Samples            int      `json:"samples"`
	Features           int      `json:"features"`
	Entities           int      `json:"entities"`
	Edges              int      `json:"edges"`
	AvailableEdgeTypes []string `json:"available_edge_types"`
	SelectedEdgeTypes  []string `json:"selected_edge_types"`
	Warnings           []string `json:"warnings,omitempty"`
}

type indexedEdge struct {
	rel  graphdb.Relation
	from int
	to   int
}

// Run executes the merge: concatenate matrices in file order, copy the
// label vector, assign the contiguous entity index, and filter the global
// relation table to edges among present entities, partitioned by category.
// Missing per-label artifacts are warnings, not failures; the merge fails
// only when nothing at all is there to merge.
func Run(db *graphdb.DB, dir string, cfg match.FinalizeConfig) (*Result, error) {
	outDir := artifact.ProcessedDataDir(dir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create processed_data dir: %w", err)
	}

	result := &Result{ProcessedDataPath: outDir}

	// Feature tensor.
	blocks := make([]*mat.Dense, 0, len(cfg.FileOrder))
	for _, name := range cfg.FileOrder {
		path := artifact.MatrixPath(dir, name)
		block, err := matrix.ReadNPY(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("no feature matrix for %s", name))
				logger.Warn("[Finalize] Feature matrix missing, skipping", "feature_label", name)
				continue
			}
			return nil, fmt.Errorf("load matrix for %s: %w", name, err)
		}
		if cfg.ApplyZScore {
			matrix.ZScoreColumns(block)
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return nil, ErrNoDataMerged
	}
	xAll, err := matrix.HStack(blocks)
	if err != nil {
		return nil, fmt.Errorf("merge feature matrices: %w", err)
	}
	if err := matrix.WriteNPY(filepath.Join(outDir, "xAll.npy"), xAll); err != nil {
		return nil, err
	}
	result.Samples, result.Features = xAll.Dims()

	// Label vector: exactly one artifact must exist.
	yAll, err := loadLabelVector(dir)
	if err != nil {
		return nil, err
	}
	if err := matrix.WriteVectorNPY(filepath.Join(outDir, "yAll.npy"), yAll); err != nil {
		return nil, err
	}

	// Entity index: concatenated id maps in file order, contiguous and
	// 0-based. This index is the coordinate system of every edge below.
	entityIndex := make(match.RawIDMapping, 0)
	for _, name := range cfg.FileOrder {
		mapping, err := artifact.ReadIDMap(artifact.IDMapPath(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("no id mapping for %s", name))
				logger.Warn("[Finalize] ID mapping missing, skipping", "feature_label", name)
				continue
			}
			return nil, fmt.Errorf("load id mapping for %s: %w", name, err)
		}
		entityIndex = append(entityIndex, mapping...)
	}
	if err := writeEntityIndex(filepath.Join(outDir, "entity_index_id_mapping.csv"), entityIndex); err != nil {
		return nil, err
	}
	result.Entities = len(entityIndex)

	// First occurrence wins when a canonical ID appears in several
	// entity blocks.
	indexOf := make(map[string]int, len(entityIndex))
	for i, row := range entityIndex {
		if _, ok := indexOf[row.CanonicalID]; !ok {
			indexOf[row.CanonicalID] = i
		}
	}

	relations, err := db.Relations()
	if err != nil {
		return nil, err
	}

	kept := make([]indexedEdge, 0)
	available := make([]string, 0)
	seenType := make(map[string]struct{})
	for _, rel := range relations {
		from, okFrom := indexOf[rel.From]
		to, okTo := indexOf[rel.To]
		if !okFrom || !okTo {
			continue
		}
		kept = append(kept, indexedEdge{rel: rel, from: from, to: to})
		if _, ok := seenType[rel.Type]; !ok {
			seenType[rel.Type] = struct{}{}
			available = append(available, rel.Type)
		}
	}
	result.AvailableEdgeTypes = available

	selected := available
	if len(cfg.EdgeTypes) > 0 {
		selected = make([]string, 0, len(cfg.EdgeTypes))
		for _, t := range cfg.EdgeTypes {
			if _, ok := seenType[t]; ok {
				selected = append(selected, t)
			}
		}
	}
	result.SelectedEdgeTypes = selected

	selectedSet := make(map[string]struct{}, len(selected))
	for _, t := range selected {
		selectedSet[t] = struct{}{}
	}
	edges := make([]indexedEdge, 0, len(kept))
	for _, e := range kept {
		if _, ok := selectedSet[e.rel.Type]; ok {
			edges = append(edges, e)
		}
	}
	sort.SliceStable(edges, func(a, b int) bool {
		if edges[a].from != edges[b].from {
			return edges[a].from < edges[b].from
		}
		return edges[a].to < edges[b].to
	})
	result.Edges = len(edges)

	ppi := make([]indexedEdge, 0)
	internal := make([]indexedEdge, 0)
	for _, e := range edges {
		if e.rel.Type == bmg.PPIEdgeType {
			ppi = append(ppi, e)
		} else {
			internal = append(internal, e)
		}
	}

	if err := writeEdgeIndex(filepath.Join(outDir, "edge_index.csv"), edges); err != nil {
		return nil, err
	}
	if len(ppi) > 0 {
		if err := writeEdgeIndex(filepath.Join(outDir, "ppi_edge_index.csv"), ppi); err != nil {
			return nil, err
		}
	}
	if len(internal) > 0 {
		if err := writeEdgeIndex(filepath.Join(outDir, "internal_edge_index.csv"), internal); err != nil {
			return nil, err
		}
	}
	if err := writeFilteredEdges(filepath.Join(outDir, "filtered_edge_id_index_data.csv"), edges); err != nil {
		return nil, err
	}

	logger.Info("[Finalize] Merge complete",
		"samples", result.Samples,
		"features", result.Features,
		"entities", result.Entities,
		"edges", result.Edges,
	)
	return result, nil
}

func loadLabelVector(dir string) ([]float64, error) {
	entries, err := os.ReadDir(artifact.LabelDir(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrLabelCountMismatch
		}
		return nil, fmt.Errorf("read label dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".npy") {
			paths = append(paths, filepath.Join(artifact.LabelDir(dir), entry.Name()))
		}
	}
	if len(paths) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrLabelCountMismatch, len(paths))
	}
	return matrix.ReadVectorNPY(paths[0])
}

func writeEntityIndex(path string, mapping match.RawIDMapping) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Index", "Original_ID", bmg.CanonicalIDColumn}); err != nil {
		return err
	}
	for i, row := range mapping {
		if err := w.Write([]string{strconv.Itoa(i), row.OriginalID, row.CanonicalID}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeEdgeIndex(path string, edges []indexedEdge) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"From_Index", "To_Index"}); err != nil {
		return err
	}
	for _, e := range edges {
		if err := w.Write([]string{strconv.Itoa(e.from), strconv.Itoa(e.to)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeFilteredEdges(path string, edges []indexedEdge) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{bmg.RelationFromColumn, bmg.RelationToColumn, bmg.RelationTypeColumn, "From_Index", "To_Index"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, e := range edges {
		record := []string{e.rel.From, e.rel.To, e.rel.Type, strconv.Itoa(e.from), strconv.Itoa(e.to)}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
