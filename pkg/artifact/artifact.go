// Package artifact fixes the on-disk layout of a job's output directory:
//
//	_x/<feature_label>.npy          aligned feature matrices
//	_y/<feature_label>.npy          label vector
//	raw_id_mapping/<label>_id_map.csv
//	processed_data/                 finalizer output
//
// Resolver units write into disjoint per-label paths, so fan-out units never
// contend on output files.
package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BioMedGraphica/conn-backend/pkg/bmg"
	"github.com/BioMedGraphica/conn-backend/pkg/match"
)

// MatrixPath returns the feature matrix path for a label.
func MatrixPath(dir, featureLabel string) string {
	return filepath.Join(dir, "_x", strings.ToLower(featureLabel)+".npy")
}

// LabelPath returns the label vector path.
func LabelPath(dir, featureLabel string) string {
	return filepath.Join(dir, "_y", featureLabel+".npy")
}

// LabelDir returns the directory holding the label vector.
func LabelDir(dir string) string {
	return filepath.Join(dir, "_y")
}

// IDMapPath returns the raw-id audit table path for a label.
func IDMapPath(dir, featureLabel string) string {
	return filepath.Join(dir, "raw_id_mapping", strings.ToLower(featureLabel)+"_id_map.csv")
}

// ProcessedDataDir returns the finalizer output directory.
func ProcessedDataDir(dir string) string {
	return filepath.Join(dir, "processed_data")
}

// UnitDone reports whether a resolver unit's artifacts are already durable,
// the signal for a resumed fan-out to skip the unit.
func UnitDone(dir, featureLabel string) bool {
	if _, err := os.Stat(MatrixPath(dir, featureLabel)); err != nil {
		return false
	}
	if _, err := os.Stat(IDMapPath(dir, featureLabel)); err != nil {
		return false
	}
	return true
}

// WriteIDMap writes the raw-id mapping table, creating parent directories
// as needed.
func WriteIDMap(path string, mapping match.RawIDMapping) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{bmg.CanonicalIDColumn, "Original_ID"}); err != nil {
		return err
	}
	for _, row := range mapping {
		if err := w.Write([]string{row.CanonicalID, row.OriginalID}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// ReadIDMap reads a raw-id mapping table written by WriteIDMap.
func ReadIDMap(path string) (match.RawIDMapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("id map %s has no header: %w", filepath.Base(path), err)
	}
	idCol, origCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")) {
		case bmg.CanonicalIDColumn:
			idCol = i
		case "Original_ID":
			origCol = i
		}
	}
	if idCol < 0 || origCol < 0 {
		return nil, fmt.Errorf("id map %s is missing required columns", filepath.Base(path))
	}

	var mapping match.RawIDMapping
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read id map %s: %w", filepath.Base(path), err)
		}
		row := match.RawIDRow{CanonicalID: record[idCol]}
		if len(record) > origCol {
			row.OriginalID = record[origCol]
		}
		mapping = append(mapping, row)
	}
	return mapping, nil
}
