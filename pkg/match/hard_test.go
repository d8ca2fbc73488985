package match

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// writeGeneDB builds a reference database with a single Gene table carrying
// a semicolon synonym cell.
func writeGeneDB(t *testing.T) *graphdb.DB {
	t.Helper()
	root := t.TempDir()

	geneDir := filepath.Join(root, "Entity", "Gene")
	if err := os.MkdirAll(geneDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, geneDir, "BioMedGraphica_Conn_Gene.csv",
		"BioMedGraphica_Conn_ID,HGNC_Symbol\n"+
			"BMGC_1,g1;g2\n"+
			"BMGC_2,g3\n"+
			"BMGC_3,g4\n")

	return graphdb.New(root)
}

func TestCommonSamples_Intersection(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "Sample,g1\nS3,1\nS1,2\nS2,3\n")
	b := writeFile(t, dir, "b.csv", "Sample,g2\nS2,4\nS4,5\nS3,6\n")

	common, err := CommonSamples([]EntityConfig{
		{FeatureLabel: "a", FilePath: a},
		{FeatureLabel: "b", FilePath: b},
		{FeatureLabel: "v", IsVirtual: true},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(common) != 2 || common[0] != "S2" || common[1] != "S3" {
		t.Fatalf("expected sorted [S2 S3], got %v", common)
	}
}

func TestCommonSamples_EmptyIntersection(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "Sample,g1\nS1,1\n")
	b := writeFile(t, dir, "b.csv", "Sample,g2\nS2,2\n")

	_, err := CommonSamples([]EntityConfig{
		{FeatureLabel: "a", FilePath: a},
		{FeatureLabel: "b", FilePath: b},
	})
	if !errors.Is(err, ErrEmptyIntersection) {
		t.Fatalf("expected ErrEmptyIntersection, got %v", err)
	}
}

func TestCommonSamples_AllVirtual(t *testing.T) {
	_, err := CommonSamples([]EntityConfig{{FeatureLabel: "v", IsVirtual: true}})
	if !errors.Is(err, ErrNoInputData) {
		t.Fatalf("expected ErrNoInputData, got %v", err)
	}
}

func TestCommonSamples_MalformedFile(t *testing.T) {
	_, err := CommonSamples([]EntityConfig{
		{FeatureLabel: "a", FilePath: filepath.Join(t.TempDir(), "missing.csv")},
	})
	if !errors.Is(err, ErrMalformedInputFile) {
		t.Fatalf("expected ErrMalformedInputFile, got %v", err)
	}
}

func TestHard_PivotAndReindex(t *testing.T) {
	db := writeGeneDB(t)
	dir := t.TempDir()

	// g1 and g2 both resolve to BMGC_1, gX is unmapped, "bad" fails
	// coercion and S3 is outside the common sample set.
	input := writeFile(t, dir, "expr.csv",
		"Sample,g1,g2,g3,gX\n"+
			"S1,5,7,2,9\n"+
			"S2,1,bad,,3\n"+
			"S3,8,8,8,8\n")

	cfg := EntityConfig{
		FeatureLabel: "expr",
		EntityType:   "Gene",
		IDType:       "HGNC_Symbol",
		MatchMode:    ModeHard,
		FilePath:     input,
	}
	common := []string{"S1", "S2"}

	aligned, mapping, stats, err := Hard(db, cfg, common)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rows, cols := aligned.Data.Dims()
	if rows != 2 || cols != 3 {
		t.Fatalf("expected 2x3 matrix, got %dx%d", rows, cols)
	}
	// Duplicate contributions to (S1, BMGC_1) are averaged.
	want := mat.NewDense(2, 3, []float64{
		6, 2, 0,
		1, 0, 0,
	})
	if !mat.EqualApprox(aligned.Data, want, 1e-12) {
		t.Fatalf("unexpected matrix:\n%v", mat.Formatted(aligned.Data))
	}

	if stats.TotalOriginalIDs != 4 || stats.MappedColumns != 3 || stats.DroppedRows != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if len(mapping) != 3 {
		t.Fatalf("expected mapping over all canonical ids, got %d rows", len(mapping))
	}
	if mapping[0].CanonicalID != "BMGC_1" || mapping[0].OriginalID != "g1;g2" {
		t.Fatalf("unexpected mapping row: %+v", mapping[0])
	}
	if mapping[2].CanonicalID != "BMGC_3" || mapping[2].OriginalID != "" {
		t.Fatalf("expected empty original for unmatched id, got %+v", mapping[2])
	}
}

func TestHard_Virtual(t *testing.T) {
	db := writeGeneDB(t)

	cfg := EntityConfig{
		FeatureLabel: "virtual_gene",
		EntityType:   "Gene",
		MatchMode:    ModeHard,
		IsVirtual:    true,
	}
	common := []string{"S1", "S2"}

	aligned, mapping, stats, err := Hard(db, cfg, common)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	rows, cols := aligned.Data.Dims()
	if rows != 2 || cols != 3 {
		t.Fatalf("expected 2x3 zero matrix, got %dx%d", rows, cols)
	}
	if mat.Norm(aligned.Data, 1) != 0 {
		t.Fatalf("expected all-zero matrix")
	}
	for _, row := range mapping {
		if row.OriginalID != "" {
			t.Fatalf("expected empty mapping, got %+v", row)
		}
	}
	if stats != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestHard_MissingEntityTable(t *testing.T) {
	db := writeGeneDB(t)

	cfg := EntityConfig{
		FeatureLabel: "prot",
		EntityType:   "Protein",
		IDType:       "Uniprot_ID",
		MatchMode:    ModeHard,
		FilePath:     "prot.csv",
	}
	_, _, _, err := Hard(db, cfg, []string{"S1"})
	if !errors.Is(err, graphdb.ErrMappingFileNotFound) {
		t.Fatalf("expected ErrMappingFileNotFound, got %v", err)
	}
}

func TestHard_UnknownIDColumn(t *testing.T) {
	db := writeGeneDB(t)
	dir := t.TempDir()
	input := writeFile(t, dir, "expr.csv", "Sample,g1\nS1,1\n")

	cfg := EntityConfig{
		FeatureLabel: "expr",
		EntityType:   "Gene",
		IDType:       "Ensembl_Gene_ID",
		MatchMode:    ModeHard,
		FilePath:     input,
	}
	_, _, _, err := Hard(db, cfg, []string{"S1"})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Ensembl_Gene_ID") {
		t.Fatalf("expected error naming the missing column, got %v", err)
	}
}

func TestHard_SharesShapeWithVirtual(t *testing.T) {
	db := writeGeneDB(t)
	dir := t.TempDir()
	input := writeFile(t, dir, "expr.csv", "Sample,g3\nS1,2\n")

	common := []string{"S1"}
	hard, _, _, err := Hard(db, EntityConfig{
		FeatureLabel: "expr", EntityType: "Gene", IDType: "HGNC_Symbol",
		MatchMode: ModeHard, FilePath: input,
	}, common)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	virtual, _, _, err := Hard(db, EntityConfig{
		FeatureLabel: "v", EntityType: "Gene", MatchMode: ModeHard, IsVirtual: true,
	}, common)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hr, hc := hard.Data.Dims()
	vr, vc := virtual.Data.Dims()
	if hr != vr || hc != vc {
		t.Fatalf("expected matching shapes, got %dx%d vs %dx%d", hr, hc, vr, vc)
	}
}
