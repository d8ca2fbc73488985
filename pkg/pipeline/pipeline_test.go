package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/BioMedGraphica/conn-backend/pkg/artifact"
	"github.com/BioMedGraphica/conn-backend/pkg/graphdb"
	"github.com/BioMedGraphica/conn-backend/pkg/match"
	"github.com/BioMedGraphica/conn-backend/pkg/matrix"
	"github.com/BioMedGraphica/conn-backend/pkg/taskstore"
)

type fakeEmbedder map[string][]float64

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec, ok := f[text]
	if !ok {
		return nil, fmt.Errorf("no embedding for %q", text)
	}
	return vec, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// writeRefDB builds a reference database with a Gene table, a Disease
// table plus embeddings, and a relation table connecting them.
func writeRefDB(t *testing.T) *graphdb.DB {
	t.Helper()
	root := t.TempDir()

	geneDir := filepath.Join(root, "Entity", "Gene")
	if err := os.MkdirAll(geneDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, geneDir, "BioMedGraphica_Conn_Gene.csv",
		"BioMedGraphica_Conn_ID,HGNC_Symbol\n"+
			"BMGC_G1,g1;g2\n"+
			"BMGC_G2,g3\n")

	diseaseDir := filepath.Join(root, "Entity", "Disease")
	if err := os.MkdirAll(diseaseDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, diseaseDir, "BioMedGraphica_Conn_Disease.csv",
		"BioMedGraphica_Conn_ID,UMLS_Name\n"+
			"BMGC_D1,asthma\n"+
			"BMGC_D2,melanoma\n")

	embedDir := filepath.Join(root, "Embed", "Disease")
	if err := os.MkdirAll(embedDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	vectors := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	if err := matrix.WriteNPY(filepath.Join(embedDir, "Disease_embeddings.npy"), vectors); err != nil {
		t.Fatalf("write embeddings: %v", err)
	}
	writeFile(t, embedDir, "Disease_embedding_index.csv",
		"BioMedGraphica_Conn_ID,Name\n"+
			"BMGC_D1,asthma\n"+
			"BMGC_D2,melanoma\n")

	relDir := filepath.Join(root, "Relation")
	if err := os.MkdirAll(relDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, relDir, "BioMedGraphica_Conn_Relation.csv",
		"BMGC_From_ID,BMGC_To_ID,Type\n"+
			"BMGC_G1,BMGC_G2,Gene-Gene\n"+
			"BMGC_D1,BMGC_G1,Disease-Gene\n")

	return graphdb.New(root)
}

func newTestPipeline(t *testing.T, embedder fakeEmbedder) (*Pipeline, *[]JobMessage) {
	t.Helper()
	published := &[]JobMessage{}
	p := &Pipeline{
		Store: taskstore.NewMemory(),
		DB:    writeRefDB(t),
		Embed: embedder,
		Publish: func(_ context.Context, msg JobMessage) error {
			*published = append(*published, msg)
			return nil
		},
	}
	return p, published
}

func hardJobParams(t *testing.T) SubmitParams {
	t.Helper()
	dir := t.TempDir()
	expr := writeFile(t, dir, "expr.csv",
		"Sample,g1,g3\n"+
			"S1,1,2\n"+
			"S2,3,4\n")
	labels := writeFile(t, dir, "labels.csv",
		"Sample,Outcome\n"+
			"S1,0\n"+
			"S2,1\n")

	return SubmitParams{
		JobID: "job1",
		Entities: []match.EntityConfig{
			{FeatureLabel: "expr", EntityType: "Gene", IDType: "HGNC_Symbol", MatchMode: match.ModeHard, FilePath: expr},
		},
		Label:     &match.LabelConfig{FeatureLabel: "survival", EntityType: "label", FilePath: labels},
		Finalize:  match.FinalizeConfig{FileOrder: []string{"expr"}},
		OutputDir: filepath.Join(dir, "out"),
	}
}

func softEntity(t *testing.T, dir string) match.EntityConfig {
	t.Helper()
	clinical := writeFile(t, dir, "clinical.csv",
		"Sample,asthma attack\n"+
			"S1,1\n"+
			"S2,0\n")
	return match.EntityConfig{
		FeatureLabel: "clinical",
		EntityType:   "Disease",
		MatchMode:    match.ModeSoft,
		FilePath:     clinical,
	}
}

func TestSubmit_RejectsInvalidConfigBeforeAnyWrite(t *testing.T) {
	p, published := newTestPipeline(t, nil)

	params := hardJobParams(t)
	params.Entities[0].IDType = "Not_A_Column"
	if _, _, err := p.Submit(context.Background(), params); err == nil {
		t.Fatalf("expected config validation error")
	}
	if len(*published) != 0 {
		t.Fatalf("expected no publish for rejected job")
	}
}

func TestSubmit_HardJobPublishes(t *testing.T) {
	p, published := newTestPipeline(t, nil)

	taskID, status, err := p.Submit(context.Background(), hardJobParams(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status != StatusSubmitted {
		t.Fatalf("expected submitted, got %s", status)
	}
	if len(*published) != 1 || (*published)[0].TaskID != taskID {
		t.Fatalf("expected one published message for %s, got %v", taskID, *published)
	}

	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusSubmitted || record.JobID != "job1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestSubmit_GeneratesJobID(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	params := hardJobParams(t)
	params.JobID = ""
	taskID, _, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.JobID == "" {
		t.Fatalf("expected generated job id")
	}
}

func TestSubmit_SoftInteractivePausesWithCandidates(t *testing.T) {
	embedder := fakeEmbedder{"asthma attack": {1, 0}}
	p, published := newTestPipeline(t, embedder)

	params := hardJobParams(t)
	params.Entities = append(params.Entities, softEntity(t, t.TempDir()))
	params.Finalize.FileOrder = []string{"expr", "clinical"}

	taskID, status, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status != StatusAwaitingMapping {
		t.Fatalf("expected awaiting_mapping, got %s", status)
	}
	if len(*published) != 0 {
		t.Fatalf("expected no publish while awaiting mapping")
	}

	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if len(record.MappingCandidates) != 1 {
		t.Fatalf("expected one candidate set, got %d", len(record.MappingCandidates))
	}
	candidates := record.MappingCandidates[0].Candidates["asthma attack"]
	if len(candidates) == 0 || candidates[0].ID != "BMGC_D1" {
		t.Fatalf("unexpected candidates: %v", candidates)
	}
}

func TestSubmitMappings_RejectsWrongStateWithoutMutation(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	taskID, _, err := p.Submit(context.Background(), hardJobParams(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	err = p.SubmitMappings(context.Background(), taskID, []FeatureMapping{})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusSubmitted {
		t.Fatalf("expected status unchanged, got %s", record.Status)
	}
}

func TestSubmitMappings_UnknownTask(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	err := p.SubmitMappings(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestSubmitMappings_ResumesAndPublishes(t *testing.T) {
	embedder := fakeEmbedder{"asthma attack": {1, 0}}
	p, published := newTestPipeline(t, embedder)

	params := hardJobParams(t)
	params.Entities = append(params.Entities, softEntity(t, t.TempDir()))
	params.Finalize.FileOrder = []string{"expr", "clinical"}

	taskID, _, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	selected := "BMGC_D1"
	mappings := []FeatureMapping{{
		EntityType:   "Disease",
		FeatureLabel: "clinical",
		Mappings:     []MappingItem{{OriginalID: "asthma attack", SelectedID: &selected}},
	}}
	if err := p.SubmitMappings(context.Background(), taskID, mappings); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(*published) != 1 {
		t.Fatalf("expected one published message after resume, got %d", len(*published))
	}
	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusResuming {
		t.Fatalf("expected resuming, got %s", record.Status)
	}
	if record.MappingCandidates != nil {
		t.Fatalf("expected candidates cleared on resume")
	}
}

func TestExecute_HardJobToSuccess(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	params := hardJobParams(t)
	taskID, _, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", record.Status, record.Error)
	}
	if record.CommonSampleCount != 2 {
		t.Fatalf("expected 2 common samples, got %d", record.CommonSampleCount)
	}
	if len(record.Units) != 2 {
		t.Fatalf("expected 2 units, got %+v", record.Units)
	}
	for _, u := range record.Units {
		if u.Status != UnitSuccess {
			t.Fatalf("expected all units successful, got %+v", u)
		}
	}
	if record.Finalize == nil || record.Finalize.Samples != 2 || record.Finalize.Features != 2 {
		t.Fatalf("unexpected finalize result: %+v", record.Finalize)
	}
	if _, err := os.Stat(record.ZipFilePath); err != nil {
		t.Fatalf("expected archive on disk: %v", err)
	}
	if record.ZipFilename != "job1_processed_data.zip" {
		t.Fatalf("unexpected archive name: %s", record.ZipFilename)
	}

	// g1 resolves to BMGC_G1, g3 to BMGC_G2.
	m, err := matrix.ReadNPY(artifact.MatrixPath(params.OutputDir, "expr"))
	if err != nil {
		t.Fatalf("read expr matrix: %v", err)
	}
	want := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if !mat.EqualApprox(m, want, 1e-12) {
		t.Fatalf("unexpected matrix:\n%v", mat.Formatted(m))
	}
}

func TestExecute_DomainFailureRecordedNotReturned(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	params := hardJobParams(t)
	taskID, _, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Remove the input file so sample reconciliation fails.
	if err := os.Remove(params.Entities[0].FilePath); err != nil {
		t.Fatalf("remove input: %v", err)
	}

	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected domain failure to be absorbed, got %v", err)
	}
	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusFailure {
		t.Fatalf("expected FAILURE, got %s", record.Status)
	}
	if record.Error == "" {
		t.Fatalf("expected error on record")
	}
}

func TestExecute_UnknownTask(t *testing.T) {
	p, _ := newTestPipeline(t, nil)
	if err := p.Execute(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown continuation")
	}
}

func TestExecute_ResumeSkipsDurableUnits(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	params := hardJobParams(t)
	taskID, _, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// A second execution finds the entity artifacts durable and skips
	// the unit instead of recomputing.
	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	for _, u := range record.Units {
		if u.FeatureLabel == "expr" && !u.Skipped {
			t.Fatalf("expected entity unit skipped on resume, got %+v", u)
		}
	}
}

func TestExecute_SoftAutoConfirm(t *testing.T) {
	embedder := fakeEmbedder{"asthma attack": {1, 0}}
	p, published := newTestPipeline(t, embedder)

	dir := t.TempDir()
	params := hardJobParams(t)
	params.Entities = append(params.Entities, softEntity(t, dir))
	params.Finalize.FileOrder = []string{"expr", "clinical"}
	params.AutoConfirm = true

	taskID, status, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Auto-confirm publishes directly, no mapping pause.
	if status != StatusSubmitted || len(*published) != 1 {
		t.Fatalf("expected direct dispatch, got %s with %d messages", status, len(*published))
	}

	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", record.Status, record.Error)
	}

	// The top candidate BMGC_D1 receives the clinical column.
	m, err := matrix.ReadNPY(artifact.MatrixPath(params.OutputDir, "clinical"))
	if err != nil {
		t.Fatalf("read clinical matrix: %v", err)
	}
	want := mat.NewDense(2, 2, []float64{1, 0, 0, 0})
	if !mat.EqualApprox(m, want, 1e-12) {
		t.Fatalf("unexpected matrix:\n%v", mat.Formatted(m))
	}
}

func TestExecute_SoftAutoConfirmReusesStoredCandidates(t *testing.T) {
	// No embeddings are available; the unit must run entirely from the
	// candidate sets already persisted under the job's softmatch key.
	p, _ := newTestPipeline(t, nil)

	params := hardJobParams(t)
	params.Entities = append(params.Entities, softEntity(t, t.TempDir()))
	params.Finalize.FileOrder = []string{"expr", "clinical"}
	params.AutoConfirm = true

	taskID, _, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stored := []match.CandidateSet{{
		FeatureLabel:     "clinical",
		EntityType:       "Disease",
		TotalOriginalIDs: 1,
		Candidates: map[string][]graphdb.Candidate{
			"asthma attack": {{ID: "BMGC_D2", Name: "melanoma", Score: 1}},
		},
	}}
	if err := taskstore.SetJSON(context.Background(), p.Store, taskstore.SoftMatchKey(params.JobID), stored); err != nil {
		t.Fatalf("seed candidates: %v", err)
	}

	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", record.Status, record.Error)
	}

	// The stored top candidate BMGC_D2 receives the clinical column.
	m, err := matrix.ReadNPY(artifact.MatrixPath(params.OutputDir, "clinical"))
	if err != nil {
		t.Fatalf("read clinical matrix: %v", err)
	}
	want := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	if !mat.EqualApprox(m, want, 1e-12) {
		t.Fatalf("unexpected matrix:\n%v", mat.Formatted(m))
	}
}

func TestExecute_SoftWithConfirmedMappings(t *testing.T) {
	embedder := fakeEmbedder{"asthma attack": {1, 0}}
	p, _ := newTestPipeline(t, embedder)

	params := hardJobParams(t)
	params.Entities = append(params.Entities, softEntity(t, t.TempDir()))
	params.Finalize.FileOrder = []string{"expr", "clinical"}

	taskID, _, err := p.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// The user overrides the top candidate and picks BMGC_D2.
	selected := "BMGC_D2"
	mappings := []FeatureMapping{{
		EntityType:   "Disease",
		FeatureLabel: "clinical",
		Mappings:     []MappingItem{{OriginalID: "asthma attack", SelectedID: &selected}},
	}}
	if err := p.SubmitMappings(context.Background(), taskID, mappings); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if record.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", record.Status, record.Error)
	}

	m, err := matrix.ReadNPY(artifact.MatrixPath(params.OutputDir, "clinical"))
	if err != nil {
		t.Fatalf("read clinical matrix: %v", err)
	}
	want := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	if !mat.EqualApprox(m, want, 1e-12) {
		t.Fatalf("unexpected matrix:\n%v", mat.Formatted(m))
	}
}

func TestExecute_SoftWithoutMappingsFailsUnitOnly(t *testing.T) {
	p, _ := newTestPipeline(t, nil)

	params := hardJobParams(t)
	params.Entities = append(params.Entities, softEntity(t, t.TempDir()))
	params.Finalize.FileOrder = []string{"expr", "clinical"}

	taskID, _, err := p.Submit(context.Background(), SubmitParams{
		JobID:     params.JobID,
		Entities:  params.Entities[:1],
		Label:     params.Label,
		Finalize:  match.FinalizeConfig{FileOrder: []string{"expr"}},
		OutputDir: params.OutputDir,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Inject the soft entity into the continuation without mappings, the
	// shape of a worker picking up a corrupted pause.
	var cont Continuation
	if err := taskstore.GetJSON(context.Background(), p.Store, taskstore.ContinuationKey(taskID), &cont); err != nil {
		t.Fatalf("load continuation: %v", err)
	}
	cont.Entities = params.Entities
	if err := taskstore.SetJSON(context.Background(), p.Store, taskstore.ContinuationKey(taskID), cont); err != nil {
		t.Fatalf("store continuation: %v", err)
	}

	if err := p.Execute(context.Background(), taskID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	record, err := p.GetStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	// The soft unit fails, the hard unit and finalize still complete.
	if record.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", record.Status, record.Error)
	}
	failed := 0
	for _, u := range record.Units {
		if u.Status == UnitError {
			failed++
			if u.FeatureLabel != "clinical" {
				t.Fatalf("unexpected failed unit: %+v", u)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one failed unit, got %+v", record.Units)
	}
}
