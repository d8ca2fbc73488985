package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestCreate_PackagesArtifactDirs(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "_x/expr.npy", "x")
	writeArtifact(t, dir, "raw_id_mapping/expr_id_map.csv", "id,orig")
	writeArtifact(t, dir, "processed_data/xAll.npy", "all")
	// Files outside the artifact dirs stay out of the archive.
	writeArtifact(t, dir, "notes.txt", "scratch")

	zipPath, err := Create(dir, "job42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if filepath.Base(zipPath) != "job42_processed_data.zip" {
		t.Fatalf("unexpected archive name: %s", zipPath)
	}

	names, err := List(zipPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []string{
		"_x/expr.npy",
		"processed_data/xAll.npy",
		"raw_id_mapping/expr_id_map.csv",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestCreate_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "_x/expr.npy", "x")
	writeArtifact(t, dir, "_y/survival.npy", "y")

	first, err := Create(dir, "job1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	firstBytes, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if err := os.Remove(first); err != nil {
		t.Fatalf("remove archive: %v", err)
	}

	second, err := Create(dir, "job1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	secondBytes, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if string(firstBytes) != string(secondBytes) {
		t.Fatalf("expected byte-identical archives")
	}
}

func TestCreate_NothingToArchive(t *testing.T) {
	if _, err := Create(t.TempDir(), "job1"); err == nil {
		t.Fatalf("expected error for empty artifact tree")
	}
}
