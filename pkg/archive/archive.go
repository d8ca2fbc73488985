// Package archive packages a finished job's artifact tree into a single
// zip, named deterministically from the job id.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Dirs lists the artifact directories included in the archive, in the
// order they are written.
var Dirs = []string{"_x", "_y", "raw_id_mapping", "processed_data"}

// Filename returns the archive name for a job.
func Filename(jobID string) string {
	return jobID + "_processed_data.zip"
}

// Create writes the archive of dir's artifact tree next to it and returns
// the archive path. File entries are sorted and carry a fixed timestamp,
// so the same tree always zips to the same bytes.
func Create(dir, jobID string) (string, error) {
	var files []string
	for _, sub := range Dirs {
		root := filepath.Join(dir, sub)
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("walk %s: %w", sub, err)
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("nothing to archive under %s", dir)
	}
	sort.Strings(files)

	zipPath := filepath.Join(dir, Filename(jobID))
	f, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	stamp := time.Unix(0, 0).UTC()
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return "", err
		}
		header := &zip.FileHeader{
			Name:     filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: stamp,
		}
		entry, err := w.CreateHeader(header)
		if err != nil {
			return "", fmt.Errorf("add %s to archive: %w", rel, err)
		}
		src, err := os.Open(path)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			return "", fmt.Errorf("write %s to archive: %w", rel, err)
		}
		src.Close()
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return zipPath, nil
}

// List returns the entry names of an archive, for verification.
func List(zipPath string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names, nil
}
