package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSStore persists artifacts as files under a base directory, one
// subdirectory per report. Artifact ids may contain forward slashes
// ("domains/legal.json") which map to nested directories. It stands in for
// a remote object store; the path layout matches what PipelineRun records
// reference in their storage paths.
type FSStore struct {
	baseDir string
}

// NewFSStore creates the base directory if needed and returns the store.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (s *FSStore) path(reportID, artifactID string) (string, error) {
	p := filepath.Join(s.baseDir, reportID, filepath.FromSlash(artifactID))
	// Reject ids that escape the report directory.
	root := filepath.Join(s.baseDir, reportID)
	if rel, err := filepath.Rel(root, p); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid artifact id %q", artifactID)
	}
	return p, nil
}

// Save writes the artifact bytes, creating intermediate directories.
func (s *FSStore) Save(reportID, artifactID string, data []byte) error {
	p, err := s.path(reportID, artifactID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create artifact subdir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Get reads the artifact bytes or returns ErrNotFound.
func (s *FSStore) Get(reportID, artifactID string) ([]byte, error) {
	p, err := s.path(reportID, artifactID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// List walks the report directory and returns artifact ids relative to it.
func (s *FSStore) List(reportID string) ([]string, error) {
	root := filepath.Join(s.baseDir, reportID)
	ids := []string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return ids, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (s *FSStore) Delete(reportID, artifactID string) error {
	p, err := s.path(reportID, artifactID)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Purge removes the report directory and everything under it. Unknown
// reports are a no-op.
func (s *FSStore) Purge(reportID string) error {
	root := filepath.Join(s.baseDir, reportID)
	// Reject ids that escape the base directory.
	if rel, err := filepath.Rel(s.baseDir, root); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("invalid report id %q", reportID)
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("purge artifacts: %w", err)
	}
	return nil
}
