package resource

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileStore persists the record as a YAML file. Writes go through a temp
// file plus rename so that a concurrent reader sees either the old record
// or the new one, never a torn write. That is the only atomicity on offer:
// between a worker's Read and Write any number of other workers may have
// rewritten the file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the artifact path.
func (s *FileStore) Path() string {
	return s.path
}

// Init writes the starting state, clobbering any stale artifact.
func (s *FileStore) Init(value int) error {
	return s.Write(initRecord(value))
}

// Read loads the current record.
func (s *FileStore) Read() (Record, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // Path chosen by the harness
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotInitialized, s.path)
		}
		return Record{}, fmt.Errorf("read resource: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, corrupt(err)
	}
	return rec, nil
}

// Write replaces the whole record via temp file and atomic rename.
func (s *FileStore) Write(rec Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal resource: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".resource-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("write resource: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, 0o644); err != nil { //nolint:gosec // Demo artifact, readable for inspection
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("rename resource: %w", err)
	}
	return nil
}

// Teardown removes the artifact. Missing artifact is fine.
func (s *FileStore) Teardown() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove resource: %w", err)
	}
	return nil
}
