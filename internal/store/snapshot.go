package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ytqueue/internal/domain"
)

// FileSnapshot persists the queue as an ordered JSON array, rewritten
// wholesale on every mutation. Writes go through a temp file and rename so
// a crash mid-write leaves the previous snapshot intact.
type FileSnapshot struct {
	path string
}

// NewFileSnapshot creates a snapshotter writing to path.
func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{path: path}
}

// Save rewrites the snapshot file with the full job list.
func (f *FileSnapshot) Save(jobs []domain.Job) error {
	if jobs == nil {
		jobs = []domain.Job{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write queue snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace queue snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file. A missing file is an empty queue.
func (f *FileSnapshot) Load() ([]domain.Job, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue snapshot: %w", err)
	}
	var jobs []domain.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decode queue snapshot: %w", err)
	}
	return jobs, nil
}
