// storage.go provides the JSON file-based JobStorage: one array of Job
// records, read wholesale on boot, rewritten wholesale on every
// mutation.
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileJobStorage persists jobs as a JSON array on disk.
type FileJobStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileJobStorage creates a file-based job storage at the given path.
// Creates the parent directory if it doesn't exist.
func NewFileJobStorage(path string) (*FileJobStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileJobStorage{path: path}, nil
}

// Save persists a job, replacing any record with the same id.
func (s *FileJobStorage) Save(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return err
	}

	replaced := false
	for i, j := range jobs {
		if j.ID == job.ID {
			jobs[i] = job
			replaced = true
			break
		}
	}
	if !replaced {
		jobs = append(jobs, job)
	}
	return s.writeAll(jobs)
}

// Delete removes a job by id. Unknown ids are not an error.
func (s *FileJobStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.readAll()
	if err != nil {
		return err
	}

	kept := jobs[:0]
	for _, j := range jobs {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	return s.writeAll(kept)
}

// LoadAll reads every persisted job. A missing file is an empty store.
func (s *FileJobStorage) LoadAll() ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// readAll reads the job array from disk (caller must hold mu).
func (s *FileJobStorage) readAll() ([]*Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing jobs file: %w", err)
	}
	return jobs, nil
}

// writeAll rewrites the whole job array (caller must hold mu).
func (s *FileJobStorage) writeAll(jobs []*Job) error {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling jobs: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing jobs file: %w", err)
	}
	return nil
}
