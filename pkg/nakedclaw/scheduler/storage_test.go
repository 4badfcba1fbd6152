package scheduler

import (
	"path/filepath"
	"testing"
	"time"
)

// Both backends must satisfy the same contract: Save upserts by id,
// Delete tolerates unknown ids, LoadAll mirrors every mutation.
func TestJobStorageContract(t *testing.T) {
	t.Parallel()

	backends := []struct {
		name string
		open func(t *testing.T) JobStorage
	}{
		{"file", func(t *testing.T) JobStorage {
			s, err := NewFileJobStorage(filepath.Join(t.TempDir(), "jobs.json"))
			if err != nil {
				t.Fatalf("NewFileJobStorage: %v", err)
			}
			return s
		}},
		{"sqlite", func(t *testing.T) JobStorage {
			s, err := NewSQLiteJobStorage(filepath.Join(t.TempDir(), "jobs.db"))
			if err != nil {
				t.Fatalf("NewSQLiteJobStorage: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}

	for _, backend := range backends {
		backend := backend
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()
			storage := backend.open(t)

			// Empty store loads clean.
			jobs, err := storage.LoadAll()
			if err != nil {
				t.Fatalf("LoadAll on empty store: %v", err)
			}
			if len(jobs) != 0 {
				t.Fatalf("empty store returned %d jobs", len(jobs))
			}

			next := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			job := &Job{
				ID:        "job-1",
				Name:      "in 1 hour",
				Message:   "stretch",
				Channel:   "terminal",
				Sender:    "alice",
				OneShot:   true,
				CreatedAt: time.Now().Truncate(time.Millisecond),
				NextRunAt: &next,
			}
			if err := storage.Save(job); err != nil {
				t.Fatalf("Save: %v", err)
			}

			// Upsert: same id replaces, not duplicates.
			job.Message = "stretch again"
			if err := storage.Save(job); err != nil {
				t.Fatalf("Save (update): %v", err)
			}

			jobs, err = storage.LoadAll()
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			if len(jobs) != 1 {
				t.Fatalf("LoadAll returned %d jobs, want 1", len(jobs))
			}
			got := jobs[0]
			if got.Message != "stretch again" {
				t.Errorf("Message = %q, want update applied", got.Message)
			}
			if !got.OneShot || got.Channel != "terminal" || got.Sender != "alice" {
				t.Errorf("job fields lost in round trip: %+v", got)
			}
			if got.NextRunAt == nil || !got.NextRunAt.Equal(next) {
				t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, next)
			}
			if got.LastRunAt != nil {
				t.Errorf("LastRunAt = %v, want nil", got.LastRunAt)
			}

			// Delete of an unknown id is a no-op, not an error.
			if err := storage.Delete("ghost"); err != nil {
				t.Fatalf("Delete unknown id: %v", err)
			}
			if err := storage.Delete("job-1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			jobs, err = storage.LoadAll()
			if err != nil {
				t.Fatalf("LoadAll after delete: %v", err)
			}
			if len(jobs) != 0 {
				t.Fatalf("store not empty after delete: %d jobs", len(jobs))
			}
		})
	}
}
