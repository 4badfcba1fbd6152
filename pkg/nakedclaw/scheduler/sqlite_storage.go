// sqlite_storage.go implements JobStorage on SQLite. Drop-in
// replacement for FileJobStorage: same contract, selected by the
// scheduler.backend config key.
package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJobStorage persists jobs in a local SQLite database.
type SQLiteJobStorage struct {
	db *sql.DB
}

// NewSQLiteJobStorage opens (creating if needed) the jobs database at
// the given path.
func NewSQLiteJobStorage(path string) (*SQLiteJobStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening jobs database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			cron_expr   TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL,
			channel     TEXT NOT NULL,
			sender      TEXT NOT NULL,
			one_shot    INTEGER NOT NULL,
			created_at  TEXT NOT NULL,
			next_run_at TEXT,
			last_run_at TEXT
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}

	return &SQLiteJobStorage{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteJobStorage) Close() error {
	return s.db.Close()
}

// Save persists a job (insert or update).
func (s *SQLiteJobStorage) Save(job *Job) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO jobs
			(id, name, cron_expr, message, channel, sender, one_shot,
			 created_at, next_run_at, last_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Name,
		job.CronExpr,
		job.Message,
		job.Channel,
		job.Sender,
		boolToInt(job.OneShot),
		job.CreatedAt.UTC().Format(time.RFC3339Nano),
		timePtrToNull(job.NextRunAt),
		timePtrToNull(job.LastRunAt),
	)
	if err != nil {
		return fmt.Errorf("saving job %q: %w", job.ID, err)
	}
	return nil
}

// Delete removes a job by id. Unknown ids are not an error.
func (s *SQLiteJobStorage) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting job %q: %w", id, err)
	}
	return nil
}

// LoadAll reads every persisted job.
func (s *SQLiteJobStorage) LoadAll() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT id, name, cron_expr, message, channel, sender, one_shot,
		       created_at, next_run_at, last_run_at
		FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("loading jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			j         Job
			oneShot   int
			createdAt string
			nextRunAt sql.NullString
			lastRunAt sql.NullString
		)
		if err := rows.Scan(
			&j.ID, &j.Name, &j.CronExpr, &j.Message,
			&j.Channel, &j.Sender, &oneShot,
			&createdAt, &nextRunAt, &lastRunAt,
		); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}

		j.OneShot = oneShot != 0
		j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		j.NextRunAt = nullToTimePtr(nextRunAt)
		j.LastRunAt = nullToTimePtr(lastRunAt)
		jobs = append(jobs, &j)
	}

	return jobs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func nullToTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
