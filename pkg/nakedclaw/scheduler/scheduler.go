package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Scheduler owns every live timer. Recurring jobs ride a single cron
// runner; one-shot jobs get a goroutine armed with their absolute
// firing instant. Jobs mirror disk: every mutation is persisted before
// it takes effect in memory.
type Scheduler struct {
	storage JobStorage
	fire    FireFunc
	logger  *slog.Logger

	cron    *cron.Cron
	jobs    map[string]*Job
	cronIDs map[string]cron.EntryID
	running map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// New creates a scheduler. fire is invoked on every firing; storage
// must not be nil.
func New(storage JobStorage, fire FireFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		storage: storage,
		fire:    fire,
		logger:  logger,
		cron:    cron.New(),
		jobs:    make(map[string]*Job),
		cronIDs: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start loads persisted jobs, re-arms their timers, and starts the
// cron runner. One-shot jobs whose instant passed while the daemon was
// down are treated as already fired and dropped from the store — there
// is no catch-up firing. Recurring jobs recompute NextRunAt from the
// expression's next future match.
func (s *Scheduler) Start() error {
	jobs, err := s.storage.LoadAll()
	if err != nil {
		return fmt.Errorf("loading persisted jobs: %w", err)
	}

	now := time.Now()
	restored, expired := 0, 0

	s.mu.Lock()
	for _, job := range jobs {
		if job.OneShot {
			if job.NextRunAt == nil || !job.NextRunAt.After(now) {
				// Missed while down: discard, never replay.
				if err := s.storage.Delete(job.ID); err != nil {
					s.logger.Warn("removing expired one-shot job", "job_id", job.ID, "err", err)
				}
				expired++
				continue
			}
			s.jobs[job.ID] = job
			s.armOneShot(job)
			restored++
			continue
		}

		if err := s.armCron(job, now); err != nil {
			s.logger.Warn("skipping job with invalid schedule",
				"job_id", job.ID, "cron", job.CronExpr, "err", err)
			continue
		}
		s.jobs[job.ID] = job
		if err := s.storage.Save(job); err != nil {
			s.logger.Warn("persisting recomputed next run", "job_id", job.ID, "err", err)
		}
		restored++
	}
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "restored", restored, "expired_one_shots", expired)
	return nil
}

// Stop cancels all timers and stops the cron runner. In-flight firings
// run to completion; cancellation only prevents future firings.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("cron jobs still running at shutdown deadline")
	}
	s.wg.Wait()
}

// AddJob creates, persists, and arms a job from a parsed spec.
// The returned job carries its computed NextRunAt.
func (s *Scheduler) AddJob(spec ParsedSpec, name, message, channel, sender string) (*Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Message:   message,
		Channel:   channel,
		Sender:    sender,
		OneShot:   spec.OneShot,
		CreatedAt: time.Now(),
	}

	if spec.OneShot {
		at := spec.At
		job.NextRunAt = &at
	} else {
		job.CronExpr = spec.CronExpr
		schedule, err := cron.ParseStandard(spec.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", spec.CronExpr, err)
		}
		next := schedule.Next(time.Now())
		job.NextRunAt = &next
	}

	if err := s.storage.Save(job); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	if job.OneShot {
		s.armOneShot(job)
	} else {
		if err := s.armCron(job, time.Now()); err != nil {
			// Validated above; a failure here is a programming error.
			delete(s.jobs, job.ID)
			return nil, err
		}
	}

	s.logger.Info("job scheduled",
		"job_id", job.ID, "name", job.Name,
		"one_shot", job.OneShot, "next_run", job.NextRunAt)

	c := *job
	return &c, nil
}

// RemoveJob cancels a job's timer and removes it from the store.
// Returns false (mutating nothing) for unknown ids.
func (s *Scheduler) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return false
	}

	delete(s.jobs, id)
	if entryID, ok := s.cronIDs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, id)
	}
	if err := s.storage.Delete(id); err != nil {
		s.logger.Warn("removing persisted job", "job_id", id, "err", err)
	}

	s.logger.Info("job removed", "job_id", id, "name", job.Name)
	return true
}

// ListJobs returns copies of all tracked jobs, oldest first. Copies,
// so callers can inspect them without racing the firing path.
func (s *Scheduler) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		c := *job
		jobs = append(jobs, &c)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Count returns the number of tracked jobs.
func (s *Scheduler) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// armCron registers a recurring job with the cron runner and recomputes
// its NextRunAt relative to now. Caller must hold mu.
func (s *Scheduler) armCron(job *Job, now time.Time) error {
	schedule, err := cron.ParseStandard(job.CronExpr)
	if err != nil {
		return err
	}
	next := schedule.Next(now)
	job.NextRunAt = &next

	id := job.ID
	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fireRecurring(id)
	}))
	s.cronIDs[job.ID] = entryID
	return nil
}

// armOneShot starts the goroutine waiting for a one-shot job's instant.
// Caller must hold mu.
func (s *Scheduler) armOneShot(job *Job) {
	id := job.ID
	delay := time.Until(*job.NextRunAt)
	if delay < 0 {
		delay = 0
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			s.fireOneShot(id)
		case <-s.ctx.Done():
		}
	}()
}

// fireOneShot delivers a one-shot job exactly once, then removes it.
func (s *Scheduler) fireOneShot(id string) {
	s.mu.Lock()
	job, exists := s.jobs[id]
	if !exists || s.running[id] {
		// Cancelled between timer expiry and now.
		s.mu.Unlock()
		return
	}
	s.running[id] = true
	delete(s.jobs, id)
	s.mu.Unlock()

	s.invoke(job)

	if err := s.storage.Delete(id); err != nil {
		s.logger.Warn("removing fired one-shot job", "job_id", id, "err", err)
	}

	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

// fireRecurring delivers a recurring job and persists its updated
// LastRunAt/NextRunAt. Overlapping firings of the same job are skipped.
func (s *Scheduler) fireRecurring(id string) {
	s.mu.Lock()
	job, exists := s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return
	}
	if s.running[id] {
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping this firing", "job_id", id)
		return
	}
	s.running[id] = true
	s.mu.Unlock()

	s.invoke(job)

	now := time.Now()
	s.mu.Lock()
	delete(s.running, id)
	if _, still := s.jobs[id]; still {
		job.LastRunAt = &now
		if entryID, ok := s.cronIDs[id]; ok {
			next := s.cron.Entry(entryID).Next
			if !next.IsZero() {
				job.NextRunAt = &next
			}
		}
		if err := s.storage.Save(job); err != nil {
			s.logger.Warn("persisting job run state", "job_id", id, "err", err)
		}
	}
	s.mu.Unlock()
}

// invoke calls the fire callback with panic isolation: a panicking
// handler must not take the daemon down.
func (s *Scheduler) invoke(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job handler panicked", "job_id", job.ID, "panic", r)
		}
	}()
	if s.fire != nil {
		s.fire(job)
	}
}
