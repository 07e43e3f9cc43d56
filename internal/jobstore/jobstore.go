// Package jobstore holds the process-local status of in-flight enrichment
// jobs. Entries are best effort: the record store is the durable source of
// truth and jobs are evicted once they outlive their TTL.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard/internal/metrics"
	"github.com/sells-group/onboard/internal/model"
)

// Defaults for TTL eviction.
const (
	DefaultTTL           = 15 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// ErrJobExists is returned by Create when the id is still held.
var ErrJobExists = eris.New("jobstore: job already exists")

// Store is a mutex-guarded map of job id to job status.
type Store struct {
	mu            sync.RWMutex
	jobs          map[string]*model.Job
	ttl           time.Duration
	sweepInterval time.Duration
	nowFunc       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long a job lives before the sweep may evict it.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithSweepInterval sets the period of the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFunc = now }
}

// New creates an empty job store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:          make(map[string]*model.Job),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		nowFunc:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create inserts a pending job.
func (s *Store) Create(id string) (model.Job, error) {
	if id == "" {
		return model.Job{}, eris.New("jobstore: empty job id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; ok {
		return model.Job{}, eris.Wrapf(ErrJobExists, "job %s", id)
	}
	now := s.nowFunc()
	j := &model.Job{
		ID:        id,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[id] = j
	metrics.JobCreated()
	metrics.SetJobsLive(len(s.jobs))
	return *j, nil
}

// Get returns a copy of the job, if present.
func (s *Store) Get(id string) (model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return *j, true
}

// Update moves a job to a terminal state. An unknown id (never created or
// already evicted) is logged and ignored. Repeated updates overwrite: the
// last write wins.
func (s *Store) Update(id string, status model.JobStatus, data *model.EnrichmentPayload, errMsg string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		zap.L().Warn("jobstore: update for unknown job",
			zap.String("job_id", id),
			zap.String("status", string(status)),
		)
		metrics.JobUpdateMiss()
		return model.Job{}, false
	}

	if j.Status.Terminal() {
		zap.L().Info("jobstore: overwriting terminal job",
			zap.String("job_id", id),
			zap.String("previous", string(j.Status)),
			zap.String("status", string(status)),
		)
	}

	j.Status = status
	j.UpdatedAt = s.nowFunc()
	switch status {
	case model.JobStatusSuccess:
		j.Data = data
		j.Error = ""
	case model.JobStatusError:
		j.Data = nil
		j.Error = errMsg
	}
	metrics.JobResolved(string(status))
	return *j, true
}

// Sweep removes every job older than the TTL regardless of status and
// returns how many were evicted.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	evicted := 0
	for id, j := range s.jobs {
		if now.Sub(j.CreatedAt) > s.ttl {
			delete(s.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.JobsEvicted(evicted)
	}
	metrics.SetJobsLive(len(s.jobs))
	return evicted
}

// Len returns the number of jobs held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Run sweeps on a fixed interval. It blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "jobstore.sweeper"))
	log.Info("starting job sweeper",
		zap.Duration("interval", s.sweepInterval),
		zap.Duration("ttl", s.ttl),
	)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("job sweeper stopped")
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Info("jobstore: evicted expired jobs",
					zap.Int("evicted", n),
					zap.Int("remaining", s.Len()),
				)
			}
		}
	}
}
