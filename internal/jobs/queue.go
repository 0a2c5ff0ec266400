// Package jobs runs statement imports on a fixed pool of workers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("jobs: queue is closed")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one unit of work, usually one uploaded document.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Handler processes a job. A returned error marks the job failed; jobs
// are not retried.
type Handler func(ctx context.Context, job *Job) error

// Queue distributes jobs over channel-fed workers and keeps the last known
// state of every job it has seen.
type Queue struct {
	jobs   chan *Job
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed and sends on jobs
	closed bool
	log    zerolog.Logger

	recMu   sync.RWMutex
	records map[string]Job
}

// NewQueue creates a queue; bufferSize jobs may wait before Publish blocks.
func NewQueue(bufferSize int, log zerolog.Logger) *Queue {
	return &Queue{
		jobs:    make(chan *Job, bufferSize),
		records: make(map[string]Job),
		log:     log.With().Str("component", "jobs").Logger(),
	}
}

// Start launches workers that run handler until the queue is closed and
// drained, or ctx is cancelled.
func (q *Queue) Start(ctx context.Context, workers int, handler Handler) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.process(ctx, job, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, job *Job, handler Handler) {
	started := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &started
	q.save(job)

	err := handler(ctx, job)

	completed := time.Now()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		q.log.Error().Err(err).Str("job_id", job.ID).Str("name", job.Name).Msg("job failed")
	} else {
		job.Status = StatusCompleted
		q.log.Debug().Str("job_id", job.ID).Str("name", job.Name).Dur("took", completed.Sub(started)).Msg("job completed")
	}
	q.save(job)
}

// Publish enqueues a job, assigning an id when it has none.
func (q *Queue) Publish(ctx context.Context, job *Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = StatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	q.save(job)

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs: publish %s: %w", job.Name, ctx.Err())
	}
}

// Get returns a snapshot of a job.
func (q *Queue) Get(id string) (Job, bool) {
	q.recMu.RLock()
	defer q.recMu.RUnlock()
	job, ok := q.records[id]
	return job, ok
}

// Close stops intake and waits until every queued job has run.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) save(job *Job) {
	q.recMu.Lock()
	q.records[job.ID] = *job
	q.recMu.Unlock()
}
