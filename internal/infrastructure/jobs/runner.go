package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/bankrec/internal/infrastructure/cache"
	"github.com/erp/bankrec/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a background job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is one unit of background work, identified by a name. Enqueueing a name
// that is already queued or running is dropped, which is what clearance
// validation wants when a transaction is saved twice in quick succession.
type Job struct {
	ID          uuid.UUID
	Name        string
	Status      JobStatus
	Error       string
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	fn func(ctx context.Context) error
}

// ErrQueueFull is returned when the job queue cannot take more work
var ErrQueueFull = errors.New("job queue is full")

// Runner executes named jobs on a fixed worker pool
type Runner struct {
	cfg    config.JobsConfig
	dedupe cache.DedupeStore
	logger *zap.Logger

	queue chan *Job
	wg    sync.WaitGroup

	mu      sync.RWMutex
	history map[string]*Job

	stopOnce sync.Once
}

// NewRunner creates a runner; call Start before enqueueing
func NewRunner(cfg config.JobsConfig, dedupe cache.DedupeStore, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		dedupe:  dedupe,
		logger:  logger,
		queue:   make(chan *Job, cfg.QueueSize),
		history: make(map[string]*Job),
	}
}

// Start launches the worker pool
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.logger.Info("job runner started", zap.Int("workers", r.cfg.Workers))
}

// Enqueue submits a job. Returns false when a job with the same name is
// already queued or running and the submission was dropped.
func (r *Runner) Enqueue(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	fresh, err := r.dedupe.Reserve(ctx, name, r.cfg.DedupeWindow)
	if err != nil {
		return false, err
	}
	if !fresh {
		r.logger.Debug("duplicate job dropped", zap.String("job", name))
		return false, nil
	}

	job := &Job{
		ID:         uuid.New(),
		Name:       name,
		Status:     JobStatusPending,
		EnqueuedAt: time.Now(),
		fn:         fn,
	}

	select {
	case r.queue <- job:
		r.track(job)
		return true, nil
	default:
		_ = r.dedupe.Release(ctx, name)
		return false, ErrQueueFull
	}
}

// Status returns a snapshot of the last job enqueued under a name, or nil
func (r *Runner) Status(name string) *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.history[name]
	if !ok {
		return nil
	}
	snapshot := *job
	snapshot.fn = nil
	return &snapshot
}

// Shutdown stops accepting work and waits for running jobs, bounded by ctx
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.queue) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) track(job *Job) {
	r.mu.Lock()
	r.history[job.Name] = job
	r.mu.Unlock()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for job := range r.queue {
		r.run(job)
	}
}

func (r *Runner) run(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.JobTimeout)
	defer cancel()

	now := time.Now()
	r.mu.Lock()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	r.mu.Unlock()

	err := job.fn(ctx)

	// The name must be free again before the final status is visible, so a
	// caller observing completion can immediately resubmit.
	_ = r.dedupe.Release(ctx, job.Name)

	completed := time.Now()
	r.mu.Lock()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = JobStatusSuccess
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("background job failed",
			zap.String("job", job.Name),
			zap.Error(err))
		return
	}
	r.logger.Debug("background job finished",
		zap.String("job", job.Name),
		zap.Duration("took", completed.Sub(now)))
}
