package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/lancaster971/pilotproOS-sub000/internal/config"
	"github.com/lancaster971/pilotproOS-sub000/internal/gate"
	"github.com/lancaster971/pilotproOS-sub000/pkg/logger"
)

// refreshJob identifies one execution to import in the background. ID is
// assigned on enqueue and correlates the job's log lines.
type refreshJob struct {
	ID          string
	ExecutionID string
	WorkflowID  string
	TenantID    string
}

// Refresher runs background execution imports with bounded concurrency.
// Jobs for a key already being processed are coalesced: the in-flight import
// will pick up the same latest data, so a duplicate adds nothing.
type Refresher struct {
	jobs    chan refreshJob
	sem     *semaphore.Weighted
	process func(ctx context.Context, job refreshJob) error
	log     *logger.Logger

	mu       sync.Mutex
	inFlight map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a Refresher. Call Start before Enqueue.
func NewRefresher(cfg config.TimelineConfig, log *logger.Logger, process func(ctx context.Context, job refreshJob) error) *Refresher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Refresher{
		jobs:     make(chan refreshJob, cfg.RefreshQueueSize),
		sem:      semaphore.NewWeighted(cfg.MaxRefreshJobs),
		process:  process,
		log:      log,
		inFlight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the dispatcher loop.
func (r *Refresher) Start() {
	r.wg.Add(1)
	go r.dispatch()
	r.log.Infow("background refresher started", "queue_size", cap(r.jobs))
}

// Enqueue schedules a job without blocking. A full queue is reported to the
// caller; the next notification or timeline request will trigger the fetch
// instead.
func (r *Refresher) Enqueue(job refreshJob) error {
	job.ID = uuid.NewString()
	select {
	case r.jobs <- job:
		r.log.Debugw("refresh job queued",
			"job_id", job.ID, "workflow_id", job.WorkflowID, "execution_id", job.ExecutionID)
		return nil
	default:
		return fmt.Errorf("refresh queue full, dropping job for workflow %s", job.WorkflowID)
	}
}

// Stop drains the dispatcher and waits for running jobs, bounded by ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	r.cancel()

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

func (r *Refresher) dispatch() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.jobs:
			key := gate.Key(job.TenantID, job.WorkflowID)

			r.mu.Lock()
			if r.inFlight[key] {
				r.mu.Unlock()
				continue
			}
			r.inFlight[key] = true
			r.mu.Unlock()

			if err := r.sem.Acquire(r.ctx, 1); err != nil {
				r.clearInFlight(key)
				return
			}

			r.wg.Add(1)
			go func(job refreshJob, key string) {
				defer r.wg.Done()
				defer r.sem.Release(1)
				defer r.clearInFlight(key)

				if err := r.process(r.ctx, job); err != nil {
					r.log.Warnw("background refresh failed",
						"job_id", job.ID, "execution_id", job.ExecutionID, "workflow_id", job.WorkflowID, "error", err)
				}
			}(job, key)
		}
	}
}

func (r *Refresher) clearInFlight(key string) {
	r.mu.Lock()
	delete(r.inFlight, key)
	r.mu.Unlock()
}
