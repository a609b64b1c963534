// Package queue runs the background extraction pipeline: a poll-driven
// coordinator claims pending jobs and dispatches them to a bounded set of
// workers.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/resilience"
	"github.com/archivist-labs/chronicle/internal/store"
)

// Coordinator owns the poll loop and the worker slots.
type Coordinator struct {
	store     store.Store
	processor *Processor
	cfg       config.QueueConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	active atomic.Int64
	wg     sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(st store.Store, processor *Processor, cfg config.QueueConfig) *Coordinator {
	return &Coordinator{
		store:     st,
		processor: processor,
		cfg:       cfg,
	}
}

// Start begins the poll loop. Jobs left processing by an unclean shutdown
// are requeued first so the queue resumes where it left off.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return eris.New("queue: already running")
	}

	staleAfter := time.Duration(c.cfg.StaleAfterSecs) * time.Second
	if n, err := c.store.RequeueStale(ctx, staleAfter); err != nil {
		return eris.Wrap(err, "queue: requeue stale jobs")
	} else if n > 0 {
		zap.L().Info("requeued stale jobs", zap.Int("count", n))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.loop(loopCtx)

	zap.L().Info("queue coordinator started",
		zap.Duration("poll_interval", c.cfg.PollInterval()),
		zap.Int("max_concurrency", c.cfg.MaxConcurrency),
	)
	return nil
}

// Stop halts new claims and waits for in-flight jobs to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	zap.L().Info("queue coordinator stopped")
}

// Status reports the coordinator and queue-depth snapshot.
func (c *Coordinator) Status(ctx context.Context) (*model.QueueStatus, error) {
	counts, err := c.store.CountJobs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "queue: count jobs")
	}

	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	return &model.QueueStatus{
		Running:    running,
		ActiveJobs: int(c.active.Load()),
		Counts:     counts,
	}, nil
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PollInterval())
	defer ticker.Stop()

	// Claim immediately on start rather than waiting out the first tick.
	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick claims and dispatches pending jobs until the queue is empty or all
// worker slots are busy. It returns the number of jobs dispatched.
func (c *Coordinator) tick(ctx context.Context) int {
	dispatched := 0
	for int(c.active.Load()) < c.cfg.MaxConcurrency {
		if ctx.Err() != nil {
			return dispatched
		}

		job, err := c.store.ClaimNextJob(ctx)
		if err != nil {
			zap.L().Error("job claim failed", zap.Error(err))
			return dispatched
		}
		if job == nil {
			return dispatched
		}

		c.active.Add(1)
		c.wg.Add(1)
		go c.runJob(job)
		dispatched++
	}
	return dispatched
}

// runJob executes one job, releasing the worker slot in all cases
// including panics inside the processor.
func (c *Coordinator) runJob(job *model.ExtractionJob) {
	defer c.wg.Done()
	defer c.active.Add(-1)

	// The worker context is independent of the poll loop's: Stop halts
	// claiming and waits for in-flight jobs, it never cancels them, so the
	// completion and requeue writes always land. Per-call timeouts inside
	// the processor bound the work.
	ctx := context.Background()

	start := time.Now()
	payload, status, err := c.safeProcess(ctx, job)
	if err != nil {
		c.handleFailure(ctx, job, err)
		return
	}

	if err := c.store.CompleteJob(ctx, job.ID, status, payload); err != nil {
		zap.L().Error("job completion write failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}

	zap.L().Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("source", string(job.SourceType)+":"+job.SourceID),
		zap.String("status", string(status)),
		zap.Int("attempt", job.Attempts),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// safeProcess converts a worker panic into an ordinary error so the job
// takes the normal retry/fail path instead of wedging a slot.
func (c *Coordinator) safeProcess(ctx context.Context, job *model.ExtractionJob) (payload []byte, status model.JobStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("worker panic",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
			)
			err = eris.Errorf("queue: worker panic: %v", r)
		}
	}()
	return c.processor.Process(ctx, job)
}

// handleFailure applies the retry policy: permanent errors fail the job
// outright, transient ones requeue until attempts run out.
func (c *Coordinator) handleFailure(ctx context.Context, job *model.ExtractionJob, procErr error) {
	msg := procErr.Error()

	if !resilience.IsPermanent(procErr) && job.Retryable() {
		if err := c.store.RequeueJob(ctx, job.ID, msg); err != nil {
			zap.L().Error("job requeue failed", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
		zap.L().Warn("job requeued",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempts),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.String("error", msg),
		)
		return
	}

	if err := c.store.FailJob(ctx, job.ID, msg); err != nil {
		zap.L().Error("job fail write failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	zap.L().Error("job failed terminally",
		zap.String("job_id", job.ID),
		zap.String("source", string(job.SourceType)+":"+job.SourceID),
		zap.Int("attempts", job.Attempts),
		zap.String("error", msg),
		zap.String("classification", resilience.Classify(procErr)),
	)
}
