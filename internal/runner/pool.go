package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/tenant-backup/internal/metrics"
)

// ErrQueueFull is returned by Enqueue when every queue slot is taken.
var ErrQueueFull = errors.New("backup queue is full")

// JobRunner runs one job to completion. *Runner satisfies it.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
type Pool struct {
	runner  JobRunner
	queue   chan string
	workers int
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewPool(runner JobRunner, workers, queueSize int, timeout time.Duration, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		runner:  runner,
		queue:   make(chan string, queueSize),
		workers: workers,
		timeout: timeout,
		logger:  logger.With().Str("component", "pool").Logger(),
		running: make(map[string]context.CancelFunc),
	}
}

// Enqueue schedules a job without blocking.
func (p *Pool) Enqueue(jobID string) error {
	select {
	case p.queue <- jobID:
		metrics.QueueDepth.Inc()
		return nil
	default:
		metrics.QueueRejections.Inc()
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is canceled. Canceling ctx
// cancels every running job; queued jobs stay queued in the database.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			p.work(ctx, worker)
			return nil
		})
	}
	p.logger.Info().Int("workers", p.workers).Int("queue_size", cap(p.queue)).Msg("worker pool started")
	err := g.Wait()
	p.logger.Info().Msg("worker pool stopped")
	return err
}

func (p *Pool) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.queue:
			metrics.QueueDepth.Dec()
			p.runOne(ctx, worker, jobID)
		}
	}
}

func (p *Pool) runOne(ctx context.Context, worker int, jobID string) {
	var jobCtx context.Context
	var cancel context.CancelFunc
	if p.timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	p.mu.Lock()
	p.running[jobID] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.running, jobID)
		p.mu.Unlock()
		cancel()
	}()

	if err := p.runner.Run(jobCtx, jobID); err != nil {
		p.logger.Warn().Err(err).Int("worker", worker).Str("job_id", jobID).Msg("job did not complete")
	}
}

// Cancel stops a running job. It reports whether the job was running.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.running[jobID]
	if ok {
		cancel()
	}
	return ok
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.queue)
}
