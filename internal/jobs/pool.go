// Package jobs runs independent jobs, such as subscription syncs and
// sweeps, on a fixed set of workers. Job starts are paced so a burst of
// due subscriptions does not hit the upstream API all at once.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"twscraper/pkg/config"
	"twscraper/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a stopped pool
var ErrPoolClosed = errors.New("worker pool is shutting down")

// Job is one unit of work. Jobs run sequentially within a worker.
type Job struct {
	ID   string
	Kind string
	Run  func(ctx context.Context) error
}

// Result is the outcome of one job
type Result struct {
	Job      Job
	Worker   int
	Err      error
	Duration time.Duration
}

// QueueObserver is told the queue length whenever it changes
type QueueObserver interface {
	SetQueued(n int)
}

// Option customizes a Pool
type Option func(*Pool)

// WithLimiter replaces the job start limiter
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pool) { p.limiter = l }
}

// WithObserver reports the queue length
func WithObserver(o QueueObserver) Option {
	return func(p *Pool) { p.observer = o }
}

// Pool manages concurrent job workers
type Pool struct {
	numWorkers int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	limiter    *rate.Limiter
	observer   QueueObserver
	logger     logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool from the jobs settings. Cancelling ctx aborts
// running jobs.
func NewPool(ctx context.Context, cfg config.JobsConfig, log logger.Logger, opts ...Option) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	limit := rate.Inf
	if cfg.StartsPerMin > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.StartsPerMin))
	}

	p := &Pool{
		numWorkers: workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers),
		ctx:        ctx,
		cancel:     cancel,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop lets the workers finish the queued jobs, then closes Results
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool...")
	p.wg.Wait()
	close(p.results)
	p.cancel()
	p.logger.Info("Worker pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has nothing to run", job.ID)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobQueue <- job:
		p.reportQueue()
		p.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"job_id": job.ID,
			"kind":   job.Kind,
		})
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Results returns the result channel. It must be drained while the pool
// runs.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// QueueSize returns the number of jobs waiting for a worker
func (p *Pool) QueueSize() int {
	return len(p.jobQueue)
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	return p.numWorkers
}

func (p *Pool) reportQueue() {
	if p.observer != nil {
		p.observer.SetQueued(len(p.jobQueue))
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.reportQueue()
		result := p.process(job, id)

		select {
		case p.results <- result:
		case <-p.ctx.Done():
			p.logger.DebugWithFields("Worker stopping - context cancelled while sending result", map[string]interface{}{
				"worker_id": id,
			})
			return
		}
	}
}

// process waits for a start slot and runs the job, turning a panic into
// an error so one bad job does not take the worker down
func (p *Pool) process(job Job, workerID int) (result Result) {
	start := time.Now()
	result = Result{Job: job, Worker: workerID}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
		result.Duration = time.Since(start)
		p.logResult(result)
	}()

	if err := p.limiter.Wait(p.ctx); err != nil {
		result.Err = fmt.Errorf("waiting to start job: %w", err)
		return result
	}
	result.Err = job.Run(p.ctx)
	return result
}

func (p *Pool) logResult(r Result) {
	fields := map[string]interface{}{
		"worker_id": r.Worker,
		"job_id":    r.Job.ID,
		"kind":      r.Job.Kind,
		"duration":  r.Duration,
	}
	if r.Err != nil {
		fields["error"] = r.Err.Error()
		p.logger.ErrorWithFields("Job failed", fields)
		return
	}
	p.logger.DebugWithFields("Job completed", fields)
}
