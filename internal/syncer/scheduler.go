package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"twscraper/internal/jobs"
	"twscraper/pkg/config"
	"twscraper/pkg/logger"
	"twscraper/pkg/subscription"
)

// SweepObserver receives sweep metrics
type SweepObserver interface {
	ObserveSweep(kind string, processed, failed int)
}

// Scheduler submits due subscription syncs and the periodic sweep pass to
// a job pool. A subscription is never queued twice.
type Scheduler struct {
	syncer     *Syncer
	reconciler *subscription.Reconciler
	pool       *jobs.Pool
	cfg        config.JobsConfig
	sweeps     SweepObserver
	logger     logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	inflight map[int64]struct{}
	sweeping atomic.Bool
}

// NewScheduler creates a scheduler over a pool that has not been started
func NewScheduler(s *Syncer, r *subscription.Reconciler, pool *jobs.Pool, cfg config.JobsConfig, sweeps SweepObserver, log logger.Logger) *Scheduler {
	return &Scheduler{
		syncer:     s,
		reconciler: r,
		pool:       pool,
		cfg:        cfg,
		sweeps:     sweeps,
		logger:     logger.OrNop(log),
		now:        time.Now,
		inflight:   make(map[int64]struct{}),
	}
}

func ticker(every time.Duration) (<-chan time.Time, func()) {
	if every <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(every)
	return t.C, t.Stop
}

// Run starts the pool and schedules work until ctx is cancelled. Queued
// jobs are finished before it returns.
func (sc *Scheduler) Run(ctx context.Context) error {
	logger.LogComponentStart("scheduler", map[string]interface{}{
		"workers":     sc.pool.Workers(),
		"sync_every":  sc.cfg.SyncEvery.String(),
		"sweep_every": sc.cfg.SweepEvery.String(),
	})
	sc.pool.Start()
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range sc.pool.Results() {
		}
	}()
	defer func() {
		sc.pool.Stop()
		<-drained
		logger.LogComponentStop("scheduler", "context cancelled")
	}()

	syncTick, stopSync := ticker(sc.cfg.SyncEvery)
	defer stopSync()
	sweepTick, stopSweep := ticker(sc.cfg.SweepEvery)
	defer stopSweep()

	sc.tick(ctx, true, true)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-syncTick:
			sc.tick(ctx, true, false)
		case <-sweepTick:
			sc.tick(ctx, false, true)
		}
	}
}

func (sc *Scheduler) tick(ctx context.Context, syncs, sweeps bool) {
	if syncs {
		if _, err := sc.EnqueueDue(ctx); err != nil {
			sc.logger.ErrorWithFields("Failed to queue due subscriptions", map[string]interface{}{"error": err.Error()})
		}
	}
	if sweeps {
		if err := sc.EnqueueSweeps(); err != nil {
			sc.logger.ErrorWithFields("Failed to queue sweeps", map[string]interface{}{"error": err.Error()})
		}
	}
}

// EnqueueDue submits a sync for every due subscription that is not
// already queued or running and returns how many were submitted
func (sc *Scheduler) EnqueueDue(ctx context.Context) (int, error) {
	due, err := sc.syncer.Store().DueSubscriptions(ctx, sc.now(), sc.pool.Workers()*4)
	if err != nil {
		return 0, fmt.Errorf("list due subscriptions: %w", err)
	}

	queued := 0
	for _, sub := range due {
		if !sc.claim(sub.ID) {
			continue
		}
		sub := sub
		err := sc.pool.Submit(jobs.Job{
			ID:   fmt.Sprintf("sync:%d", sub.ID),
			Kind: "sync",
			Run: func(ctx context.Context) error {
				defer sc.release(sub.ID)
				_, err := sc.syncer.Sync(ctx, sub)
				return err
			},
		})
		if err != nil {
			sc.release(sub.ID)
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		sc.logger.InfoWithFields("Queued subscription syncs", map[string]interface{}{
			"queued": queued,
			"due":    len(due),
		})
	}
	return queued, nil
}

// EnqueueSweeps submits one job that runs every sweep in order, unless the
// previous pass is still running
func (sc *Scheduler) EnqueueSweeps() error {
	if !sc.sweeping.CompareAndSwap(false, true) {
		sc.logger.Debug("Previous sweep pass still running")
		return nil
	}
	err := sc.pool.Submit(jobs.Job{
		ID:   "sweep:" + sc.now().UTC().Format(time.RFC3339),
		Kind: "sweep",
		Run: func(ctx context.Context) error {
			defer sc.sweeping.Store(false)
			return sc.sweepAll(ctx)
		},
	})
	if err != nil {
		sc.sweeping.Store(false)
	}
	return err
}

func (sc *Scheduler) sweepAll(ctx context.Context) error {
	for _, kind := range subscription.SweepKinds {
		res, err := sc.reconciler.Sweep(ctx, kind, false)
		if res != nil && sc.sweeps != nil {
			sc.sweeps.ObserveSweep(string(kind), res.Processed, res.Failed)
		}
		if err != nil {
			return fmt.Errorf("%s sweep: %w", kind, err)
		}
	}
	return nil
}

func (sc *Scheduler) claim(id int64) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, busy := sc.inflight[id]; busy {
		return false
	}
	sc.inflight[id] = struct{}{}
	return true
}

func (sc *Scheduler) release(id int64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.inflight, id)
}
