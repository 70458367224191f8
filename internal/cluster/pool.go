package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/browsercluster/browsercluster/internal/metrics"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

// WorkerPool maintains a bounded, lazily-grown population of Workers.
// Grounded on the teacher's worker.Pool (Start/Stop once-semantics,
// sync.WaitGroup-based graceful close), generalized from "spawn a fixed
// goroutine count up front" to "spawn on demand, throttled, up to a cap".
//
// The cap itself (spec §8 invariant 1: |workers|+starting <= maxConcurrency)
// is enforced twice: the plain counters below decide canLaunchWorker the
// way the spec describes, and a golang.org/x/sync/semaphore.Weighted of the
// same width additionally gates launchWorker as a defense-in-depth check —
// this is the teacher's own golang.org/x/sync dependency, listed in its
// go.mod but never imported there, wired to the concern it was evidently
// meant for.
type WorkerPool struct {
	mu                  sync.Mutex
	workers             []*Worker
	starting            int
	maxConcurrency      int
	workerCreationDelay time.Duration
	lastSpawnAt         time.Time
	nextID              int

	provider ResourceProvider
	sem      *semaphore.Weighted
}

func newWorkerPool(provider ResourceProvider, maxConcurrency int, workerCreationDelay time.Duration) *WorkerPool {
	return &WorkerPool{
		maxConcurrency:      maxConcurrency,
		workerCreationDelay: workerCreationDelay,
		provider:            provider,
		sem:                 semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// hasFreeCapacity reports whether some existing worker can take job right
// now, or a new one may be spawned for it.
func (p *WorkerPool) hasFreeCapacity(job *Job) bool {
	p.mu.Lock()
	workers := append([]*Worker{}, p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		if job == nil || w.canHandle(job.Data) {
			return true
		}
	}
	return p.canLaunchWorker(job)
}

// canLaunchWorker reports whether a new worker may be spawned for job right
// now: population+starting under the cap, spawn spacing satisfied, and (for
// providers that care, e.g. the per-group strategy) the provider itself
// permits it.
func (p *WorkerPool) canLaunchWorker(job *Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canLaunchWorkerLocked(job, time.Now())
}

func (p *WorkerPool) canLaunchWorkerLocked(job *Job, now time.Time) bool {
	if len(p.workers)+p.starting >= p.maxConcurrency {
		return false
	}
	if !p.lastSpawnAt.IsZero() && now.Sub(p.lastSpawnAt) < p.workerCreationDelay {
		return false
	}
	if gate, ok := p.provider.(launchGate); ok {
		return gate.CanLaunchWorker(job)
	}
	return true
}

// launchGate is an optional provider capability letting a strategy (the
// per-group one) veto a new spawn, e.g. because a worker already owns this
// job's group and is merely busy rather than absent.
type launchGate interface {
	CanLaunchWorker(job *Job) bool
}

// launchWorker atomically reserves a slot, asks the provider for a fresh
// WorkerInstance, and appends the resulting Worker to the population.
func (p *WorkerPool) launchWorker(ctx context.Context, job *Job) (*Worker, error) {
	p.mu.Lock()
	if !p.canLaunchWorkerLocked(job, time.Now()) {
		p.mu.Unlock()
		return nil, fmt.Errorf("cannot launch worker: at capacity or spawn throttled")
	}
	p.starting++
	p.lastSpawnAt = time.Now()
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		p.starting--
		p.mu.Unlock()
		return nil, fmt.Errorf("semaphore acquire: %w", err)
	}

	instance, err := p.provider.WorkerInstance(ctx, job)
	if err != nil {
		p.mu.Lock()
		p.starting--
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, fmt.Errorf("provider worker instance: %w", err)
	}

	w := newWorker(id, instance, p.provider)
	if job != nil {
		if gf, ok := p.provider.(groupFunc); ok {
			if g, ok := gf.GroupOf(job.Data); ok {
				w.group = &g
			}
		}
	}

	p.mu.Lock()
	p.workers = append(p.workers, w)
	p.starting--
	p.mu.Unlock()

	metrics.WorkerPoolSizeGauge.Inc()
	logger.Info("worker %d spawned (population=%d)", id, p.size())
	return w, nil
}

// groupFunc is an optional provider capability exposing the group a job
// belongs to, so the pool can record it on the spawned Worker (spec §3:
// "group?: optional affinity key set at first job dispatch").
type groupFunc interface {
	GroupOf(data any) (string, bool)
}

// getWorker returns the first worker (ascending id, i.e. oldest first) for
// which canHandle(job) is true.
func (p *WorkerPool) getWorker(job *Job) *Worker {
	p.mu.Lock()
	workers := append([]*Worker{}, p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		if w.canHandle(job.Data) {
			return w
		}
	}
	return nil
}

// busyCount counts workers with at least one active job.
func (p *WorkerPool) busyCount() int {
	p.mu.Lock()
	workers := append([]*Worker{}, p.workers...)
	p.mu.Unlock()

	n := 0
	for _, w := range workers {
		if w.activeCount() > 0 {
			n++
		}
	}
	return n
}

func (p *WorkerPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// close waits for all active jobs to finish, then tears down every worker.
func (p *WorkerPool) close(ctx context.Context) error {
	for p.busyCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}

	p.mu.Lock()
	workers := append([]*Worker{}, p.workers...)
	p.workers = nil
	p.mu.Unlock()

	var firstErr error
	for _, w := range workers {
		if err := w.close(ctx); err != nil {
			logger.Error("worker %d close failed: %v", w.id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		p.sem.Release(1)
		metrics.WorkerPoolSizeGauge.Dec()
	}
	return firstErr
}
