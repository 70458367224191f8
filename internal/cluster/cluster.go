package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/browsercluster/browsercluster/pkg/logger"
)

// Concurrency selects one of the four built-in resource-provider strategies
// (spec §6.1). A caller may instead supply a ProviderFactory to bring their
// own provider, in which case Concurrency is ignored.
type Concurrency int

const (
	// ConcurrencySharedPage: one browser, a new page per job, workers
	// multiplex jobs freely.
	ConcurrencySharedPage Concurrency = iota + 1
	// ConcurrencyPerContext: one browser, an incognito context+page per job.
	ConcurrencyPerContext
	// ConcurrencyPerBrowser: one browser per worker, exclusive.
	ConcurrencyPerBrowser
	// ConcurrencyPerGroup: one browser per group key.
	ConcurrencyPerGroup
)

// ProviderFactory builds a ResourceProvider from Options, for callers that
// want a custom strategy instead of one of the four built-ins.
type ProviderFactory func(Options) (ResourceProvider, error)

// Options configures a Cluster, mirroring the table in spec §6.2.
type Options struct {
	Concurrency     Concurrency
	ProviderFactory ProviderFactory

	MaxConcurrency      int
	WorkerCreationDelay time.Duration
	Timeout             time.Duration
	RetryLimit          int
	RetryDelay          time.Duration
	SkipDuplicateUrls   bool
	SameDomainDelay     time.Duration

	// WorkerShutdownTimeout is consumed by the per-group provider only
	// (idle-group eviction TTL); the core cluster does not interpret it.
	WorkerShutdownTimeout time.Duration

	Monitor         bool
	MonitorInterval time.Duration

	// URLFunc overrides DefaultURLExtractor for payloads that don't
	// implement UsesURL.
	URLFunc func(data any) (string, bool)

	// GroupFunc is required by ConcurrencyPerGroup: it extracts the group
	// affinity key (spec §4.2) from a job's payload.
	GroupFunc func(data any) (string, bool)
}

func (o *Options) setDefaults() {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.WorkerShutdownTimeout <= 0 {
		o.WorkerShutdownTimeout = 5 * time.Second
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = time.Second
	}
	if o.Concurrency == 0 {
		o.Concurrency = ConcurrencyPerContext
	}
	if o.URLFunc == nil {
		o.URLFunc = DefaultURLExtractor
	}
}

// Cluster is the thin composition root described in spec §4.4: it holds
// config, constructs the provider + pool + scheduler, and routes
// queue/execute/close. Grounded on the teacher's app.App: constructor
// injection, an injectDependency-equivalent building the strategy from
// config, a readiness-equivalent closed flag, a Run-equivalent lifecycle.
type Cluster struct {
	opts      Options
	provider  ResourceProvider
	pool      *WorkerPool
	scheduler *Scheduler

	monitorCancel context.CancelFunc
	closeOnce     sync.Once
	closed        atomic.Bool
}

// Launch constructs and starts a Cluster: merges opts with defaults,
// builds the resource provider, the worker pool, and the scheduler, and
// starts the dispatch loop.
func Launch(ctx context.Context, opts Options) (*Cluster, error) {
	opts.setDefaults()

	if opts.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("%w: MaxConcurrency must be positive", ErrProgrammer)
	}

	provider, err := buildProvider(opts)
	if err != nil {
		return nil, err
	}
	if err := provider.Init(ctx); err != nil {
		return nil, fmt.Errorf("provider init: %w", err)
	}

	pool := newWorkerPool(provider, opts.MaxConcurrency, opts.WorkerCreationDelay)
	scheduler := newScheduler(ctx, schedulerOptions{
		pool:              pool,
		skipDuplicateUrls: opts.SkipDuplicateUrls,
		sameDomainDelay:   opts.SameDomainDelay,
		retryLimit:        opts.RetryLimit,
		retryDelay:        opts.RetryDelay,
		timeout:           opts.Timeout,
	})
	scheduler.start()

	c := &Cluster{
		opts:      opts,
		provider:  provider,
		pool:      pool,
		scheduler: scheduler,
	}

	if opts.Monitor {
		mctx, cancel := context.WithCancel(ctx)
		c.monitorCancel = cancel
		go c.monitorLoop(mctx)
	}

	logger.Info("cluster launched: concurrency=%d maxConcurrency=%d timeout=%v", opts.Concurrency, opts.MaxConcurrency, opts.Timeout)
	return c, nil
}

func buildProvider(opts Options) (ResourceProvider, error) {
	if opts.ProviderFactory != nil {
		return opts.ProviderFactory(opts)
	}
	return defaultProviderFactory(opts)
}

// defaultProviderFactory is overridden by internal/provider's init-time
// registration (see provider.go's RegisterDefaultFactory) so that the
// cluster package itself never imports the concrete strategies (avoiding an
// import cycle, since the strategies need the cluster package's interface
// types).
var defaultProviderFactory ProviderFactory = func(opts Options) (ResourceProvider, error) {
	return nil, fmt.Errorf("%w: no resource provider registered for concurrency=%d; import internal/provider or set Options.ProviderFactory", ErrProgrammer, opts.Concurrency)
}

// RegisterDefaultFactory lets a strategy package supply the built-in
// concurrency-enum-to-provider mapping without cluster importing it.
func RegisterDefaultFactory(factory ProviderFactory) {
	defaultProviderFactory = factory
}

// Task sets the cluster-default task function used by any job (queued
// without a per-job override) dispatched from this point forward.
func (c *Cluster) Task(fn TaskFunc) {
	c.scheduler.setDefaultTask(fn)
}

// Queue enqueues data for fire-and-forget processing: the caller observes
// outcomes only via OnTaskError, and queued jobs are retried up to
// RetryLimit times.
func (c *Cluster) Queue(data any, task TaskFunc) error {
	if c.closed.Load() {
		return ErrClosed
	}
	job := newJob(data, task, c.opts.URLFunc)
	c.scheduler.enqueue(job)
	return nil
}

// Execute enqueues data and returns a Future resolved or rejected exactly
// once, per the job's terminal outcome. Execute jobs are never retried
// (spec §3/§4.3). Once the cluster is closed, the returned Future is
// rejected with ErrClosed instead of being enqueued.
func (c *Cluster) Execute(data any, task TaskFunc) *Future {
	fut := newFuture()
	if c.closed.Load() {
		fut.reject(ErrClosed)
		return &Future{f: fut}
	}
	job := newJob(data, task, c.opts.URLFunc)
	job.callbacks = &callbacks{
		resolve: fut.resolve,
		reject:  fut.reject,
	}
	c.scheduler.enqueue(job)
	return &Future{f: fut}
}

// OnQueue subscribes to the queue event (spec §6.3).
func (c *Cluster) OnQueue(fn func(data any, task TaskFunc)) {
	c.scheduler.events.onQueue(fn)
}

// OnTaskError subscribes to the taskerror event (spec §6.3).
func (c *Cluster) OnTaskError(fn func(err error, data any, willRetry bool)) {
	c.scheduler.events.onTaskError(fn)
}

// Idle blocks until the queue is empty and no worker is busy.
func (c *Cluster) Idle(ctx context.Context) error {
	return c.scheduler.idle(ctx)
}

// WaitForOne blocks until the next job completes (success or error).
func (c *Cluster) WaitForOne(ctx context.Context) (any, error) {
	return c.scheduler.waitForOne(ctx)
}

// TotalJobsQueued returns allTargetCount (spec §3): the total number of
// jobs ever accepted by Queue/Execute.
func (c *Cluster) TotalJobsQueued() int64 {
	return c.scheduler.allTargetCount.Load()
}

// TotalJobsErrored returns errorCount (spec §3): jobs that reached a
// terminal (non-retried) error.
func (c *Cluster) TotalJobsErrored() int64 {
	return c.scheduler.errorCount.Load()
}

// QueueDepth returns the number of jobs currently queued (delayed ones
// included), for monitoring.
func (c *Cluster) QueueDepth() int {
	return c.scheduler.queue.Size()
}

// BusyWorkers returns the number of workers with at least one active job.
func (c *Cluster) BusyWorkers() int {
	return c.pool.busyCount()
}

// Close stops admitting new dispatches, waits for in-flight jobs to finish,
// closes every worker, and closes the provider. Idempotent (spec §4.4/§8).
func (c *Cluster) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.monitorCancel != nil {
			c.monitorCancel()
		}
		c.scheduler.close()
		if closeErr := c.pool.close(ctx); closeErr != nil {
			err = closeErr
		}
		if closeErr := c.provider.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
		logger.Info("cluster closed")
	})
	return err
}

func (c *Cluster) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("monitor: queued=%d active=%d errored=%d done=%d",
				c.QueueDepth(), c.BusyWorkers(), c.TotalJobsErrored(), c.TotalJobsQueued()-c.scheduler.errorCount.Load())
		}
	}
}
