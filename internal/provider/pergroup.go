package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/provider/fakebrowser"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

// PerGroupProvider implements cluster.ConcurrencyPerGroup: one browser per
// group key (as produced by Options.GroupFunc), shared by every job whose
// payload maps to that group. It implements the WorkerPool's launchGate and
// groupFunc optional capabilities so the pool never launches a second
// browser for a group already in flight, and routes existing workers by
// group match the way the other three strategies route by raw availability.
//
// A browser idle for WorkerShutdownTimeout is closed and dropped from the
// group map (freeing the group for a brand-new browser on the next job) even
// though the Worker object itself is left alive in the pool until Close
// (spec's open question on per-group idle eviction: the pool has no
// mechanism to retire a Worker early, so the provider retires the expensive
// resource underneath it instead, and CanHandle simply stops matching).
type PerGroupProvider struct {
	groupFunc       func(data any) (string, bool)
	shutdownTimeout time.Duration

	mu        sync.Mutex
	browsers  map[string]*fakebrowser.Browser
	gen       map[string]uint64
	evictions map[string]*time.Timer
}

func NewPerGroupProvider(groupFunc func(data any) (string, bool), shutdownTimeout time.Duration) *PerGroupProvider {
	return &PerGroupProvider{
		groupFunc:       groupFunc,
		shutdownTimeout: shutdownTimeout,
		browsers:        make(map[string]*fakebrowser.Browser),
		gen:             make(map[string]uint64),
		evictions:       make(map[string]*time.Timer),
	}
}

func (p *PerGroupProvider) Init(_ context.Context) error {
	return nil
}

// WorkerInstance reuses the group's existing browser if one is live, or
// launches a new one. job must be non-nil and resolve to a group: a
// per-group worker cannot be spawned speculatively without knowing which
// group it serves.
func (p *PerGroupProvider) WorkerInstance(ctx context.Context, job *cluster.Job) (cluster.WorkerInstance, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: per-group provider cannot spawn a worker without a job", cluster.ErrProgrammer)
	}
	group, ok := p.groupFunc(job.Data)
	if !ok {
		return nil, fmt.Errorf("%w: job payload has no group", cluster.ErrProgrammer)
	}

	p.mu.Lock()
	if t, ok := p.evictions[group]; ok {
		t.Stop()
		delete(p.evictions, group)
	}
	b, ok := p.browsers[group]
	p.mu.Unlock()

	if !ok {
		var err error
		b, err = fakebrowser.Launch(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.browsers[group] = b
		p.mu.Unlock()
	}

	return &perGroupWorkerInstance{provider: p, group: group, browser: b}, nil
}

func (p *PerGroupProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	browsers := p.browsers
	p.browsers = make(map[string]*fakebrowser.Browser)
	for _, t := range p.evictions {
		t.Stop()
	}
	p.evictions = make(map[string]*time.Timer)
	p.mu.Unlock()

	var firstErr error
	for group, b := range browsers {
		if err := b.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing group %q browser: %w", group, err)
		}
	}
	return firstErr
}

// GroupOf implements the pool's groupFunc capability (tagging a spawned
// Worker with the group it serves, for getWorker routing).
func (p *PerGroupProvider) GroupOf(data any) (string, bool) {
	return p.groupFunc(data)
}

// CanLaunchWorker implements the pool's launchGate capability: refuse a new
// spawn if this group already has a browser in flight, busy or not — a
// second browser for the same group would defeat the point of the strategy.
func (p *PerGroupProvider) CanLaunchWorker(job *cluster.Job) bool {
	group, ok := p.groupFunc(job.Data)
	if !ok {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.browsers[group]
	return !exists
}

// scheduleEviction arms a timer that closes and forgets group's browser
// after shutdownTimeout of inactivity, captured against gen so a job that
// arrives (and bumps gen) before the timer fires cancels it safely even in
// the face of a race between Stop and fire.
func (p *PerGroupProvider) scheduleEviction(group string) {
	if p.shutdownTimeout <= 0 {
		return
	}
	p.mu.Lock()
	p.gen[group]++
	myGen := p.gen[group]
	if t, ok := p.evictions[group]; ok {
		t.Stop()
	}
	p.evictions[group] = time.AfterFunc(p.shutdownTimeout, func() {
		p.evict(group, myGen)
	})
	p.mu.Unlock()
}

func (p *PerGroupProvider) cancelEviction(group string) {
	p.mu.Lock()
	p.gen[group]++
	if t, ok := p.evictions[group]; ok {
		t.Stop()
		delete(p.evictions, group)
	}
	p.mu.Unlock()
}

func (p *PerGroupProvider) evict(group string, gen uint64) {
	p.mu.Lock()
	if p.gen[group] != gen {
		p.mu.Unlock()
		return
	}
	b, ok := p.browsers[group]
	delete(p.browsers, group)
	delete(p.evictions, group)
	p.mu.Unlock()

	if ok {
		logger.Info("per-group provider: evicting idle browser for group %s", group)
		_ = b.Close(context.Background())
	}
}

// perGroupWorkerInstance tracks its own busy flag so CanHandle can express
// "same group, currently free" without the cluster.Worker needing to share
// its activeJobs bookkeeping with the provider.
type perGroupWorkerInstance struct {
	provider *PerGroupProvider
	group    string

	mu   sync.Mutex
	busy bool

	browserMu sync.Mutex
	browser   *fakebrowser.Browser
}

func (w *perGroupWorkerInstance) currentBrowser() *fakebrowser.Browser {
	w.browserMu.Lock()
	defer w.browserMu.Unlock()
	return w.browser
}

func (w *perGroupWorkerInstance) CanHandle(data any) bool {
	group, ok := w.provider.groupFunc(data)
	if !ok || group != w.group {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.busy
}

func (w *perGroupWorkerInstance) JobInstance(ctx context.Context, _ any) (cluster.JobInstance, error) {
	w.provider.cancelEviction(w.group)

	w.mu.Lock()
	w.busy = true
	w.mu.Unlock()

	page, err := w.currentBrowser().NewPage(ctx)
	if err != nil {
		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()
		return nil, err
	}
	return &pageJobInstance{
		page: page,
		closer: func(_ context.Context) error {
			w.mu.Lock()
			w.busy = false
			w.mu.Unlock()
			w.provider.scheduleEviction(w.group)
			return nil
		},
	}, nil
}

// Repair replaces the group's shared browser in place: since CanHandle keeps
// this worker exclusive to its group, it is always the sole owner of that
// group's browser while holding it.
func (w *perGroupWorkerInstance) Repair(ctx context.Context) error {
	old := w.currentBrowser()
	fresh, err := fakebrowser.Launch(ctx)
	if err != nil {
		return err
	}
	w.browserMu.Lock()
	w.browser = fresh
	w.browserMu.Unlock()

	w.provider.mu.Lock()
	w.provider.browsers[w.group] = fresh
	w.provider.mu.Unlock()

	if old != nil {
		_ = old.Close(ctx)
	}
	return nil
}

func (w *perGroupWorkerInstance) Close(_ context.Context) error {
	// The underlying browser is owned by the provider's group map and torn
	// down from there (PerGroupProvider.Close / evict), not per-worker.
	return nil
}
