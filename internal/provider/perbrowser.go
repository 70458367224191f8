package provider

import (
	"context"
	"sync"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/provider/fakebrowser"
)

// PerBrowserProvider implements cluster.ConcurrencyPerBrowser: every worker
// launches and owns its own browser process, exclusively. The strongest
// isolation of the four built-ins, and, with the per-group strategy, one of
// the two where Repair has real work to do (replace a wedged browser with a
// fresh one).
type PerBrowserProvider struct{}

func NewPerBrowserProvider() *PerBrowserProvider {
	return &PerBrowserProvider{}
}

func (p *PerBrowserProvider) Init(_ context.Context) error {
	return nil
}

func (p *PerBrowserProvider) WorkerInstance(ctx context.Context, _ *cluster.Job) (cluster.WorkerInstance, error) {
	b, err := fakebrowser.Launch(ctx)
	if err != nil {
		return nil, err
	}
	return &perBrowserWorkerInstance{browser: b}, nil
}

func (p *PerBrowserProvider) Close(_ context.Context) error {
	return nil
}

type perBrowserWorkerInstance struct {
	mu      sync.Mutex
	browser *fakebrowser.Browser
}

func (w *perBrowserWorkerInstance) current() *fakebrowser.Browser {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.browser
}

func (w *perBrowserWorkerInstance) JobInstance(ctx context.Context, _ any) (cluster.JobInstance, error) {
	page, err := w.current().NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return &pageJobInstance{page: page}, nil
}

// Repair tears down this worker's own browser and replaces it with a fresh
// one, per spec §4.1 step 2's "repair the resource".
func (w *perBrowserWorkerInstance) Repair(ctx context.Context) error {
	old := w.current()
	fresh, err := fakebrowser.Launch(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.browser = fresh
	w.mu.Unlock()
	if old != nil {
		_ = old.Close(ctx)
	}
	return nil
}

func (w *perBrowserWorkerInstance) Close(ctx context.Context) error {
	return w.current().Close(ctx)
}
