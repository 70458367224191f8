package provider

import (
	"context"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/provider/fakebrowser"
)

// PerContextProvider implements cluster.ConcurrencyPerContext, the default
// strategy: one shared browser, but every job gets its own incognito context
// (isolated cookies) and page. No CanHandler override, so Worker falls back
// to exclusive-while-busy routing — each job's context is disposable, not
// meant to be reused concurrently with another job on the same worker.
type PerContextProvider struct {
	browser *fakebrowser.Browser
}

func NewPerContextProvider() *PerContextProvider {
	return &PerContextProvider{}
}

func (p *PerContextProvider) Init(ctx context.Context) error {
	b, err := fakebrowser.Launch(ctx)
	if err != nil {
		return err
	}
	p.browser = b
	return nil
}

func (p *PerContextProvider) WorkerInstance(_ context.Context, _ *cluster.Job) (cluster.WorkerInstance, error) {
	return &perContextWorkerInstance{browser: p.browser}, nil
}

func (p *PerContextProvider) Close(ctx context.Context) error {
	if p.browser == nil {
		return nil
	}
	return p.browser.Close(ctx)
}

type perContextWorkerInstance struct {
	browser *fakebrowser.Browser
}

func (w *perContextWorkerInstance) JobInstance(ctx context.Context, _ any) (cluster.JobInstance, error) {
	bctx, err := w.browser.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return &pageJobInstance{
		page: page,
		closer: func(ctx context.Context) error {
			return bctx.Close(ctx)
		},
	}, nil
}

func (w *perContextWorkerInstance) Repair(_ context.Context) error {
	return nil
}

func (w *perContextWorkerInstance) Close(_ context.Context) error {
	return nil
}
