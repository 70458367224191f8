package provider

import (
	"context"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/provider/fakebrowser"
)

// SharedPageProvider implements cluster.ConcurrencySharedPage: a single
// browser shared by every worker, a fresh page per job, workers free to
// multiplex (canHandle always true). The weakest isolation, the cheapest to
// run.
type SharedPageProvider struct {
	browser *fakebrowser.Browser
}

// NewSharedPageProvider builds the strategy. The browser itself is launched
// in Init, not here, matching spec §4.4's "Init performs one-time bring-up".
func NewSharedPageProvider() *SharedPageProvider {
	return &SharedPageProvider{}
}

func (p *SharedPageProvider) Init(ctx context.Context) error {
	b, err := fakebrowser.Launch(ctx)
	if err != nil {
		return err
	}
	p.browser = b
	return nil
}

func (p *SharedPageProvider) WorkerInstance(_ context.Context, _ *cluster.Job) (cluster.WorkerInstance, error) {
	return &sharedPageWorkerInstance{browser: p.browser}, nil
}

func (p *SharedPageProvider) Close(ctx context.Context) error {
	if p.browser == nil {
		return nil
	}
	return p.browser.Close(ctx)
}

// sharedPageWorkerInstance never owns a browser of its own, so Repair and
// Close are both no-ops: the one shared browser lives and dies with the
// provider, not with any individual worker.
type sharedPageWorkerInstance struct {
	browser *fakebrowser.Browser
}

func (w *sharedPageWorkerInstance) JobInstance(ctx context.Context, _ any) (cluster.JobInstance, error) {
	page, err := w.browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return &pageJobInstance{page: page}, nil
}

func (w *sharedPageWorkerInstance) Repair(_ context.Context) error {
	return nil
}

func (w *sharedPageWorkerInstance) Close(_ context.Context) error {
	return nil
}

// CanHandle always allows multiplexing: this strategy has no notion of
// exclusive ownership over a job's payload.
func (w *sharedPageWorkerInstance) CanHandle(_ any) bool {
	return true
}
