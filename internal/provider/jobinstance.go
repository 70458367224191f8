// Package provider holds the four built-in ResourceProvider strategies
// (spec §6.1/§4.2), each wiring internal/cluster's interfaces to the
// internal/provider/fakebrowser stand-in. Grounded on the teacher's three
// interchangeable Forwarder implementations (PoolForwarder,
// SemaphoreForwarder, HybridForwarder) selected by one config string
// (forwarding_mode) in internal/app/app.go's injectDependency;
// Options.Concurrency here plays exactly that role for these four
// strategies.
package provider

import (
	"context"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/provider/fakebrowser"
)

// pageJobInstance is the cluster.JobInstance common to every strategy below:
// a page plus an optional extra teardown hook (closing an incognito context,
// flipping a busy flag, arming an idle-eviction timer).
type pageJobInstance struct {
	page   *fakebrowser.Page
	closer func(ctx context.Context) error
}

func (j *pageJobInstance) Resources() cluster.Resources {
	return cluster.Resources{Page: j.page}
}

func (j *pageJobInstance) Close(ctx context.Context) error {
	err := j.page.Close(ctx)
	if j.closer != nil {
		if cerr := j.closer(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
