package provider

import (
	"fmt"

	"github.com/browsercluster/browsercluster/internal/cluster"
)

// init registers the four built-in strategies against cluster.Concurrency,
// the same way the teacher's app.App picks a Forwarder implementation from
// one config string at injectDependency time. Importing this package (even
// blank) is what makes cluster.Launch's default provider factory resolve;
// callers that bring their own via Options.ProviderFactory never need it.
func init() {
	cluster.RegisterDefaultFactory(func(opts cluster.Options) (cluster.ResourceProvider, error) {
		switch opts.Concurrency {
		case cluster.ConcurrencySharedPage:
			return NewSharedPageProvider(), nil
		case cluster.ConcurrencyPerContext:
			return NewPerContextProvider(), nil
		case cluster.ConcurrencyPerBrowser:
			return NewPerBrowserProvider(), nil
		case cluster.ConcurrencyPerGroup:
			if opts.GroupFunc == nil {
				return nil, fmt.Errorf("%w: ConcurrencyPerGroup requires Options.GroupFunc", cluster.ErrProgrammer)
			}
			return NewPerGroupProvider(opts.GroupFunc, opts.WorkerShutdownTimeout), nil
		default:
			return nil, fmt.Errorf("%w: unknown concurrency strategy %d", cluster.ErrProgrammer, opts.Concurrency)
		}
	})
}
