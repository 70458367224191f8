package cluster

import "context"

// ResourceProvider is the external collaborator described in spec §6.1: it
// manages the underlying browser-like process and produces per-worker and
// per-job resource handles. The core never constructs one directly; it is
// injected at Launch (via Options.Concurrency / Options.ProviderFactory).
type ResourceProvider interface {
	// Init performs one-time bring-up (launch the underlying process, etc).
	Init(ctx context.Context) error

	// WorkerInstance produces a fresh per-worker resource. Called once per
	// spawned worker; job is the job that triggered the spawn (useful for
	// group-tagging in the per-group strategy) and may be nil when a worker
	// is spawned speculatively ahead of any particular job.
	WorkerInstance(ctx context.Context, job *Job) (WorkerInstance, error)

	// Close performs global shutdown.
	Close(ctx context.Context) error
}

// WorkerInstance is a worker's long-lived resource handle.
type WorkerInstance interface {
	// JobInstance acquires a per-job resource. Called once per job.
	JobInstance(ctx context.Context, data any) (JobInstance, error)

	// Repair restores the instance to a usable state after an error. May
	// tear down and recreate the underlying process.
	Repair(ctx context.Context) error

	// Close tears down this worker's resource.
	Close(ctx context.Context) error
}

// CanHandler is an optional capability a WorkerInstance may implement to
// customize routing (spec §4.1's canHandle hook). When a WorkerInstance
// does not implement it, the worker is treated as exclusive while it holds
// any active job.
type CanHandler interface {
	CanHandle(data any) bool
}

// JobInstance is the per-job resource acquired from a WorkerInstance.
type JobInstance interface {
	// Resources exposes at least a Page handle, passed to the user task.
	Resources() Resources

	// Close releases the per-job resource.
	Close(ctx context.Context) error
}

// Resources bundles the handles a JobInstance exposes to the user task.
type Resources struct {
	Page any
}

// AsyncErrorSource is an optional capability a JobInstance may implement to
// surface asynchronous errors (e.g. an unhandled page-level error event)
// that occur while the task is running, captured into errorState per spec
// §4.1 step 3.
type AsyncErrorSource interface {
	Errors() <-chan error
}
