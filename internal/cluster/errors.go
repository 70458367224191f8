package cluster

import "errors"

// ErrProgrammer is wrapped by errors that indicate misuse of the cluster API
// rather than a runtime/task failure: an unset task function, an unknown
// concurrency strategy, a non-positive MaxConcurrency. These are never
// retried and are surfaced as early as possible (at Launch when detectable
// there, otherwise at dispatch time).
var ErrProgrammer = errors.New("jobcluster: programmer error")

// ErrClosed is returned once the cluster has been closed: directly by
// Queue, and via the rejected Future's Wait for Execute.
var ErrClosed = errors.New("jobcluster: cluster is closed")

// ErrAcquireFailed is returned (wrapped) when a worker could not obtain a
// per-job resource from the provider after BrowserInstanceTries attempts.
var ErrAcquireFailed = errors.New("jobcluster: unable to acquire job resource")
