package cluster

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// TaskContext is what a task function receives: the job's resolved page
// handle, the caller's opaque payload, and identifying info for the worker
// that is running it.
type TaskContext struct {
	Page   any
	Data   any
	Worker WorkerInfo
}

// WorkerInfo identifies the worker executing a task, for logging/metrics
// inside the user's task function.
type WorkerInfo struct {
	ID int
}

// TaskFunc is the signature of both the cluster-default task (set via
// Cluster.Task) and a per-job override (passed to Queue/Execute).
type TaskFunc func(tc *TaskContext) (any, error)

// urlExtractor is supplied once at Launch (Options.URLFunc) and threaded
// into every Job so URL()/Domain() are self-contained per job (Domain() is
// derived from URL()), matching spec §3's "Derived" fields.
type urlExtractor func(data any) (string, bool)

// Job is the value object the spec calls Job: an opaque payload plus the
// bookkeeping the scheduler needs to retry, dedup, and rate-limit it.
type Job struct {
	ID uuid.UUID

	Data         any
	TaskFunction TaskFunc // optional per-job override
	callbacks    *callbacks

	Tries  int
	Errors []error

	delayUntil *time.Time

	urlFn urlExtractor
}

// callbacks is set iff the job was enqueued via Execute; invoked exactly
// once by the scheduler on a terminal outcome. Never retried (spec §3).
type callbacks struct {
	resolve func(data any)
	reject  func(err error)
}

func newJob(data any, task TaskFunc, urlFn urlExtractor) *Job {
	return &Job{
		ID:           uuid.New(),
		Data:         data,
		TaskFunction: task,
		urlFn:        urlFn,
	}
}

// URL returns data's url attribute, if the extractor configured at Launch
// recognizes one.
func (j *Job) URL() (string, bool) {
	if j.urlFn == nil {
		return "", false
	}
	return j.urlFn(j.Data)
}

// Domain returns the host portion of URL(), if parseable.
func (j *Job) Domain() (string, bool) {
	raw, ok := j.URL()
	if !ok || raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Hostname(), true
}

// isExecute reports whether this job was submitted via Execute (and hence
// is never retried, per spec §3/§4.3).
func (j *Job) isExecute() bool {
	return j.callbacks != nil
}

// UsesURL is the duck-typed url attribute DefaultURLExtractor recognizes: a
// payload providing a `URL() string` method. A struct with a plain `URL`
// field and no such method is not recognized; callers with a different
// payload shape pass their own extractor via Options.URLFunc.
type UsesURL interface {
	URL() string
}

// DefaultURLExtractor recognizes payloads implementing UsesURL. It is the
// zero-value behavior when Options.URLFunc is left nil.
func DefaultURLExtractor(data any) (string, bool) {
	u, ok := data.(UsesURL)
	if !ok {
		return "", false
	}
	s := u.URL()
	if s == "" {
		return "", false
	}
	return s, true
}
