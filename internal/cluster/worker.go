package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/browsercluster/browsercluster/internal/metrics"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

// browserInstanceTries is BROWSER_INSTANCE_TRIES from spec §4.1.
const browserInstanceTries = 10

// WorkResult is what Worker.handle returns. It never panics/throws past its
// own boundary; every failure mode is folded into this type.
type WorkResult struct {
	Success bool
	Data    any
	Err     error
}

// Worker owns one WorkerInstance for its whole lifetime and runs jobs
// against it one (or, for a multiplexing provider, possibly more) at a
// time. Grounded on the teacher's per-goroutine request loop
// (worker.Pool.worker / HybridForwarder.worker): acquire a resource, do the
// work, release, record the outcome — generalized from "build and send one
// HTTP request" to "acquire a job resource, run the task, release it".
type Worker struct {
	id       int
	instance WorkerInstance
	provider ResourceProvider

	mu         sync.Mutex
	activeJobs []*Job
	group      *string
}

func newWorker(id int, instance WorkerInstance, provider ResourceProvider) *Worker {
	return &Worker{id: id, instance: instance, provider: provider}
}

// canHandle delegates to the provider's optional CanHandler; absent that,
// a worker is exclusive while it holds any job.
func (w *Worker) canHandle(data any) bool {
	if ch, ok := w.instance.(CanHandler); ok {
		return ch.CanHandle(data)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.activeJobs) == 0
}

func (w *Worker) activeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.activeJobs)
}

func (w *Worker) addActive(job *Job) {
	w.mu.Lock()
	w.activeJobs = append(w.activeJobs, job)
	w.mu.Unlock()
}

func (w *Worker) removeActive(job *Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, j := range w.activeJobs {
		if j == job {
			w.activeJobs = append(w.activeJobs[:i], w.activeJobs[i+1:]...)
			return
		}
	}
}

func (w *Worker) close(ctx context.Context) error {
	if w.group != nil {
		logger.Info("worker %d closing (group=%s)", w.id, *w.group)
	} else {
		logger.Info("worker %d closing", w.id)
	}
	return w.instance.Close(ctx)
}

// handle runs exactly one job to completion: acquire, run-under-timeout,
// release. It never returns an error from the Go function signature's
// perspective — every failure is folded into the returned WorkResult, per
// spec §4.1 ("Never throws.").
func (w *Worker) handle(ctx context.Context, task TaskFunc, job *Job, timeout time.Duration) WorkResult {
	w.addActive(job)
	metrics.ActiveWorkersGauge.Inc()
	defer func() {
		w.removeActive(job)
		metrics.ActiveWorkersGauge.Dec()
	}()

	jobInstance, err := w.acquire(ctx, job.Data)
	if err != nil {
		return WorkResult{Err: fmt.Errorf("%w: %w", ErrAcquireFailed, err)}
	}

	var errState error
	var errMu sync.Mutex
	setErr := func(e error) {
		errMu.Lock()
		if errState == nil {
			errState = e
		}
		errMu.Unlock()
	}

	// Step 3: install a one-shot observer for asynchronous errors, if the
	// acquired resource can produce them.
	var asyncDone chan struct{}
	if src, ok := jobInstance.(AsyncErrorSource); ok {
		asyncDone = make(chan struct{})
		go func() {
			select {
			case e, ok := <-src.Errors():
				if ok && e != nil {
					setErr(fmt.Errorf("async page error: %w", e))
				}
			case <-asyncDone:
			}
		}()
	}

	taskReturn := w.runTask(ctx, task, jobInstance, job, timeout, setErr)

	if asyncDone != nil {
		close(asyncDone)
	}

	// Step 5: release. A release failure is diagnostic only — it never
	// fails the job (spec §4.1 step 5, §9).
	if closeErr := jobInstance.Close(ctx); closeErr != nil {
		logger.Warn("worker %d: release failed, repairing: %v", w.id, closeErr)
		if repairErr := w.instance.Repair(ctx); repairErr != nil {
			logger.Error("worker %d: repair after release failure also failed: %v", w.id, repairErr)
		}
	}

	errMu.Lock()
	final := errState
	errMu.Unlock()

	if final != nil {
		return WorkResult{Err: final}
	}
	return WorkResult{Success: true, Data: taskReturn}
}

// acquire retries provider.WorkerInstance.JobInstance up to
// browserInstanceTries times, repairing between attempts, per spec §4.1
// step 2.
func (w *Worker) acquire(ctx context.Context, data any) (JobInstance, error) {
	var lastErr error
	for i := 0; i < browserInstanceTries; i++ {
		ji, err := w.instance.JobInstance(ctx, data)
		if err == nil {
			return ji, nil
		}
		lastErr = err
		logger.Warn("worker %d: acquire attempt %d/%d failed: %v", w.id, i+1, browserInstanceTries, err)
		if repairErr := w.instance.Repair(ctx); repairErr != nil {
			logger.Error("worker %d: repair failed: %v", w.id, repairErr)
		}
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", browserInstanceTries, lastErr)
}

// runTask executes the user task under a deadline, recovering a task panic
// into errState the same way a timeout or async error is recorded, and
// returns whatever value the task produced (nil on failure).
func (w *Worker) runTask(ctx context.Context, task TaskFunc, jobInstance JobInstance, job *Job, timeout time.Duration, setErr func(error)) any {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		data any
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		data, err := task(&TaskContext{
			Page:   jobInstance.Resources().Page,
			Data:   job.Data,
			Worker: WorkerInfo{ID: w.id},
		})
		resultCh <- result{data: data, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			setErr(r.err)
			return nil
		}
		return r.data
	case <-taskCtx.Done():
		setErr(fmt.Errorf("task timed out after %v", timeout))
		return nil
	}
}
