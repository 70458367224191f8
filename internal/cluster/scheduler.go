package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/browsercluster/browsercluster/internal/metrics"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

const (
	// checkForWorkInterval is CHECK_FOR_WORK_INTERVAL from spec §4.3: the
	// poll timer's safety-net period.
	checkForWorkInterval = 100 * time.Millisecond

	// workCallIntervalLimit is WORK_CALL_INTERVAL_LIMIT from spec §4.3: the
	// trailing-throttle's minimum spacing between event-driven dispatches.
	workCallIntervalLimit = 10 * time.Millisecond
)

// Scheduler is the dispatch loop: it drives DelayQueue -> WorkerPool under
// the admission filters of spec §4.3, and owns every piece of state the
// spec says only the dispatcher may mutate (§5). It is the one place in
// this repo with no direct teacher counterpart — the teacher has no
// scheduler at all, just a channel workers range over — so its shape is
// grounded instead on the teacher's single-consumer-goroutine idiom in
// App.Run() (one goroutine owns the select loop; everything else only ever
// sends to a channel) and on Pool.Stop()'s select-with-timeout pattern.
type Scheduler struct {
	queue *DelayQueue[*Job]
	pool  *WorkerPool

	skipDuplicateUrls bool
	duplicateMu       sync.Mutex
	duplicateUrls     map[string]struct{}

	domainDelay *domainDelay

	retryLimit int
	retryDelay time.Duration
	timeout    time.Duration

	events *events

	taskMu      sync.Mutex
	defaultTask TaskFunc

	allTargetCount atomic.Int64
	errorCount     atomic.Int64

	waiterMu          sync.Mutex
	idleWaiters       []chan struct{}
	waitForOneWaiters []chan any

	closeOnce sync.Once

	pendingMu      sync.Mutex
	pending        bool
	lastDispatchAt time.Time
	dispatchCh     chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

type schedulerOptions struct {
	pool              *WorkerPool
	skipDuplicateUrls bool
	sameDomainDelay   time.Duration
	retryLimit        int
	retryDelay        time.Duration
	timeout           time.Duration
}

func newScheduler(ctx context.Context, opts schedulerOptions) *Scheduler {
	sctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		queue:             NewDelayQueue[*Job](),
		pool:              opts.pool,
		skipDuplicateUrls: opts.skipDuplicateUrls,
		duplicateUrls:     make(map[string]struct{}),
		retryLimit:        opts.retryLimit,
		retryDelay:        opts.retryDelay,
		timeout:           opts.timeout,
		events:            &events{},
		dispatchCh:        make(chan struct{}, 1),
		loopDone:          make(chan struct{}),
		ctx:               sctx,
		cancel:            cancel,
	}
	if opts.sameDomainDelay > 0 {
		s.domainDelay = newDomainDelay(opts.sameDomainDelay)
	}
	return s
}

func (s *Scheduler) setDefaultTask(fn TaskFunc) {
	s.taskMu.Lock()
	s.defaultTask = fn
	s.taskMu.Unlock()
}

func (s *Scheduler) currentDefaultTask() TaskFunc {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	return s.defaultTask
}

// start runs the single dispatch-loop goroutine: it is the only caller of
// dispatch(), so dispatch() never runs concurrently with itself, satisfying
// spec §5's single-dispatch-fiber requirement without a dispatch-wide lock.
func (s *Scheduler) start() {
	go s.loop()
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	ticker := time.NewTicker(checkForWorkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatch()
		case <-s.dispatchCh:
			s.dispatch()
		}
	}
}

// requestDispatch coalesces bursts of triggers (every queue()/execute() call
// and every job completion) into at most one dispatch per
// workCallIntervalLimit, per spec §4.3.
func (s *Scheduler) requestDispatch() {
	s.pendingMu.Lock()
	if s.pending {
		s.pendingMu.Unlock()
		return
	}
	s.pending = true
	delay := time.Until(s.lastDispatchAt.Add(workCallIntervalLimit))
	if delay < 0 {
		delay = 0
	}
	s.pendingMu.Unlock()

	time.AfterFunc(delay, func() {
		s.pendingMu.Lock()
		s.pending = false
		s.pendingMu.Unlock()
		select {
		case s.dispatchCh <- struct{}{}:
		default:
		}
	})
}

// enqueue pushes a brand-new job (not a re-push) and wakes the dispatcher.
func (s *Scheduler) enqueue(job *Job) {
	s.allTargetCount.Inc()
	s.queue.Push(job, pushOpts{})
	s.events.emitQueue(job.Data, job.TaskFunction)
	s.requestDispatch()
}

// dispatch is one iteration of the scheduler's decide-and-hand-off
// procedure (spec §4.3). Steps 1-9 (admission, commit, task resolution) and
// the tries increment run synchronously here; running the job and steps
// 11-13 (handle its result) are handed to a goroutine so that workers
// genuinely run in parallel with each other and with the next dispatch
// decision (spec §5).
func (s *Scheduler) dispatch() {
	s.pendingMu.Lock()
	s.lastDispatchAt = time.Now()
	s.pendingMu.Unlock()

	now := time.Now()

	// Step 1: empty queue -> resolve idle waiters if nothing is in flight.
	if s.queue.Size() == 0 {
		if s.pool.busyCount() == 0 {
			s.resolveIdleWaiters()
		}
		return
	}

	// Step 2.
	job, ok := s.queue.Peek(now)
	if !ok {
		return
	}

	// Step 3: duplicate URL filter.
	if s.skipDuplicateUrls {
		if u, hasURL := job.URL(); hasURL {
			s.duplicateMu.Lock()
			_, seen := s.duplicateUrls[u]
			s.duplicateMu.Unlock()
			if seen {
				s.queue.Remove(func(j *Job) bool { return j == job })
				metrics.DuplicateURLsDroppedCounter.Inc()
				logger.Info("dropping duplicate url %s", u)
				s.requestDispatch()
				return
			}
		}
	}

	// Step 4: same-domain delay filter.
	if s.domainDelay != nil {
		if domain, hasDomain := job.Domain(); hasDomain {
			ready, readyAt := s.domainDelay.peek(domain, now)
			if !ready {
				s.queue.Remove(func(j *Job) bool { return j == job })
				readyAtCopy := readyAt
				s.queue.Push(job, pushOpts{delayUntil: &readyAtCopy})
				metrics.DomainDelayWaitsCounter.Inc()
				s.requestDispatch()
				return
			}
		}
	}

	// Step 5: no existing worker can take this job — try to launch one.
	worker := s.pool.getWorker(job)
	if worker == nil {
		if s.pool.canLaunchWorker(job) {
			go func() {
				if _, err := s.pool.launchWorker(s.ctx, job); err != nil {
					logger.Warn("launch worker failed: %v", err)
				}
				s.requestDispatch()
			}()
		}
		return
	}

	// Step 6: worker found, fall through to commit.

	// Step 7: commit.
	s.queue.Remove(func(j *Job) bool { return j == job })
	if s.skipDuplicateUrls {
		if u, hasURL := job.URL(); hasURL {
			s.duplicateMu.Lock()
			s.duplicateUrls[u] = struct{}{}
			s.duplicateMu.Unlock()
		}
	}
	if s.domainDelay != nil {
		if domain, hasDomain := job.Domain(); hasDomain {
			s.domainDelay.commit(domain, now)
		}
	}

	// Step 8: allow a parallel worker to also start draining the queue.
	if next, ok := s.queue.Peek(now); ok {
		if s.pool.hasFreeCapacity(next) {
			s.requestDispatch()
		}
	}

	// Step 9: resolve the task function.
	jobFunction := job.TaskFunction
	if jobFunction == nil {
		jobFunction = s.currentDefaultTask()
	}
	if jobFunction == nil {
		err := fmt.Errorf("%w: no task function set", ErrProgrammer)
		s.completeJob(job, WorkResult{Err: err})
		return
	}

	job.Tries++
	timeout := s.timeout

	// The job runs under a context that Close does not cancel: Close waits
	// for in-flight jobs rather than interrupting them.
	go func() {
		result := worker.handle(context.WithoutCancel(s.ctx), jobFunction, job, timeout)
		s.completeJob(job, result)
	}()
}

// completeJob implements dispatch steps 11-13: route the WorkResult to
// execute() callbacks or the retry/taskerror path, resolve waitForOne
// waiters, and wake the dispatcher again.
func (s *Scheduler) completeJob(job *Job, result WorkResult) {
	if result.Success {
		metrics.JobsProcessedCounter.Inc()
		if job.isExecute() {
			job.callbacks.resolve(result.Data)
		}
	} else {
		err := result.Err
		if job.isExecute() {
			job.callbacks.reject(err)
			s.errorCount.Inc()
			metrics.JobsFailedCounter.Inc()
		} else {
			job.Errors = append(job.Errors, err)
			willRetry := job.Tries <= s.retryLimit && !errors.Is(err, ErrProgrammer)
			s.events.emitTaskError(err, job.Data, willRetry)
			if willRetry {
				metrics.JobsRetriedCounter.Inc()
				if s.retryDelay > 0 {
					at := time.Now().Add(s.retryDelay)
					s.queue.Push(job, pushOpts{delayUntil: &at})
				} else {
					s.queue.Push(job, pushOpts{})
				}
			} else {
				s.errorCount.Inc()
				metrics.JobsFailedCounter.Inc()
			}
		}
	}

	s.resolveWaitForOneWaiters(job.Data)
	s.requestDispatch()
}

func (s *Scheduler) resolveIdleWaiters() {
	s.waiterMu.Lock()
	waiters := s.idleWaiters
	s.idleWaiters = nil
	s.waiterMu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func (s *Scheduler) resolveWaitForOneWaiters(data any) {
	s.waiterMu.Lock()
	waiters := s.waitForOneWaiters
	s.waitForOneWaiters = nil
	s.waiterMu.Unlock()
	for _, ch := range waiters {
		ch <- data
		close(ch)
	}
}

// idle blocks until the queue is empty and no worker is busy, or ctx ends
// first. If already idle, it returns immediately (round-trip property,
// spec §8).
func (s *Scheduler) idle(ctx context.Context) error {
	if s.queue.Size() == 0 && s.pool.busyCount() == 0 {
		return nil
	}
	ch := make(chan struct{})
	s.waiterMu.Lock()
	s.idleWaiters = append(s.idleWaiters, ch)
	s.waiterMu.Unlock()
	s.requestDispatch()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitForOne blocks until the next job completes (success or error),
// returning its payload.
func (s *Scheduler) waitForOne(ctx context.Context) (any, error) {
	ch := make(chan any, 1)
	s.waiterMu.Lock()
	s.waitForOneWaiters = append(s.waitForOneWaiters, ch)
	s.waiterMu.Unlock()
	select {
	case data := <-ch:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close stops the loop and, idempotently, resolves any idle waiters still
// pending.
func (s *Scheduler) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.loopDone
		s.resolveIdleWaiters()
	})
}
