package cluster

import "testing"

func TestEvents_QueueSubscribersAllFire(t *testing.T) {
	e := &events{}
	calls := 0
	e.onQueue(func(data any, task TaskFunc) { calls++ })
	e.onQueue(func(data any, task TaskFunc) { calls++ })

	e.emitQueue("payload", nil)

	if calls != 2 {
		t.Fatalf("expected both subscribers to fire, got %d calls", calls)
	}
}

func TestEvents_TaskErrorCarriesWillRetry(t *testing.T) {
	e := &events{}
	var gotRetry bool
	var gotErr error
	e.onTaskError(func(err error, data any, willRetry bool) {
		gotErr = err
		gotRetry = willRetry
	})

	e.emitTaskError(errTest, "payload", true)

	if gotErr != errTest || !gotRetry {
		t.Fatalf("unexpected event payload: err=%v willRetry=%v", gotErr, gotRetry)
	}
}

func TestEvents_NoSubscribersIsANoop(t *testing.T) {
	e := &events{}
	e.emitQueue("x", nil)
	e.emitTaskError(errTest, "x", false)
}

var errTest = errSentinel("boom")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }
