package cluster

import (
	"testing"
	"time"
)

func TestDelayQueue_PeekOrdersByInsertion(t *testing.T) {
	q := NewDelayQueue[string]()
	q.Push("a", pushOpts{})
	q.Push("b", pushOpts{})
	q.Push("c", pushOpts{})

	v, ok := q.Peek(time.Now())
	if !ok || v != "a" {
		t.Fatalf("expected a, got %q (ok=%v)", v, ok)
	}
}

func TestDelayQueue_DelayedEntrySkippedUntilElapsed(t *testing.T) {
	q := NewDelayQueue[string]()
	future := time.Now().Add(time.Hour)
	q.Push("delayed", pushOpts{delayUntil: &future})
	q.Push("ready", pushOpts{})

	v, ok := q.Peek(time.Now())
	if !ok || v != "ready" {
		t.Fatalf("expected ready to be peeked ahead of a still-delayed entry, got %q (ok=%v)", v, ok)
	}
}

func TestDelayQueue_DelayedEntryBecomesVisibleAfterElapsing(t *testing.T) {
	q := NewDelayQueue[string]()
	past := time.Now().Add(-time.Millisecond)
	q.Push("was-delayed", pushOpts{delayUntil: &past})

	v, ok := q.Peek(time.Now())
	if !ok || v != "was-delayed" {
		t.Fatalf("expected elapsed delayed entry to be visible, got %q (ok=%v)", v, ok)
	}
}

func TestDelayQueue_RemoveDropsMatchedEntry(t *testing.T) {
	q := NewDelayQueue[int]()
	q.Push(1, pushOpts{})
	q.Push(2, pushOpts{})
	q.Push(3, pushOpts{})

	if !q.Remove(func(v int) bool { return v == 2 }) {
		t.Fatal("expected Remove to report a match")
	}
	if q.Size() != 2 {
		t.Fatalf("expected size 2 after remove, got %d", q.Size())
	}
	if q.Remove(func(v int) bool { return v == 99 }) {
		t.Fatal("expected Remove to report no match for an absent value")
	}
}

func TestDelayQueue_EmptyPeek(t *testing.T) {
	q := NewDelayQueue[int]()
	if _, ok := q.Peek(time.Now()); ok {
		t.Fatal("expected Peek on an empty queue to report ok=false")
	}
}
