package cluster

import (
	"testing"
	"time"
)

func TestDomainDelay_PeekIsNonMutating(t *testing.T) {
	d := newDomainDelay(50 * time.Millisecond)
	now := time.Now()

	ready1, _ := d.peek("example.com", now)
	ready2, _ := d.peek("example.com", now)
	if !ready1 || !ready2 {
		t.Fatal("repeated peeks before any commit should both report ready")
	}
}

func TestDomainDelay_CommitThenPeekIsNotReady(t *testing.T) {
	d := newDomainDelay(50 * time.Millisecond)
	now := time.Now()

	d.commit("example.com", now)
	ready, readyAt := d.peek("example.com", now)
	if ready {
		t.Fatal("expected peek to report not-ready immediately after a commit")
	}
	if !readyAt.After(now) {
		t.Fatal("expected a future readyAt")
	}
}

func TestDomainDelay_ReadyAgainAfterDelayElapses(t *testing.T) {
	d := newDomainDelay(20 * time.Millisecond)
	now := time.Now()
	d.commit("example.com", now)

	later := now.Add(30 * time.Millisecond)
	ready, _ := d.peek("example.com", later)
	if !ready {
		t.Fatal("expected domain to be ready again once the delay has elapsed")
	}
}

func TestDomainDelay_DomainsAreIndependent(t *testing.T) {
	d := newDomainDelay(time.Hour)
	now := time.Now()
	d.commit("a.com", now)

	ready, _ := d.peek("b.com", now)
	if !ready {
		t.Fatal("a commit against one domain must not affect another domain's budget")
	}
}
