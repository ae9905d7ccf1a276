package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"logferry/pkg/parser"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func isDone(m *Monitor) bool {
	select {
	case <-m.Done():
		return true
	default:
		return false
	}
}

func TestMonitor_CompletesOnlyWhenAllCommitted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := newMonitorAt("job", "10.0.0.1:5555", clock.Now)

	for i := 0; i < 5; i++ {
		m.EntryProduced()
	}
	m.BatchCommitted(3)
	m.EndProduction(nil)
	if isDone(m) {
		t.Fatal("completed before the queue drained")
	}

	m.QueueDrained()
	if isDone(m) {
		t.Fatal("completed with uncommitted entries")
	}

	clock.Advance(2 * time.Second)
	m.BatchCommitted(2)
	if !isDone(m) {
		t.Fatal("did not complete after the last commit")
	}

	clock.Advance(time.Hour)
	r := m.Snapshot()
	if !r.Complete || r.Produced != 5 || r.Committed != 5 || r.Batches != 2 {
		t.Errorf("unexpected report: %+v", r)
	}
	if r.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %s, want frozen at completion (2s)", r.Elapsed)
	}
	if r.Remote != "10.0.0.1:5555" || r.JobID != "job" {
		t.Errorf("identity lost: %+v", r)
	}
}

func TestMonitor_NoFixedThreshold(t *testing.T) {
	m := NewMonitor("tiny", "")
	m.EntryProduced()
	m.BatchCommitted(1)
	m.QueueDrained()
	m.EndProduction(nil)
	if !isDone(m) {
		t.Fatal("a one-entry stream should complete")
	}
}

func TestMonitor_RejectionsAndReadError(t *testing.T) {
	m := NewMonitor("job", "")
	m.LineRejected(parser.RejectNoDigit)
	m.LineRejected(parser.RejectNoDigit)
	m.LineRejected(parser.RejectPid)
	m.EndProduction(errors.New("reset"))

	r := m.Snapshot()
	if r.Rejected["no_digit"] != 2 || r.Rejected["bad_pid"] != 1 {
		t.Errorf("Rejected = %v", r.Rejected)
	}
	if r.ReadErr != "reset" {
		t.Errorf("ReadErr = %q", r.ReadErr)
	}
}

func TestMonitor_ConcurrentUpdates(t *testing.T) {
	m := NewMonitor("race", "")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			m.EntryProduced()
		}
		m.EndProduction(nil)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.BatchCommitted(100)
		}
		m.QueueDrained()
	}()
	wg.Wait()

	if !isDone(m) {
		t.Fatalf("not complete: %+v", m.Snapshot())
	}
}
