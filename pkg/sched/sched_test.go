package sched

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManual_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var fired []string
	m.AfterFunc(5*time.Second, func() { fired = append(fired, "a") })
	m.AfterFunc(10*time.Second, func() { fired = append(fired, "b") })
	m.AfterFunc(30*time.Second, func() { fired = append(fired, "c") })

	m.Advance(10 * time.Second)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("unexpected firing order: %v", fired)
	}
	if m.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", m.Pending())
	}
	if !m.Now().Equal(start.Add(10 * time.Second)) {
		t.Fatalf("clock not advanced to target: %v", m.Now())
	}
}

func TestManual_CallbackSeesDueTime(t *testing.T) {
	start := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var seen time.Time
	m.AfterFunc(7*time.Second, func() { seen = m.Now() })

	m.Advance(time.Minute)

	if !seen.Equal(start.Add(7 * time.Second)) {
		t.Fatalf("callback observed wrong clock: %v", seen)
	}
}

func TestManual_RearmWithinWindow(t *testing.T) {
	m := NewManual(time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC))

	var ticks int
	var tick func()
	tick = func() {
		ticks++
		if ticks < 3 {
			m.AfterFunc(5*time.Second, tick)
		}
	}
	m.AfterFunc(5*time.Second, tick)

	// 5s, 10s, 15s ticks all fall inside the window.
	m.Advance(20 * time.Second)

	if ticks != 3 {
		t.Fatalf("expected 3 chained ticks, got %d", ticks)
	}
}

func TestManual_StopPreventsFiring(t *testing.T) {
	m := NewManual(time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC))

	var fired bool
	h := m.AfterFunc(5*time.Second, func() { fired = true })

	if !h.Stop() {
		t.Fatalf("Stop() should report true for a pending timer")
	}
	if h.Stop() {
		t.Fatalf("second Stop() should report false")
	}

	m.Advance(time.Minute)
	if fired {
		t.Fatalf("stopped timer fired")
	}
}

func TestWallClock_AfterFunc(t *testing.T) {
	s := New()

	var fired atomic.Bool
	done := make(chan struct{})
	s.AfterFunc(time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	if !fired.Load() {
		t.Fatalf("callback did not run")
	}
}
