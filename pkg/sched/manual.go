package sched

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler for tests.
//
// Time only moves when Advance is called. Callbacks run synchronously on the
// advancing goroutine, in firing order, with the clock set to each timer's
// due time while its callback executes. Callbacks may arm new timers; those
// fire within the same Advance call when they fall inside the window.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*manualTimer
}

type manualTimer struct {
	id  int
	at  time.Time
	seq int
	fn  func()
	m   *Manual
}

// NewManual creates a Manual scheduler starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start.UTC(),
		timers: make(map[int]*manualTimer),
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	t := &manualTimer{
		id:  m.nextID,
		at:  m.now.Add(d),
		seq: m.nextID,
		fn:  fn,
		m:   m,
	}
	m.timers[t.id] = t
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if _, ok := t.m.timers[t.id]; !ok {
		return false
	}
	delete(t.m.timers, t.id)
	return true
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, firing every timer due in the window.
//
// Ties on due time fire in arming order. The callback runs without the
// scheduler lock held, so it may arm or stop timers freely.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		t := m.nextDueLocked(target)
		if t == nil {
			break
		}
		delete(m.timers, t.id)
		if t.at.After(m.now) {
			m.now = t.at
		}
		fn := t.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

var _ Scheduler = (*Manual)(nil)
