package loop

import (
	"sort"
	"time"
)

// Manual is a Dispatcher driven by hand. Nothing runs until RunPending or
// Advance is called, which makes ordering and timeouts deterministic in
// tests. Manual is not safe for concurrent use.
type Manual struct {
	now     time.Time
	pending []func()
	timers  []*manualTimer
	seq     int
}

type manualTimer struct {
	at  time.Time
	seq int
	fn  func()
	off bool
}

func (t *manualTimer) Stop() bool {
	if t.off {
		return false
	}
	t.off = true
	return true
}

// NewManual returns a manual dispatcher with its clock at the unix epoch
func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0)}
}

// Now returns the dispatcher clock
func (m *Manual) Now() time.Time {
	return m.now
}

// Post queues fn
func (m *Manual) Post(fn func()) {
	m.pending = append(m.pending, fn)
}

// PostDelayed queues fn to run once the clock passes now+d
func (m *Manual) PostDelayed(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// RunPending runs queued work, including work queued while running, until
// the queue is empty. It returns the number of tasks run.
func (m *Manual) RunPending() int {
	count := 0
	for len(m.pending) > 0 {
		fn := m.pending[0]
		m.pending = m.pending[1:]
		fn()
		count++
	}
	return count
}

// Pending returns the number of queued tasks and armed timers
func (m *Manual) Pending() (tasks, timers int) {
	for _, t := range m.timers {
		if !t.off {
			timers++
		}
	}
	return len(m.pending), timers
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and running queued work after each one
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	m.RunPending()
	for {
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].at.Equal(m.timers[j].at) {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at.Before(m.timers[j].at)
		})

		var next *manualTimer
		for i, t := range m.timers {
			if t.off {
				continue
			}
			if t.at.After(end) {
				break
			}
			next = t
			m.timers = append(m.timers[:i:i], m.timers[i+1:]...)
			break
		}
		if next == nil {
			break
		}
		if next.at.After(m.now) {
			m.now = next.at
		}
		next.off = true
		next.fn()
		m.RunPending()
	}
	m.now = end

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.off {
			live = append(live, t)
		}
	}
	m.timers = live
}
