package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned when work is submitted to a stopped loop
var ErrStopped = errors.New("loop stopped")

// Timer is a handle to a delayed task
type Timer interface {
	// Stop prevents the task from running. It returns false if the task
	// already ran or was already stopped.
	Stop() bool
}

// Dispatcher schedules work onto the event loop. Post and PostDelayed may be
// called from any goroutine; the function always runs on the loop.
type Dispatcher interface {
	Post(fn func())
	PostDelayed(d time.Duration, fn func()) Timer
}

// Loop is a Dispatcher backed by a goroutine draining an unbounded queue
type Loop struct {
	lock    sync.Mutex
	queue   []func()
	wake    chan struct{}
	stop    chan struct{}
	stopped atomic.Bool
}

// New returns a loop ready to Run
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Post queues fn to run on the loop. Work posted after Stop is dropped.
func (l *Loop) Post(fn func()) {
	if l.stopped.Load() {
		return
	}
	l.lock.Lock()
	l.queue = append(l.queue, fn)
	l.lock.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

type loopTimer struct {
	t         *time.Timer
	cancelled atomic.Bool
}

func (lt *loopTimer) Stop() bool {
	if lt.cancelled.Swap(true) {
		return false
	}
	lt.t.Stop()
	return true
}

// PostDelayed queues fn to run on the loop after d
func (l *Loop) PostDelayed(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.cancelled.Swap(true) {
				return
			}
			fn()
		})
	})
	return lt
}

// Invoke runs fn on the loop and waits for it to finish. It must not be
// called from the loop goroutine.
func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-l.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) drain() {
	for {
		l.lock.Lock()
		if len(l.queue) == 0 {
			l.lock.Unlock()
			return
		}
		q := l.queue
		l.queue = nil
		l.lock.Unlock()

		for _, fn := range q {
			if l.stopped.Load() {
				return
			}
			fn()
		}
	}
}

// Run executes posted work until Stop is called
func (l *Loop) Run() error {
	for {
		select {
		case <-l.wake:
			l.drain()
		case <-l.stop:
			return nil
		}
	}
}

// Stop stops the loop. Queued work that has not started is dropped.
func (l *Loop) Stop(_ error) {
	if l.stopped.Swap(true) {
		return
	}
	close(l.stop)
}
