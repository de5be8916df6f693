package loop

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Stop(nil)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var res []int
	err := l.Invoke(ctx, func() { res = append(res, got...) })
	if err != nil {
		t.Fatal("invoke failed: ", err)
	}

	exp := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if diff := cmp.Diff(exp, res); diff != "" {
		t.Error("order mismatch (-exp +got):\n", diff)
	}
}

func TestLoopDelayedStop(t *testing.T) {
	l := New()
	go l.Run()
	defer l.Stop(nil)

	fired := make(chan struct{}, 2)
	tm := l.PostDelayed(20*time.Millisecond, func() { fired <- struct{}{} })
	if !tm.Stop() {
		t.Error("first stop should return true")
	}
	if tm.Stop() {
		t.Error("second stop should return false")
	}

	l.PostDelayed(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed task did not run")
	}

	select {
	case <-fired:
		t.Fatal("stopped timer ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopInvokeAfterStop(t *testing.T) {
	l := New()
	l.Stop(nil)
	err := l.Invoke(context.Background(), func() {})
	if err != ErrStopped {
		t.Error("expected ErrStopped, got: ", err)
	}
}

func TestManualAdvance(t *testing.T) {
	m := NewManual()
	var got []string

	m.PostDelayed(3*time.Second, func() { got = append(got, "c") })
	m.PostDelayed(time.Second, func() {
		got = append(got, "a")
		m.Post(func() { got = append(got, "a2") })
	})
	stopped := m.PostDelayed(2*time.Second, func() { got = append(got, "b") })
	stopped.Stop()

	m.Advance(2 * time.Second)
	if diff := cmp.Diff([]string{"a", "a2"}, got); diff != "" {
		t.Error("after 2s (-exp +got):\n", diff)
	}

	m.Advance(time.Second)
	if diff := cmp.Diff([]string{"a", "a2", "c"}, got); diff != "" {
		t.Error("after 3s (-exp +got):\n", diff)
	}

	if tasks, timers := m.Pending(); tasks != 0 || timers != 0 {
		t.Errorf("expected nothing pending, got %v tasks %v timers", tasks, timers)
	}
}

func TestScopeDetaches(t *testing.T) {
	s := NewScope()
	count := 0
	fn := s.Wrap(func() { count++ })
	cb := Bind(s, func(v int) { count += v })

	fn()
	cb(10)
	s.Close()
	fn()
	cb(10)

	if count != 11 {
		t.Error("expected 11, got: ", count)
	}
	if !s.Closed() {
		t.Error("scope should be closed")
	}
}
