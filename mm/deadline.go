package mm

import (
	"time"

	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
)

// WithDeadline returns a completion that forwards only the first of the real
// reply or an OperationTimeout result produced after timeout. The returned
// function must be called on the loop.
func WithDeadline[T any](d loop.Dispatcher, timeout time.Duration, method string,
	cb func(T, data.Error)) func(T, data.Error) {
	done := false
	timer := d.PostDelayed(timeout, func() {
		if done {
			return
		}
		done = true
		var zero T
		cb(zero, data.NewError(data.KindOperationTimeout, "%v timed out after %v", method, timeout))
	})

	return func(v T, err data.Error) {
		if done {
			return
		}
		done = true
		timer.Stop()
		cb(v, err)
	}
}

// WithDeadlineResult is WithDeadline for completions without a value
func WithDeadlineResult(d loop.Dispatcher, timeout time.Duration, method string, cb ResultFunc) ResultFunc {
	g := WithDeadline(d, timeout, method, func(_ struct{}, err data.Error) {
		cb(err)
	})
	return func(err data.Error) {
		g(struct{}{}, err)
	}
}
