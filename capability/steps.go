package capability

import (
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
)

// step is one asynchronous task of a multi step operation
type step struct {
	name        string
	run         func(done mm.ResultFunc)
	ignoreError bool
}

// runSteps runs steps one after the other and calls cb with the first
// failure that is not ignored, or success. Nothing runs after scope closes.
func runSteps(scope *loop.Scope, steps []step, cb mm.ResultFunc) {
	var next func(i int)
	next = func(i int) {
		if i >= len(steps) {
			cb(data.Error{})
			return
		}
		s := steps[i]
		s.run(loop.Bind(scope, func(err data.Error) {
			if err.IsFailure() && !s.ignoreError {
				cb(err)
				return
			}
			next(i + 1)
		}))
	}
	next(0)
}
