package loop

// Scope tracks the lifetime of a loop-owned object. Callbacks wrapped by
// a scope become no-ops after Close. A Scope must only be used on the loop.
type Scope struct {
	closed bool
}

// NewScope returns an open scope
func NewScope() *Scope {
	return &Scope{}
}

// Close detaches every callback wrapped by the scope
func (s *Scope) Close() {
	s.closed = true
}

// Closed returns true once Close has been called
func (s *Scope) Closed() bool {
	return s.closed
}

// Wrap returns fn guarded by the scope
func (s *Scope) Wrap(fn func()) func() {
	return func() {
		if s.closed {
			return
		}
		fn()
	}
}

// Bind guards a one argument callback with scope s
func Bind[T any](s *Scope, fn func(T)) func(T) {
	return func(v T) {
		if s.closed {
			return
		}
		fn(v)
	}
}

// Bind2 guards a two argument callback with scope s
func Bind2[T, U any](s *Scope, fn func(T, U)) func(T, U) {
	return func(v T, u U) {
		if s.closed {
			return
		}
		fn(v, u)
	}
}
