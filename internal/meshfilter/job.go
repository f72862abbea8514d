package meshfilter

import "errors"

// ErrStopped is reported to callers whose job was cancelled because the
// engine shut down before the job could run.
var ErrStopped = errors.New("mesh filter stopped")

// ErrMeshNotFound is reported by RemoveMesh for handles that were never
// registered or have already been removed.
var ErrMeshNotFound = errors.New("mesh not found")

// job is a unit of deferred work executed on the worker goroutine. A job
// reaches exactly one of two terminal states: executed or cancelled.
type job interface {
	execute()
	cancel()
}

// filterJob defers fn onto the worker goroutine and carries its typed
// result back to the submitting goroutine. The done channel is the one-shot
// completion signal; result and cancelled are written strictly before done
// is closed and read only after it is observed closed.
type filterJob[T any] struct {
	fn        func() T
	result    T
	cancelled bool
	done      chan struct{}
}

func newJob[T any](fn func() T) *filterJob[T] {
	return &filterJob[T]{fn: fn, done: make(chan struct{})}
}

func (j *filterJob[T]) execute() {
	j.result = j.fn()
	close(j.done)
}

func (j *filterJob[T]) cancel() {
	j.cancelled = true
	close(j.done)
}

// wait blocks until the job reaches a terminal state. It returns ErrStopped
// when the job was cancelled during shutdown; the zero value returned in
// that case is not a computed result and must not be interpreted as one.
func (j *filterJob[T]) wait() (T, error) {
	<-j.done
	if j.cancelled {
		var zero T
		return zero, ErrStopped
	}
	return j.result, nil
}
