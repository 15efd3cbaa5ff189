package core

import (
	"context"
	"sync"
)

// Future is a write-once outcome that can be observed any number of times.
// Observers attached after settlement still see the settled value.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	value     T
	err       error
	callbacks []func(T, error)
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done returns a channel that is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value without blocking.
// ok is false while the future is still pending.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// IsSettled reports whether Settle or Fail has taken effect.
func (f *Future[T]) IsSettled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Then registers fn to run exactly once with the settled value.
//
// If the future is pending, fn runs on the goroutine that settles it.
// If it has already settled, fn runs immediately on the caller's goroutine.
func (f *Future[T]) Then(fn func(value T, err error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f.value, f.err)
}

func (f *Future[T]) complete(value T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	// Run observers outside the lock so they may attach further callbacks.
	for _, cb := range callbacks {
		cb(value, err)
	}
	return true
}

// Deferred pairs a Future with the triggers that settle it, decoupling the
// producer of an eventual value from its consumers.
//
// Example:
//
//	d := core.NewDeferred[int]()
//	time.AfterFunc(10*time.Millisecond, func() { d.Settle(42) })
//	v, err := d.Outcome.Wait(ctx)
type Deferred[T any] struct {
	Outcome *Future[T]
}

// NewDeferred creates a pending Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{Outcome: newFuture[T]()}
}

// WithResolve is an alias of NewDeferred.
func WithResolve[T any]() *Deferred[T] {
	return NewDeferred[T]()
}

// Settle resolves the outcome with value. Only the first Settle or Fail has
// an effect; it returns false when the outcome was already settled.
func (d *Deferred[T]) Settle(value T) bool {
	return d.Outcome.complete(value, nil)
}

// Fail rejects the outcome with err. Only the first Settle or Fail has an effect.
func (d *Deferred[T]) Fail(err error) bool {
	var zero T
	return d.Outcome.complete(zero, err)
}

// Resolved returns a future already settled with value.
func Resolved[T any](value T) *Future[T] {
	f := newFuture[T]()
	f.complete(value, nil)
	return f
}

// Rejected returns a future already failed with err.
func Rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}
