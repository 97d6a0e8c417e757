package future

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/semcache/errors"
)

// Awaitable is anything that can be waited on for completion.
type Awaitable interface {
	Done() <-chan struct{}
}

// Future is a value of type T that becomes available at most once, together
// with an optional error. The zero value is not usable; obtain futures from a
// Completer or from Resolved, Failed and Go.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func()
}

// Signal is a future that carries no value.
type Signal = Future[struct{}]

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// settle stores the outcome and runs callbacks. Returns false if already settled.
func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return true
}

// Done returns a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has settled.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the future settles or ctx is done and returns only the error.
func (f *Future[T]) Wait(ctx context.Context) error {
	_, err := f.Await(ctx)
	return err
}

// Result returns the outcome without blocking. ok is false while unsettled.
func (f *Future[T]) Result() (value T, err error, ok bool) {
	if !f.IsDone() {
		return value, nil, false
	}
	return f.value, f.err, true
}

// Err returns the settled error, or nil while the future is unsettled.
func (f *Future[T]) Err() error {
	_, err, _ := f.Result()
	return err
}

// OnComplete registers fn to run when the future settles. If the future has
// already settled, fn runs immediately in the calling goroutine. Callbacks run
// in the settling goroutine and must not block.
func (f *Future[T]) OnComplete(fn func()) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		fn()
		return
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Completer is the write side of a Future.
type Completer[T any] struct {
	future *Future[T]
}

// NewCompleter returns a completer with an unsettled future.
func NewCompleter[T any]() *Completer[T] {
	return &Completer[T]{future: newFuture[T]()}
}

// NewSignalCompleter returns a completer for a Signal.
func NewSignalCompleter() *Completer[struct{}] {
	return NewCompleter[struct{}]()
}

// Future returns the read side.
func (c *Completer[T]) Future() *Future[T] {
	return c.future
}

// Complete settles the future with v. Returns false if it was already settled.
func (c *Completer[T]) Complete(v T) bool {
	return c.future.settle(v, nil)
}

// CompleteError settles the future with err. Returns false if it was already settled.
func (c *Completer[T]) CompleteError(err error) bool {
	var zero T
	if err == nil {
		err = errors.InvalidArgument("future", "CompleteError", "error")
	}
	return c.future.settle(zero, err)
}

// Resolve settles a signal completer. Shorthand for Complete(struct{}{}).
func Resolve(c *Completer[struct{}]) bool {
	return c.Complete(struct{}{})
}

// IsCompleted reports whether the future has settled.
func (c *Completer[T]) IsCompleted() bool {
	return c.future.IsDone()
}

// Done returns a channel closed once the future settles.
func (c *Completer[T]) Done() <-chan struct{} {
	return c.future.done
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.settle(v, nil)
	return f
}

// Failed returns a future already settled with err.
func Failed[T any](err error) *Future[T] {
	c := NewCompleter[T]()
	c.CompleteError(err)
	return c.future
}

// ResolvedSignal returns a settled successful signal.
func ResolvedSignal() *Signal {
	return Resolved(struct{}{})
}

// FailedSignal returns a signal settled with err.
func FailedSignal(err error) *Signal {
	return Failed[struct{}](err)
}

// Go runs fn in a new goroutine and returns a future for its outcome.
// A panic in fn fails the future.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		v, err := Call(fn)
		f.settle(v, err)
	}()
	return f
}

// GoSignal runs fn in a new goroutine and returns a signal for its outcome.
func GoSignal(fn func() error) *Signal {
	return Go(func() (struct{}, error) {
		return struct{}{}, fn()
	})
}

// Call runs fn in the current goroutine, converting a panic into an error.
func Call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), "future", "Call", "run function")
		}
	}()
	return fn()
}

// Forward settles c with the outcome of f once f settles.
func Forward[T any](f *Future[T], c *Completer[T]) {
	f.OnComplete(func() {
		if f.err != nil {
			c.CompleteError(f.err)
			return
		}
		c.Complete(f.value)
	})
}

// Then returns a signal that settles with f's error once f settles, dropping the value.
func Then[T any](f *Future[T]) *Signal {
	c := NewSignalCompleter()
	f.OnComplete(func() {
		if f.err != nil {
			c.CompleteError(f.err)
			return
		}
		Resolve(c)
	})
	return c.future
}

// WaitAll blocks until every awaitable is done or ctx is done.
func WaitAll(ctx context.Context, awaitables ...Awaitable) error {
	for _, a := range awaitables {
		if a == nil {
			continue
		}
		select {
		case <-a.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
