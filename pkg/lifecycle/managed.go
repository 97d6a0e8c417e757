package lifecycle

import (
	"sync"
	"time"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/future"
	"github.com/c360/semcache/pkg/stream"
)

// Cancelable is a subscription-like resource. If it also exposes
// Done() <-chan struct{}, it is dropped from tracking once canceled elsewhere.
type Cancelable interface {
	Cancel()
}

// Closable is a channel-like resource that reports when it has closed.
type Closable interface {
	Close() error
	Done() <-chan struct{}
}

// Closer matches io.Closer.
type Closer interface {
	Close() error
}

// disposer runs a cleanup callback at most once.
type disposer struct {
	once sync.Once
	fn   func() *future.Signal
	sig  *future.Signal
}

func (d *disposer) Dispose() *future.Signal {
	d.once.Do(func() {
		sig, err := future.Call(func() (*future.Signal, error) {
			return d.fn(), nil
		})
		switch {
		case err != nil:
			d.sig = future.FailedSignal(err)
		case sig == nil:
			d.sig = future.ResolvedSignal()
		default:
			d.sig = sig
		}
	})
	return d.sig
}

// ManageDisposer registers a cleanup callback run at most once on disposal.
func (l *Lifecycle) ManageDisposer(fn func() error) error {
	if fn == nil {
		return errors.InvalidArgument("lifecycle", "ManageDisposer", "callback")
	}
	_, err := l.add(&disposer{fn: func() *future.Signal {
		if err := fn(); err != nil {
			return future.FailedSignal(err)
		}
		return future.ResolvedSignal()
	}}, "ManageDisposer")
	return err
}

// ManageAsyncDisposer registers a cleanup callback whose completion is
// reported through the returned signal. It runs at most once.
func (l *Lifecycle) ManageAsyncDisposer(fn func() *future.Signal) error {
	if fn == nil {
		return errors.InvalidArgument("lifecycle", "ManageAsyncDisposer", "callback")
	}
	_, err := l.add(&disposer{fn: fn}, "ManageAsyncDisposer")
	return err
}

// managedHandle adapts a resource with a teardown func and an optional
// completion channel.
type managedHandle struct {
	teardown func() error
	done     <-chan struct{}
}

func (h *managedHandle) Dispose() *future.Signal {
	if err := h.teardown(); err != nil {
		return future.FailedSignal(err)
	}
	return future.ResolvedSignal()
}

func (l *Lifecycle) manageHandle(h *managedHandle, method string) error {
	c, err := l.add(h, method)
	if err != nil {
		return err
	}
	if h.done != nil {
		go func() {
			select {
			case <-h.done:
				l.drop(c)
			case <-l.disposed.Done():
			}
		}()
	}
	return nil
}

// ManageSubscription cancels s on disposal.
func (l *Lifecycle) ManageSubscription(s Cancelable) error {
	if s == nil {
		return errors.InvalidArgument("lifecycle", "ManageSubscription", "subscription")
	}
	h := &managedHandle{teardown: func() error {
		s.Cancel()
		return nil
	}}
	if a, ok := s.(future.Awaitable); ok {
		h.done = a.Done()
	}
	return l.manageHandle(h, "ManageSubscription")
}

// ManageStream closes s on disposal and drops it once it closes on its own.
func (l *Lifecycle) ManageStream(s Closable) error {
	if s == nil {
		return errors.InvalidArgument("lifecycle", "ManageStream", "stream")
	}
	return l.manageHandle(&managedHandle{teardown: s.Close, done: s.Done()}, "ManageStream")
}

// ManageCloser closes c on disposal.
func (l *Lifecycle) ManageCloser(c Closer) error {
	if c == nil {
		return errors.InvalidArgument("lifecycle", "ManageCloser", "closer")
	}
	return l.manageHandle(&managedHandle{teardown: c.Close}, "ManageCloser")
}

// managedCompleter fails its completer with ErrObjectDisposed on disposal.
type managedCompleter[T any] struct {
	c *future.Completer[T]
}

func (m *managedCompleter[T]) Dispose() *future.Signal {
	m.c.CompleteError(errors.WrapInvalid(errors.ErrObjectDisposed,
		"lifecycle", "Dispose", "complete pending value"))
	return future.ResolvedSignal()
}

// ManageCompleter fails c with ErrObjectDisposed if it is still pending when
// l disposes. c is dropped from tracking as soon as it settles.
func ManageCompleter[T any](l *Lifecycle, c *future.Completer[T]) error {
	if c == nil {
		return errors.InvalidArgument("lifecycle", "ManageCompleter", "completer")
	}
	ch, err := l.add(&managedCompleter[T]{c: c}, "ManageCompleter")
	if err != nil {
		return err
	}
	c.Future().OnComplete(func() { l.drop(ch) })
	return nil
}

// Timer is a one-shot timer owned by a lifecycle. It is stopped on disposal
// and stops being tracked once it fires.
type Timer struct {
	owner *Lifecycle
	node  *child

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	once sync.Once
	done chan struct{}
}

// NewManagedTimer calls fn once after d unless l disposes first.
func (l *Lifecycle) NewManagedTimer(d time.Duration, fn func()) (*Timer, error) {
	if fn == nil {
		return nil, errors.InvalidArgument("lifecycle", "NewManagedTimer", "callback")
	}
	t := &Timer{owner: l, done: make(chan struct{})}
	t.node = &child{d: t}
	if err := l.addNode(t.node, "NewManagedTimer"); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if !t.stopped {
		t.timer = time.AfterFunc(d, func() {
			fn()
			t.finish()
		})
	}
	t.mu.Unlock()
	return t, nil
}

// Stop prevents the timer from firing. Returns false if it already fired or was stopped.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	wasStopped := t.stopped
	t.stopped = true
	stopped := !wasStopped
	if t.timer != nil {
		stopped = t.timer.Stop()
	}
	t.mu.Unlock()

	t.finish()
	return stopped
}

// Dispose stops the timer.
func (t *Timer) Dispose() *future.Signal {
	t.Stop()
	return future.ResolvedSignal()
}

// Done returns a channel closed once the timer fired or was stopped.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) finish() {
	t.once.Do(func() {
		t.owner.drop(t.node)
		close(t.done)
	})
}

// Ticker calls a function periodically until stopped or its owner disposes.
type Ticker struct {
	owner *Lifecycle
	node  *child
	once  sync.Once
	stop  chan struct{}
}

// NewManagedTicker calls fn every d until l disposes or the ticker is stopped.
func (l *Lifecycle) NewManagedTicker(d time.Duration, fn func()) (*Ticker, error) {
	if fn == nil {
		return nil, errors.InvalidArgument("lifecycle", "NewManagedTicker", "callback")
	}
	if d <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "lifecycle", "NewManagedTicker",
			"non-positive interval")
	}
	t := &Ticker{owner: l, stop: make(chan struct{})}
	t.node = &child{d: t}
	if err := l.addNode(t.node, "NewManagedTicker"); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-t.stop:
				return
			}
		}
	}()
	return t, nil
}

// Stop ends the ticker and drops it from its owner. Safe to call more than once.
func (t *Ticker) Stop() {
	t.once.Do(func() {
		t.owner.drop(t.node)
		close(t.stop)
	})
}

// Dispose stops the ticker.
func (t *Ticker) Dispose() *future.Signal {
	t.Stop()
	return future.ResolvedSignal()
}

// Done returns a channel closed once the ticker stops.
func (t *Ticker) Done() <-chan struct{} {
	return t.stop
}

// DelayedFuture runs fn after d and settles the returned future with its
// outcome. If l disposes first the timer is stopped and the future fails with
// ErrObjectDisposed.
func DelayedFuture[T any](l *Lifecycle, d time.Duration, fn func() (T, error)) (*future.Future[T], error) {
	if fn == nil {
		return nil, errors.InvalidArgument("lifecycle", "DelayedFuture", "callback")
	}
	c := future.NewCompleter[T]()
	if err := ManageCompleter(l, c); err != nil {
		return nil, err
	}
	_, err := l.NewManagedTimer(d, func() {
		v, err := future.Call(fn)
		if err != nil {
			c.CompleteError(err)
			return
		}
		c.Complete(v)
	})
	if err != nil {
		c.CompleteError(err)
		return nil, err
	}
	return c.Future(), nil
}

// ListenTo subscribes fn to s and cancels the subscription when l disposes.
func ListenTo[T any](l *Lifecycle, s stream.Stream[T], fn func(T)) (*stream.Subscription[T], error) {
	if s == nil || fn == nil {
		return nil, errors.InvalidArgument("lifecycle", "ListenTo", "stream and listener")
	}
	if l.State() >= Disposing {
		return nil, errors.InvalidState("lifecycle", "ListenTo", "subscribe while disposing")
	}
	sub := s.Listen(fn)
	if err := l.ManageSubscription(sub); err != nil {
		sub.Cancel()
		return nil, err
	}
	return sub, nil
}
