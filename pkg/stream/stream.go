package stream

import (
	"sync"

	"github.com/c360/semcache/errors"
)

// Stream is the read-only view of a Controller.
type Stream[T any] interface {
	Listen(fn func(T)) *Subscription[T]
}

// Controller broadcasts events to its listeners. Delivery is synchronous, in
// subscription order, and happens outside the controller lock so listeners may
// cancel themselves or add further listeners.
type Controller[T any] struct {
	mu     sync.Mutex
	subs   []*Subscription[T]
	closed bool
	done   chan struct{}
}

// NewController creates an open controller.
func NewController[T any]() *Controller[T] {
	return &Controller[T]{done: make(chan struct{})}
}

// Stream returns the read-only view.
func (c *Controller[T]) Stream() Stream[T] {
	return c
}

// Listen registers fn and returns its subscription. Listening on a closed
// controller returns an already canceled subscription.
func (c *Controller[T]) Listen(fn func(T)) *Subscription[T] {
	sub := &Subscription[T]{owner: c, fn: fn, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed || fn == nil {
		c.mu.Unlock()
		sub.markCanceled()
		return sub
	}
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	return sub
}

// Add delivers v to every current listener.
func (c *Controller[T]) Add(v T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrStreamClosed, "stream", "Add", "deliver event")
	}
	subs := make([]*Subscription[T], len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		if !s.IsCanceled() {
			s.fn(v)
		}
	}
	return nil
}

// Close cancels every subscription. Later calls are no-ops.
func (c *Controller[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.done)
	c.mu.Unlock()

	for _, s := range subs {
		s.markCanceled()
	}
	return nil
}

// Done returns a channel closed when the controller closes.
func (c *Controller[T]) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether Close has been called.
func (c *Controller[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ListenerCount returns the number of active listeners.
func (c *Controller[T]) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Controller[T]) remove(sub *Subscription[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// Subscription is a registered listener.
type Subscription[T any] struct {
	owner *Controller[T]
	fn    func(T)
	once  sync.Once
	done  chan struct{}
}

// Cancel stops delivery to this listener. Safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.owner.remove(s)
	s.markCanceled()
}

func (s *Subscription[T]) markCanceled() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel closed once the subscription is canceled, either
// directly or because its controller closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// IsCanceled reports whether the subscription is canceled.
func (s *Subscription[T]) IsCanceled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
