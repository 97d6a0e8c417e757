package lifecycle

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/future"
)

// Disposable is anything a Lifecycle can tear down. Dispose must be safe to
// call more than once and returns a signal that settles when teardown ends.
// A nil signal counts as already settled.
type Disposable interface {
	Dispose() *future.Signal
}

// Manager is the resource-owning surface of a Lifecycle. Types that own
// resources embed *Lifecycle and expose this surface through it.
type Manager interface {
	Disposable
	AwaitBeforeDispose(a future.Awaitable) error
	Manage(d Disposable) error
	ManageDisposer(fn func() error) error
	ManageAsyncDisposer(fn func() *future.Signal) error
	ManageSubscription(s Cancelable) error
	ManageStream(s Closable) error
	ManageCloser(c Closer) error
	NewManagedTimer(d time.Duration, fn func()) (*Timer, error)
	NewManagedTicker(d time.Duration, fn func()) (*Ticker, error)
	State() State
	IsDisposed() bool
	IsOrWillBeDisposed() bool
	DisposalTreeSize() int
	DidDispose() *future.Signal
}

var _ Manager = (*Lifecycle)(nil)

type treeSizer interface {
	DisposalTreeSize() int
}

type disposeNotifier interface {
	DidDispose() *future.Signal
}

type completionNotifier interface {
	OnComplete(fn func())
}

// child is the tracking node for one managed resource.
type child struct {
	d Disposable
}

// Lifecycle tracks owned resources and tears them down exactly once.
//
// Dispose moves through AwaitingDisposal (will-dispose hooks run, then every
// awaitable registered with AwaitBeforeDispose is drained), Disposing (every
// managed child is disposed concurrently) and Disposed (on-dispose hooks have
// run). Registrations are rejected from Disposing onward.
type Lifecycle struct {
	id     uuid.UUID
	name   string
	diag   Diagnostics
	logger *slog.Logger
	leaks  *leakTracker

	mu          sync.Mutex
	state       State
	children    map[*child]struct{}
	pending     map[future.Awaitable]struct{}
	willDispose []func() error
	onDispose   []func() error
	startedAt   time.Time

	disposed *future.Completer[struct{}]
}

// New creates a lifecycle in the Initialized state.
func New(opts ...Option) *Lifecycle {
	o := options{name: "lifecycle"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	l := &Lifecycle{
		id:          uuid.New(),
		name:        o.name,
		diag:        o.diag,
		children:    make(map[*child]struct{}),
		pending:     make(map[future.Awaitable]struct{}),
		willDispose: o.willDispose,
		onDispose:   o.onDispose,
		disposed:    future.NewSignalCompleter(),
	}
	l.logger = o.diag.logger().With("lifecycle_id", l.id.String(), "name", l.name)

	if o.diag.FlagLeaks {
		l.trackLeaks()
	}
	if o.diag.Metrics != nil {
		o.diag.Metrics.RecordCreated(l.name)
	}

	return l
}

// NewChild creates a lifecycle that inherits this lifecycle's diagnostics and
// is managed by it.
func (l *Lifecycle) NewChild(opts ...Option) (*Lifecycle, error) {
	all := append([]Option{WithDiagnostics(l.diag)}, opts...)
	c := New(all...)
	if err := l.Manage(c); err != nil {
		// Never handed out, so it cannot leak.
		if c.leaks != nil {
			c.leaks.disposed.Store(true)
		}
		return nil, err
	}
	return c, nil
}

// ID returns the correlation ID used in logs.
func (l *Lifecycle) ID() uuid.UUID {
	return l.id
}

// Name returns the lifecycle name.
func (l *Lifecycle) Name() string {
	return l.name
}

// Logger returns the lifecycle's logger, already tagged with its ID and name.
func (l *Lifecycle) Logger() *slog.Logger {
	return l.logger
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsDisposed reports whether disposal has completed.
func (l *Lifecycle) IsDisposed() bool {
	return l.State() == Disposed
}

// IsDisposing reports whether disposal has started but not completed.
func (l *Lifecycle) IsDisposing() bool {
	s := l.State()
	return s == AwaitingDisposal || s == Disposing
}

// IsOrWillBeDisposed reports whether Dispose has been called.
func (l *Lifecycle) IsOrWillBeDisposed() bool {
	return l.State() >= AwaitingDisposal
}

// DidDispose returns the signal that settles once disposal completes.
// It is the same signal Dispose returns.
func (l *Lifecycle) DidDispose() *future.Signal {
	return l.disposed.Future()
}

// Done returns a channel closed once disposal completes.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.disposed.Done()
}

// DisposalTreeSize returns 1 plus the tree size of every managed child.
// Children that do not report a size count as 1.
func (l *Lifecycle) DisposalTreeSize() int {
	l.mu.Lock()
	children := make([]Disposable, 0, len(l.children))
	for c := range l.children {
		children = append(children, c.d)
	}
	l.mu.Unlock()

	size := 1
	for _, d := range children {
		if ts, ok := d.(treeSizer); ok {
			size += ts.DisposalTreeSize()
			continue
		}
		size++
	}
	return size
}

// OnWillDispose adds a will-dispose hook. It fails once Dispose has been called.
func (l *Lifecycle) OnWillDispose(fn func() error) error {
	return l.addHook(&l.willDispose, fn, "OnWillDispose")
}

// OnDispose adds an on-dispose hook. It fails once Dispose has been called.
func (l *Lifecycle) OnDispose(fn func() error) error {
	return l.addHook(&l.onDispose, fn, "OnDispose")
}

func (l *Lifecycle) addHook(hooks *[]func() error, fn func() error, method string) error {
	if fn == nil {
		return errors.InvalidArgument("lifecycle", method, "hook")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Initialized {
		return errors.InvalidState("lifecycle", method, "add hook after dispose")
	}
	*hooks = append(*hooks, fn)
	return nil
}

// AwaitBeforeDispose holds disposal in AwaitingDisposal until a settles.
// It is valid until the lifecycle reaches Disposing.
func (l *Lifecycle) AwaitBeforeDispose(a future.Awaitable) error {
	if a == nil {
		return errors.InvalidArgument("lifecycle", "AwaitBeforeDispose", "awaitable")
	}

	l.mu.Lock()
	if l.state >= Disposing {
		l.mu.Unlock()
		return errors.InvalidState("lifecycle", "AwaitBeforeDispose", "register awaitable while disposing")
	}
	select {
	case <-a.Done():
		l.mu.Unlock()
		return nil
	default:
	}
	l.pending[a] = struct{}{}
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		delete(l.pending, a)
		l.mu.Unlock()
	}
	if n, ok := a.(completionNotifier); ok {
		n.OnComplete(release)
	} else {
		go func() {
			<-a.Done()
			release()
		}()
	}
	return nil
}

// AwaitBeforeDispose registers f with m and returns f unchanged so callers can
// keep chaining off it.
func AwaitBeforeDispose[T any](m Manager, f *future.Future[T]) (*future.Future[T], error) {
	if f == nil {
		return nil, errors.InvalidArgument("lifecycle", "AwaitBeforeDispose", "future")
	}
	if err := m.AwaitBeforeDispose(f); err != nil {
		return f, err
	}
	return f, nil
}

// Manage registers d for disposal with this lifecycle. It is tolerated while
// AwaitingDisposal and rejected from Disposing onward. A child that concludes
// on its own (it reports DidDispose, OnComplete or Done) is dropped from
// tracking when it does.
func (l *Lifecycle) Manage(d Disposable) error {
	if d == nil {
		return errors.InvalidArgument("lifecycle", "Manage", "disposable")
	}
	c, err := l.add(d, "Manage")
	if err != nil {
		return err
	}
	l.dropWhenConcluded(c)
	return nil
}

func (l *Lifecycle) add(d Disposable, method string) (*child, error) {
	c := &child{d: d}
	if err := l.addNode(c, method); err != nil {
		return nil, err
	}
	return c, nil
}

func (l *Lifecycle) addNode(c *child, method string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state >= Disposing {
		return errors.InvalidState("lifecycle", method, "register child while disposing")
	}
	l.children[c] = struct{}{}
	if l.diag.Metrics != nil {
		l.diag.Metrics.AddManagedChildren(l.name, 1)
	}
	return nil
}

// drop stops tracking c. Safe to call more than once.
func (l *Lifecycle) drop(c *child) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.children[c]; !ok {
		return
	}
	delete(l.children, c)
	if l.diag.Metrics != nil {
		l.diag.Metrics.AddManagedChildren(l.name, -1)
	}
}

func (l *Lifecycle) dropWhenConcluded(c *child) {
	switch v := c.d.(type) {
	case disposeNotifier:
		v.DidDispose().OnComplete(func() { l.drop(c) })
	case completionNotifier:
		v.OnComplete(func() { l.drop(c) })
	case future.Awaitable:
		go func() {
			select {
			case <-v.Done():
				l.drop(c)
			case <-l.disposed.Done():
			}
		}()
	}
}

// Dispose starts teardown and returns the completion signal. Will-dispose
// hooks run in the calling goroutine; the rest runs in the background. Later
// calls return the same signal without repeating any step.
func (l *Lifecycle) Dispose() *future.Signal {
	l.mu.Lock()
	if l.state != Initialized {
		l.mu.Unlock()
		return l.disposed.Future()
	}
	l.state = AwaitingDisposal
	l.startedAt = time.Now()
	hooks := l.willDispose
	l.mu.Unlock()

	if l.leaks != nil {
		l.leaks.disposed.Store(true)
	}
	l.logger.Debug("dispose requested")

	var willErr error
	for _, hook := range hooks {
		if err := runHook(hook); err != nil {
			l.logger.Error("will-dispose hook failed", "error", err)
			l.recordError("will_dispose")
			willErr = stderrors.Join(willErr, err)
		}
	}

	go l.finishDispose(willErr)
	return l.disposed.Future()
}

func (l *Lifecycle) finishDispose(willErr error) {
	children := l.drainPending()

	childErr := l.disposeChildren(children)

	l.mu.Lock()
	hooks := l.onDispose
	l.mu.Unlock()

	var onErr error
	for _, hook := range hooks {
		if err := runHook(hook); err != nil {
			l.logger.Error("on-dispose hook failed", "error", err)
			l.recordError("on_dispose")
			onErr = stderrors.Join(onErr, err)
		}
	}

	l.mu.Lock()
	l.state = Disposed
	duration := time.Since(l.startedAt)
	l.mu.Unlock()

	err := stderrors.Join(willErr, childErr, onErr)
	if l.diag.Metrics != nil {
		l.diag.Metrics.RecordDisposed(l.name, duration, err != nil)
	}

	if err != nil {
		l.logger.Warn("disposed with errors", "duration", duration, "error", err)
		l.disposed.CompleteError(errors.Wrap(err, "lifecycle", "Dispose", "teardown"))
		return
	}
	l.logger.Debug("disposed", "duration", duration)
	future.Resolve(l.disposed)
}

// drainPending waits until no registered awaitable is pending, then moves to
// Disposing and returns the children to dispose. New awaitables may be added
// while draining.
func (l *Lifecycle) drainPending() []*child {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.state = Disposing
			children := make([]*child, 0, len(l.children))
			for c := range l.children {
				children = append(children, c)
			}
			l.mu.Unlock()
			return children
		}
		waits := make([]future.Awaitable, 0, len(l.pending))
		for a := range l.pending {
			waits = append(waits, a)
		}
		l.mu.Unlock()

		_ = future.WaitAll(context.Background(), waits...)

		l.mu.Lock()
		for _, a := range waits {
			delete(l.pending, a)
		}
		l.mu.Unlock()
	}
}

// disposeChildren disposes every child concurrently and returns the first
// failure. Every failure is logged.
func (l *Lifecycle) disposeChildren(children []*child) error {
	var g errgroup.Group
	for _, c := range children {
		g.Go(func() error {
			err := disposeOne(c.d)
			if err != nil {
				l.logger.Error("managed child failed to dispose", "child", describe(c.d), "error", err)
				l.recordError("children")
			}
			return err
		})
	}
	err := g.Wait()

	l.mu.Lock()
	if l.diag.Metrics != nil && len(l.children) > 0 {
		l.diag.Metrics.AddManagedChildren(l.name, -len(l.children))
	}
	clear(l.children)
	l.mu.Unlock()

	return err
}

func (l *Lifecycle) recordError(stage string) {
	if l.diag.Metrics != nil {
		l.diag.Metrics.RecordDisposeError(l.name, stage)
	}
}

func disposeOne(d Disposable) error {
	sig, err := future.Call(func() (*future.Signal, error) {
		return d.Dispose(), nil
	})
	if err != nil {
		return err
	}
	if sig == nil {
		return nil
	}
	return sig.Wait(context.Background())
}

func runHook(hook func() error) error {
	_, err := future.Call(func() (struct{}, error) {
		return struct{}{}, hook()
	})
	return err
}

func describe(d Disposable) string {
	type named interface{ Name() string }
	if n, ok := d.(named); ok {
		return n.Name()
	}
	return "resource"
}
