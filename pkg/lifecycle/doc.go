// Package lifecycle provides deterministic, idempotent teardown for trees of
// owned resources.
//
// A Lifecycle owns managed children (other lifecycles, cleanup callbacks,
// subscriptions, streams, timers and completers) and disposes all of them
// when Dispose is called:
//
//	l := lifecycle.New(lifecycle.WithName("session"))
//	_ = l.ManageDisposer(conn.Close)
//	sub, _ := lifecycle.ListenTo(l, updates, onUpdate)
//	...
//	err := l.Dispose().Wait(ctx)
//
// Dispose moves the lifecycle from Initialized to AwaitingDisposal, runs the
// will-dispose hooks, waits for every awaitable registered with
// AwaitBeforeDispose (new registrations are accepted while waiting), moves to
// Disposing, disposes every child concurrently, runs the on-dispose hooks and
// finally settles the signal in the Disposed state. Calling Dispose again
// returns the same signal.
//
// Registration fails with errors.ErrInvalidArgument for nil resources and with
// errors.ErrInvalidState once the lifecycle is Disposing or Disposed.
// Registration during AwaitingDisposal is allowed so that work drained before
// teardown can still hand its resources over.
//
// Wrapped resources that conclude on their own (a timer that fired, a
// subscription canceled by someone else, a completer that settled, a child
// lifecycle disposed directly) are dropped from tracking immediately, so
// long-lived owners do not accumulate dead children.
//
// Types that own resources embed *Lifecycle. Diagnostics (logging, leak
// flagging and metrics) are injected per lifecycle; there is no global debug
// switch.
package lifecycle
