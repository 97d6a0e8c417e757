package lifecycle

import "log/slog"

// Option configures a Lifecycle.
type Option func(*options)

type options struct {
	name        string
	diag        Diagnostics
	willDispose []func() error
	onDispose   []func() error
}

// WithName sets the name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithDiagnostics sets the diagnostics configuration.
func WithDiagnostics(d Diagnostics) Option {
	return func(o *options) {
		o.diag = d
	}
}

// WithLogger overrides only the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.diag.Logger = logger
		}
	}
}

// WithWillDispose adds a hook run when Dispose is first called, before
// registered awaitables are drained.
func WithWillDispose(fn func() error) Option {
	return func(o *options) {
		if fn != nil {
			o.willDispose = append(o.willDispose, fn)
		}
	}
}

// WithOnDispose adds a hook run after every managed child has been disposed.
func WithOnDispose(fn func() error) Option {
	return func(o *options) {
		if fn != nil {
			o.onDispose = append(o.onDispose, fn)
		}
	}
}
