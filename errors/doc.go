// Package errors provides standardized error handling patterns for semcache packages.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or API misuse, not
// retryable) and Fatal (unrecoverable, stop processing).
//
// Lifecycles and caches report failures with the sentinels below. Callers test
// for them with errors.Is or the Is* helpers instead of matching strings.
//
// # Sentinels
//
//	ErrInvalidArgument  a required parameter was nil or malformed
//	ErrInvalidState     the operation was attempted after disposal started
//	ErrObjectDisposed   a tracked completer or delayed future was abandoned by disposal
//	ErrFactoryFailed    a value factory returned an error, panicked or produced no future
//	ErrStreamClosed     an event was added to a closed stream controller
//	ErrInvalidConfig    configuration failed validation
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// InvalidArgument and InvalidState are shorthands for the two most common
// invalid-class failures:
//
//	if d == nil {
//	    return errors.InvalidArgument("lifecycle", "Manage", "disposable")
//	}
//	if l.state >= Disposing {
//	    return errors.InvalidState("lifecycle", "Manage", "register child while disposing")
//	}
//
// Factory errors keep the original error reachable:
//
//	err := errors.FactoryFailed(io.ErrUnexpectedEOF, "cache")
//	errors.Is(err, errors.ErrFactoryFailed) // true
//	errors.Is(err, io.ErrUnexpectedEOF)     // true
//
// # Classification
//
// ClassifiedError carries the class together with the component and operation
// that produced it. IsTransient, IsInvalid and IsFatal look for a
// ClassifiedError first and fall back to sentinel and message checks. Classify
// returns the class, defaulting to transient for unknown errors.
package errors
