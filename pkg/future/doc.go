// Package future provides single-assignment values shared between goroutines.
//
// A Completer owns the write side and a Future the read side. A future settles
// exactly once with a value or an error; later Complete or CompleteError calls
// report false and change nothing. Any number of goroutines may Await the same
// future and all observe the same outcome, which is what the cache relies on to
// coalesce concurrent requests for one key.
//
//	c := future.NewCompleter[*Session]()
//	go func() { c.Complete(openSession()) }()
//	s, err := c.Future().Await(ctx)
//
// Go runs a function in its own goroutine and fails the future if the function
// panics. OnComplete callbacks run in the settling goroutine and must not block.
package future
