// Package retry provides exponential backoff for value factories.
//
// A cache remembers a failed factory until the entry is removed, so a
// transient failure such as a timeout can pin an error in the cache. Wrapping
// the factory retries such failures first:
//
//	v, err := c.Get(ctx, id, retry.Factory(ctx, retry.DefaultConfig(), func() (*Doc, error) {
//	    return store.Load(ctx, id)
//	}))
//
//	f, err := c.GetAsync(id, retry.AsyncFactory(ctx, retry.Quick(), store.LoadFunc(id)))
//
// # Stopping Rules
//
// Retrying stops when the function succeeds, the attempts run out, ctx is done
// or the error is not worth retrying: errors wrapped with NonRetryable and
// errors classified as invalid or fatal by the errors package. Exhausted
// attempts return the last error classified as transient.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay
//
// Zero fields of a Config take the DefaultConfig delays; MaxAttempts of 0 runs
// the function once.
package retry
