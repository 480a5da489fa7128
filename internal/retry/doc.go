// Package retry runs an operation again with exponential backoff and
// jitter until it succeeds, fails permanently or the context ends.
//
//	err := retry.Do(ctx, retry.Config{MaxRetries: 2}, func(ctx context.Context) error {
//	    return readSecret(ctx)
//	})
//
// Wrap an error with Permanent to stop retrying immediately.
package retry
