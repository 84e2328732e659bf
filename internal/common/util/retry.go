package util

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// RetryWithBackoff runs action until it succeeds, attempts have been exhausted or ctx is done, doubling the wait
// between attempts starting from delay.  onError is called after every failed attempt.  The last error is returned.
func RetryWithBackoff(ctx context.Context, attempts uint, delay time.Duration, action func() error, onError func(attempt uint, err error)) error {
	return retry.Do(
		action,
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
		retry.OnRetry(onError),
	)
}
