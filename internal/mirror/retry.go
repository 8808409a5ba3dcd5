package mirror

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// jitterPercent spreads retries of unrelated operations apart.
const jitterPercent = 25

// Fallbacks for zero-valued options.
const (
	fallbackBaseDelay = time.Second
	fallbackMaxDelay  = 30 * time.Second
)

// newBackoff returns a fresh exponential backoff allowing attempts calls in
// total. Backoffs are stateful; build one per operation.
func newBackoff(attempts int, base, maxDelay time.Duration) retry.Backoff {
	if attempts < 1 {
		attempts = 1
	}

	if base <= 0 {
		base = fallbackBaseDelay
	}

	if maxDelay < base {
		maxDelay = max(base, fallbackMaxDelay)
	}

	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithCappedDuration(maxDelay, b)

	return retry.WithMaxRetries(uint64(attempts-1), b)
}
