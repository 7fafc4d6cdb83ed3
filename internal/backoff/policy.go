// Package backoff provides an explicit retry policy with exponential
// backoff and jitter, shared by the capability registry and the tool
// invoker.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay after the first failed attempt.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the exponential multiplier applied per attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added to the delay.
	Jitter float64
}

// Default returns the policy used for tool invocation and capability
// refresh: 200ms initial, 10s cap, doubling, 10% jitter.
func Default() Policy {
	return Policy{
		Initial: 200 * time.Millisecond,
		Max:     10 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay calculates the backoff duration for a given attempt number.
// Attempt numbers start at 1; the delay for attempt n is
// min(Max, Initial*Factor^(n-1) + jitter).
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand calculates the backoff duration using a provided random
// value in [0.0, 1.0). Deterministic variant for tests.
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * randomValue
	total := math.Min(float64(p.Max), base+jitter)
	return time.Duration(math.Round(total))
}
