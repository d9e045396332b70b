// ABOUTME: Reconnect backoff policy with exponential growth, optional jitter, and a hard attempt cap.
// ABOUTME: Shared by socket reconnection and session-id resolution, each with its own policy instance.
package live

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy configures retry pacing for reconnect and resolution loops.
type BackoffPolicy struct {
	// MaxAttempts is the total number of attempts before giving up.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay is the upper bound on the delay between retries.
	MaxDelay time.Duration

	// Multiplier controls exponential growth of the delay between retries.
	Multiplier float64

	// Jitter randomizes each delay between 0 and the calculated value to
	// avoid thundering-herd reconnects after a backend restart.
	Jitter bool
}

// DefaultReconnectPolicy gives up after five attempts at base x 2^n
// spacing, starting from one second.
func DefaultReconnectPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// DefaultResolvePolicy paces alert-to-session-id resolution retries. The
// backend may not have created the session row yet when we first subscribe,
// so this starts faster and allows more attempts than socket reconnection.
func DefaultResolvePolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 8,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// Delay computes the wait before retry number attempt (0-based), so the Nth
// retry waits base x multiplier^(N-1), capped at MaxDelay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delayFloat := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && delayFloat > float64(p.MaxDelay) {
		delayFloat = float64(p.MaxDelay)
	}

	delay := time.Duration(delayFloat)
	if p.Jitter && delay > 0 {
		delay = time.Duration(rand.Int64N(int64(delay) + 1))
	}
	return delay
}

// Exhausted reports whether the given 0-based attempt number is past the cap.
func (p BackoffPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
