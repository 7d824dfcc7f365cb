package delivery

import "time"

// RetryPolicy bounds how many times a notice is attempted and how long to
// wait between attempts. Delays grow exponentially and are capped, so the
// schedule is non-decreasing in the attempt number.
type RetryPolicy struct {
	// MaxAttempts is the total number of delivery attempts, including the
	// first one. Once exhausted the notice is dead-lettered.
	MaxAttempts int

	// Base is the delay before the second attempt.
	Base time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the production retry schedule:
// 1s, 2s, 4s, 8s between five attempts, capped at one minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Base:        time.Second,
		Multiplier:  2,
		MaxDelay:    time.Minute,
	}
}

// Exhausted reports whether the given attempt count has used up the policy.
func (p RetryPolicy) Exhausted(attempts int) bool { return attempts >= p.MaxAttempts }

// Delay returns how long to wait after the given failed attempt (1-based)
// before trying again.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
