package llm

import "time"

// RetrySchedule holds the backoff ladders for LLM requests. The attempt
// count is len(Backoffs)+1: the initial try plus one retry per rung.
type RetrySchedule struct {
	// Backoffs are the waits between retries of transient errors.
	Backoffs []time.Duration

	// RateLimitBackoffs are the waits between retries after a rate limit.
	RateLimitBackoffs []time.Duration
}

// DefaultRetrySchedule returns the standard ladder: transient errors back
// off 500ms then 1s, rate limits 1s then 2s. Auth errors are never retried.
func DefaultRetrySchedule() RetrySchedule {
	return RetrySchedule{
		Backoffs:          []time.Duration{500 * time.Millisecond, time.Second},
		RateLimitBackoffs: []time.Duration{time.Second, 2 * time.Second},
	}
}

// backoffFor returns the wait before retry number retry (0-based), or
// ok=false when the ladder is exhausted.
func (s RetrySchedule) backoffFor(retry int, rateLimit bool) (time.Duration, bool) {
	ladder := s.Backoffs
	if rateLimit {
		ladder = s.RateLimitBackoffs
	}
	if retry >= len(ladder) {
		return 0, false
	}
	return ladder[retry], true
}
