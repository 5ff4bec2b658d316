package resilience

import "time"

// Config tunes retries and the circuit breaker around one provider. Zero
// fields take the Background defaults.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	AttemptTimeout      time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// Interactive is the policy for calls a searching user waits on: query
// parsing and query embeddings. A single quick retry, and the breaker opens
// early so a dead provider turns into a fast 503.
func Interactive(attemptTimeout time.Duration) Config {
	return Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     50 * time.Millisecond,
		RetryMultiplier:     1,
		AttemptTimeout:      attemptTimeout,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      15 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

// Background is the policy for embedding backfill and backfill requests on
// the queue. Nobody is waiting, so it retries longer before giving a message
// up to the next run.
func Background(attemptTimeout time.Duration) Config {
	return Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2,
		AttemptTimeout:      attemptTimeout,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := Background(0)

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.AttemptTimeout < 0 {
		out.AttemptTimeout = 0
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return out
}
