package correlator

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls SendAndWaitWithRetry. Each attempt is a fresh
// request with a new id; the bus itself never retries.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// RetryOnError also retries results with StatusError; timeouts are
	// always retried.
	RetryOnError bool
}

// DefaultRetryPolicy retries twice with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryOnError: true,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}

func (p RetryPolicy) shouldRetry(res *Result) bool {
	switch res.Status {
	case StatusTimeout:
		return true
	case StatusError:
		return p.RetryOnError
	default:
		return false
	}
}

// SendAndWaitWithRetry repeats SendAndWait while the result is a timeout
// (or an error, if the policy says so). It returns the last result.
func (c *Correlator) SendAndWaitWithRetry(ctx context.Context, policy RetryPolicy, to, action string, params map[string]any, conversationID string, timeout time.Duration) (*Result, error) {
	policy = policy.normalized()

	var res *Result
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.delay(attempt)
			c.logger.Debug("retrying request",
				zap.String("to", to),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.String("last_status", string(res.Status)),
			)
			select {
			case <-ctx.Done():
				return res, nil
			case <-time.After(delay):
			}
		}

		var err error
		res, err = c.SendAndWait(ctx, to, action, params, conversationID, timeout)
		if err != nil {
			return nil, err
		}
		if !policy.shouldRetry(res) {
			return res, nil
		}
	}
	return res, nil
}
