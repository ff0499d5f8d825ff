package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxAuthRefreshes bounds consecutive auth-expired retries so a broken
// credential path cannot loop forever; these retries otherwise cost no budget.
const maxAuthRefreshes = 3

// Controller wraps remote operations with classification-aware retry.
// Rate-limited failures back off exponentially and consume attempt budget;
// auth-expired failures refresh the session and retry for free; anything
// else propagates immediately.
type Controller struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Session     *Session

	// Sleep is injectable for tests; nil means a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewController(maxAttempts int, base, cap time.Duration, session *Session) *Controller {
	return &Controller{MaxAttempts: maxAttempts, Base: base, Cap: cap, Session: session}
}

// Do runs op, retrying per classification. The label names the operation in
// errors and is never parsed.
func (c *Controller) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.Base
	bo.MaxInterval = c.Cap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	authRefreshes := 0
	var lastErr error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if c.Session != nil {
			// Stale credentials are refreshed before the attempt, not
			// discovered mid-flight.
			if _, err := c.Session.Token(ctx); err != nil {
				return fmt.Errorf("%s: %w", label, err)
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		switch KindOf(err) {
		case KindAuthExpired:
			authRefreshes++
			if authRefreshes > maxAuthRefreshes {
				return fmt.Errorf("%s: credential refresh loop: %w", label, err)
			}
			if c.Session != nil {
				c.Session.Invalidate()
			}
			attempt-- // re-auth does not consume retry budget
			continue
		case KindRateLimited:
			authRefreshes = 0
			if attempt == c.MaxAttempts {
				break
			}
			if serr := c.sleep(ctx, bo.NextBackOff()); serr != nil {
				return fmt.Errorf("%s: %w", label, serr)
			}
			continue
		default:
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", label, c.MaxAttempts, lastErr)
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
