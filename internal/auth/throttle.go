// AngelaMos | 2026
// throttle.go

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aulamagica/backend/internal/core"
)

const (
	throttleWindow      = 15 * time.Minute
	throttleMaxFailures = 5
)

// Throttle enforces the lockout window over the durable attempt log. It
// holds no in-process state: counters live in postgres so the lockout is
// consistent across concurrently running instances. Two racing failures
// may let the count exceed the limit by one before lockout triggers; that
// soft bound is accepted.
type Throttle struct {
	attempts AttemptRepository
}

func NewThrottle(attempts AttemptRepository) *Throttle {
	return &Throttle{attempts: attempts}
}

// CheckAndRecord appends the attempt and enforces the sliding window. A
// success wipes the subject's history. A failure that brings the count in
// the trailing window to the limit is itself refused with
// core.ErrTooManyAttempts: the tipping attempt is not merely logged.
func (t *Throttle) CheckAndRecord(
	ctx context.Context,
	identifier, ipAddress string,
	success bool,
) error {
	attempt := &LoginAttempt{
		Identifier: identifier,
		IPAddress:  ipAddress,
		Success:    success,
	}

	if err := t.attempts.Record(ctx, attempt); err != nil {
		return err
	}

	if success {
		if _, err := t.attempts.DeleteForIdentifier(ctx, identifier); err != nil {
			return err
		}
		return nil
	}

	since := time.Now().Add(-throttleWindow)
	count, err := t.attempts.CountFailedSince(ctx, identifier, since)
	if err != nil {
		return err
	}

	if count >= throttleMaxFailures {
		return fmt.Errorf(
			"throttle %q: %w",
			identifier,
			core.ErrTooManyAttempts,
		)
	}

	return nil
}

// RetryAfter is the advisory wait surfaced with the rate-limit error.
func (t *Throttle) RetryAfter() time.Duration {
	return throttleWindow
}

// Sweep deletes rows older than twice the window; they can no longer
// influence any decision.
func (t *Throttle) Sweep(ctx context.Context) (int64, error) {
	return t.attempts.DeleteOlderThan(ctx, time.Now().Add(-2*throttleWindow))
}

func (t *Throttle) Stats(ctx context.Context) (*AttemptStats, error) {
	return t.attempts.Stats(ctx, time.Now().Add(-throttleWindow))
}
