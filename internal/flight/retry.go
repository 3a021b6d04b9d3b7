package flight

import (
	"context"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/monitoring"
	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
)

const (
	retryAttempts = 3
	retryDelay    = 500 * time.Millisecond
)

// Retrier wraps a Controller and retries the one-shot commands (Navigate,
// Land) against transient transport failures. The loop-rate calls
// (GetPose, SetPosition, GetState) pass straight through: their callers
// run at 10 Hz and prefer a skipped tick over blocking on a retry.
type Retrier struct {
	inner    Controller
	attempts int
	delay    time.Duration
	clock    timeutil.Clock
}

var _ Controller = (*Retrier)(nil)

// NewRetrier wraps inner with the default retry policy. A nil clock
// selects the real one.
func NewRetrier(inner Controller, clock timeutil.Clock) *Retrier {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Retrier{
		inner:    inner,
		attempts: retryAttempts,
		delay:    retryDelay,
		clock:    clock,
	}
}

func (r *Retrier) do(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}
		monitoring.Logf("[flight] %s failed (attempt %d/%d), retrying in %s: %v",
			op, attempt, r.attempts, r.delay, err)
		r.clock.Sleep(r.delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (r *Retrier) GetPose(ctx context.Context, frame string) (Pose, error) {
	return r.inner.GetPose(ctx, frame)
}

func (r *Retrier) SetPosition(ctx context.Context, x, y, z, yaw float64, frame string) error {
	return r.inner.SetPosition(ctx, x, y, z, yaw, frame)
}

func (r *Retrier) Navigate(ctx context.Context, x, y, z, yaw, speed float64, frame string, autoArm bool) error {
	return r.do(ctx, "navigate", func() error {
		return r.inner.Navigate(ctx, x, y, z, yaw, speed, frame, autoArm)
	})
}

func (r *Retrier) GetState(ctx context.Context) (State, error) {
	return r.inner.GetState(ctx)
}

func (r *Retrier) Land(ctx context.Context) error {
	return r.do(ctx, "land", func() error {
		return r.inner.Land(ctx)
	})
}
