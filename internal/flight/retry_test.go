package flight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/timeutil"
)

// flakyController fails a configured number of Navigate/Land calls before
// succeeding, and always fails pose reads.
type flakyController struct {
	navFailures  int
	landFailures int

	navCalls  int
	landCalls int
	poseCalls int
}

func (f *flakyController) GetPose(context.Context, string) (Pose, error) {
	f.poseCalls++
	return Pose{}, errors.New("no position fix")
}

func (f *flakyController) SetPosition(context.Context, float64, float64, float64, float64, string) error {
	return nil
}

func (f *flakyController) Navigate(context.Context, float64, float64, float64, float64, float64, string, bool) error {
	f.navCalls++
	if f.navCalls <= f.navFailures {
		return errors.New("transport glitch")
	}
	return nil
}

func (f *flakyController) GetState(context.Context) (State, error) {
	return State{}, nil
}

func (f *flakyController) Land(context.Context) error {
	f.landCalls++
	if f.landCalls <= f.landFailures {
		return errors.New("transport glitch")
	}
	return nil
}

// TestRetrierNavigateRecovers tests that transient Navigate failures are
// retried with the fixed delay until one attempt succeeds.
func TestRetrierNavigateRecovers(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	flaky := &flakyController{navFailures: 2}
	r := NewRetrier(flaky, clock)

	err := r.Navigate(context.Background(), 1, 0, 1.5, 0, 0.5, FrameWorld, false)
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if flaky.navCalls != 3 {
		t.Errorf("navigate calls = %d, want 3", flaky.navCalls)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two retry delays", sleeps)
	}
	for _, d := range sleeps {
		if d != 500*time.Millisecond {
			t.Errorf("retry delay = %v, want 500ms", d)
		}
	}
}

// TestRetrierNavigateExhaustsAttempts tests that a persistent failure
// surfaces after the attempt budget.
func TestRetrierNavigateExhaustsAttempts(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	flaky := &flakyController{navFailures: 10}
	r := NewRetrier(flaky, clock)

	err := r.Navigate(context.Background(), 1, 0, 1.5, 0, 0.5, FrameWorld, false)
	if err == nil {
		t.Fatal("navigate succeeded past a persistent failure")
	}
	if flaky.navCalls != 3 {
		t.Errorf("navigate calls = %d, want exactly 3 attempts", flaky.navCalls)
	}
}

// TestRetrierLandRecovers tests that Land is covered by the same policy.
func TestRetrierLandRecovers(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	flaky := &flakyController{landFailures: 1}
	r := NewRetrier(flaky, clock)

	if err := r.Land(context.Background()); err != nil {
		t.Fatalf("land: %v", err)
	}
	if flaky.landCalls != 2 {
		t.Errorf("land calls = %d, want 2", flaky.landCalls)
	}
}

// TestRetrierPoseReadsPassThrough tests that loop-rate reads are never
// retried; the caller skips the tick instead.
func TestRetrierPoseReadsPassThrough(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	flaky := &flakyController{}
	r := NewRetrier(flaky, clock)

	if _, err := r.GetPose(context.Background(), FrameWorld); err == nil {
		t.Fatal("pose error swallowed")
	}
	if flaky.poseCalls != 1 {
		t.Errorf("pose calls = %d, want 1 (no retry)", flaky.poseCalls)
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 0 {
		t.Errorf("unexpected retry sleeps: %v", sleeps)
	}
}

// TestRetrierStopsOnCancelledContext tests that a cancelled context ends
// the retry loop between attempts.
func TestRetrierStopsOnCancelledContext(t *testing.T) {
	clock := timeutil.NewMockClock(testEpoch)
	flaky := &flakyController{navFailures: 10}
	r := NewRetrier(flaky, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Navigate(ctx, 1, 0, 1.5, 0, 0.5, FrameWorld, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if flaky.navCalls != 1 {
		t.Errorf("navigate calls = %d, want 1 before cancellation check", flaky.navCalls)
	}
}
