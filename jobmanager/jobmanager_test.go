package jobmanager

import (
	"context"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.viam.com/test"

	"github.com/envlog/envlog/logging"
)

func TestLimitedJob(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	jm, err := New(logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, jm.Shutdown(), test.ShouldBeNil)
	}()

	runs := atomic.NewInt64(0)
	test.That(t, jm.Every("sample", 10*time.Millisecond, 3, func() { runs.Inc() }), test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, jm.Wait(ctx), test.ShouldBeNil)
	test.That(t, runs.Load(), test.ShouldEqual, int64(3))

	// removed after its last run
	time.Sleep(50 * time.Millisecond)
	test.That(t, runs.Load(), test.ShouldEqual, int64(3))
	test.That(t, logs.FilterMessage("created a job").Len(), test.ShouldEqual, 1)
}

func TestUnlimitedJobWaitsForContext(t *testing.T) {
	jm, err := New(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer jm.Shutdown()

	runs := atomic.NewInt64(0)
	test.That(t, jm.Every("sample", time.Hour, 0, func() { runs.Inc() }), test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	test.That(t, jm.Wait(ctx), test.ShouldEqual, context.DeadlineExceeded)
	test.That(t, runs.Load(), test.ShouldEqual, int64(1))
}

func TestSlowJobIsNotStacked(t *testing.T) {
	jm, err := New(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer jm.Shutdown()

	running := atomic.NewInt64(0)
	overlapped := atomic.NewBool(false)
	test.That(t, jm.Every("slow", 5*time.Millisecond, 3, func() {
		if running.Inc() > 1 {
			overlapped.Store(true)
		}
		time.Sleep(20 * time.Millisecond)
		running.Dec()
	}), test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, jm.Wait(ctx), test.ShouldBeNil)
	test.That(t, overlapped.Load(), test.ShouldBeFalse)
}

func TestEveryErrors(t *testing.T) {
	jm, err := New(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer jm.Shutdown()

	test.That(t, jm.Every("sample", time.Hour, 0, func() {}), test.ShouldBeNil)
	err = jm.Every("sample", time.Hour, 0, func() {})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `a job named "sample" already exists`)

	err = jm.Every("broken", 0, 0, func() {})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `failed to create job "broken"`)
}

func TestPanickingJobIsLogged(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	jm, err := New(logger)
	test.That(t, err, test.ShouldBeNil)
	defer jm.Shutdown()

	test.That(t, jm.Every("panics", time.Hour, 0, func() { panic("bus gone") }), test.ShouldBeNil)
	deadline := time.Now().Add(5 * time.Second)
	for logs.FilterMessage("job panicked").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	test.That(t, logs.FilterMessage("job panicked").Len(), test.ShouldEqual, 1)
}

func TestPanickingLimitedJobFinishes(t *testing.T) {
	jm, err := New(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer jm.Shutdown()

	runs := atomic.NewInt64(0)
	test.That(t, jm.Every("panics", 10*time.Millisecond, 2, func() {
		runs.Inc()
		panic("bus gone")
	}), test.ShouldBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	test.That(t, jm.Wait(ctx), test.ShouldBeNil)
	test.That(t, runs.Load(), test.ShouldBeGreaterThanOrEqualTo, int64(2))
}
