//go:build integration

package scheduler_test

import (
	"context"
	"testing"
	"time"

	"memkernel/internal/scheduler"

	"go.uber.org/goleak"
)

// TestMain ensures StartAll/StopAll never leaks a job goroutine.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestScheduler_StartAllStopAll_NoGoroutineLeak(t *testing.T) {
	sched := scheduler.New()
	for _, name := range []string{"job_a", "job_b", "job_c"} {
		sched.Register(name, 5*time.Millisecond, func(ctx context.Context) (scheduler.Result, error) {
			return scheduler.Result{Processed: 1}, nil
		})
	}

	sched.StartAll()
	time.Sleep(20 * time.Millisecond)
	sched.StopAll()
}
