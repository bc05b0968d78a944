package runner_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalnine/srebench/internal/runner"
)

func TestPool(t *testing.T) {
	var count atomic.Int32
	jobs := make([]runner.Job, 10)
	for i := range jobs {
		jobs[i] = func() error {
			count.Add(1)
			return nil
		}
	}
	errs := runner.RunPool(3, jobs)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if count.Load() != 10 {
		t.Errorf("expected 10 jobs, got %d", count.Load())
	}
}

func TestPoolWithErrors(t *testing.T) {
	jobs := []runner.Job{
		func() error { return nil },
		func() error { return fmt.Errorf("fail") },
		func() error { return nil },
	}
	errs := runner.RunPool(2, jobs)
	if len(errs) != 1 {
		t.Errorf("expected 1 error, got %d", len(errs))
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	jobs := make([]runner.Job, 8)
	for i := range jobs {
		jobs[i] = func() error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil
		}
	}
	runner.RunPool(2, jobs)
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent jobs, saw %d", peak.Load())
	}
}

func TestPoolZeroWorkersIsSequential(t *testing.T) {
	var active atomic.Int32
	jobs := make([]runner.Job, 4)
	for i := range jobs {
		jobs[i] = func() error {
			if active.Add(1) > 1 {
				return fmt.Errorf("overlap")
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return nil
		}
	}
	if errs := runner.RunPool(0, jobs); len(errs) != 0 {
		t.Errorf("expected sequential execution, got %v", errs)
	}
}
