package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"personachat/backend/internal/logger"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestPoolRunsTasksAndCountsOutcomes(t *testing.T) {
	pool := NewPool(logger.Nop(), Options{Concurrency: 2})

	var ran atomic.Int32
	_ = pool.Submit(Task{Name: "ok", Run: func(context.Context) error { ran.Add(1); return nil }})
	_ = pool.Submit(Task{Name: "fail", Run: func(context.Context) error { ran.Add(1); return errors.New("boom") }})
	_ = pool.Submit(Task{Name: "panic", Run: func(context.Context) error { ran.Add(1); panic("kaboom") }})

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	stats := pool.Stats()
	if ran.Load() != 3 || stats.Succeeded != 1 || stats.Failed != 1 || stats.Panicked != 1 || stats.Pending != 0 {
		t.Fatalf("unexpected stats %+v ran=%d", stats, ran.Load())
	}
}

func TestPoolSubmitDoesNotBlockOnDelay(t *testing.T) {
	pool := NewPool(logger.Nop(), Options{Concurrency: 1})
	defer pool.Shutdown(context.Background())

	started := make(chan time.Time, 1)
	submitted := time.Now()
	if err := pool.Submit(Task{Name: "delayed", Delay: 50 * time.Millisecond, Run: func(context.Context) error {
		started <- time.Now()
		return nil
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if elapsed := time.Since(submitted); elapsed > 20*time.Millisecond {
		t.Fatalf("submit blocked for %s", elapsed)
	}

	select {
	case at := <-started:
		if at.Sub(submitted) < 50*time.Millisecond {
			t.Fatalf("task started before its delay")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("delayed task never ran")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(logger.Nop(), Options{Concurrency: 2})

	var current, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		_ = pool.Submit(Task{Name: "bounded", Run: func(context.Context) error {
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			return nil
		}})
	}
	waitFor(t, func() bool { return current.Load() == 2 })
	close(release)

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if peak.Load() != 2 {
		t.Fatalf("expected peak concurrency 2, got %d", peak.Load())
	}
}

func TestPoolRejectsAfterShutdownAndWhenFull(t *testing.T) {
	pool := NewPool(logger.Nop(), Options{Concurrency: 1, MaxPending: 1})

	block := make(chan struct{})
	if err := pool.Submit(Task{Name: "first", Run: func(context.Context) error { <-block; return nil }}); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	if err := pool.Submit(Task{Name: "second", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrPoolFull) {
		t.Fatalf("expected ErrPoolFull, got %v", err)
	}
	close(block)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := pool.Submit(Task{Name: "late", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolShutdownDeadlineCancelsRunningTasks(t *testing.T) {
	pool := NewPool(logger.Nop(), Options{Concurrency: 1})

	_ = pool.Submit(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	waitFor(t, func() bool { return pool.Stats().Pending == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if stats := pool.Stats(); stats.Failed != 1 {
		t.Fatalf("expected cancelled task to count as failed, got %+v", stats)
	}
}
