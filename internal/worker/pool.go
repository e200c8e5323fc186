package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"personachat/backend/internal/logger"
)

var (
	ErrPoolClosed = errors.New("worker pool is shut down")
	ErrPoolFull   = errors.New("worker pool queue is full")
)

// Task is a unit of background work. Run receives a context owned by the pool,
// never by the code that submitted the task.
type Task struct {
	Name  string
	Delay time.Duration
	Run   func(ctx context.Context) error
}

type Options struct {
	Concurrency int
	MaxPending  int
	TaskTimeout time.Duration
}

type Stats struct {
	Pending   int64
	Succeeded int64
	Failed    int64
	Panicked  int64
}

// Pool runs submitted tasks on bounded concurrency. A failing or panicking task
// is logged and counted; it never reaches the submitter.
type Pool struct {
	log  *logger.Logger
	opts Options
	sem  *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	pending   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

func NewPool(baseLog *logger.Logger, opts Options) *Pool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxPending < 1 {
		opts.MaxPending = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		log:    baseLog.With("component", "WorkerPool"),
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Concurrency)),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pool) Submit(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %q has no run function", task.Name)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.pending.Load() >= int64(p.opts.MaxPending) {
		p.mu.Unlock()
		return ErrPoolFull
	}
	p.pending.Add(1)
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(task)
	return nil
}

func (p *Pool) run(task Task) {
	defer p.wg.Done()
	defer p.pending.Add(-1)

	if task.Delay > 0 {
		timer := time.NewTimer(task.Delay)
		select {
		case <-timer.C:
		case <-p.ctx.Done():
			timer.Stop()
			p.log.Warn("Task dropped before start", "task", task.Name)
			return
		}
	}
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.log.Warn("Task dropped waiting for a slot", "task", task.Name)
		return
	}
	defer p.sem.Release(1)

	ctx := p.ctx
	if p.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TaskTimeout)
		defer cancel()
	}

	started := time.Now()
	err := p.execute(ctx, task)
	switch {
	case err == nil:
		p.succeeded.Add(1)
		p.log.Debug("Task finished", "task", task.Name, "duration_ms", time.Since(started).Milliseconds())
	case errors.As(err, new(*panicError)):
		p.panicked.Add(1)
	default:
		p.failed.Add(1)
		p.log.Warn("Task failed", "task", task.Name, "error", err, "duration_ms", time.Since(started).Milliseconds())
	}
}

func (p *Pool) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Task panic", "task", task.Name, "panic", r)
			err = &panicError{Val: r}
		}
	}()
	return task.Run(ctx)
}

// Shutdown stops accepting tasks and waits for the submitted ones. When ctx
// expires first, running tasks are cancelled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Pending:   p.pending.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
