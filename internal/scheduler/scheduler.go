// Package scheduler runs conversation turns through a bounded worker
// pool. With one worker (the default) the bot behaves like a single
// human agent: turns are processed strictly one at a time, system-wide,
// in arrival order.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
)

// Task is one unit of turn processing. Errors are reported, never fatal.
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

// Scheduler is a FIFO task queue drained by a fixed number of workers.
// A failed or panicking task never blocks or cancels queued tasks.
type Scheduler struct {
	queue   chan job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started sync.Once
	workers int
}

// New creates a scheduler with the given concurrency (min 1).
func New(workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		queue:   make(chan job, 1024),
		ctx:     ctx,
		cancel:  cancel,
		workers: workers,
	}
}

// Start launches the worker pool. Safe to call once; Add before Start
// only queues work.
func (s *Scheduler) Start() {
	s.started.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.worker()
		}
	})
}

// Add enqueues a task. name is used only for logging. Returns false when
// the scheduler is stopped or the queue is full.
func (s *Scheduler) Add(name string, task Task) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.queue <- job{name: name, task: task}:
		return true
	default:
		slog.Warn("scheduler queue full, rejecting task", "task", name)
		return false
	}
}

// Stop cancels the run context and waits for in-flight tasks to finish.
// Queued tasks that never started are dropped.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.queue:
			s.run(j)
		}
	}
}

func (s *Scheduler) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "task", j.name, "panic", r)
		}
	}()
	if err := j.task(s.ctx); err != nil {
		slog.Error("task failed", "task", j.name, "error", err)
	}
}
