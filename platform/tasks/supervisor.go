// Package tasks provides supervised background task execution.
// This is part of the platform layer and contains no business logic.
package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"hireline_backend/platform/logger"
)

// Task is a handle to one supervised background execution. Callers (and
// tests) can wait for completion and inspect the terminal error.
type Task struct {
	name string
	done chan struct{}
	err  error
}

// Name returns the task's registered name.
func (t *Task) Name() string { return t.name }

// Done returns a channel that closes when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task error. Only valid after Done is closed.
func (t *Task) Err() error {
	return t.err
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Supervisor runs background functions on their own goroutines, records
// panics as errors instead of crashing the process, and supports per-key
// single-flight execution so duplicate triggers for the same key are
// rejected rather than queued.
type Supervisor struct {
	log     *logger.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]struct{}
}

// NewSupervisor creates a task supervisor.
func NewSupervisor(log *logger.Logger) *Supervisor {
	return &Supervisor{
		log:     log,
		running: make(map[string]struct{}),
	}
}

// Go starts fn on a new goroutine detached from the caller's cancellation
// (context values survive) and returns a handle to await it.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(context.Context) error) *Task {
	task := &Task{name: name, done: make(chan struct{})}
	s.wg.Add(1)

	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		defer close(task.done)
		task.err = s.run(detached, name, fn)
	}()

	return task
}

// TryGo starts fn only when no task with the same key is currently running.
// It returns the task handle and true on start, or nil and false when the
// key is busy. The key is released when the task finishes.
func (s *Supervisor) TryGo(ctx context.Context, key string, fn func(context.Context) error) (*Task, bool) {
	s.mu.Lock()
	if _, busy := s.running[key]; busy {
		s.mu.Unlock()
		return nil, false
	}
	s.running[key] = struct{}{}
	s.mu.Unlock()

	task := &Task{name: key, done: make(chan struct{})}
	s.wg.Add(1)

	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		defer close(task.done)
		defer func() {
			s.mu.Lock()
			delete(s.running, key)
			s.mu.Unlock()
		}()
		task.err = s.run(detached, key, fn)
	}()

	return task, true
}

// IsRunning reports whether a task with the given key is in flight.
func (s *Supervisor) IsRunning(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.running[key]
	return busy
}

// Wait blocks until all supervised tasks finish or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
			s.log.Error("background task panicked",
				"task", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := fn(ctx); err != nil {
		s.log.Error("background task failed", "task", name, "error", err.Error())
		return err
	}
	return nil
}
