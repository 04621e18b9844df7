// Package task provides a bounded background task queue for fire-and-forget
// side effects (persistence and blob writes) that must stay off the relay's
// critical path.
package task

import (
	"fmt"
	"log"

	"github.com/panjf2000/ants/v2"
)

// Queue runs submitted tasks on a bounded goroutine pool. Task failures are
// logged and reported on the error channel; they are never retried.
type Queue struct {
	pool   *ants.Pool
	errors chan error
}

// New creates a task queue backed by a pool of at most size goroutines.
// The pool is non-blocking: a Submit while every worker is busy reports
// the overload instead of stalling the caller.
func New(size int) (*Queue, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid pool size %d", size)
	}

	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create task pool: %w", err)
	}

	return &Queue{
		pool:   pool,
		errors: make(chan error, 64),
	}, nil
}

// Submit schedules fn for background execution and never blocks. When the
// pool is saturated the task is dropped and the overload reported. The name
// identifies the task in logs and error reports.
func (q *Queue) Submit(name string, fn func() error) {
	err := q.pool.Submit(func() {
		if err := fn(); err != nil {
			q.report(fmt.Errorf("%s: %w", name, err))
		}
	})
	if err != nil {
		q.report(fmt.Errorf("%s: submit: %w", name, err))
	}
}

// Errors exposes task failures for operators and tests. The channel is
// buffered; when nothing drains it, failures are still logged.
func (q *Queue) Errors() <-chan error {
	return q.errors
}

func (q *Queue) report(err error) {
	log.Printf("task failed: %v", err)
	select {
	case q.errors <- err:
	default:
	}
}

// Release stops the pool. Pending tasks already submitted are allowed to run.
func (q *Queue) Release() {
	q.pool.Release()
}
