// Package taskqueue runs tree operations one after another on a lazily
// started background worker.
package taskqueue

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/bamsammich/arcfs/internal/cancel"
)

// Task is a deferred unit of work. It observes cs for cancellation and
// reports progress through it.
type Task func(cs *cancel.State) error

type job struct {
	task Task
	cs   *cancel.State
}

// Queue executes tasks strictly serially in submission order. A worker
// goroutine is started when a task is added to an idle queue and exits once
// the queue is drained.
type Queue struct {
	log     *slog.Logger
	current *cancel.State
	idle    chan struct{} // closed when the running worker exits
	pending []job
	mu      sync.Mutex
	running bool
}

// New returns an idle queue. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{log: logger}
}

// Add appends task to the queue. The finish callback of cs fires once the
// task has run or was dropped. A nil cs gets a fresh State.
func (q *Queue) Add(task Task, cs *cancel.State) {
	if cs == nil {
		cs = cancel.New()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job{task: task, cs: cs})
	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.work(q.idle)
	}
}

// Cancel cancels the running task and drops every task not yet started.
func (q *Queue) Cancel() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	current := q.current
	q.mu.Unlock()

	if current != nil {
		current.Cancel()
	}
	for _, j := range dropped {
		j.cs.Cancel()
	}
}

// Wait blocks until the queue is drained.
func (q *Queue) Wait() {
	q.mu.Lock()
	idle, running := q.idle, q.running
	q.mu.Unlock()
	if running {
		<-idle
	}
}

// Busy reports whether a worker is running.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Len returns the number of tasks waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) work(idle chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.current = nil
			close(idle)
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending = q.pending[1:]
		q.current = j.cs
		q.mu.Unlock()

		q.run(j)
	}
}

func (q *Queue) run(j job) {
	if j.cs.Cancelled() {
		j.cs.Finish(true)
		return
	}
	err := j.task(j.cs)
	switch {
	case errors.Is(err, cancel.ErrCancelled):
		q.log.Debug("task cancelled")
	case err != nil:
		q.log.Warn("task aborted", "error", err)
	default:
		q.log.Debug("task finished")
	}
	// A task that ends early still completed; only a cancellation that
	// already fired the callback reports cancelled.
	j.cs.Finish(false)
}
