// Package queue serializes every transport operation of one session. A
// session queue has exactly one consumer goroutine, so tasks execute strictly
// first-in-first-out and a single session never issues overlapping RPCs.
// Queues of different sessions run in parallel.
package queue

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrShuttingDown is returned for tasks rejected because the queue stopped.
var ErrShuttingDown = errors.New("session queue is shutting down")

// Task is one serialized unit of work against a session's client. Tasks must
// be idempotent: a task whose result is lost to shutdown may be re-enqueued
// on restart.
type Task func(ctx context.Context) error

// Config holds queue pacing configuration.
type Config struct {
	// MinTaskDelay and MaxTaskDelay bound the uniform random pause the
	// queue inserts between consecutive tasks, de-correlating the traffic
	// of sessions that happen to fan out simultaneously.
	MinTaskDelay time.Duration `mapstructure:"min_task_delay" yaml:"min_task_delay"`
	MaxTaskDelay time.Duration `mapstructure:"max_task_delay" yaml:"max_task_delay"`

	// Capacity bounds the number of queued tasks. Default: 1024.
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.MinTaskDelay <= 0 {
		c.MinTaskDelay = 2 * time.Second
	}
	if c.MaxTaskDelay < c.MinTaskDelay {
		c.MaxTaskDelay = 5 * time.Second
	}
	if c.Capacity <= 0 {
		c.Capacity = 1024
	}
}

type item struct {
	task   Task
	result chan error
}

// Queue is the serial executor for one session.
type Queue struct {
	phone string
	cfg   Config

	tasks  chan item
	stopCh chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// New creates and starts a queue for the session. ctx bounds the execution
// of every task; canceling it aborts the running task and stops the loop.
func New(ctx context.Context, phone string, cfg Config) *Queue {
	cfg.ApplyDefaults()
	q := &Queue{
		phone:  phone,
		cfg:    cfg,
		tasks:  make(chan item, cfg.Capacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

// Phone returns the session this queue serializes.
func (q *Queue) Phone() string {
	return q.phone
}

// Len returns the number of tasks waiting behind the running one.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Enqueue submits the task and blocks until it has executed, returning the
// task's error. Tasks submitted after Close, and tasks still pending when
// Close runs, fail with ErrShuttingDown.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShuttingDown
	}
	it := item{task: task, result: make(chan error, 1)}
	select {
	case q.tasks <- it:
		q.mu.Unlock()
	default:
		q.mu.Unlock()
		return errors.New("session queue is full")
	}

	select {
	case err := <-it.result:
		return err
	case <-ctx.Done():
		// The task stays queued and will still run; the caller just stops
		// waiting for it.
		return ctx.Err()
	case <-q.stopCh:
		return ErrShuttingDown
	}
}

// Close stops the queue. Pending tasks are rejected with ErrShuttingDown;
// the running task finishes. Close blocks until the consumer goroutine has
// exited and is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.stopCh)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	defer q.reject()

	for {
		// Shutdown wins over queued work.
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case it := <-q.tasks:
			it.result <- it.task(ctx)

			if err := q.pause(ctx); err != nil {
				return
			}
		}
	}
}

// reject drains tasks that were queued but never ran.
func (q *Queue) reject() {
	for {
		select {
		case it := <-q.tasks:
			it.result <- ErrShuttingDown
		default:
			return
		}
	}
}

// pause sleeps a uniform random interval in [MinTaskDelay, MaxTaskDelay].
func (q *Queue) pause(ctx context.Context) error {
	d := q.cfg.MinTaskDelay
	if spread := q.cfg.MaxTaskDelay - q.cfg.MinTaskDelay; spread > 0 {
		d += time.Duration(rand.Int64N(int64(spread)))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopCh:
		return ErrShuttingDown
	case <-timer.C:
		return nil
	}
}
