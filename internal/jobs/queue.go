// Package jobs runs experiments in the background on a bounded worker pool
// and keeps their results in memory.
package jobs

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"eth-economic-model/internal/experiment"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("job queue is full")
	ErrClosed    = errors.New("job queue is closed")
	ErrFinished  = errors.New("job already finished")
)

// Job is a point-in-time view of one submission.
type Job struct {
	ID          string
	Experiment  string
	Status      Status
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	// Output is set once the job finishes, including partial output on cancel.
	Output *experiment.Output
}

type entry struct {
	Job
	exp    *experiment.Experiment
	cancel context.CancelFunc
	done   chan struct{}
}

type Queue struct {
	runner  *experiment.Runner
	log     *logrus.Entry
	metrics *metrics

	workers  int
	capacity int
	retain   int

	mu      sync.RWMutex
	jobs    map[string]*entry
	order   []string
	pending chan *entry
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithCapacity bounds the number of queued, not yet running, jobs.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithRetention bounds how many finished jobs are kept.
func WithRetention(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.retain = n
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithRegisterer registers the queue metrics. Without it metrics are
// collected but not exported.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(q *Queue) {
		q.metrics.register(r)
	}
}

// NewQueue starts the worker pool.
func NewQueue(runner *experiment.Runner, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		runner:   runner,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		metrics:  newMetrics(),
		workers:  runtime.GOMAXPROCS(0),
		capacity: 64,
		retain:   100,
		jobs:     map[string]*entry{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(q)
	}
	q.log = q.log.WithField("component", "jobs")
	q.pending = make(chan *entry, q.capacity)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit validates exp and queues it. The returned ID identifies the job.
func (q *Queue) Submit(exp *experiment.Experiment) (string, error) {
	if err := exp.Validate(); err != nil {
		q.metrics.submitted.WithLabelValues("rejected").Inc()
		return "", err
	}
	e := &entry{
		Job: Job{
			ID:          uuid.NewString(),
			Experiment:  exp.Name,
			Status:      StatusQueued,
			SubmittedAt: time.Now().UTC(),
		},
		exp:  exp,
		done: make(chan struct{}),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	select {
	case q.pending <- e:
	default:
		q.metrics.submitted.WithLabelValues("rejected").Inc()
		return "", ErrQueueFull
	}
	q.jobs[e.ID] = e
	q.order = append(q.order, e.ID)
	q.metrics.submitted.WithLabelValues("accepted").Inc()
	q.metrics.queued.Inc()
	q.log.WithFields(logrus.Fields{"job": e.ID, "experiment": exp.Name}).Info("job queued")
	return e.ID, nil
}

func (q *Queue) Get(id string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.Job, true
}

// List returns all retained jobs in submission order.
func (q *Queue) List() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.jobs[id].Job)
	}
	return out
}

// Cancel stops a queued or running job. A running job stops at the next
// timestep boundary and keeps its partial output.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return ErrNotFound
	}
	switch e.Status {
	case StatusQueued:
		q.metrics.queued.Dec()
		q.finish(e, StatusCancelled, "cancelled before start")
	case StatusRunning:
		e.cancel()
	default:
		return ErrFinished
	}
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (q *Queue) Wait(ctx context.Context, id string) (Job, error) {
	q.mu.RLock()
	e, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return Job{}, ErrNotFound
	}
	select {
	case <-e.done:
		q.mu.RLock()
		defer q.mu.RUnlock()
		return e.Job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Close stops accepting jobs, cancels queued and running ones and waits for
// the workers to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.pending)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for e := range q.pending {
		q.run(e)
	}
}

func (q *Queue) run(e *entry) {
	q.mu.Lock()
	if e.Status != StatusQueued {
		q.mu.Unlock()
		return
	}
	q.metrics.queued.Dec()
	if q.ctx.Err() != nil {
		q.finish(e, StatusCancelled, "queue closed")
		q.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(q.ctx)
	defer cancel()
	e.Status = StatusRunning
	e.StartedAt = time.Now().UTC()
	e.cancel = cancel
	q.mu.Unlock()

	q.metrics.running.Inc()
	log := q.log.WithFields(logrus.Fields{"job": e.ID, "experiment": e.Experiment})
	log.Info("job started")
	out, err := q.runner.Run(ctx, e.exp)
	q.metrics.running.Dec()

	q.mu.Lock()
	defer q.mu.Unlock()
	e.Output = out
	switch {
	case errors.Is(err, context.Canceled):
		q.finish(e, StatusCancelled, "cancelled")
	case err != nil:
		q.finish(e, StatusFailed, err.Error())
	default:
		msg := ""
		if out != nil && out.Result != nil && len(out.Result.Failures) > 0 {
			msg = out.Result.Err().Error()
		}
		q.finish(e, StatusCompleted, msg)
	}
	q.metrics.duration.Observe(e.FinishedAt.Sub(e.StartedAt).Seconds())
	log.WithField("status", e.Status).Info("job finished")
}

// finish records a terminal status. q.mu must be held.
func (q *Queue) finish(e *entry, s Status, msg string) {
	e.Status = s
	e.Error = msg
	e.FinishedAt = time.Now().UTC()
	close(e.done)
	q.metrics.finished.WithLabelValues(string(s)).Inc()
	q.evict()
}

// evict drops the oldest finished jobs beyond the retention limit.
func (q *Queue) evict() {
	finished := 0
	for _, id := range q.order {
		if q.jobs[id].Status.Finished() {
			finished++
		}
	}
	if finished <= q.retain {
		return
	}
	drop := finished - q.retain
	kept := q.order[:0]
	for _, id := range q.order {
		if drop > 0 && q.jobs[id].Status.Finished() {
			delete(q.jobs, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}
