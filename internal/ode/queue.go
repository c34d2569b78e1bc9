package ode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
	"github.com/tphakala/odeflow/internal/observability/metrics"
)

// Job is deferred work submitted by an action, typically I/O against a sink
// or an external collaborator.
type Job func(ctx context.Context) error

const (
	// DefaultQueueSize is the capacity of the delivery channel. Jobs are
	// dropped when it is full so the streaming goroutine never blocks.
	DefaultQueueSize = 1000
	// DefaultJobTimeout bounds a single job.
	DefaultJobTimeout = 10 * time.Second
)

type queuedJob struct {
	name string
	job  Job
}

// DeliveryQueue runs jobs on background workers. Submit never blocks.
type DeliveryQueue struct {
	jobs    chan queuedJob
	stopCh  chan struct{}
	stopMu  sync.RWMutex
	stopped bool
	once    sync.Once
	wg      sync.WaitGroup

	workers int
	timeout time.Duration
	log     logger.Logger
	metrics *metrics.Metrics
	// dropLimiter throttles drop warnings while the queue is saturated.
	dropLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// QueueOption configures a DeliveryQueue.
type QueueOption func(*DeliveryQueue)

// WithQueueSize sets the channel capacity.
func WithQueueSize(n int) QueueOption {
	return func(q *DeliveryQueue) {
		if n > 0 {
			q.jobs = make(chan queuedJob, n)
		}
	}
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) QueueOption {
	return func(q *DeliveryQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithJobTimeout bounds each job. Zero disables the bound.
func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *DeliveryQueue) { q.timeout = d }
}

// WithQueueLogger sets the queue logger.
func WithQueueLogger(log logger.Logger) QueueOption {
	return func(q *DeliveryQueue) {
		if log != nil {
			q.log = log
		}
	}
}

// WithQueueMetrics records queue depth and job results.
func WithQueueMetrics(m *metrics.Metrics) QueueOption {
	return func(q *DeliveryQueue) { q.metrics = m }
}

// NewDeliveryQueue creates a queue and starts its workers.
func NewDeliveryQueue(opts ...QueueOption) *DeliveryQueue {
	q := &DeliveryQueue{
		jobs:        make(chan queuedJob, DefaultQueueSize),
		stopCh:      make(chan struct{}),
		workers:     1,
		timeout:     DefaultJobTimeout,
		log:         logger.Global().Module(componentName).With(logger.String("subsystem", "queue")),
		dropLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.wg.Add(q.workers)
	for range q.workers {
		go q.worker()
	}
	return q
}

// Submit enqueues job. It returns false when the queue is full or stopped;
// the job is dropped in both cases.
func (q *DeliveryQueue) Submit(name string, job Job) bool {
	q.stopMu.RLock()
	defer q.stopMu.RUnlock()
	if q.stopped {
		q.metrics.JobDropped()
		return false
	}
	select {
	case q.jobs <- queuedJob{name: name, job: job}:
		q.metrics.SetQueueDepth(len(q.jobs))
		return true
	default:
		q.metrics.JobDropped()
		if q.dropLimiter.Allow() {
			q.log.Warn("delivery queue full, dropping job",
				logger.String("job", name),
				logger.Int("capacity", cap(q.jobs)))
		}
		return false
	}
}

// Len returns the number of queued jobs.
func (q *DeliveryQueue) Len() int { return len(q.jobs) }

// Stop refuses new jobs, lets the workers drain what is queued and waits for
// them. If ctx expires first, running jobs are cancelled and ctx's error is
// returned. Safe to call multiple times.
func (q *DeliveryQueue) Stop(ctx context.Context) error {
	q.once.Do(func() {
		q.stopMu.Lock()
		q.stopped = true
		close(q.stopCh)
		q.stopMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return errors.New(ctx.Err()).
			Component(componentName).
			Category(errors.CategoryRuntime).
			Context("pending", len(q.jobs)).
			Build()
	}
}

func (q *DeliveryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case j := <-q.jobs:
			q.run(j)
		case <-q.stopCh:
			// Drain remaining jobs before exiting
			for {
				select {
				case j := <-q.jobs:
					q.run(j)
				default:
					return
				}
			}
		}
	}
}

func (q *DeliveryQueue) run(j queuedJob) {
	q.metrics.SetQueueDepth(len(q.jobs))
	ctx := q.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	if err := q.safeCall(ctx, j); err != nil {
		q.log.Warn("delivery job failed",
			logger.String("job", j.name),
			logger.Error(err))
	}
}

// safeCall runs a job with panic recovery so a panicking job cannot kill the
// worker.
func (q *DeliveryQueue) safeCall(ctx context.Context, j queuedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.metrics.JobDone("panic")
			err = errors.Newf("job %q panicked: %v", j.name, r).
				Component(componentName).
				Category(errors.CategoryRuntime).
				Build()
		}
	}()
	if err = j.job(ctx); err != nil {
		q.metrics.JobDone("error")
		return fmt.Errorf("job %q: %w", j.name, err)
	}
	q.metrics.JobDone("ok")
	return nil
}
