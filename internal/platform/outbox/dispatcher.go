package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intake",
		Subsystem: "outbox",
		Name:      "tasks_processed_total",
		Help:      "Outbox tasks processed, by final status.",
	}, []string{"status"})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intake",
		Subsystem: "outbox",
		Name:      "task_duration_seconds",
		Help:      "Time spent processing one outbox task.",
		Buckets:   prometheus.DefBuckets,
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "intake",
		Subsystem: "outbox",
		Name:      "queue_depth",
		Help:      "Task ids waiting for a worker.",
	})

	queueFull = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "intake",
		Subsystem: "outbox",
		Name:      "queue_full_total",
		Help:      "Tasks left pending for the sweep because the queue was full.",
	})
)

// Options tune the worker pool.
type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	// SweepInterval is how often pending tasks that did not fit in the
	// queue are handed to the workers again.
	SweepInterval time.Duration
}

// Dispatcher feeds tasks to a pool of workers.
type Dispatcher struct {
	store  Store
	proc   Processor
	logger zerolog.Logger
	opts   Options
	now    func() time.Time

	queue   chan string
	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	// queued holds ids sitting in the queue or being processed, so a sweep
	// never hands the same task to two workers.
	queuedMu sync.Mutex
	queued   map[string]struct{}
	stop     chan struct{}
	sweeps   sync.WaitGroup
}

func NewDispatcher(store Store, proc Processor, logger zerolog.Logger, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	return &Dispatcher{
		store:  store,
		proc:   proc,
		logger: logger.With().Str("component", "outbox").Logger(),
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
		queue:  make(chan string, opts.QueueSize),
		queued: make(map[string]struct{}),
		stop:   make(chan struct{}),
	}
}

// Start launches the workers and the pending sweep, and requeues tasks left
// pending by a previous run.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	n, err := d.sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		d.logger.Info().Int("count", n).Msg("requeued pending tasks")
	}

	d.sweeps.Add(1)
	go d.sweepLoop()
	return nil
}

func (d *Dispatcher) sweepLoop() {
	defer d.sweeps.Done()
	ticker := time.NewTicker(d.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.opts.TaskTimeout)
			n, err := d.sweep(ctx)
			cancel()
			if err != nil {
				d.logger.Error().Err(err).Msg("sweep pending tasks")
				continue
			}
			if n > 0 {
				d.logger.Debug().Int("count", n).Msg("swept pending tasks")
			}
		}
	}
}

// sweep queues pending tasks not already queued and returns how many it
// handed over.
func (d *Dispatcher) sweep(ctx context.Context) (int, error) {
	pending, err := d.store.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending tasks: %w", err)
	}
	n := 0
	for _, t := range pending {
		ok, err := d.push(t.ID)
		if errors.Is(err, ErrClosed) {
			return n, nil
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Enqueue records a pending task and hands it to the workers. It never
// waits for queue space: a task that does not fit stays pending until the
// next sweep.
func (d *Dispatcher) Enqueue(ctx context.Context, p Payload) (*Task, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	t := newTask(p, d.now())
	if err := d.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if _, err := d.push(t.ID); err != nil {
		return t, err
	}
	return t, nil
}

// Retry moves a failed task back to pending and queues it again.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*Task, error) {
	t, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusFailed {
		return nil, fmt.Errorf("%w: task %s is %s", ErrNotRetryable, id, t.Status)
	}
	t.Status = StatusPending
	t.UpdatedAt = d.now()
	if err := d.store.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if _, err := d.push(t.ID); err != nil {
		return t, err
	}
	return t, nil
}

func (d *Dispatcher) Get(ctx context.Context, id string) (*Task, error) {
	return d.store.Get(ctx, id)
}

func (d *Dispatcher) List(ctx context.Context, status Status, limit, offset int) ([]*Task, int, error) {
	return d.store.List(ctx, status, limit, offset)
}

func (d *Dispatcher) Stats(ctx context.Context) (map[Status]int, error) {
	return d.store.Stats(ctx)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// push offers id to the workers without blocking. It reports false when the
// id is already queued or the queue is full.
func (d *Dispatcher) push(id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false, ErrClosed
	}

	d.queuedMu.Lock()
	defer d.queuedMu.Unlock()
	if _, ok := d.queued[id]; ok {
		return false, nil
	}
	select {
	case d.queue <- id:
		d.queued[id] = struct{}{}
		queueDepth.Inc()
		return true, nil
	default:
		queueFull.Inc()
		return false, nil
	}
}

func (d *Dispatcher) release(id string) {
	d.queuedMu.Lock()
	delete(d.queued, id)
	d.queuedMu.Unlock()
}

// Shutdown stops accepting tasks and waits for queued ones to finish or
// for ctx to expire. Pending tasks left outside the queue are picked up by
// the next Start.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.stop)
		close(d.queue)
	}
	d.mu.Unlock()
	d.sweeps.Wait()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()
	for id := range d.queue {
		queueDepth.Dec()
		d.process(id, n)
		d.release(id)
	}
}

func (d *Dispatcher) process(id string, worker int) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.TaskTimeout)
	defer cancel()

	t, err := d.store.Get(ctx, id)
	if err != nil {
		d.logger.Error().Err(err).Str("task_id", id).Msg("load task")
		return
	}
	if t.Status != StatusPending {
		return
	}

	start := time.Now()
	t.Attempts++
	procErr := d.proc.Process(ctx, *t)
	taskDuration.Observe(time.Since(start).Seconds())

	now := d.now()
	t.UpdatedAt = now
	var skipped *Skipped
	switch {
	case procErr == nil:
		t.Status = StatusSent
		t.LastError = ""
		t.SentAt = &now
	case errors.As(procErr, &skipped):
		t.Status = StatusSkipped
		t.LastError = skipped.Reason
	default:
		t.Status = StatusFailed
		t.LastError = procErr.Error()
	}
	tasksProcessed.WithLabelValues(string(t.Status)).Inc()

	if err := d.store.Update(ctx, t); err != nil {
		d.logger.Error().Err(err).Str("task_id", id).Msg("record task outcome")
		return
	}

	ev := d.logger.Info()
	if t.Status == StatusFailed {
		ev = d.logger.Warn()
	}
	ev.Str("task_id", t.ID).
		Str("submission_id", t.Payload.SubmissionID).
		Int("row", t.Payload.RowIndex).
		Int("worker", worker).
		Int("attempts", t.Attempts).
		Str("status", string(t.Status)).
		Str("reason", t.LastError).
		Msg("outbox task processed")
}
