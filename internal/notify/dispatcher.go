// Package notify delivers account and order messages off the request path.
// Delivery is best-effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one unit of delivery work
type Task struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Dispatcher runs tasks on a fixed pool of workers fed by a bounded queue
type Dispatcher struct {
	queue   chan Task
	workers int
	timeout time.Duration
	log     zerolog.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewDispatcher creates a dispatcher. Start must be called before tasks run.
func NewDispatcher(workers, queueSize int, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		queue:   make(chan Task, queueSize),
		workers: workers,
		timeout: timeout,
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Submit enqueues t without blocking. It reports false when the task was dropped.
func (d *Dispatcher) Submit(t Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn().Str("kind", t.Kind).Msg("dispatcher stopped, dropping notification")
		return false
	}
	select {
	case d.queue <- t:
		return true
	default:
		d.log.Warn().Str("kind", t.Kind).Msg("notification queue full, dropping notification")
		return false
	}
}

// Stop closes the queue and waits for queued tasks to finish or ctx to expire
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for t := range d.queue {
		d.execute(id, t)
	}
}

func (d *Dispatcher) execute(id int, t Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Int("worker", id).Str("kind", t.Kind).Interface("panic", r).Msg("notification panicked")
		}
	}()

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		d.log.Warn().Err(err).Int("worker", id).Str("kind", t.Kind).Msg("notification failed")
		return
	}
	d.log.Debug().Int("worker", id).Str("kind", t.Kind).Dur("took", time.Since(start)).Msg("notification sent")
}
