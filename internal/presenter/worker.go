package presenter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultQueueSize  = 256
	defaultJobTimeout = 10 * time.Second
)

// worker runs jobs one at a time off the session dispatcher so that slow
// sinks never block a transition.
type worker struct {
	jobs    chan func(context.Context)
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newWorker(size int, logger zerolog.Logger) *worker {
	if size <= 0 {
		size = defaultQueueSize
	}
	w := &worker{
		jobs:    make(chan func(context.Context), size),
		timeout: defaultJobTimeout,
		logger:  logger,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer w.wg.Done()
	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		job(ctx)
		cancel()
	}
}

// submit queues job. It reports false when the queue is full or closed.
func (w *worker) submit(job func(context.Context)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- job:
		return true
	default:
		w.logger.Warn().Int("queueSize", cap(w.jobs)).Msg("Queue full, dropping update")
		return false
	}
}

// close stops accepting jobs and waits for queued ones to finish.
func (w *worker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	w.wg.Wait()
}
