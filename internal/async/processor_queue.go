package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Processor is the piece of the pipeline the queue drives.
type Processor interface {
	Process(ctx context.Context, receiptID uuid.UUID) error
}

// ProcessorQueue dispatches pipeline runs to a bounded worker pool. A failed
// run is retried up to MaxAttempts with exponential backoff; the pipeline
// restarts from the OCR stage and overwrites prior-stage results, so retries
// do not double-append items. At most one run per receipt is in flight at a
// time; a receipt already queued or running is not enqueued again.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	maxAttempts int
	backoff     time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	// sendMu serializes channel sends against the close in Shutdown: senders
	// hold the read side across the send (including a blocked backpressure
	// send), Shutdown takes the write side before closing ch. Workers never
	// touch it, so blocked sends always drain and the close cannot race a
	// send. inFlight deliberately lives under its own mutex; workers lock mu
	// after every job and must not wait on a blocked sender.
	sendMu sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.backoff = d
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:        proc,
		logger:      logger,
		workers:     4,
		timeout:     5 * time.Minute,
		maxAttempts: 3,
		backoff:     2 * time.Second,
		ch:          make(chan Job, 256),
		inFlight:    make(map[uuid.UUID]struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
					q.mu.Lock()
					delete(q.inFlight, job.ReceiptID)
					q.mu.Unlock()
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.proc.Process(ctx, job.ReceiptID)
		cancel()

		if err == nil {
			q.logger.Info("processed receipt",
				"worker_id", workerID, "receipt_id", job.ReceiptID, "attempt", attempt)
			return
		}

		q.logger.Error("processing failed",
			"worker_id", workerID, "receipt_id", job.ReceiptID,
			"attempt", attempt, "max_attempts", q.maxAttempts, "error", err)
		if attempt < q.maxAttempts {
			time.Sleep(q.backoff << (attempt - 1))
		}
	}
}

func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	if _, dup := q.inFlight[job.ReceiptID]; dup {
		q.mu.Unlock()
		q.logger.Warn("receipt already in flight, skipping enqueue", "receipt_id", job.ReceiptID)
		return nil
	}
	q.inFlight[job.ReceiptID] = struct{}{}
	q.mu.Unlock()

	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.closed {
		q.forget(job.ReceiptID)
		q.logger.Warn("cannot enqueue: queue is shutting down", "receipt_id", job.ReceiptID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued receipt for processing", "receipt_id", job.ReceiptID)
	default:
		q.logger.Warn("queue full, applying backpressure", "receipt_id", job.ReceiptID)
		q.ch <- job
	}
	return nil
}

func (q *ProcessorQueue) forget(id uuid.UUID) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.sendMu.Lock()
	if q.closed {
		q.sendMu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.sendMu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
