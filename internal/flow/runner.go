package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/meshflow/internal/ops"
)

// ErrRunnerStopped is returned for requests submitted to, or still queued
// in, a stopped Runner.
var ErrRunnerStopped = errors.New("flow runner stopped")

// request is one unit of work for the runner goroutine.
type request struct {
	ctx  context.Context
	fn   func(ctx context.Context, f *CommandFlow) error
	done chan error // buffered, size 1
}

// requestQueue is an unbounded FIFO with a coalescing signal channel so
// the consumer can wait on it next to ctx.Done().
type requestQueue struct {
	mu     sync.Mutex
	reqs   []*request
	closed bool
	signal chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		reqs:   make([]*request, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends r. Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.reqs = append(q.reqs, r)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front request without blocking.
func (q *requestQueue) TryDequeue() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.reqs) == 0 {
		return nil, false
	}
	r := q.reqs[0]
	q.reqs[0] = nil
	if len(q.reqs) == 1 {
		q.reqs = q.reqs[:0]
	} else {
		q.reqs = q.reqs[1:]
	}
	return r, true
}

// Wait returns the signal channel. It is closed by Close.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reqs)
}

// Closed reports whether Close was called.
func (q *requestQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops intake and wakes the consumer. Safe to call twice.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// TakeAll empties the queue and returns what it held.
func (q *requestQueue) TakeAll() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.reqs
	q.reqs = nil
	return rest
}

// Runner owns a CommandFlow and applies requests from any goroutine one at
// a time on the goroutine that calls Run. It is how an interactive shell
// and a signal handler share one flow without locking the framework.
type Runner struct {
	flow   *CommandFlow
	queue  *requestQueue
	logger *slog.Logger
}

// NewRunner wraps f. After Run starts, f must only be touched through the
// runner.
func NewRunner(f *CommandFlow) *Runner {
	return &Runner{flow: f, queue: newRequestQueue(), logger: f.logger}
}

// Run processes requests until ctx is cancelled or Stop is called. It must
// be called from exactly one goroutine.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Debug("flow runner starting")
	for {
		if req, ok := r.queue.TryDequeue(); ok {
			r.process(req)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Debug("flow runner stopping: context cancelled")
			r.drain()
			return ctx.Err()

		case <-r.queue.Wait():
			// the signal channel is closed by Stop
			if r.queue.Closed() && r.queue.Len() == 0 {
				r.logger.Debug("flow runner stopping: queue closed")
				return nil
			}
		}
	}
}

func (r *Runner) process(req *request) {
	if err := req.ctx.Err(); err != nil {
		req.done <- err
		return
	}
	req.done <- req.fn(req.ctx, r.flow)
}

func (r *Runner) drain() {
	r.queue.Close()
	for _, req := range r.queue.TakeAll() {
		req.done <- ErrRunnerStopped
	}
}

// Stop closes the queue. Requests already queued are still processed;
// Run returns once they are done.
func (r *Runner) Stop() {
	r.queue.Close()
}

// Do runs fn on the runner goroutine and waits for its result. Use it for
// reads as well as writes so they observe a quiescent flow.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context, f *CommandFlow) error) error {
	req := &request{ctx: ctx, fn: fn, done: make(chan error, 1)}
	if !r.queue.Enqueue(req) {
		return ErrRunnerStopped
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		// the runner still answers into the buffered channel
		return ctx.Err()
	}
}

// Apply submits AppendAndApply.
func (r *Runner) Apply(ctx context.Context, op ops.Operation) error {
	return r.Do(ctx, func(ctx context.Context, f *CommandFlow) error {
		return f.AppendAndApply(ctx, op)
	})
}

// Undo submits Undo.
func (r *Runner) Undo(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, f *CommandFlow) error { return f.Undo(ctx) })
}

// Redo submits Redo.
func (r *Runner) Redo(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, f *CommandFlow) error { return f.Redo(ctx) })
}

// ExecAll submits ExecAll.
func (r *Runner) ExecAll(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, f *CommandFlow) error { return f.ExecAll(ctx) })
}
