package ls

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

const codeRequestCancelled int64 = -32800

// errRequestCancelled is returned for a task whose request was cancelled
// before it reached the front of the queue. It carries the JSON-RPC
// error code the protocol reserves for cancellation, so the transport
// reports it as a cancellation rather than a server failure.
var errRequestCancelled error = &jsonrpc2.Error{
	Code:    codeRequestCancelled,
	Message: "request cancelled",
}

var errQueueClosed = errors.New("request queue closed")

type taskResult struct {
	value any
	err   error
}

type queuedTask struct {
	ctx    context.Context
	run    func(ctx context.Context) (any, error)
	result chan taskResult
}

// requestQueue runs submitted tasks strictly one at a time in submission
// order. A task's error reaches only its own submitter; the queue keeps
// going. Cancellation is cooperative and checked exactly once, before a
// task starts: a task whose context is already done fails fast with
// errRequestCancelled without doing any work.
type requestQueue struct {
	mu     sync.Mutex
	closed bool
	tasks  chan *queuedTask
	done   chan struct{}
}

func newRequestQueue() *requestQueue {
	q := &requestQueue{
		tasks: make(chan *queuedTask, 64),
		done:  make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *requestQueue) work() {
	defer close(q.done)
	for task := range q.tasks {
		if task.ctx.Err() != nil {
			task.result <- taskResult{err: errRequestCancelled}
			continue
		}
		value, err := task.run(task.ctx)
		task.result <- taskResult{value: value, err: err}
	}
}

func (q *requestQueue) submit(task *queuedTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.tasks <- task
	return nil
}

// Enqueue appends fn and blocks until it has run, returning its result.
func (q *requestQueue) Enqueue(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	task := &queuedTask{ctx: ctx, run: fn, result: make(chan taskResult, 1)}
	if err := q.submit(task); err != nil {
		return nil, err
	}
	res := <-task.result
	return res.value, res.err
}

// Submit appends fn without waiting for it; used by notification
// handlers and debounce fires, which have no caller to report to.
func (q *requestQueue) Submit(ctx context.Context, fn func(ctx context.Context)) {
	task := &queuedTask{
		ctx: ctx,
		run: func(ctx context.Context) (any, error) {
			fn(ctx)
			return nil, nil
		},
		result: make(chan taskResult, 1),
	}
	_ = q.submit(task)
}

// Close stops accepting tasks and waits for the backlog to drain.
func (q *requestQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	<-q.done
}
