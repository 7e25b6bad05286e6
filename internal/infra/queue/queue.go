// Package queue holds requests issued while the network is unavailable and
// hands them back in submission order on reconnect.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/vietddude/relay/internal/core/domain"
)

// ErrFull is returned by Enqueue when the queue is at capacity.
var ErrFull = errors.New("offline queue full")

// Completion is a single-resolution future for a queued request.
type Completion struct {
	once sync.Once
	done chan struct{}
	resp *domain.Response
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve fulfils the completion. Only the first call has any effect; it
// reports whether this call won.
func (c *Completion) Resolve(resp *domain.Response, err error) bool {
	won := false
	c.once.Do(func() {
		c.resp = resp
		c.err = err
		close(c.done)
		won = true
	})
	return won
}

// Done is closed once the completion is resolved.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Resolved reports whether Resolve has been called.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the completion is resolved or ctx ends. When ctx ends
// first the completion is resolved with ctx.Err() so the replay skips it.
func (c *Completion) Wait(ctx context.Context) (*domain.Response, error) {
	select {
	case <-c.done:
		return c.resp, c.err
	case <-ctx.Done():
		c.Resolve(nil, ctx.Err())
		<-c.done
		return c.resp, c.err
	}
}

// Entry is a queued request together with its caller's context and
// completion handle.
type Entry struct {
	Request    *domain.Request
	Ctx        context.Context
	Completion *Completion
}

// Queue is a FIFO buffer safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    []*Entry
	maxDepth int
	onChange func(depth int)
}

// New creates a queue. maxDepth <= 0 means unbounded.
func New(maxDepth int) *Queue {
	return &Queue{maxDepth: maxDepth}
}

// OnChange registers a callback invoked with the new depth after every
// mutation.
func (q *Queue) OnChange(fn func(depth int)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Enqueue appends a request and returns its entry.
func (q *Queue) Enqueue(ctx context.Context, req *domain.Request) (*Entry, error) {
	q.mu.Lock()
	if q.maxDepth > 0 && len(q.items) >= q.maxDepth {
		q.mu.Unlock()
		return nil, ErrFull
	}
	e := &Entry{Request: req, Ctx: ctx, Completion: newCompletion()}
	q.items = append(q.items, e)
	depth, fn := len(q.items), q.onChange
	q.mu.Unlock()

	if fn != nil {
		fn(depth)
	}
	return e, nil
}

// Drain removes and returns every pending entry in submission order.
// Entries whose caller already gave up are dropped.
func (q *Queue) Drain() []*Entry {
	q.mu.Lock()
	items := q.items
	q.items = nil
	fn := q.onChange
	q.mu.Unlock()

	if fn != nil {
		fn(0)
	}

	pending := make([]*Entry, 0, len(items))
	for _, e := range items {
		if !e.Completion.Resolved() {
			pending = append(pending, e)
		}
	}
	return pending
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
