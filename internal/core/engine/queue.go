package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// Queue funnels work through a single paced lane. Submissions never block;
// execution is strictly FIFO and one item at a time, with a fixed delay after
// every executed item and an optional requests-per-minute ceiling.
type Queue struct {
	delay   time.Duration
	limiter *rate.Limiter

	mu      sync.Mutex
	pending []*work
	running bool
}

type work struct {
	ctx  context.Context
	fn   func(context.Context) (any, error)
	done chan outcome
}

type outcome struct {
	value any
	err   error
}

// Pending is the caller's handle on submitted work.
type Pending struct {
	queue *Queue
	item  *work
}

// NewQueue builds a queue paced by the throttle configuration.
func NewQueue(cfg core.ThrottleConfig) *Queue {
	q := &Queue{delay: cfg.DelayBetweenRequests}
	if q.delay < 0 {
		q.delay = 0
	}
	if cfg.RequestsPerMinute > 0 {
		q.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return q
}

// Submit enqueues fn and returns immediately. The dispatcher is started if it
// is idle. fn receives ctx; if ctx ends before fn starts, fn is never run.
func (q *Queue) Submit(ctx context.Context, fn func(context.Context) (any, error)) *Pending {
	if ctx == nil {
		ctx = context.Background()
	}

	item := &work{ctx: ctx, fn: fn, done: make(chan outcome, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, item)
	if !q.running {
		q.running = true
		go q.dispatch()
	}
	q.mu.Unlock()

	return &Pending{queue: q, item: item}
}

// Wait blocks until the work completes. If ctx ends while the work is still
// queued, the work is withdrawn and ctx.Err() is returned. Work that already
// started is waited for.
func (p *Pending) Wait(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case res := <-p.item.done:
		return res.value, res.err
	case <-ctx.Done():
		if p.queue.withdraw(p.item) {
			return nil, ctx.Err()
		}
		res := <-p.item.done
		return res.value, res.err
	}
}

// Len reports how many items are waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Do submits fn and waits for its result.
func Do[T any](ctx context.Context, q *Queue, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	pending := q.Submit(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})

	value, err := pending.Wait(ctx)
	typed, ok := value.(T)
	if !ok {
		typed = zero
	}
	return typed, err
}

func (q *Queue) dispatch() {
	for {
		item := q.next()
		if item == nil {
			return
		}

		if err := item.ctx.Err(); err != nil {
			item.done <- outcome{err: err}
			continue
		}
		if q.limiter != nil {
			if err := q.limiter.Wait(item.ctx); err != nil {
				item.done <- outcome{err: err}
				continue
			}
		}

		value, err := run(item)
		item.done <- outcome{value: value, err: err}

		if q.delay > 0 {
			time.Sleep(q.delay)
		}
	}
}

// next pops the head of the queue, or marks the dispatcher idle when empty.
func (q *Queue) next() *work {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.running = false
		return nil
	}

	item := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return item
}

func (q *Queue) withdraw(item *work) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, candidate := range q.pending {
		if candidate == item {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

func run(item *work) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("queued work panicked: %v", r)
		}
	}()
	return item.fn(item.ctx)
}
