package payment

import (
	"context"
	"fmt"
	"log"
)

// Queue serializes provider calls. The gateway's auth tokens are short-lived
// shared state, so exactly one call may be in flight at a time; each task
// obtains its token through the gateway's cache when it actually runs.
type Queue struct {
	tasks chan func()
}

// NewQueue starts the single worker goroutine. It stops when ctx is
// cancelled; tasks still queued at that point are dropped.
func NewQueue(ctx context.Context, capacity int) *Queue {
	q := &Queue{tasks: make(chan func(), capacity)}
	go q.run(ctx)
	return q
}

func (q *Queue) run(ctx context.Context) {
	log.Printf("[PAYMENT] Provider call queue started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[PAYMENT] Provider call queue stopped")
			return
		case task := <-q.tasks:
			task()
		}
	}
}

// Do enqueues fn behind any prior tasks and waits for it to finish. The
// wait is bounded by ctx; a task already queued still runs even if its
// submitter gave up waiting.
func (q *Queue) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case q.tasks <- wrapped:
	default:
		return fmt.Errorf("payment queue full")
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
