// Package memq is the in-process transport used by tests and single-process
// runs. It approximates the broker contract: explicit ack/reject, bounded
// redelivery of rejected messages.
package memq

import (
	"context"
	"errors"
	"sync"

	"github.com/git-apexplanners/wsscapt/internal/usecase"
)

const maxAttempts = 3

type message struct {
	env      usecase.Envelope
	attempts int
}

type Queue struct {
	ch chan *message

	mu      sync.Mutex
	reports []usecase.Envelope
	closed  bool
	done    chan struct{}
}

func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 256
	}
	return &Queue{ch: make(chan *message, buffer), done: make(chan struct{})}
}

func (q *Queue) Publish(ctx context.Context, env usecase.Envelope) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	if env.Type == usecase.EnvelopeReport {
		// reports are terminal output, not consumer input
		q.reports = append(q.reports, env)
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()
	select {
	case q.ch <- &message{env: env}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return errors.New("queue closed")
	}
}

func (q *Queue) Consume(ctx context.Context, h usecase.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case m := <-q.ch:
			d := usecase.NewDelivery(m.env,
				func() {},
				func() {
					m.attempts++
					if m.attempts >= maxAttempts {
						return
					}
					select {
					case q.ch <- m:
					default: // queue full, drop
					}
				})
			h(ctx, d)
		}
	}
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// Reports returns the published analysis reports, oldest first.
func (q *Queue) Reports() []usecase.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]usecase.Envelope, len(q.reports))
	copy(out, q.reports)
	return out
}
