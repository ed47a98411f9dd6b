package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher records audit events best-effort: Emit never blocks the caller
// and never returns an error to orchestration. Events flow through a bounded
// inbox drained by a Worker; when the inbox is full the event is dropped and
// logged, which the engine tolerates because audit is not part of the
// transactional core.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithBuffer overrides the default inbox size.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, n)
	}
}

// NewPublisher creates a best-effort publisher. Pair it with NewWorker over
// the same inbox.
func NewPublisher(logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		inbox:  make(chan Event, 1024),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Inbox exposes the receive side for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Emit enqueues an event, stamping timestamp and risk when unset.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Risk == "" {
		event.Risk = event.Action.Risk()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", event.Action,
			"resource", event.Resource,
		)
	}
}
