package notify

import (
	"context"
	"log/slog"

	"heirloom/internal/audit"
)

// Sink is the audit & notification sink: it records transitions and
// dispatches user-facing notifications. Every method is best-effort; nothing
// here blocks or fails the orchestration.
type Sink struct {
	publisher *audit.Publisher
	notifier  Notifier
	logger    *slog.Logger
}

// NewSink wires the sink. notifier may be nil; notifications then go to the
// log only via the audit trail.
func NewSink(publisher *audit.Publisher, notifier Notifier, logger *slog.Logger) *Sink {
	return &Sink{publisher: publisher, notifier: notifier, logger: logger}
}

// Record appends one audit event.
func (s *Sink) Record(ctx context.Context, event audit.Event) {
	s.publisher.Emit(ctx, event)
}

// RecordAll appends a batch of audit events in order.
func (s *Sink) RecordAll(ctx context.Context, events []audit.Event) {
	for _, e := range events {
		s.publisher.Emit(ctx, e)
	}
}

// Notify attempts delivery and reports the outcome. The error is consumed
// here: callers only learn success/failure to stamp notification status.
func (s *Sink) Notify(ctx context.Context, n Notification) bool {
	if s.notifier == nil {
		s.logger.InfoContext(ctx, "no notifier configured, skipping delivery",
			"kind", n.Kind,
			"recipient", n.Recipient,
		)
		return false
	}
	if err := s.notifier.Send(n); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			"kind", n.Kind,
			"recipient", n.Recipient,
			"error", err,
		)
		return false
	}
	return true
}
