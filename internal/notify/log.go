package notify

import (
	"context"
	"log/slog"
)

// LogNotifier records notifications to the structured log. Used when SMTP is
// not configured and as the delivery channel of last resort.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Send(n Notification) error {
	l.logger.InfoContext(context.Background(), "notification",
		"kind", n.Kind,
		"recipient", n.Recipient,
		"subject", n.Subject,
	)
	return nil
}
