package notify

import (
	"encoding/base64"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"heirloom/internal/platform/config"
)

// EmailNotifier sends notifications over SMTP.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailNotifier builds an SMTP notifier from config. Returns nil when no
// host is configured so callers can fall back to the log notifier.
func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	if cfg.Host == "" {
		return nil
	}
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:   cfg.From,
	}
}

func (e *EmailNotifier) Send(n Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("notification has no recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", n.Recipient)
	m.SetHeader("Subject", n.Subject)

	body := n.Body
	if len(n.Instructions) > 0 {
		// Instructions are an encrypted blob the recipient's client decrypts;
		// transported base64-encoded in the message body.
		body += "\n\n---\n" + base64.StdEncoding.EncodeToString(n.Instructions)
	}
	m.SetBody("text/plain", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s notification: %w", n.Kind, err)
	}
	return nil
}
