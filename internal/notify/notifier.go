// Package notify delivers user-facing notifications best-effort. Failures
// are logged and never propagate to orchestration.
package notify

// Kind selects the template for a notification.
type Kind string

const (
	KindHeirActivated   Kind = "heir_activated"
	KindTrustedContact  Kind = "trusted_contact"
	KindSignOffOperator Kind = "signoff_operator"
)

// Notification is a recipient plus template payload. Instructions stay an
// opaque encrypted blob; the engine never decrypts heir-facing content.
type Notification struct {
	Kind      Kind
	Recipient string
	Subject   string
	Body      string
	// Instructions carries the plan's encrypted instructions payload when
	// present; delivered verbatim as an attachment-style field.
	Instructions []byte
}

// Notifier delivers one notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(n Notification) error
}
