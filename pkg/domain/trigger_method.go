package domain

import dErrors "heirloom/pkg/domain-errors"

// TriggerMethod is the configured condition class that determines when a
// user's inheritance plans activate.
// Invariant: the value must be one of the supported methods.
//
// Usage: construct via ParseTriggerMethod at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type TriggerMethod string

// Supported trigger methods.
const (
	// TriggerMethodInactivity activates after a configurable number of days
	// without any qualifying user activity.
	TriggerMethodInactivity TriggerMethod = "inactivity"

	// TriggerMethodScheduled activates at a user-chosen date.
	TriggerMethodScheduled TriggerMethod = "scheduled"

	// TriggerMethodManual only activates through an explicit operator action.
	TriggerMethodManual TriggerMethod = "manual"

	// TriggerMethodDeathCertificate requires an external verification event
	// before any plan flips; the engine never auto-completes it.
	TriggerMethodDeathCertificate TriggerMethod = "death_certificate"
)

// validTriggerMethods is the single source of truth for valid methods.
var validTriggerMethods = map[TriggerMethod]bool{
	TriggerMethodInactivity:       true,
	TriggerMethodScheduled:        true,
	TriggerMethodManual:           true,
	TriggerMethodDeathCertificate: true,
}

// ParseTriggerMethod constructs a TriggerMethod from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseTriggerMethod(s string) (TriggerMethod, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "trigger method cannot be empty")
	}
	m := TriggerMethod(s)
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid trigger method")
	}
	return m, nil
}

// IsValid checks if the method is one of the supported enum values.
func (m TriggerMethod) IsValid() bool {
	return validTriggerMethods[m]
}

// RequiresVerification reports whether activation under this method must
// wait for an external verification signal.
func (m TriggerMethod) RequiresVerification() bool {
	return m == TriggerMethodDeathCertificate
}

// String returns the string representation of the method.
func (m TriggerMethod) String() string {
	return string(m)
}
