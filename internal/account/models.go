package account

import (
	"time"

	"heirloom/pkg/domain"
)

// TriggerSettings carries method-specific parameters. Zero values mean
// "unset"; the evaluator applies defaults.
type TriggerSettings struct {
	// InactivityDays is the dormancy threshold for the inactivity method.
	InactivityDays int `json:"inactivity_days,omitempty"`
}

// User is the engine's read-mostly snapshot of an account. The account
// subsystem owns the full record; this engine only reads trigger
// configuration and bumps LastActivity.
type User struct {
	ID              domain.UserID
	Email           string
	TriggerMethod   domain.TriggerMethod
	TriggerSettings TriggerSettings
	// ScheduledDate is required by the scheduled method, nil otherwise.
	ScheduledDate *time.Time
	// LastActivity is nil until the first qualifying action; without a
	// baseline the inactivity method never fires.
	LastActivity *time.Time
	IsActive     bool
}
