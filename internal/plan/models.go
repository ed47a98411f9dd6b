package plan

import (
	"time"

	"heirloom/pkg/domain"
)

// InheritancePlan groups a user's post-death wishes. is_triggered is
// monotonic: once true it never reverts, and all triggering writes go
// through the store's compare-and-set.
type InheritancePlan struct {
	ID       domain.PlanID
	UserID   domain.UserID
	PlanType domain.PlanType
	// Instructions is the encrypted payload handed to heirs on activation.
	// Opaque here; encryption belongs to a collaborator.
	Instructions []byte
	IsActive     bool
	IsTriggered  bool
	TriggeredAt  *time.Time
}

// TriggerStatus tracks one activation attempt.
type TriggerStatus string

const (
	TriggerStatusPending   TriggerStatus = "pending"
	TriggerStatusCompleted TriggerStatus = "completed"
	TriggerStatusFailed    TriggerStatus = "failed"
)

// InheritanceTrigger is the append-only record of an activation attempt.
// Many triggers may reference one plan only when earlier attempts failed;
// a completed trigger is terminal for its plan.
type InheritanceTrigger struct {
	ID     domain.TriggerID
	PlanID domain.PlanID
	UserID domain.UserID
	Reason string
	Status TriggerStatus
	// RequiresVerification marks death_certificate activations, which stay
	// pending until an external verification signal arrives.
	RequiresVerification bool
	CreatedAt            time.Time
	CompletedAt          *time.Time
	Error                string
}
