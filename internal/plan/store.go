package plan

import (
	"context"
	"time"

	"heirloom/pkg/domain"
)

// Store persists plans and their activation triggers.
//
// Concurrency contract: MarkTriggered is a compare-and-set ("flip only if
// currently false") and CreatePendingTrigger dedupes per plan, so two
// overlapping batch runs cannot double-activate a plan even without a
// distributed lock.
type Store interface {
	// Get returns one plan. Wraps sentinel.ErrNotFound when absent.
	Get(ctx context.Context, planID domain.PlanID) (*InheritancePlan, error)

	// ListEligible returns the user's plans with is_active and not
	// is_triggered, the orchestrator's idempotency guard input.
	ListEligible(ctx context.Context, userID domain.UserID) ([]*InheritancePlan, error)

	// MarkTriggered flips is_triggered false→true and stamps triggered_at.
	// Wraps sentinel.ErrAlreadyTriggered when the plan was already flipped.
	MarkTriggered(ctx context.Context, planID domain.PlanID, at time.Time) error

	// Save upserts a plan. Fixture and collaborator surface.
	Save(ctx context.Context, p *InheritancePlan) error

	// CreatePendingTrigger records an activation attempt. At most one
	// pending trigger exists per plan: when one is already pending it is
	// returned unchanged and created is false.
	CreatePendingTrigger(ctx context.Context, t *InheritanceTrigger) (created bool, existing *InheritanceTrigger, err error)

	// CompleteTrigger marks a trigger completed; terminal for the plan.
	CompleteTrigger(ctx context.Context, triggerID domain.TriggerID, at time.Time) error

	// FailTrigger marks a trigger failed with a reason, leaving the plan
	// re-activatable on the next run.
	FailTrigger(ctx context.Context, triggerID domain.TriggerID, reason string) error

	// ListPendingTriggers returns all pending triggers, oldest first. The
	// runner scans these to resume dispatch after a crash between the plan
	// flip and downstream processing.
	ListPendingTriggers(ctx context.Context) ([]*InheritanceTrigger, error)

	// ListTriggersByPlan returns every activation attempt for a plan.
	ListTriggersByPlan(ctx context.Context, planID domain.PlanID) ([]*InheritanceTrigger, error)
}
