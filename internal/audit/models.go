package audit

import (
	"time"

	id "heirloom/pkg/domain"
)

// RiskLevel classifies audit events for retention and alerting. Destructive
// dispositions rank higher than routine bookkeeping.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Action names every transition the engine records.
type Action string

const (
	// Activation lifecycle
	ActionTriggerCreated       Action = "trigger_created"
	ActionTriggerAwaiting      Action = "trigger_awaiting_verification"
	ActionTriggerCompleted     Action = "trigger_completed"
	ActionTriggerFailed        Action = "trigger_failed"
	ActionPlanTriggered        Action = "plan_triggered"
	ActionVerificationRecorded Action = "verification_recorded"

	// Vault dispositions
	ActionVaultDeleted       Action = "vault_deleted"
	ActionVaultShared        Action = "vault_shared"
	ActionContactMarked      Action = "trusted_contact_marked"
	ActionSignOffQueued      Action = "signoff_task_queued"
	ActionVaultActionFailed  Action = "vault_action_failed"
	ActionVaultActionSkipped Action = "vault_action_skipped"

	// Heirs
	ActionHeirAccessGranted Action = "heir_access_granted"
	ActionHeirNotified      Action = "heir_notified"

	// Runner and collaborators
	ActionRunCompleted     Action = "run_completed"
	ActionActivityRecorded Action = "activity_recorded"
)

// actionRisk maps each action to its risk level; unknown actions default to
// RiskLow so a new action never silently escalates.
var actionRisk = map[Action]RiskLevel{
	ActionTriggerCreated:       RiskHigh,
	ActionTriggerAwaiting:      RiskHigh,
	ActionTriggerCompleted:     RiskHigh,
	ActionTriggerFailed:        RiskHigh,
	ActionPlanTriggered:        RiskCritical,
	ActionVerificationRecorded: RiskCritical,

	ActionVaultDeleted:       RiskCritical,
	ActionVaultShared:        RiskHigh,
	ActionContactMarked:      RiskMedium,
	ActionSignOffQueued:      RiskMedium,
	ActionVaultActionFailed:  RiskHigh,
	ActionVaultActionSkipped: RiskLow,

	ActionHeirAccessGranted: RiskHigh,
	ActionHeirNotified:      RiskMedium,

	ActionRunCompleted:     RiskLow,
	ActionActivityRecorded: RiskLow,
}

// Risk returns the risk level for this action.
func (a Action) Risk() RiskLevel {
	if r, ok := actionRisk[a]; ok {
		return r
	}
	return RiskLow
}

// Event is emitted from the engine to capture one state transition. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	UserID    id.UserID
	// Resource identifies the entity acted on, e.g. "plan/<id>", "vault/<id>".
	Resource  string
	Action    Action
	Risk      RiskLevel
	Reason    string
	Detail    string
	RequestID string
	// ActorID tracks the operator when the transition was not
	// system-initiated (manual trigger, verification).
	ActorID string
}
