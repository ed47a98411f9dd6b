// Package engine orchestrates activations: evaluating trigger conditions,
// flipping plans dormant→triggered exactly once, and fanning out to the
// vault dispatcher and heir granter.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"heirloom/internal/account"
	"heirloom/internal/audit"
	heirservice "heirloom/internal/heir/service"
	"heirloom/internal/notify"
	"heirloom/internal/plan"
	"heirloom/internal/trigger"
	"heirloom/internal/vault"
	vaultservice "heirloom/internal/vault/service"
	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

// UserOutcome summarizes one user's pass through the orchestrator.
type UserOutcome struct {
	UserID domain.UserID
	// Evaluated reports the evaluator's verdict (false for the manual and
	// verification entry points, which bypass evaluation).
	Evaluated bool
	Reason    string
	// Triggered counts plans flipped in this pass.
	Triggered int
	// Awaiting counts plans parked behind death-certificate verification.
	Awaiting     int
	VaultResults []vault.ActionResult
}

// Orchestrator drives the activation state machine. All plan flips go
// through the plan store's compare-and-set, so concurrent invocations for
// the same user cannot double-activate.
type Orchestrator struct {
	accounts   account.Store
	plans      plan.Store
	evaluator  *trigger.Evaluator
	granter    *heirservice.Granter
	dispatcher *vaultservice.Dispatcher
	sink       *notify.Sink
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func NewOrchestrator(
	accounts account.Store,
	plans plan.Store,
	evaluator *trigger.Evaluator,
	granter *heirservice.Granter,
	dispatcher *vaultservice.Dispatcher,
	sink *notify.Sink,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		accounts:   accounts,
		plans:      plans,
		evaluator:  evaluator,
		granter:    granter,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     slog.Default(),
		tracer:     otel.Tracer("heirloom/engine"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessUser evaluates one user's trigger condition and activates when met.
func (o *Orchestrator) ProcessUser(ctx context.Context, user *account.User) (*UserOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "engine.ProcessUser")
	defer span.End()

	decision := o.evaluator.Evaluate(user, requestcontext.Now(ctx))
	outcome := &UserOutcome{UserID: user.ID, Evaluated: true, Reason: decision.Reason}
	if !decision.ShouldTrigger {
		o.logger.DebugContext(ctx, "user not triggered",
			"user_id", user.ID,
			"method", user.TriggerMethod,
			"reason", decision.Reason,
		)
		return outcome, nil
	}
	return o.activate(ctx, user, decision.Reason, outcome)
}

// TriggerManually activates a user's plans on explicit operator command.
func (o *Orchestrator) TriggerManually(ctx context.Context, userID domain.UserID) (*UserOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "engine.TriggerManually")
	defer span.End()

	user, err := o.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	reason := "manual trigger"
	if actor := requestcontext.ActorID(ctx); actor != "" {
		reason = fmt.Sprintf("manual trigger by %s", actor)
	}
	return o.activate(ctx, user, reason, &UserOutcome{UserID: userID, Reason: reason})
}

// RecordDeathClaim files an unverified death report: pending triggers are
// created for every eligible plan but no plan flips until Verify.
func (o *Orchestrator) RecordDeathClaim(ctx context.Context, userID domain.UserID) (*UserOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "engine.RecordDeathClaim")
	defer span.End()

	user, err := o.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	eligible, err := o.plans.ListEligible(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list eligible plans: %w", err)
	}
	outcome := &UserOutcome{UserID: userID, Reason: "death certificate claim filed"}
	now := requestcontext.Now(ctx)
	for _, p := range eligible {
		created, existing, err := o.plans.CreatePendingTrigger(ctx, &plan.InheritanceTrigger{
			ID:                   domain.NewTriggerID(),
			PlanID:               p.ID,
			UserID:               user.ID,
			Reason:               "death certificate claim filed",
			RequiresVerification: true,
			CreatedAt:            now,
		})
		if err != nil {
			return nil, fmt.Errorf("create pending trigger for plan %s: %w", p.ID, err)
		}
		outcome.Awaiting++
		if created {
			o.sink.Record(ctx, audit.Event{
				Timestamp: now,
				UserID:    user.ID,
				Resource:  "trigger/" + existing.ID.String(),
				Action:    audit.ActionTriggerAwaiting,
				Risk:      audit.ActionTriggerAwaiting.Risk(),
				Reason:    existing.Reason,
				RequestID: requestcontext.RequestID(ctx),
				ActorID:   requestcontext.ActorID(ctx),
			})
		}
	}
	return outcome, nil
}

// Verify consumes an external verification event for a user whose death was
// previously claimed. Pending triggers that required verification proceed
// through the flip and disposition.
func (o *Orchestrator) Verify(ctx context.Context, userID domain.UserID) (*UserOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "engine.Verify")
	defer span.End()

	pending, err := o.plans.ListPendingTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending triggers: %w", err)
	}

	outcome := &UserOutcome{UserID: userID, Reason: "death certificate verified"}
	now := requestcontext.Now(ctx)
	matched := false
	for _, t := range pending {
		if t.UserID != userID || !t.RequiresVerification {
			continue
		}
		matched = true
		o.sink.Record(ctx, audit.Event{
			Timestamp: now,
			UserID:    userID,
			Resource:  "trigger/" + t.ID.String(),
			Action:    audit.ActionVerificationRecorded,
			Risk:      audit.ActionVerificationRecorded.Risk(),
			Reason:    outcome.Reason,
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   requestcontext.ActorID(ctx),
		})
		if _, err := o.completeTrigger(ctx, t, outcome); err != nil {
			return outcome, err
		}
	}
	if !matched {
		return nil, fmt.Errorf("no trigger awaiting verification for user %s: %w", userID, sentinel.ErrInvalidState)
	}
	return outcome, nil
}

// ResumePending retries dispatch for triggers stranded between the plan
// flip and downstream processing by a crash or timeout.
func (o *Orchestrator) ResumePending(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "engine.ResumePending")
	defer span.End()

	pending, err := o.plans.ListPendingTriggers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending triggers: %w", err)
	}

	resumed := 0
	for _, t := range pending {
		if t.RequiresVerification {
			// Parked until an external verification event arrives.
			continue
		}
		outcome := &UserOutcome{UserID: t.UserID}
		completed, err := o.completeTrigger(ctx, t, outcome)
		if err != nil {
			o.logger.WarnContext(ctx, "failed to resume pending trigger",
				"trigger_id", t.ID,
				"plan_id", t.PlanID,
				"error", err,
			)
			continue
		}
		if completed {
			resumed++
		}
	}
	return resumed, nil
}

// DeliverScheduledNotifications retries heir notifications owed from earlier
// runs: elapsed delays and failed deliveries. Triggers complete without
// waiting for notification, so the batch run must sweep these explicitly.
func (o *Orchestrator) DeliverScheduledNotifications(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "engine.DeliverScheduledNotifications")
	defer span.End()

	return o.granter.DeliverScheduled(ctx)
}

// activate runs steps 2-4 of the activation algorithm for every eligible
// plan: record the trigger attempt, flip the plan, dispatch.
func (o *Orchestrator) activate(ctx context.Context, user *account.User, reason string, outcome *UserOutcome) (*UserOutcome, error) {
	eligible, err := o.plans.ListEligible(ctx, user.ID)
	if err != nil {
		return outcome, fmt.Errorf("list eligible plans: %w", err)
	}
	if len(eligible) == 0 {
		// Idempotency guard: a fully triggered user produces nothing new.
		o.logger.InfoContext(ctx, "no eligible plans", "user_id", user.ID)
		return outcome, nil
	}

	requiresVerification := user.TriggerMethod == domain.TriggerMethodDeathCertificate
	now := requestcontext.Now(ctx)
	for _, p := range eligible {
		created, t, err := o.plans.CreatePendingTrigger(ctx, &plan.InheritanceTrigger{
			ID:                   domain.NewTriggerID(),
			PlanID:               p.ID,
			UserID:               user.ID,
			Reason:               reason,
			RequiresVerification: requiresVerification,
			CreatedAt:            now,
		})
		if err != nil {
			return outcome, fmt.Errorf("create pending trigger for plan %s: %w", p.ID, err)
		}
		if created {
			o.sink.Record(ctx, audit.Event{
				Timestamp: now,
				UserID:    user.ID,
				Resource:  "trigger/" + t.ID.String(),
				Action:    audit.ActionTriggerCreated,
				Risk:      audit.ActionTriggerCreated.Risk(),
				Reason:    reason,
				RequestID: requestcontext.RequestID(ctx),
				ActorID:   requestcontext.ActorID(ctx),
			})
		}
		if t.RequiresVerification {
			outcome.Awaiting++
			continue
		}
		if _, err := o.completeTrigger(ctx, t, outcome); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// completeTrigger drives one pending trigger to completion: flip the plan
// (tolerating an earlier flip), dispatch vault and heir processing, then
// mark the trigger completed. A failure after the flip leaves the trigger
// pending so the next run's resume scan retries dispatch. The boolean
// reports whether the trigger reached completed (false for an orphan that
// was failed instead).
func (o *Orchestrator) completeTrigger(ctx context.Context, t *plan.InheritanceTrigger, outcome *UserOutcome) (bool, error) {
	now := requestcontext.Now(ctx)

	err := o.plans.MarkTriggered(ctx, t.PlanID, now)
	switch {
	case err == nil:
		outcome.Triggered++
		o.sink.Record(ctx, audit.Event{
			Timestamp: now,
			UserID:    t.UserID,
			Resource:  "plan/" + t.PlanID.String(),
			Action:    audit.ActionPlanTriggered,
			Risk:      audit.ActionPlanTriggered.Risk(),
			Reason:    t.Reason,
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   requestcontext.ActorID(ctx),
		})
	case errors.Is(err, sentinel.ErrAlreadyTriggered):
		// Flipped by an earlier interrupted run; dispatch still owed.
		o.logger.InfoContext(ctx, "plan already triggered, resuming dispatch",
			"plan_id", t.PlanID,
			"trigger_id", t.ID,
		)
	case errors.Is(err, sentinel.ErrNotFound):
		reason := fmt.Sprintf("plan %s no longer exists", t.PlanID)
		if failErr := o.plans.FailTrigger(ctx, t.ID, reason); failErr != nil {
			return false, fmt.Errorf("fail orphaned trigger %s: %w", t.ID, failErr)
		}
		o.sink.Record(ctx, audit.Event{
			Timestamp: now,
			UserID:    t.UserID,
			Resource:  "trigger/" + t.ID.String(),
			Action:    audit.ActionTriggerFailed,
			Risk:      audit.ActionTriggerFailed.Risk(),
			Reason:    reason,
			RequestID: requestcontext.RequestID(ctx),
		})
		return false, nil
	default:
		return false, fmt.Errorf("mark plan %s triggered: %w", t.PlanID, err)
	}

	if err := o.dispatch(ctx, t, outcome); err != nil {
		return false, err
	}

	if err := o.plans.CompleteTrigger(ctx, t.ID, now); err != nil {
		return false, fmt.Errorf("complete trigger %s: %w", t.ID, err)
	}
	o.sink.Record(ctx, audit.Event{
		Timestamp: now,
		UserID:    t.UserID,
		Resource:  "trigger/" + t.ID.String(),
		Action:    audit.ActionTriggerCompleted,
		Risk:      audit.ActionTriggerCompleted.Risk(),
		Reason:    t.Reason,
		RequestID: requestcontext.RequestID(ctx),
	})
	return true, nil
}

// dispatch fans a freshly flipped plan out to the heir granter and the
// vault dispatcher. Per-vault failures land in the results and do not stop
// completion; only a total inability to proceed bubbles up.
func (o *Orchestrator) dispatch(ctx context.Context, t *plan.InheritanceTrigger, outcome *UserOutcome) error {
	p, err := o.plans.Get(ctx, t.PlanID)
	if err != nil {
		return fmt.Errorf("get plan %s: %w", t.PlanID, err)
	}

	if err := o.granter.Activate(ctx, p); err != nil {
		return fmt.Errorf("grant heir access for plan %s: %w", p.ID, err)
	}

	results, err := o.dispatcher.DispatchUser(ctx, t.UserID)
	if err != nil {
		return fmt.Errorf("dispatch vaults for user %s: %w", t.UserID, err)
	}
	outcome.VaultResults = append(outcome.VaultResults, results...)
	return nil
}
