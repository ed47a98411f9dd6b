package service

import (
	"context"
	"fmt"
	"log/slog"

	"heirloom/internal/audit"
	"heirloom/internal/heir"
	"heirloom/internal/notify"
	"heirloom/internal/plan"
	"heirloom/pkg/domain"
	"heirloom/pkg/requestcontext"
)

// PlanGetter looks up the plan an heir belongs to.
type PlanGetter interface {
	Get(ctx context.Context, planID domain.PlanID) (*plan.InheritancePlan, error)
}

// Granter hands heirs their vault access once a plan has triggered.
//
// Activate is idempotent: grants flip pending rows only, and notification
// state is re-evaluated on every call, so the resume path can simply invoke
// it again for a plan whose run was interrupted.
type Granter struct {
	heirs  heir.Store
	plans  PlanGetter
	sink   *notify.Sink
	logger *slog.Logger
}

type Option func(*Granter)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Granter) { g.logger = logger }
}

func NewGranter(heirs heir.Store, plans PlanGetter, sink *notify.Sink, opts ...Option) *Granter {
	g := &Granter{
		heirs:  heirs,
		plans:  plans,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Activate grants every active heir of the plan their pending vault access
// and dispatches activation notifications. Access is granted immediately;
// a notification delay only defers the heir-facing message.
func (g *Granter) Activate(ctx context.Context, p *plan.InheritancePlan) error {
	heirs, err := g.heirs.ListActiveByPlan(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list heirs for plan %s: %w", p.ID, err)
	}

	now := requestcontext.Now(ctx)
	for _, h := range heirs {
		granted, err := g.grantPending(ctx, h)
		if err != nil {
			return err
		}
		if granted > 0 {
			g.sink.Record(ctx, audit.Event{
				Timestamp: now,
				UserID:    p.UserID,
				Resource:  "heir/" + h.ID.String(),
				Action:    audit.ActionHeirAccessGranted,
				Risk:      audit.ActionHeirAccessGranted.Risk(),
				Detail:    fmt.Sprintf("granted %d vault access rows (level %s)", granted, h.AccessLevel),
				RequestID: requestcontext.RequestID(ctx),
			})
		}
		if _, err := g.notifyHeir(ctx, p, h); err != nil {
			return err
		}
	}
	return nil
}

// DeliverScheduled retries notifications owed from earlier runs: heirs whose
// delay had not elapsed when their plan triggered, and heirs whose delivery
// failed. Triggers complete independently of notification, so this sweep is
// the only path that revisits a parked heir. Returns how many were delivered.
func (g *Granter) DeliverScheduled(ctx context.Context) (int, error) {
	scheduled, err := g.heirs.ListScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scheduled heirs: %w", err)
	}

	delivered := 0
	for _, h := range scheduled {
		p, err := g.plans.Get(ctx, h.PlanID)
		if err != nil {
			g.logger.WarnContext(ctx, "skipping scheduled heir, plan unavailable",
				"heir_id", h.ID,
				"plan_id", h.PlanID,
				"error", err,
			)
			continue
		}
		sent, err := g.notifyHeir(ctx, p, h)
		if err != nil {
			return delivered, err
		}
		if sent {
			delivered++
		}
	}
	return delivered, nil
}

func (g *Granter) grantPending(ctx context.Context, h *heir.Heir) (int, error) {
	pending, err := g.heirs.ListPendingAccessByHeir(ctx, h.ID)
	if err != nil {
		return 0, fmt.Errorf("list pending access for heir %s: %w", h.ID, err)
	}
	now := requestcontext.Now(ctx)
	for _, a := range pending {
		if err := g.heirs.GrantAccess(ctx, a.ID, now); err != nil {
			return 0, fmt.Errorf("grant access %s: %w", a.ID, err)
		}
	}
	return len(pending), nil
}

// notifyHeir walks the notification lifecycle for one heir and reports
// whether delivery happened. Heirs who opted out never receive a message; an
// unserved delay or a failed delivery parks the heir in scheduled status so
// the batch run's scheduled sweep retries it.
func (g *Granter) notifyHeir(ctx context.Context, p *plan.InheritancePlan, h *heir.Heir) (bool, error) {
	if !h.NotifyOnActivation || h.NotifiedAt != nil {
		return false, nil
	}

	now := requestcontext.Now(ctx)
	if p.TriggeredAt != nil && h.NotificationDelayDays > 0 {
		due := p.TriggeredAt.AddDate(0, 0, h.NotificationDelayDays)
		if now.Before(due) {
			if err := g.park(ctx, h); err != nil {
				return false, err
			}
			g.logger.DebugContext(ctx, "heir notification deferred",
				"heir_id", h.ID,
				"due", due,
			)
			return false, nil
		}
	}

	delivered := g.sink.Notify(ctx, notify.Notification{
		Kind:      notify.KindHeirActivated,
		Recipient: h.Email,
		Subject:   "An inheritance plan naming you has been activated",
		Body: fmt.Sprintf("Hello %s, you have been granted %s access to the vaults assigned to you. "+
			"Please verify your identity to proceed.", h.Name, h.AccessLevel),
		Instructions: p.Instructions,
	})
	if !delivered {
		// Park the heir so the scheduled sweep retries delivery; by the
		// time it runs the delay has elapsed, so only the send remains.
		return false, g.park(ctx, h)
	}

	if err := g.heirs.SetNotification(ctx, h.ID, heir.NotificationStatusPendingVerification, &now); err != nil {
		return false, fmt.Errorf("stamp heir notification: %w", err)
	}
	g.sink.Record(ctx, audit.Event{
		Timestamp: now,
		UserID:    p.UserID,
		Resource:  "heir/" + h.ID.String(),
		Action:    audit.ActionHeirNotified,
		Risk:      audit.ActionHeirNotified.Risk(),
		Detail:    "activation notification delivered",
		RequestID: requestcontext.RequestID(ctx),
	})
	return true, nil
}

// park stamps the heir scheduled, once.
func (g *Granter) park(ctx context.Context, h *heir.Heir) error {
	if h.NotificationStatus == heir.NotificationStatusScheduled {
		return nil
	}
	if err := g.heirs.SetNotification(ctx, h.ID, heir.NotificationStatusScheduled, nil); err != nil {
		return fmt.Errorf("schedule heir notification: %w", err)
	}
	h.NotificationStatus = heir.NotificationStatusScheduled
	return nil
}
