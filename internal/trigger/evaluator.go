// Package trigger decides whether a user's activation condition has been
// met. The evaluator is pure: no side effects, safe to call repeatedly and
// concurrently.
package trigger

import (
	"fmt"
	"time"

	"heirloom/internal/account"
	"heirloom/pkg/domain"
)

// DefaultInactivityDays applies when the inactivity method has no explicit
// threshold configured.
const DefaultInactivityDays = 30

// Decision is the evaluator's verdict for one user at one instant.
type Decision struct {
	ShouldTrigger bool
	// Reason explains the verdict either way; it becomes the trigger
	// record's reason when ShouldTrigger is true.
	Reason string
}

// Evaluator maps a user's trigger configuration and the current time onto a
// Decision.
type Evaluator struct {
	defaultInactivityDays int
}

type Option func(*Evaluator)

// WithDefaultInactivityDays overrides the fallback dormancy threshold.
func WithDefaultInactivityDays(days int) Option {
	return func(e *Evaluator) {
		if days > 0 {
			e.defaultInactivityDays = days
		}
	}
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{defaultInactivityDays: DefaultInactivityDays}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the verdict for user at instant now.
//
// Misconfiguration (scheduled method without a date, missing activity
// baseline) is a data error: the verdict is "not triggered" with a reason,
// never a returned error.
func (e *Evaluator) Evaluate(user *account.User, now time.Time) Decision {
	switch user.TriggerMethod {
	case domain.TriggerMethodInactivity:
		return e.evaluateInactivity(user, now)
	case domain.TriggerMethodScheduled:
		return e.evaluateScheduled(user, now)
	case domain.TriggerMethodManual:
		return Decision{Reason: "manual method requires an explicit operator action"}
	case domain.TriggerMethodDeathCertificate:
		return Decision{Reason: "death certificate method requires an external verification event"}
	default:
		return Decision{Reason: fmt.Sprintf("unknown trigger method %q", user.TriggerMethod)}
	}
}

func (e *Evaluator) evaluateInactivity(user *account.User, now time.Time) Decision {
	if user.LastActivity == nil {
		// No baseline, dormancy cannot be inferred.
		return Decision{Reason: "no activity baseline recorded"}
	}
	threshold := user.TriggerSettings.InactivityDays
	if threshold <= 0 {
		threshold = e.defaultInactivityDays
	}
	daysSince := int(now.Sub(*user.LastActivity).Hours() / 24)
	if daysSince < threshold {
		return Decision{Reason: fmt.Sprintf("inactive %d of %d days", daysSince, threshold)}
	}
	return Decision{
		ShouldTrigger: true,
		Reason:        fmt.Sprintf("inactive for %d days (threshold %d)", daysSince, threshold),
	}
}

func (e *Evaluator) evaluateScheduled(user *account.User, now time.Time) Decision {
	if user.ScheduledDate == nil {
		return Decision{Reason: "scheduled method configured without a date"}
	}
	if now.Before(*user.ScheduledDate) {
		return Decision{Reason: fmt.Sprintf("scheduled date %s not reached", user.ScheduledDate.Format(time.RFC3339))}
	}
	return Decision{
		ShouldTrigger: true,
		Reason:        fmt.Sprintf("scheduled date %s reached", user.ScheduledDate.Format(time.RFC3339)),
	}
}
