package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"heirloom/internal/account"
	"heirloom/pkg/domain"
)

var evalNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) *time.Time {
	t := evalNow.AddDate(0, 0, -d)
	return &t
}

func TestEvaluateInactivity(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name          string
		lastActivity  *time.Time
		thresholdDays int
		want          bool
	}{
		{name: "under threshold", lastActivity: daysAgo(29), thresholdDays: 30, want: false},
		{name: "over threshold", lastActivity: daysAgo(31), thresholdDays: 30, want: true},
		{name: "exactly at threshold", lastActivity: daysAgo(30), thresholdDays: 30, want: true},
		{name: "no baseline never triggers", lastActivity: nil, thresholdDays: 30, want: false},
		{name: "no baseline even when ancient threshold", lastActivity: nil, thresholdDays: 1, want: false},
		{name: "default threshold applied when unset", lastActivity: daysAgo(31), thresholdDays: 0, want: true},
		{name: "default threshold not yet met", lastActivity: daysAgo(29), thresholdDays: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &account.User{
				TriggerMethod:   domain.TriggerMethodInactivity,
				TriggerSettings: account.TriggerSettings{InactivityDays: tt.thresholdDays},
				LastActivity:    tt.lastActivity,
			}
			got := e.Evaluate(user, evalNow)
			assert.Equal(t, tt.want, got.ShouldTrigger)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestEvaluateScheduled(t *testing.T) {
	e := NewEvaluator()

	past := evalNow.Add(-time.Second)
	future := evalNow.Add(time.Second)

	tests := []struct {
		name string
		date *time.Time
		want bool
	}{
		{name: "one second past", date: &past, want: true},
		{name: "exactly now", date: &evalNow, want: true},
		{name: "one second ahead", date: &future, want: false},
		{name: "missing date is a data error, not a trigger", date: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &account.User{
				TriggerMethod: domain.TriggerMethodScheduled,
				ScheduledDate: tt.date,
			}
			got := e.Evaluate(user, evalNow)
			assert.Equal(t, tt.want, got.ShouldTrigger)
		})
	}
}

func TestManualAndDeathCertificateNeverAutoTrigger(t *testing.T) {
	e := NewEvaluator()

	for _, method := range []domain.TriggerMethod{domain.TriggerMethodManual, domain.TriggerMethodDeathCertificate} {
		user := &account.User{
			TriggerMethod: method,
			LastActivity:  daysAgo(400),
		}
		got := e.Evaluate(user, evalNow)
		assert.False(t, got.ShouldTrigger, "method %s must never auto-trigger", method)
	}
}

func TestUnknownMethodEvaluatesFalse(t *testing.T) {
	e := NewEvaluator()
	got := e.Evaluate(&account.User{TriggerMethod: domain.TriggerMethod("seance")}, evalNow)
	assert.False(t, got.ShouldTrigger)
	assert.Contains(t, got.Reason, "unknown trigger method")
}

func TestWithDefaultInactivityDays(t *testing.T) {
	e := NewEvaluator(WithDefaultInactivityDays(10))
	user := &account.User{
		TriggerMethod: domain.TriggerMethodInactivity,
		LastActivity:  daysAgo(15),
	}
	assert.True(t, e.Evaluate(user, evalNow).ShouldTrigger)
}
