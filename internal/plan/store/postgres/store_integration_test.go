//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heirloom/internal/account"
	accountpg "heirloom/internal/account/store/postgres"
	"heirloom/internal/plan"
	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/testutil/containers"
)

func seedUserAndPlan(t *testing.T, ctx context.Context, pc *containers.PostgresContainer) (*account.User, *plan.InheritancePlan) {
	t.Helper()

	accounts := accountpg.New(pc.DB)
	user := &account.User{
		ID:            domain.NewUserID(),
		Email:         "owner@example.com",
		TriggerMethod: domain.TriggerMethodInactivity,
		IsActive:      true,
	}
	require.NoError(t, accounts.Save(ctx, user))

	plans := New(pc.DB)
	p := &plan.InheritancePlan{
		ID:       domain.NewPlanID(),
		UserID:   user.ID,
		PlanType: domain.PlanTypeFullAccess,
		IsActive: true,
	}
	require.NoError(t, plans.Save(ctx, p))
	return user, p
}

func TestMarkTriggeredCompareAndSet(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	_, p := seedUserAndPlan(t, ctx, pc)
	store := New(pc.DB)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.MarkTriggered(ctx, p.ID, now))

	err := store.MarkTriggered(ctx, p.ID, now.Add(time.Hour))
	assert.ErrorIs(t, err, sentinel.ErrAlreadyTriggered)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsTriggered)
	require.NotNil(t, got.TriggeredAt)
	assert.WithinDuration(t, now, *got.TriggeredAt, time.Second)
}

func TestMarkTriggeredConcurrentRuns(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	_, p := seedUserAndPlan(t, ctx, pc)
	store := New(pc.DB)

	// Two overlapping batch runs race on the same plan; exactly one wins.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.MarkTriggered(ctx, p.ID, time.Now())
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, sentinel.ErrAlreadyTriggered)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}

func TestCreatePendingTriggerDedupesPerPlan(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	user, p := seedUserAndPlan(t, ctx, pc)
	store := New(pc.DB)

	first := &plan.InheritanceTrigger{
		ID:     domain.NewTriggerID(),
		PlanID: p.ID,
		UserID: user.ID,
		Reason: "inactive",
	}
	created, existing, err := store.CreatePendingTrigger(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, existing.ID)

	// Second insert while one is pending returns the original row.
	dup := &plan.InheritanceTrigger{
		ID:     domain.NewTriggerID(),
		PlanID: p.ID,
		UserID: user.ID,
		Reason: "inactive again",
	}
	created, existing, err = store.CreatePendingTrigger(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, existing.ID)

	// Completion frees the slot for a later attempt.
	require.NoError(t, store.CompleteTrigger(ctx, first.ID, time.Now()))
	created, existing, err = store.CreatePendingTrigger(ctx, dup)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, dup.ID, existing.ID)
}

func TestRecordActivityIsMonotonic(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	user, _ := seedUserAndPlan(t, ctx, pc)
	accounts := accountpg.New(pc.DB)

	newer := time.Now().UTC().Truncate(time.Millisecond)
	older := newer.Add(-time.Hour)

	require.NoError(t, accounts.RecordActivity(ctx, user.ID, newer))
	// A late out-of-order write must not move the timestamp backward.
	require.NoError(t, accounts.RecordActivity(ctx, user.ID, older))

	got, err := accounts.Get(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastActivity)
	assert.WithinDuration(t, newer, *got.LastActivity, time.Second)
}

func TestFailTriggerRequiresPending(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	user, p := seedUserAndPlan(t, ctx, pc)
	store := New(pc.DB)

	trigger := &plan.InheritanceTrigger{
		ID:     domain.NewTriggerID(),
		PlanID: p.ID,
		UserID: user.ID,
	}
	created, _, err := store.CreatePendingTrigger(ctx, trigger)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, store.CompleteTrigger(ctx, trigger.ID, time.Now()))

	err = store.FailTrigger(ctx, trigger.ID, "late failure")
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestListPendingTriggersOldestFirst(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	user, p1 := seedUserAndPlan(t, ctx, pc)
	store := New(pc.DB)

	p2 := &plan.InheritancePlan{
		ID:       domain.NewPlanID(),
		UserID:   user.ID,
		PlanType: domain.PlanTypeViewOnly,
		IsActive: true,
	}
	require.NoError(t, store.Save(ctx, p2))

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	_, _, err := store.CreatePendingTrigger(ctx, &plan.InheritanceTrigger{
		ID: domain.NewTriggerID(), PlanID: p2.ID, UserID: user.ID, CreatedAt: newer,
	})
	require.NoError(t, err)
	_, _, err = store.CreatePendingTrigger(ctx, &plan.InheritanceTrigger{
		ID: domain.NewTriggerID(), PlanID: p1.ID, UserID: user.ID, CreatedAt: older,
	})
	require.NoError(t, err)

	pending, err := store.ListPendingTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, p1.ID, pending[0].PlanID)
	assert.Equal(t, p2.ID, pending[1].PlanID)
}
