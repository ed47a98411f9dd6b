package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"heirloom/internal/account"
	"heirloom/internal/audit"
	"heirloom/internal/heir"
	heirservice "heirloom/internal/heir/service"
	"heirloom/internal/notify"
	"heirloom/internal/plan"
	"heirloom/internal/platform/config"
	"heirloom/internal/trigger"
	"heirloom/internal/vault"
	vaultservice "heirloom/internal/vault/service"
	"heirloom/pkg/domain"
	"heirloom/pkg/requestcontext"
)

type fakeLocker struct {
	acquired bool
	calls    int
}

func (f *fakeLocker) AcquireRunLock(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	f.calls++
	return func() {}, f.acquired, nil
}

type failingPlanStore struct {
	plan.Store
	failUser domain.UserID
}

func (f *failingPlanStore) ListEligible(ctx context.Context, userID domain.UserID) ([]*plan.InheritancePlan, error) {
	if userID == f.failUser {
		return nil, errors.New("storage unavailable")
	}
	return f.Store.ListEligible(ctx, userID)
}

type RunnerSuite struct {
	suite.Suite

	accounts *account.InMemoryStore
	plans    *plan.InMemoryStore
	heirs    *heir.InMemoryStore
	vaults   *vault.InMemoryStore
	notifier *recordingNotifier
	sink     *notify.Sink
	now      time.Time
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.accounts = account.NewInMemoryStore()
	s.plans = plan.NewInMemoryStore()
	s.heirs = heir.NewInMemoryStore()
	s.vaults = vault.NewInMemoryStore()
	s.notifier = &recordingNotifier{}
	s.sink = notify.NewSink(audit.NewPublisher(slog.Default()), s.notifier, slog.Default())
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *RunnerSuite) newRunner(planStore plan.Store, opts ...RunnerOption) *Runner {
	granter := heirservice.NewGranter(s.heirs, planStore, s.sink)
	dispatcher := vaultservice.NewDispatcher(s.vaults, s.heirs, s.sink)
	orchestrator := NewOrchestrator(s.accounts, planStore, trigger.NewEvaluator(), granter, dispatcher, s.sink)
	cfg := config.RunConfig{UserTimeout: 5 * time.Second, LockTTL: time.Minute}
	return NewRunner(s.accounts, orchestrator, s.sink, cfg, opts...)
}

func (s *RunnerSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *RunnerSuite) seedUser(daysInactive int) *account.User {
	at := s.now.AddDate(0, 0, -daysInactive)
	user := &account.User{
		ID:            domain.NewUserID(),
		TriggerMethod: domain.TriggerMethodInactivity,
		LastActivity:  &at,
		IsActive:      true,
	}
	s.Require().NoError(s.accounts.Save(context.Background(), user))
	return user
}

func (s *RunnerSuite) seedPlan(userID domain.UserID) *plan.InheritancePlan {
	p := &plan.InheritancePlan{
		ID:       domain.NewPlanID(),
		UserID:   userID,
		PlanType: domain.PlanTypeFullAccess,
		IsActive: true,
	}
	s.Require().NoError(s.plans.Save(context.Background(), p))
	return p
}

func (s *RunnerSuite) TestRunOnceSweepsCandidates() {
	dormant := s.seedUser(45)
	s.seedPlan(dormant.ID)
	active := s.seedUser(3)
	s.seedPlan(active.ID)

	summary, err := s.newRunner(s.plans).RunOnce(s.ctx())
	s.Require().NoError(err)
	s.True(summary.Success)
	s.Equal(2, summary.TotalUsers)
	s.Equal(1, summary.TriggeredCount)
	s.Zero(summary.FailedUsers)
	s.True(summary.Timestamp.Equal(s.now))
}

func (s *RunnerSuite) TestRunOnceSkipsWhenLeaseHeld() {
	dormant := s.seedUser(45)
	p := s.seedPlan(dormant.ID)

	locker := &fakeLocker{acquired: false}
	summary, err := s.newRunner(s.plans, WithLocker(locker)).RunOnce(s.ctx())
	s.Require().NoError(err)
	s.True(summary.Success)
	s.Zero(summary.TotalUsers)
	s.Equal(1, locker.calls)

	stored, err := s.plans.Get(context.Background(), p.ID)
	s.Require().NoError(err)
	s.False(stored.IsTriggered, "a skipped run must not mutate state")
}

func (s *RunnerSuite) TestRunOnceContinuesPastFailingUser() {
	broken := s.seedUser(45)
	s.seedPlan(broken.ID)
	healthy := s.seedUser(45)
	s.seedPlan(healthy.ID)

	store := &failingPlanStore{Store: s.plans, failUser: broken.ID}
	summary, err := s.newRunner(store).RunOnce(s.ctx())
	s.Require().NoError(err)
	s.False(summary.Success)
	s.Equal(1, summary.FailedUsers)
	s.Equal(1, summary.TriggeredCount, "healthy user must still be processed")
}

func (s *RunnerSuite) TestRunOnceResumesStrandedTrigger() {
	user := s.seedUser(3)
	p := s.seedPlan(user.ID)

	created, _, err := s.plans.CreatePendingTrigger(context.Background(), &plan.InheritanceTrigger{
		ID:        domain.NewTriggerID(),
		PlanID:    p.ID,
		UserID:    user.ID,
		CreatedAt: s.now.Add(-time.Hour),
	})
	s.Require().NoError(err)
	s.Require().True(created)
	s.Require().NoError(s.plans.MarkTriggered(context.Background(), p.ID, s.now.Add(-time.Hour)))

	summary, err := s.newRunner(s.plans).RunOnce(s.ctx())
	s.Require().NoError(err)
	s.Equal(1, summary.ResumedCount)

	triggers, err := s.plans.ListTriggersByPlan(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Require().Len(triggers, 1)
	s.Equal(plan.TriggerStatusCompleted, triggers[0].Status)
}

// A deferred heir notification must be delivered by a later run even though
// its trigger completed long before the delay elapsed.
func (s *RunnerSuite) TestDeferredNotificationDeliveredByLaterRun() {
	dormant := s.seedUser(45)
	p := s.seedPlan(dormant.ID)
	h := &heir.Heir{
		ID:                    domain.NewHeirID(),
		PlanID:                p.ID,
		Email:                 "heir@example.com",
		NotifyOnActivation:    true,
		NotificationDelayDays: 7,
		IsActive:              true,
	}
	s.Require().NoError(s.heirs.SaveHeir(context.Background(), h))

	summary, err := s.newRunner(s.plans).RunOnce(s.ctx())
	s.Require().NoError(err)
	s.Equal(1, summary.TriggeredCount)
	s.Zero(summary.NotifiedCount)
	s.Empty(s.notifier.sent)

	parked, err := s.heirs.GetHeir(context.Background(), h.ID)
	s.Require().NoError(err)
	s.Equal(heir.NotificationStatusScheduled, parked.NotificationStatus)

	// Thirty days on, the trigger is long completed and no plan is
	// eligible; only the scheduled sweep can reach the parked heir.
	later := requestcontext.WithTime(context.Background(), s.now.AddDate(0, 0, 30))
	summary, err = s.newRunner(s.plans).RunOnce(later)
	s.Require().NoError(err)
	s.Zero(summary.TriggeredCount)
	s.Zero(summary.ResumedCount)
	s.Equal(1, summary.NotifiedCount)

	delivered, err := s.heirs.GetHeir(context.Background(), h.ID)
	s.Require().NoError(err)
	s.Equal(heir.NotificationStatusPendingVerification, delivered.NotificationStatus)
	s.Require().NotNil(delivered.NotifiedAt)
	s.Len(s.notifier.sent, 1)
}

// Random interleavings of runs, claims, verifications, and activity bumps
// must preserve the referential invariant: an access row reaches granted
// only when its plan is triggered.
func (s *RunnerSuite) TestGrantedOnlyAfterPlanFlip() {
	rng := rand.New(rand.NewSource(1))

	type fixture struct {
		user   *account.User
		plan   *plan.InheritancePlan
		access *heir.HeirVaultAccess
	}
	var fixtures []fixture
	for i := 0; i < 6; i++ {
		var user *account.User
		if i%2 == 0 {
			user = s.seedUser(20 + rng.Intn(30))
		} else {
			user = &account.User{
				ID:            domain.NewUserID(),
				TriggerMethod: domain.TriggerMethodDeathCertificate,
				IsActive:      true,
			}
			s.Require().NoError(s.accounts.Save(context.Background(), user))
		}
		p := s.seedPlan(user.ID)
		h := &heir.Heir{ID: domain.NewHeirID(), PlanID: p.ID, Email: "h@example.com", IsActive: true}
		s.Require().NoError(s.heirs.SaveHeir(context.Background(), h))
		a := &heir.HeirVaultAccess{
			ID:           domain.NewAccessID(),
			HeirID:       h.ID,
			VaultID:      domain.NewVaultID(),
			AccessStatus: heir.AccessStatusPending,
		}
		s.Require().NoError(s.heirs.SaveAccess(context.Background(), a))
		fixtures = append(fixtures, fixture{user: user, plan: p, access: a})
	}

	runner := s.newRunner(s.plans)
	orchestrator := runner.orchestrator
	for step := 0; step < 40; step++ {
		f := fixtures[rng.Intn(len(fixtures))]
		switch rng.Intn(4) {
		case 0:
			_, _ = runner.RunOnce(s.ctx())
		case 1:
			_, _ = orchestrator.RecordDeathClaim(s.ctx(), f.user.ID)
		case 2:
			_, _ = orchestrator.Verify(s.ctx(), f.user.ID)
		case 3:
			_ = s.accounts.RecordActivity(s.ctx(), f.user.ID, s.now.Add(time.Duration(step)*time.Minute))
		}

		for _, fx := range fixtures {
			a, err := s.heirs.GetAccess(context.Background(), fx.access.ID)
			s.Require().NoError(err)
			if a.AccessStatus == heir.AccessStatusGranted {
				p, err := s.plans.Get(context.Background(), fx.plan.ID)
				s.Require().NoError(err)
				s.True(p.IsTriggered, "access granted while plan %s untriggered", p.ID)
			}
		}
	}
}
