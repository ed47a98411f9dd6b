package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"heirloom/internal/audit"
	"heirloom/internal/heir"
	"heirloom/internal/notify"
	"heirloom/internal/vault"
	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
	"heirloom/pkg/requestcontext"
)

type fakeNotifier struct {
	sent []notify.Notification
}

func (f *fakeNotifier) Send(n notify.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type DispatcherSuite struct {
	suite.Suite

	vaults     *vault.InMemoryStore
	heirs      *heir.InMemoryStore
	notifier   *fakeNotifier
	dispatcher *Dispatcher

	userID domain.UserID
	now    time.Time
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.vaults = vault.NewInMemoryStore()
	s.heirs = heir.NewInMemoryStore()
	s.notifier = &fakeNotifier{}
	sink := notify.NewSink(audit.NewPublisher(slog.Default()), s.notifier, slog.Default())
	s.dispatcher = NewDispatcher(s.vaults, s.heirs, sink)
	s.userID = domain.NewUserID()
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *DispatcherSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *DispatcherSuite) seedVault(category domain.VaultCategory, settings vault.DeathSettings) *vault.Vault {
	v := &vault.Vault{
		ID:            domain.NewVaultID(),
		UserID:        s.userID,
		Name:          "test vault",
		Category:      category,
		DeathSettings: settings,
	}
	s.Require().NoError(s.vaults.SaveVault(context.Background(), v))
	return v
}

func (s *DispatcherSuite) TestDeleteRemovesItemsThenVault() {
	v := s.seedVault(domain.VaultCategoryDelete, vault.DeathSettings{})
	item := &vault.VaultItem{ID: domain.NewVaultItemID(), VaultID: v.ID, Name: "key", Data: []byte("ciphertext")}
	s.Require().NoError(s.vaults.SaveItem(context.Background(), item))

	results, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.True(results[0].Success)
	s.Equal("delete", results[0].Action)

	_, err = s.vaults.Get(context.Background(), v.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	items, err := s.vaults.ListItems(context.Background(), v.ID)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *DispatcherSuite) TestDeleteTwiceIsNoOpSuccess() {
	s.seedVault(domain.VaultCategoryDelete, vault.DeathSettings{})

	_, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)

	// The vault is gone, so a second sweep sees nothing to do.
	results, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Empty(results)
}

func (s *DispatcherSuite) TestShareFlipsVaultAndPendingAccess() {
	v := s.seedVault(domain.VaultCategoryShare, vault.DeathSettings{})
	h := &heir.Heir{ID: domain.NewHeirID(), PlanID: domain.NewPlanID(), Email: "h@example.com", IsActive: true}
	s.Require().NoError(s.heirs.SaveHeir(context.Background(), h))
	a := &heir.HeirVaultAccess{
		ID:           domain.NewAccessID(),
		HeirID:       h.ID,
		VaultID:      v.ID,
		CanView:      true,
		AccessStatus: heir.AccessStatusPending,
	}
	s.Require().NoError(s.heirs.SaveAccess(context.Background(), a))

	results, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.True(results[0].Success)
	s.False(results[0].Skipped)

	shared, err := s.vaults.Get(context.Background(), v.ID)
	s.Require().NoError(err)
	s.True(shared.IsShared)

	granted, err := s.heirs.GetAccess(context.Background(), a.ID)
	s.Require().NoError(err)
	s.Equal(heir.AccessStatusGranted, granted.AccessStatus)
	s.Require().NotNil(granted.GrantedAt)
	s.True(granted.GrantedAt.Equal(s.now))
}

func (s *DispatcherSuite) TestShareSkipsAlreadySharedVault() {
	v := s.seedVault(domain.VaultCategoryShare, vault.DeathSettings{})
	v.IsShared = true
	s.Require().NoError(s.vaults.SaveVault(context.Background(), v))

	results, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.True(results[0].Success)
	s.True(results[0].Skipped)
}

func (s *DispatcherSuite) TestTrustedContactMarkerAndNotification() {
	v := s.seedVault(domain.VaultCategoryHandle, vault.DeathSettings{TrustedContactEmail: "contact@example.com"})

	results, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.True(results[0].Success)

	updated, err := s.vaults.Get(context.Background(), v.ID)
	s.Require().NoError(err)
	s.True(updated.DeathSettings.TrustedContactNotified)
	s.Require().NotNil(updated.DeathSettings.TrustedContactNotifiedAt)
	s.Require().Len(s.notifier.sent, 1)
	s.Equal(notify.KindTrustedContact, s.notifier.sent[0].Kind)
	s.Equal("contact@example.com", s.notifier.sent[0].Recipient)

	// Marker set, second dispatch skips and does not re-notify.
	results, err = s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.True(results[0].Skipped)
	s.Len(s.notifier.sent, 1)
}

func (s *DispatcherSuite) TestSignOffQueuedOnce() {
	v := s.seedVault(domain.VaultCategorySignOff, vault.DeathSettings{SignOffOperatorEmail: "ops@example.com"})

	results, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.True(results[0].Success)

	updated, err := s.vaults.Get(context.Background(), v.ID)
	s.Require().NoError(err)
	s.True(updated.DeathSettings.SignOffTaskCreated)
	s.Equal("pending", updated.DeathSettings.SignOffTaskStatus)

	results, err = s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.True(results[0].Skipped)
}

func (s *DispatcherSuite) TestOneVaultFailureDoesNotAbortSweep() {
	bad := s.seedVault(domain.VaultCategoryShare, vault.DeathSettings{})
	good := s.seedVault(domain.VaultCategorySignOff, vault.DeathSettings{})

	failing := &failingMarkShared{Store: s.vaults, failID: bad.ID}
	sink := notify.NewSink(audit.NewPublisher(slog.Default()), s.notifier, slog.Default())
	dispatcher := NewDispatcher(failing, s.heirs, sink)

	results, err := dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 2)

	byVault := map[domain.VaultID]vault.ActionResult{}
	for _, r := range results {
		byVault[r.VaultID] = r
	}
	s.False(byVault[bad.ID].Success)
	s.Contains(byVault[bad.ID].Error, "storage down")
	s.True(byVault[good.ID].Success)
}

func (s *DispatcherSuite) TestUnknownCategoryIsDataError() {
	v := &vault.Vault{ID: domain.NewVaultID(), UserID: s.userID, Category: domain.VaultCategory("mystery")}
	s.Require().NoError(s.vaults.SaveVault(context.Background(), v))

	results, err := s.dispatcher.DispatchUser(s.ctx(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.False(results[0].Success)
	s.Contains(results[0].Error, "unknown vault category")
}

type failingMarkShared struct {
	vault.Store
	failID domain.VaultID
}

func (f *failingMarkShared) MarkShared(ctx context.Context, vaultID domain.VaultID) (bool, error) {
	if vaultID == f.failID {
		return false, errors.New("storage down")
	}
	return f.Store.MarkShared(ctx, vaultID)
}
