package heir

import (
	"context"
	"time"

	"heirloom/pkg/domain"
)

// Store persists heirs and their vault access rows.
type Store interface {
	// ListActiveByPlan returns the plan's active heirs.
	ListActiveByPlan(ctx context.Context, planID domain.PlanID) ([]*Heir, error)

	// ListScheduled returns active heirs owed a notification: their plan
	// has triggered but delivery was deferred or failed. The batch run
	// sweeps these until each is delivered.
	ListScheduled(ctx context.Context) ([]*Heir, error)

	// ListPendingAccessByHeir returns the heir's pending grants.
	ListPendingAccessByHeir(ctx context.Context, heirID domain.HeirID) ([]*HeirVaultAccess, error)

	// ListPendingAccessByVault returns every pending grant scoped to a
	// vault, across heirs. Used by the share_after_death disposition.
	ListPendingAccessByVault(ctx context.Context, vaultID domain.VaultID) ([]*HeirVaultAccess, error)

	// GrantAccess flips one row pending→granted and stamps granted_at.
	// A row that is not pending is left unchanged (idempotent re-dispatch).
	GrantAccess(ctx context.Context, accessID domain.AccessID, at time.Time) error

	// SetNotification stamps the heir's notification state.
	SetNotification(ctx context.Context, heirID domain.HeirID, status NotificationStatus, notifiedAt *time.Time) error

	// SaveHeir and SaveAccess upsert rows. Fixture and collaborator surface.
	SaveHeir(ctx context.Context, h *Heir) error
	SaveAccess(ctx context.Context, a *HeirVaultAccess) error

	// GetHeir returns one heir. Wraps sentinel.ErrNotFound when absent.
	GetHeir(ctx context.Context, heirID domain.HeirID) (*Heir, error)

	// GetAccess returns one access row. Wraps sentinel.ErrNotFound when absent.
	GetAccess(ctx context.Context, accessID domain.AccessID) (*HeirVaultAccess, error)
}
