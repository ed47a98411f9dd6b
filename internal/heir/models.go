package heir

import (
	"time"

	"heirloom/pkg/domain"
)

// AccessLevel is what a triggered plan grants this heir.
type AccessLevel string

const (
	AccessLevelFull    AccessLevel = "full"
	AccessLevelLimited AccessLevel = "limited"
	AccessLevelView    AccessLevel = "view"
)

// NotificationStatus tracks the heir-facing notification lifecycle.
type NotificationStatus string

const (
	NotificationStatusNone NotificationStatus = "none"
	// NotificationStatusScheduled means the plan triggered but the heir's
	// notification delay has not elapsed yet.
	NotificationStatusScheduled NotificationStatus = "scheduled"
	// NotificationStatusPendingVerification means notification was handed
	// to the sink and the heir has yet to verify their identity.
	NotificationStatusPendingVerification NotificationStatus = "pending_verification"
)

// AccessStatus tracks one heir-vault grant. granted is only reachable after
// the owning plan's is_triggered flip.
type AccessStatus string

const (
	AccessStatusPending AccessStatus = "pending"
	AccessStatusGranted AccessStatus = "granted"
	AccessStatusRevoked AccessStatus = "revoked"
)

// Heir is a designated recipient of post-activation access.
type Heir struct {
	ID                    domain.HeirID
	PlanID                domain.PlanID
	Email                 string
	Name                  string
	AccessLevel           AccessLevel
	NotifyOnActivation    bool
	NotificationDelayDays int
	NotifiedAt            *time.Time
	NotificationStatus    NotificationStatus
	IsActive              bool
}

// HeirVaultAccess links an heir to a vault or a single vault item.
type HeirVaultAccess struct {
	ID     domain.AccessID
	HeirID domain.HeirID
	VaultID domain.VaultID
	// VaultItemID narrows the grant to one item; nil grants the vault.
	VaultItemID  *domain.VaultItemID
	CanView      bool
	CanExport    bool
	CanEdit      bool
	AccessStatus AccessStatus
	GrantedAt    *time.Time
}
