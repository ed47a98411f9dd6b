package vault

import (
	"time"

	"heirloom/pkg/domain"
)

// DeathSettings is the disposition-progress bag persisted on the vault row.
// Markers here make re-dispatch a no-op: the dispatcher checks them before
// acting.
type DeathSettings struct {
	TrustedContactEmail      string     `json:"trusted_contact_email,omitempty"`
	TrustedContactNotified   bool       `json:"trusted_contact_notified,omitempty"`
	TrustedContactNotifiedAt *time.Time `json:"trusted_contact_notified_at,omitempty"`

	SignOffOperatorEmail string     `json:"signoff_operator_email,omitempty"`
	SignOffTaskCreated   bool       `json:"signoff_task_created,omitempty"`
	SignOffTaskStatus    string     `json:"task_status,omitempty"`
	SignOffQueuedAt      *time.Time `json:"signoff_queued_at,omitempty"`
}

// Vault is a user-owned container of encrypted items.
type Vault struct {
	ID            domain.VaultID
	UserID        domain.UserID
	Name          string
	Category      domain.VaultCategory
	DeathSettings DeathSettings
	IsShared      bool
}

// VaultItem is one encrypted secret. Data stays opaque to the engine.
type VaultItem struct {
	ID      domain.VaultItemID
	VaultID domain.VaultID
	Name    string
	Data    []byte
}

// ActionResult records one disposition attempt. Kept ephemeral; durable
// traces live in death_settings markers and the audit log.
type ActionResult struct {
	VaultID   domain.VaultID
	Category  domain.VaultCategory
	Action    string
	Success   bool
	Skipped   bool
	Error     string
	Timestamp time.Time
}
