package vault

import (
	"context"

	"heirloom/pkg/domain"
)

// Store persists vaults and their items.
type Store interface {
	// Get returns one vault. Wraps sentinel.ErrNotFound when absent.
	Get(ctx context.Context, vaultID domain.VaultID) (*Vault, error)

	// ListByUser returns every vault the user owns.
	ListByUser(ctx context.Context, userID domain.UserID) ([]*Vault, error)

	// ListItems returns the vault's items.
	ListItems(ctx context.Context, vaultID domain.VaultID) ([]*VaultItem, error)

	// DeleteItems removes every item in the vault and reports how many were
	// deleted. Deleting from an empty or absent vault is a no-op.
	DeleteItems(ctx context.Context, vaultID domain.VaultID) (int, error)

	// Delete removes the vault row. Deleting an absent vault is a no-op.
	Delete(ctx context.Context, vaultID domain.VaultID) error

	// MarkShared flips is_shared conditionally. Returns false without error
	// when the vault was already shared.
	MarkShared(ctx context.Context, vaultID domain.VaultID) (bool, error)

	// UpdateDeathSettings replaces the disposition-progress bag.
	UpdateDeathSettings(ctx context.Context, vaultID domain.VaultID, settings DeathSettings) error

	// SaveVault and SaveItem upsert rows. Fixture and collaborator surface.
	SaveVault(ctx context.Context, v *Vault) error
	SaveItem(ctx context.Context, item *VaultItem) error
}
