package domain

import (
	"github.com/google/uuid"

	dErrors "heirloom/pkg/domain-errors"
)

// Typed IDs prevent cross-entity assignment at compile time. Construct via
// the Parse* helpers at trust boundaries; direct casting bypasses validation.
type (
	UserID      uuid.UUID
	PlanID      uuid.UUID
	TriggerID   uuid.UUID
	HeirID      uuid.UUID
	VaultID     uuid.UUID
	VaultItemID uuid.UUID
	AccessID    uuid.UUID
)

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id PlanID) String() string      { return uuid.UUID(id).String() }
func (id TriggerID) String() string   { return uuid.UUID(id).String() }
func (id HeirID) String() string      { return uuid.UUID(id).String() }
func (id VaultID) String() string     { return uuid.UUID(id).String() }
func (id VaultItemID) String() string { return uuid.UUID(id).String() }
func (id AccessID) String() string    { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id PlanID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id TriggerID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id HeirID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id VaultID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id VaultItemID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AccessID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewUserID generates a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewPlanID generates a fresh random plan ID.
func NewPlanID() PlanID { return PlanID(uuid.New()) }

// NewTriggerID generates a fresh random trigger ID.
func NewTriggerID() TriggerID { return TriggerID(uuid.New()) }

// NewHeirID generates a fresh random heir ID.
func NewHeirID() HeirID { return HeirID(uuid.New()) }

// NewVaultID generates a fresh random vault ID.
func NewVaultID() VaultID { return VaultID(uuid.New()) }

// NewVaultItemID generates a fresh random vault item ID.
func NewVaultItemID() VaultItemID { return VaultItemID(uuid.New()) }

// NewAccessID generates a fresh random access grant ID.
func NewAccessID() AccessID { return AccessID(uuid.New()) }

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParsePlanID constructs a PlanID from external input.
func ParsePlanID(s string) (PlanID, error) {
	u, err := parseUUID(s, "plan_id")
	return PlanID(u), err
}

// ParseTriggerID constructs a TriggerID from external input.
func ParseTriggerID(s string) (TriggerID, error) {
	u, err := parseUUID(s, "trigger_id")
	return TriggerID(u), err
}

// ParseHeirID constructs a HeirID from external input.
func ParseHeirID(s string) (HeirID, error) {
	u, err := parseUUID(s, "heir_id")
	return HeirID(u), err
}

// ParseVaultID constructs a VaultID from external input.
func ParseVaultID(s string) (VaultID, error) {
	u, err := parseUUID(s, "vault_id")
	return VaultID(u), err
}

// ParseVaultItemID constructs a VaultItemID from external input.
func ParseVaultItemID(s string) (VaultItemID, error) {
	u, err := parseUUID(s, "vault_item_id")
	return VaultItemID(u), err
}

// ParseAccessID constructs an AccessID from external input.
func ParseAccessID(s string) (AccessID, error) {
	u, err := parseUUID(s, "access_id")
	return AccessID(u), err
}
