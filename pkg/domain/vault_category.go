package domain

import dErrors "heirloom/pkg/domain-errors"

// VaultCategory selects the disposition applied to a vault once its owner's
// plan triggers. The set is closed: adding a category is a compile-time
// change in the dispatcher, not a silent default-case fallthrough.
type VaultCategory string

// Supported vault categories.
const (
	// VaultCategoryDelete destroys the vault and its items on activation.
	VaultCategoryDelete VaultCategory = "delete_after_death"

	// VaultCategoryShare marks the vault shared and grants pending heir
	// access rows.
	VaultCategoryShare VaultCategory = "share_after_death"

	// VaultCategoryHandle records that a trusted contact must be notified;
	// delivery itself is the notification sink's job.
	VaultCategoryHandle VaultCategory = "handle_after_death"

	// VaultCategorySignOff queues the vault for a human operator to close
	// out accounts and obligations.
	VaultCategorySignOff VaultCategory = "sign_off_after_death"
)

// validVaultCategories is the single source of truth for valid categories.
var validVaultCategories = map[VaultCategory]bool{
	VaultCategoryDelete:  true,
	VaultCategoryShare:   true,
	VaultCategoryHandle:  true,
	VaultCategorySignOff: true,
}

// ParseVaultCategory constructs a VaultCategory from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseVaultCategory(s string) (VaultCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "vault category cannot be empty")
	}
	c := VaultCategory(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid vault category")
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c VaultCategory) IsValid() bool {
	return validVaultCategories[c]
}

// String returns the string representation of the category.
func (c VaultCategory) String() string {
	return string(c)
}
