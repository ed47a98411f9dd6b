package domain

import dErrors "heirloom/pkg/domain-errors"

// PlanType describes what a triggered plan ultimately hands to heirs.
type PlanType string

// Supported plan types.
const (
	PlanTypeFullAccess    PlanType = "full_access"
	PlanTypePartialAccess PlanType = "partial_access"
	PlanTypeViewOnly      PlanType = "view_only"
	PlanTypeDestroy       PlanType = "destroy"
)

var validPlanTypes = map[PlanType]bool{
	PlanTypeFullAccess:    true,
	PlanTypePartialAccess: true,
	PlanTypeViewOnly:      true,
	PlanTypeDestroy:       true,
}

// ParsePlanType constructs a PlanType from external input.
func ParsePlanType(s string) (PlanType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "plan type cannot be empty")
	}
	p := PlanType(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid plan type")
	}
	return p, nil
}

// IsValid checks if the plan type is one of the supported enum values.
func (p PlanType) IsValid() bool {
	return validPlanTypes[p]
}

// String returns the string representation of the plan type.
func (p PlanType) String() string {
	return string(p)
}
