package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "heirloom/pkg/domain-errors"
)

// IDs must be valid, non-empty, non-nil UUIDs at trust boundaries.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
	})
}

// Parsing must reject hostile input at API entry points.
func TestParseID_RejectsHostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE vaults;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// All ID types must validate identically; inconsistent parsing across types
// would open holes at the boundary.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errUser := ParseUserID(validUUID)
		_, errPlan := ParsePlanID(validUUID)
		_, errTrigger := ParseTriggerID(validUUID)
		_, errHeir := ParseHeirID(validUUID)
		_, errVault := ParseVaultID(validUUID)
		_, errItem := ParseVaultItemID(validUUID)
		_, errAccess := ParseAccessID(validUUID)

		require.NoError(t, errUser)
		require.NoError(t, errPlan)
		require.NoError(t, errTrigger)
		require.NoError(t, errHeir)
		require.NoError(t, errVault)
		require.NoError(t, errItem)
		require.NoError(t, errAccess)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errUser := ParseUserID(input)
			_, errPlan := ParsePlanID(input)
			_, errTrigger := ParseTriggerID(input)
			_, errHeir := ParseHeirID(input)
			_, errVault := ParseVaultID(input)
			_, errItem := ParseVaultItemID(input)
			_, errAccess := ParseAccessID(input)

			require.Error(t, errUser)
			require.Error(t, errPlan)
			require.Error(t, errTrigger)
			require.Error(t, errHeir)
			require.Error(t, errVault)
			require.Error(t, errItem)
			require.Error(t, errAccess)
		})
	}
}

// Typed IDs are distinct types; if these lines compile, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	userID := NewUserID()
	planID := NewPlanID()

	// var _ UserID = planID   // compile error
	// var _ PlanID = userID   // compile error

	assert.NotEqual(t, uuid.UUID(userID), uuid.UUID(planID))
}

func TestIsNil(t *testing.T) {
	assert.True(t, UserID(uuid.Nil).IsNil())
	assert.False(t, NewUserID().IsNil())
}
