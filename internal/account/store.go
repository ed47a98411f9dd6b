package account

import (
	"context"
	"time"

	"heirloom/pkg/domain"
)

// Store provides the engine's view of accounts.
type Store interface {
	// Get returns one user snapshot. Wraps sentinel.ErrNotFound when absent.
	Get(ctx context.Context, userID domain.UserID) (*User, error)

	// ListCandidates returns active users for the batch runner to evaluate.
	ListCandidates(ctx context.Context) ([]*User, error)

	// RecordActivity bumps last_activity as a monotonic-max update: a late
	// out-of-order write must never move the timestamp backward.
	RecordActivity(ctx context.Context, userID domain.UserID, at time.Time) error

	// Save upserts a user snapshot. Used by fixtures and the account
	// subsystem's sync path.
	Save(ctx context.Context, user *User) error
}
