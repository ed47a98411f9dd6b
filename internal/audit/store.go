package audit

import (
	"context"

	id "heirloom/pkg/domain"
)

// Store persists audit events. Implementations must be append-only; nothing
// in the engine updates or deletes a recorded event.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
