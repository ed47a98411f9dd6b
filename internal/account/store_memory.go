package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// InMemoryStore holds user snapshots behind a mutex for tests and
// single-node runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[domain.UserID]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[domain.UserID]*User)}
}

func (s *InMemoryStore) Get(_ context.Context, userID domain.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (s *InMemoryStore) ListCandidates(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, user := range s.users {
		if !user.IsActive {
			continue
		}
		copied := *user
		out = append(out, &copied)
	}
	return out, nil
}

func (s *InMemoryStore) RecordActivity(_ context.Context, userID domain.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	// Monotonic max: ignore late writes older than the stored timestamp.
	if user.LastActivity == nil || at.After(*user.LastActivity) {
		user.LastActivity = &at
	}
	return nil
}

func (s *InMemoryStore) Save(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}
