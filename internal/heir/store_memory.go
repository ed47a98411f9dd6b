package heir

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// InMemoryStore implements Store behind a mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	heirs  map[domain.HeirID]*Heir
	access map[domain.AccessID]*HeirVaultAccess
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		heirs:  make(map[domain.HeirID]*Heir),
		access: make(map[domain.AccessID]*HeirVaultAccess),
	}
}

func (s *InMemoryStore) ListActiveByPlan(_ context.Context, planID domain.PlanID) ([]*Heir, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Heir
	for _, h := range s.heirs {
		if h.PlanID == planID && h.IsActive {
			copied := *h
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) ListScheduled(_ context.Context) ([]*Heir, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Heir
	for _, h := range s.heirs {
		if h.IsActive && h.NotificationStatus == NotificationStatusScheduled {
			copied := *h
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) ListPendingAccessByHeir(_ context.Context, heirID domain.HeirID) ([]*HeirVaultAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*HeirVaultAccess
	for _, a := range s.access {
		if a.HeirID == heirID && a.AccessStatus == AccessStatusPending {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) ListPendingAccessByVault(_ context.Context, vaultID domain.VaultID) ([]*HeirVaultAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*HeirVaultAccess
	for _, a := range s.access {
		if a.VaultID == vaultID && a.AccessStatus == AccessStatusPending {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) GrantAccess(_ context.Context, accessID domain.AccessID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.access[accessID]
	if !ok {
		return fmt.Errorf("access %s: %w", accessID, sentinel.ErrNotFound)
	}
	if a.AccessStatus != AccessStatusPending {
		return nil
	}
	a.AccessStatus = AccessStatusGranted
	a.GrantedAt = &at
	return nil
}

func (s *InMemoryStore) SetNotification(_ context.Context, heirID domain.HeirID, status NotificationStatus, notifiedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.heirs[heirID]
	if !ok {
		return fmt.Errorf("heir %s: %w", heirID, sentinel.ErrNotFound)
	}
	h.NotificationStatus = status
	if notifiedAt != nil {
		h.NotifiedAt = notifiedAt
	}
	return nil
}

func (s *InMemoryStore) SaveHeir(_ context.Context, h *Heir) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *h
	s.heirs[h.ID] = &copied
	return nil
}

func (s *InMemoryStore) SaveAccess(_ context.Context, a *HeirVaultAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	s.access[a.ID] = &copied
	return nil
}

func (s *InMemoryStore) GetHeir(_ context.Context, heirID domain.HeirID) (*Heir, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.heirs[heirID]
	if !ok {
		return nil, fmt.Errorf("heir %s: %w", heirID, sentinel.ErrNotFound)
	}
	copied := *h
	return &copied, nil
}

func (s *InMemoryStore) GetAccess(_ context.Context, accessID domain.AccessID) (*HeirVaultAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.access[accessID]
	if !ok {
		return nil, fmt.Errorf("access %s: %w", accessID, sentinel.ErrNotFound)
	}
	copied := *a
	return &copied, nil
}
