package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// InMemoryStore implements Store behind a mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	vaults map[domain.VaultID]*Vault
	items  map[domain.VaultItemID]*VaultItem
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		vaults: make(map[domain.VaultID]*Vault),
		items:  make(map[domain.VaultItemID]*VaultItem),
	}
}

func (s *InMemoryStore) Get(_ context.Context, vaultID domain.VaultID) (*Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", vaultID, sentinel.ErrNotFound)
	}
	copied := *v
	return &copied, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID domain.UserID) ([]*Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Vault
	for _, v := range s.vaults {
		if v.UserID == userID {
			copied := *v
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) ListItems(_ context.Context, vaultID domain.VaultID) ([]*VaultItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*VaultItem
	for _, item := range s.items {
		if item.VaultID == vaultID {
			copied := *item
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) DeleteItems(_ context.Context, vaultID domain.VaultID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, item := range s.items {
		if item.VaultID == vaultID {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) Delete(_ context.Context, vaultID domain.VaultID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vaults, vaultID)
	return nil
}

func (s *InMemoryStore) MarkShared(_ context.Context, vaultID domain.VaultID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return false, fmt.Errorf("vault %s: %w", vaultID, sentinel.ErrNotFound)
	}
	if v.IsShared {
		return false, nil
	}
	v.IsShared = true
	return true, nil
}

func (s *InMemoryStore) UpdateDeathSettings(_ context.Context, vaultID domain.VaultID, settings DeathSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return fmt.Errorf("vault %s: %w", vaultID, sentinel.ErrNotFound)
	}
	v.DeathSettings = settings
	return nil
}

func (s *InMemoryStore) SaveVault(_ context.Context, v *Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *v
	s.vaults[v.ID] = &copied
	return nil
}

func (s *InMemoryStore) SaveItem(_ context.Context, item *VaultItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *item
	s.items[item.ID] = &copied
	return nil
}
