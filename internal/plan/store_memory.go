package plan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// InMemoryStore implements Store behind a mutex. The coarse lock stands in
// for the database's atomic conditional updates.
type InMemoryStore struct {
	mu       sync.RWMutex
	plans    map[domain.PlanID]*InheritancePlan
	triggers map[domain.TriggerID]*InheritanceTrigger
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		plans:    make(map[domain.PlanID]*InheritancePlan),
		triggers: make(map[domain.TriggerID]*InheritanceTrigger),
	}
}

// Delete removes a plan. Test helper.
func (s *InMemoryStore) Delete(_ context.Context, planID domain.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.plans, planID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, planID domain.PlanID) (*InheritancePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", planID, sentinel.ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (s *InMemoryStore) ListEligible(_ context.Context, userID domain.UserID) ([]*InheritancePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*InheritancePlan
	for _, p := range s.plans {
		if p.UserID == userID && p.IsActive && !p.IsTriggered {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemoryStore) MarkTriggered(_ context.Context, planID domain.PlanID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, sentinel.ErrNotFound)
	}
	if p.IsTriggered {
		return fmt.Errorf("plan %s: %w", planID, sentinel.ErrAlreadyTriggered)
	}
	p.IsTriggered = true
	p.TriggeredAt = &at
	return nil
}

func (s *InMemoryStore) Save(_ context.Context, p *InheritancePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.plans[p.ID] = &copied
	return nil
}

func (s *InMemoryStore) CreatePendingTrigger(_ context.Context, t *InheritanceTrigger) (bool, *InheritanceTrigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.triggers {
		if existing.PlanID == t.PlanID && existing.Status == TriggerStatusPending {
			copied := *existing
			return false, &copied, nil
		}
	}
	copied := *t
	copied.Status = TriggerStatusPending
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.triggers[t.ID] = &copied
	out := copied
	return true, &out, nil
}

func (s *InMemoryStore) CompleteTrigger(_ context.Context, triggerID domain.TriggerID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return fmt.Errorf("trigger %s: %w", triggerID, sentinel.ErrNotFound)
	}
	if t.Status == TriggerStatusCompleted {
		return nil
	}
	t.Status = TriggerStatusCompleted
	t.CompletedAt = &at
	t.Error = ""
	return nil
}

func (s *InMemoryStore) FailTrigger(_ context.Context, triggerID domain.TriggerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return fmt.Errorf("trigger %s: %w", triggerID, sentinel.ErrNotFound)
	}
	if t.Status == TriggerStatusCompleted {
		return fmt.Errorf("trigger %s completed: %w", triggerID, sentinel.ErrInvalidState)
	}
	t.Status = TriggerStatusFailed
	t.Error = reason
	return nil
}

func (s *InMemoryStore) ListPendingTriggers(_ context.Context) ([]*InheritanceTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*InheritanceTrigger
	for _, t := range s.triggers {
		if t.Status == TriggerStatusPending {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListTriggersByPlan(_ context.Context, planID domain.PlanID) ([]*InheritanceTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*InheritanceTrigger
	for _, t := range s.triggers {
		if t.PlanID == planID {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
