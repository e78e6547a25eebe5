package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"certhub/internal/institution/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// InMemoryStore keeps institutions and memberships in maps.
type InMemoryStore struct {
	mu           sync.RWMutex
	institutions map[id.InstitutionID]*models.Institution
	members      map[id.UserID]*models.Member
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		institutions: make(map[id.InstitutionID]*models.Institution),
		members:      make(map[id.UserID]*models.Member),
	}
}

func (s *InMemoryStore) nameTaken(name string, except id.InstitutionID) bool {
	for _, inst := range s.institutions {
		if inst.ID != except && inst.Name == name {
			return true
		}
	}
	return false
}

func (s *InMemoryStore) Create(_ context.Context, inst *models.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutions[inst.ID]; ok || s.nameTaken(inst.Name, inst.ID) {
		return sentinel.ErrConflict
	}
	cp := *inst
	s.institutions[inst.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, instID id.InstitutionID) (*models.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.institutions[instID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, inst *models.Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutions[inst.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.nameTaken(inst.Name, inst.ID) {
		return sentinel.ErrConflict
	}
	cp := *inst
	s.institutions[inst.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, instID id.InstitutionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutions[instID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.institutions, instID)
	for userID, m := range s.members {
		if m.InstitutionID == instID {
			delete(s.members, userID)
		}
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, f models.Filter) ([]*models.Institution, int, error) {
	s.mu.RLock()
	search := strings.ToLower(f.Search)
	var matched []*models.Institution
	for _, inst := range s.institutions {
		if f.OnlyID != nil && inst.ID != *f.OnlyID {
			continue
		}
		if f.Status != "" && inst.Status != f.Status {
			continue
		}
		if f.Type != "" && inst.Type != f.Type {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(inst.Name), search) {
			continue
		}
		cp := *inst
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	if f.Offset >= total {
		return []*models.Institution{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Status]int)
	for _, inst := range s.institutions {
		out[inst.Status]++
	}
	return out, nil
}

func (s *InMemoryStore) AddMember(_ context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutions[m.InstitutionID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.members[m.UserID]; ok {
		return sentinel.ErrConflict
	}
	cp := *m
	s.members[m.UserID] = &cp
	return nil
}

func (s *InMemoryStore) RemoveMember(_ context.Context, instID id.InstitutionID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok || m.InstitutionID != instID {
		return sentinel.ErrNotFound
	}
	delete(s.members, userID)
	return nil
}

// ListMembers returns memberships without user details; callers enrich them.
func (s *InMemoryStore) ListMembers(_ context.Context, instID id.InstitutionID) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Member
	for _, m := range s.members {
		if m.InstitutionID == instID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CountMembers(_ context.Context, instID id.InstitutionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.members {
		if m.InstitutionID == instID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) InstitutionOf(_ context.Context, userID id.UserID) (id.InstitutionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[userID]
	if !ok {
		return id.InstitutionID{}, sentinel.ErrNotFound
	}
	return m.InstitutionID, nil
}
