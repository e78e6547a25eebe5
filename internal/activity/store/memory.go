package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"certhub/internal/activity/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// InMemoryStore keeps activity logs in memory. Used by tests and the
// database-less development mode.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []*models.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.records = append(s.records, &cp)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, logID id.ActivityLogID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == logID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, f models.Filter) ([]*models.Record, int, error) {
	s.mu.RLock()
	var matched []*models.Record
	for _, r := range s.records {
		if matches(r, f) {
			cp := *r
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if f.Offset >= total {
		return []*models.Record{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (s *InMemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if r.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

func (s *InMemoryStore) CountSince(_ context.Context, category models.Category, status models.Status, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.Category == category && r.Status == status && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// All returns every stored record in insertion order.
func (s *InMemoryStore) All() []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, len(s.records))
	copy(out, s.records)
	return out
}

func matches(r *models.Record, f models.Filter) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.UserID != nil && (r.UserID == nil || *r.UserID != *f.UserID) {
		return false
	}
	if f.InstitutionID != nil && (r.InstitutionID == nil || *r.InstitutionID != *f.InstitutionID) {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
