package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"certhub/internal/certificate/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// InMemoryStore keeps certificates in a map. Used in tests and when no
// database is configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	certs map[id.CertificateID]*models.Certificate
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{certs: make(map[id.CertificateID]*models.Certificate)}
}

func clone(c *models.Certificate) *models.Certificate {
	cp := *c
	return &cp
}

func (s *InMemoryStore) Create(_ context.Context, c *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[c.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.certs {
		if existing.VerificationID == c.VerificationID {
			return sentinel.ErrConflict
		}
	}
	s.certs[c.ID] = clone(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, certID id.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) FindByVerificationID(_ context.Context, verificationID string) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certs {
		if c.VerificationID == verificationID {
			return clone(c), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByFileHash(_ context.Context, hash string) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Certificate
	for _, c := range s.certs {
		if hash == "" || c.FileHash != hash {
			continue
		}
		if found == nil || newerByHash(c, found) {
			found = c
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(found), nil
}

// newerByHash orders like the Postgres query: issue date, then creation
// time, then id.
func newerByHash(a, b *models.Certificate) bool {
	if !a.IssueDate.Equal(b.IssueDate) {
		return a.IssueDate.After(b.IssueDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (s *InMemoryStore) Update(_ context.Context, c *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.certs[c.ID] = clone(c)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, certID id.CertificateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[certID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.certs, certID)
	return nil
}

func matches(c *models.Certificate, f models.Filter) bool {
	if f.InstitutionID != nil && c.InstitutionID != *f.InstitutionID {
		return false
	}
	if f.Owner != nil {
		byUser := c.RecipientUserID != nil && *c.RecipientUserID == f.Owner.UserID
		if !byUser && c.RecipientEmail != f.Owner.Email {
			return false
		}
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(c.Title), q) &&
			!strings.Contains(strings.ToLower(c.RecipientName), q) &&
			!strings.Contains(strings.ToLower(c.VerificationID), q) {
			return false
		}
	}
	return true
}

func (s *InMemoryStore) List(_ context.Context, f models.Filter) ([]*models.Certificate, int, error) {
	s.mu.RLock()
	var matched []*models.Certificate
	for _, c := range s.certs {
		if matches(c, f) {
			matched = append(matched, clone(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].IssueDate.Equal(matched[j].IssueDate) {
			return matched[i].IssueDate.After(matched[j].IssueDate)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	total := len(matched)
	if f.Offset >= total {
		return []*models.Certificate{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (s *InMemoryStore) CountByInstitution(_ context.Context, instID id.InstitutionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.certs {
		if c.InstitutionID == instID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Status]int)
	for _, c := range s.certs {
		out[c.Status]++
	}
	return out, nil
}

func (s *InMemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.Certificate, error) {
	s.mu.RLock()
	var out []*models.Certificate
	for _, c := range s.certs {
		if c.Status == models.StatusActive && c.ExpiryDate != nil && c.ExpiryDate.Before(now) {
			out = append(out, clone(c))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(*out[j].ExpiryDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkExpired(_ context.Context, ids []id.CertificateID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, certID := range ids {
		c, ok := s.certs[certID]
		if !ok || c.Status != models.StatusActive {
			continue
		}
		c.Status = models.StatusExpired
		c.UpdatedAt = now
		n++
	}
	return n, nil
}
