package store

import (
	"context"
	"sort"
	"sync"

	"certhub/internal/support/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

// InMemoryStore keeps tickets and their threads in maps. Deleting a ticket
// drops its messages and attachments, mirroring the cascade in PostgreSQL.
type InMemoryStore struct {
	mu          sync.RWMutex
	tickets     map[id.TicketID]*models.Ticket
	messages    map[id.TicketID][]*models.Message
	attachments map[id.TicketID][]*models.Attachment
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		tickets:     make(map[id.TicketID]*models.Ticket),
		messages:    make(map[id.TicketID][]*models.Message),
		attachments: make(map[id.TicketID][]*models.Attachment),
	}
}

func (s *InMemoryStore) Create(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, ticketID id.TicketID) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, ticketID id.TicketID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticketID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.tickets, ticketID)
	delete(s.messages, ticketID)
	delete(s.attachments, ticketID)
	return nil
}

func visible(t *models.Ticket, v models.Visibility) bool {
	if v.UserID == nil && v.InstitutionID == nil {
		return true
	}
	if v.UserID != nil && t.CreatorID == *v.UserID {
		return true
	}
	return v.InstitutionID != nil && t.InstitutionID != nil && *t.InstitutionID == *v.InstitutionID
}

func (s *InMemoryStore) List(_ context.Context, f models.Filter) ([]*models.Ticket, int, error) {
	s.mu.RLock()
	var matched []*models.Ticket
	for _, t := range s.tickets {
		if !visible(t, f.Visible) {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		cp := *t
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	total := len(matched)
	if f.Offset >= total {
		return []*models.Ticket{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func (s *InMemoryStore) CountOpen(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tickets {
		if t.Status.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) AddMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[m.TicketID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *m
	s.messages[m.TicketID] = append(s.messages[m.TicketID], &cp)
	return nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, ticketID id.TicketID, includeInternal bool) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Message, 0, len(s.messages[ticketID]))
	for _, m := range s.messages[ticketID] {
		if m.Internal && !includeInternal {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) AddAttachment(_ context.Context, a *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[a.TicketID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *a
	s.attachments[a.TicketID] = append(s.attachments[a.TicketID], &cp)
	return nil
}

func (s *InMemoryStore) ListAttachments(_ context.Context, ticketID id.TicketID) ([]*models.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Attachment, 0, len(s.attachments[ticketID]))
	for _, a := range s.attachments[ticketID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}
