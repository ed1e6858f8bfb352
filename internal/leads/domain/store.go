package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"intake_backend/platform/phone"
)

// Store is the persistence contract the intake flow depends on. Lookups are
// exact-match only; identity data from different records is never mixed.
type Store interface {
	// LookupLead finds a lead by exact email (case-insensitive) or, failing
	// that, by digit-normalized phone number. Returns ErrNotFound when
	// neither matches.
	LookupLead(ctx context.Context, email, phoneNumber string) (*Record, error)

	// CreateLead inserts a new lead with just identity data and returns its id.
	CreateLead(ctx context.Context, email, phoneNumber string) (int64, error)

	// UpdateLead writes profile columns on an existing lead. Column names
	// outside UpdatableColumns are rejected.
	UpdateLead(ctx context.Context, leadID int64, fields map[string]string) error

	// CreateHandoff records a staff follow-up request and returns its id.
	CreateHandoff(ctx context.Context, leadID int64, handoffType string, payload map[string]interface{}) (int64, error)
}

// Handoff is a recorded staff follow-up request.
type Handoff struct {
	HandoffID   int64                  `json:"handoff_id"`
	LeadID      int64                  `json:"lead_id"`
	HandoffType string                 `json:"handoff_type"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
}

// MemStore is an in-memory Store used by tests and local development.
type MemStore struct {
	mu         sync.Mutex
	leads      map[int64]*Record
	handoffs   []Handoff
	nextLead   int64
	nextHandoff int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		leads:       make(map[int64]*Record),
		nextLead:    1,
		nextHandoff: 1,
	}
}

// Seed inserts a record directly, assigning an id when unset. Test helper.
func (s *MemStore) Seed(rec *Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.LeadID == 0 {
		rec.LeadID = s.nextLead
		s.nextLead++
	} else if rec.LeadID >= s.nextLead {
		s.nextLead = rec.LeadID + 1
	}
	s.leads[rec.LeadID] = rec.Clone()
	return rec.LeadID
}

func (s *MemStore) LookupLead(_ context.Context, email, phoneNumber string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.leads {
		if strings.EqualFold(rec.Email, email) {
			return rec.Clone(), nil
		}
	}

	digits := phone.Digits(phoneNumber)
	if digits != "" {
		for _, rec := range s.leads {
			if phone.Digits(rec.MobilePhone) == digits {
				return rec.Clone(), nil
			}
		}
	}

	return nil, ErrNotFound
}

func (s *MemStore) CreateLead(_ context.Context, email, phoneNumber string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextLead
	s.nextLead++
	now := time.Now()
	s.leads[id] = &Record{
		LeadID:      id,
		Email:       email,
		MobilePhone: phoneNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return id, nil
}

func (s *MemStore) UpdateLead(_ context.Context, leadID int64, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	for col := range fields {
		if !UpdatableColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.leads[leadID]
	if !ok {
		return ErrNotFound
	}
	for col, value := range fields {
		rec.SetField(col, value)
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) CreateHandoff(_ context.Context, leadID int64, handoffType string, payload map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextHandoff
	s.nextHandoff++
	s.handoffs = append(s.handoffs, Handoff{
		HandoffID:   id,
		LeadID:      leadID,
		HandoffType: handoffType,
		Payload:     payload,
		CreatedAt:   time.Now(),
	})
	return id, nil
}

// Lead returns a copy of a stored lead. Test helper.
func (s *MemStore) Lead(leadID int64) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.leads[leadID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Handoffs returns all recorded handoffs. Test helper.
func (s *MemStore) Handoffs() []Handoff {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handoff, len(s.handoffs))
	copy(out, s.handoffs)
	return out
}
