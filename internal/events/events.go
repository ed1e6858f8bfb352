// Package events provides domain event definitions for decoupled
// communication between modules. Infrastructure (Bus, Handler) is in
// platform/events.
package events

import (
	"intake_backend/platform/events"
	"intake_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a new participant lead is created during
// intake.
type LeadCreated struct {
	BaseEvent
	LeadID  int64  `json:"leadId"`
	StudyID string `json:"studyId"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// =============================================================================
// Intake Domain Events
// =============================================================================

// HandoffCreated is published when a screening conversation ends in a state
// that requires staff follow-up.
type HandoffCreated struct {
	BaseEvent
	SessionID string `json:"sessionId"`
	StudyID   string `json:"studyId"`
	LeadID    int64  `json:"leadId,omitempty"`
	// Reason is the handoff category: qualified, disqualified,
	// needs_human or auth_failed.
	Reason  string   `json:"reason"`
	Details []string `json:"details,omitempty"`
}

func (e HandoffCreated) EventName() string { return "intake.handoff.created" }

// SessionCompleted is published when a screening session reaches any
// terminal step.
type SessionCompleted struct {
	BaseEvent
	SessionID string `json:"sessionId"`
	StudyID   string `json:"studyId"`
	FinalStep string `json:"finalStep"`
}

func (e SessionCompleted) EventName() string { return "intake.session.completed" }
