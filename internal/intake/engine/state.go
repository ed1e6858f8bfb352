// Package engine implements the turn-driven screening conversation: a state
// machine whose nodes produce partial updates that are merged into an
// immutable-per-turn conversation state.
package engine

import (
	"intake_backend/internal/eligibility"
	"intake_backend/internal/leads/domain"
)

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Identity is the contact data collected before lead lookup.
type Identity struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// State is the full screening conversation state. It is serialized as-is
// into the session store, so every field must round-trip through JSON.
type State struct {
	StudyID     string    `json:"study_id"`
	Messages    []Message `json:"messages"`
	CurrentStep Step      `json:"current_step"`

	LeadIdentity Identity       `json:"lead_identity"`
	LeadRecord   *domain.Record `json:"lead_record,omitempty"`
	LeadID       int64          `json:"lead_id,omitempty"`
	IsNewLead    bool           `json:"is_new_lead,omitempty"`

	PinAttempts int  `json:"pin_attempts,omitempty"`
	PinVerified bool `json:"pin_verified,omitempty"`

	MissingFields    []string          `json:"missing_fields,omitempty"`
	CollectedAnswers map[string]string `json:"collected_answers,omitempty"`

	PrescreenAnswers map[string]string `json:"prescreen_answers,omitempty"`
	PrescreenIndex   int               `json:"current_prescreen_index,omitempty"`

	EligibilityResult eligibility.Outcome `json:"eligibility_result,omitempty"`
	PreferredTimes    []string            `json:"preferred_times,omitempty"`
	HandoffType       string              `json:"handoff_type,omitempty"`
}

// NewState returns the initial state for a study.
func NewState(studyID string) State {
	return State{StudyID: studyID}
}

// LastUserText returns the content of the most recent user message.
func (s State) LastUserText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastAssistantText returns the content of the most recent assistant message.
func (s State) LastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// WithUserMessage returns a copy of the state with the user's message
// appended to the transcript.
func (s State) WithUserMessage(text string) State {
	out := s
	out.Messages = appendMessage(s.Messages, Message{Role: RoleUser, Content: text})
	return out
}

// Update is a node's partial output. Nil pointers and unset flags leave the
// corresponding state field untouched; Messages are appended, maps and
// slices replace wholesale.
type Update struct {
	Messages    []Message
	CurrentStep *Step

	LeadIdentity *Identity
	// LeadRecordSet distinguishes "leave unchanged" from "set to nil".
	LeadRecord    *domain.Record
	LeadRecordSet bool
	LeadID        *int64
	IsNewLead     *bool

	PinAttempts *int
	PinVerified *bool

	MissingFields    []string
	MissingFieldsSet bool
	CollectedAnswers map[string]string

	PrescreenAnswers map[string]string
	PrescreenIndex   *int

	EligibilityResult *eligibility.Outcome
	PreferredTimes    []string
	HandoffType       *string
}

// Apply merges a node update into the state and returns the new state. The
// receiver is not modified.
func (s State) Apply(u Update) State {
	out := s
	if len(u.Messages) > 0 {
		out.Messages = appendMessages(s.Messages, u.Messages)
	}
	if u.CurrentStep != nil {
		out.CurrentStep = *u.CurrentStep
	}
	if u.LeadIdentity != nil {
		out.LeadIdentity = *u.LeadIdentity
	}
	if u.LeadRecordSet {
		out.LeadRecord = u.LeadRecord
	}
	if u.LeadID != nil {
		out.LeadID = *u.LeadID
	}
	if u.IsNewLead != nil {
		out.IsNewLead = *u.IsNewLead
	}
	if u.PinAttempts != nil {
		out.PinAttempts = *u.PinAttempts
	}
	if u.PinVerified != nil {
		out.PinVerified = *u.PinVerified
	}
	if u.MissingFieldsSet {
		out.MissingFields = u.MissingFields
	}
	if u.CollectedAnswers != nil {
		out.CollectedAnswers = u.CollectedAnswers
	}
	if u.PrescreenAnswers != nil {
		out.PrescreenAnswers = u.PrescreenAnswers
	}
	if u.PrescreenIndex != nil {
		out.PrescreenIndex = *u.PrescreenIndex
	}
	if u.EligibilityResult != nil {
		out.EligibilityResult = *u.EligibilityResult
	}
	if u.PreferredTimes != nil {
		out.PreferredTimes = u.PreferredTimes
	}
	if u.HandoffType != nil {
		out.HandoffType = *u.HandoffType
	}
	return out
}

// appendMessage copies before appending so two states never share a
// transcript backing array.
func appendMessage(msgs []Message, msg Message) []Message {
	out := make([]Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, msg)
}

func appendMessages(msgs, extra []Message) []Message {
	out := make([]Message, len(msgs), len(msgs)+len(extra))
	copy(out, msgs)
	return append(out, extra...)
}

// helpers for building updates

func stepPtr(s Step) *Step       { return &s }
func strPtr(s string) *string    { return &s }
func intPtr(i int) *int          { return &i }
func int64Ptr(i int64) *int64    { return &i }
func boolPtr(b bool) *bool       { return &b }

func outcomePtr(o eligibility.Outcome) *eligibility.Outcome { return &o }

// assistant builds a one-message assistant transcript entry.
func assistant(text string) []Message {
	return []Message{{Role: RoleAssistant, Content: text}}
}
