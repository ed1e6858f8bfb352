package engine

import (
	"encoding/json"
	"strings"
)

// StepKind identifies a position in the screening conversation. Some kinds
// carry an argument (a profile group, a profile field or a pre-screen
// question id) which is kept separately in Step.Arg.
type StepKind string

const (
	StepInitial StepKind = ""

	StepGreeting        StepKind = "greeting"
	StepAwaitingConsent StepKind = "awaiting_consent"
	StepConsentGiven    StepKind = "consent_given"
	StepConsentDeclined StepKind = "consent_declined"

	StepCollectingIdentity StepKind = "collecting_identity"
	StepIdentityCollected  StepKind = "identity_collected"

	StepLeadFound    StepKind = "lead_found"
	StepLeadNotFound StepKind = "lead_not_found"
	StepLeadCreated  StepKind = "lead_created"

	StepAwaitingPin StepKind = "awaiting_pin"
	StepPinVerified StepKind = "pin_verified"
	StepPinFailed   StepKind = "pin_failed"

	// StepCollectingGroup and StepCollectingField take an argument: the
	// profile group name or the single field name being collected.
	StepCollectingGroup StepKind = "collecting_group"
	StepCollectingField StepKind = "collecting"
	StepProfileComplete StepKind = "profile_complete"

	// StepPrescreen takes the question id as argument.
	StepPrescreen             StepKind = "prescreen"
	StepPrescreenComplete     StepKind = "prescreen_complete"
	StepPrescreenDisqualified StepKind = "prescreen_disqualified"

	StepEligibilityQualified    StepKind = "eligibility_qualified"
	StepEligibilityDisqualified StepKind = "eligibility_disqualified"
	StepEligibilityNeedsHuman   StepKind = "eligibility_needs_human"

	StepScheduling         StepKind = "scheduling"
	StepSchedulingComplete StepKind = "scheduling_complete"

	StepAuthFailHandoff  StepKind = "auth_fail_handoff"
	StepQualifiedHandoff StepKind = "qualified_handoff"
	StepDisqualified     StepKind = "disqualified"
)

// Step is the conversation position: a kind plus an optional argument. The
// wire and storage form is the colon-joined string, e.g.
// "collecting_group:personal" or "prescreen:q3".
type Step struct {
	Kind StepKind
	Arg  string
}

// NewStep returns an argument-less step.
func NewStep(kind StepKind) Step { return Step{Kind: kind} }

// NewStepArg returns a step with an argument.
func NewStepArg(kind StepKind, arg string) Step { return Step{Kind: kind, Arg: arg} }

func (s Step) String() string {
	if s.Arg == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Arg
}

// Is reports whether the step has the given kind, ignoring the argument.
func (s Step) Is(kind StepKind) bool { return s.Kind == kind }

// IsTerminal reports whether the conversation is over at this step.
func (s Step) IsTerminal() bool {
	switch s.Kind {
	case StepConsentDeclined, StepAuthFailHandoff, StepQualifiedHandoff, StepDisqualified:
		return true
	}
	return false
}

// parametricKinds are the kinds whose string form carries a colon argument.
var parametricKinds = []StepKind{StepCollectingGroup, StepCollectingField, StepPrescreen}

// ParseStep parses the colon-joined wire form back into a Step. Unknown
// strings round-trip as an argument-less kind so stored sessions from newer
// versions never fail to load.
func ParseStep(s string) Step {
	for _, kind := range parametricKinds {
		prefix := string(kind) + ":"
		if strings.HasPrefix(s, prefix) {
			return Step{Kind: kind, Arg: s[len(prefix):]}
		}
	}
	return Step{Kind: StepKind(s)}
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseStep(raw)
	return nil
}
