package engine

import "intake_backend/internal/studies"

// NodeID names a node in the conversation graph.
type NodeID string

const (
	nodeNone               NodeID = ""
	nodeGreeting           NodeID = "greeting"
	nodeConsent            NodeID = "consent"
	nodeIdentityCollection NodeID = "identity_collection"
	nodeLeadLookup         NodeID = "lead_lookup"
	nodeCreateLead         NodeID = "create_lead"
	nodePinAuth            NodeID = "pin_auth"
	nodeAuthFailHandoff    NodeID = "auth_fail_handoff"
	nodeProfileCollection  NodeID = "profile_collection"
	nodePrescreen          NodeID = "prescreen"
	nodeEligibility        NodeID = "eligibility"
	nodeScheduling         NodeID = "scheduling"
	nodeQualifiedHandoff   NodeID = "qualified_handoff"
	nodeDisqualification   NodeID = "disqualification"
)

// waitsForInput reports whether a node prompts and then pauses for the
// participant's next message.
func waitsForInput(node NodeID) bool {
	switch node {
	case nodeGreeting, nodeConsent, nodeIdentityCollection, nodePinAuth,
		nodeProfileCollection, nodePrescreen, nodeScheduling:
		return true
	}
	return false
}

// isTerminalNode reports whether the flow ends after this node runs.
func isTerminalNode(node NodeID) bool {
	switch node {
	case nodeAuthFailHandoff, nodeQualifiedHandoff, nodeDisqualification:
		return true
	}
	return false
}

// nextNode picks the successor of a node that just ran, from the updated
// state. nodeNone means the flow stops here.
func nextNode(node NodeID, cfg *studies.Config, st State) NodeID {
	switch node {
	case nodeGreeting:
		return nodeConsent

	case nodeConsent:
		switch st.CurrentStep.Kind {
		case StepConsentDeclined:
			return nodeNone
		case StepConsentGiven:
			return nodeIdentityCollection
		}
		// Ambiguous answer: stay on consent, the re-prompt already went out.
		return nodeConsent

	case nodeIdentityCollection:
		if st.CurrentStep.Is(StepIdentityCollected) {
			return nodeLeadLookup
		}
		return nodeIdentityCollection

	case nodeLeadLookup:
		if st.IsNewLead {
			return nodeCreateLead
		}
		// Records without a PIN skip verification.
		if st.LeadRecord == nil || st.LeadRecord.PinCode == "" {
			return nodeProfileCollection
		}
		return nodePinAuth

	case nodeCreateLead:
		return nodeProfileCollection

	case nodePinAuth:
		if st.CurrentStep.Is(StepAwaitingPin) {
			return nodePinAuth
		}
		if st.PinVerified {
			return nodeProfileCollection
		}
		return nodeAuthFailHandoff

	case nodeProfileCollection:
		if len(st.MissingFields) > 0 {
			return nodeProfileCollection
		}
		return nodePrescreen

	case nodePrescreen:
		if st.CurrentStep.Is(StepPrescreenDisqualified) {
			return nodeDisqualification
		}
		if st.PrescreenIndex < len(cfg.PreScreen.Questions) {
			return nodePrescreen
		}
		return nodeEligibility

	case nodeEligibility:
		if st.CurrentStep.Is(StepEligibilityDisqualified) {
			return nodeDisqualification
		}
		// Qualified and needs-human both continue to scheduling.
		return nodeScheduling

	case nodeScheduling:
		if st.CurrentStep.Is(StepScheduling) {
			return nodeScheduling
		}
		return nodeQualifiedHandoff
	}

	return nodeNone
}

// resolveNode maps the stored conversation step to the node that should
// process the next user message. nodeNone means no node accepts input at
// this step.
func resolveNode(step Step) NodeID {
	switch step.Kind {
	case StepGreeting, StepAwaitingConsent:
		return nodeConsent
	case StepConsentGiven, StepCollectingIdentity, StepIdentityCollected:
		return nodeIdentityCollection
	case StepLeadCreated:
		return nodeProfileCollection
	case StepAwaitingPin:
		return nodePinAuth
	case StepPinVerified:
		return nodeProfileCollection
	case StepCollectingGroup, StepCollectingField:
		return nodeProfileCollection
	case StepProfileComplete:
		return nodePrescreen
	case StepPrescreen:
		return nodePrescreen
	case StepPrescreenComplete:
		return nodeEligibility
	case StepScheduling:
		return nodeScheduling
	case StepSchedulingComplete:
		return nodeQualifiedHandoff
	}
	return nodeNone
}
