package email

const (
	subjectHandoffQualified    = "New qualified participant ready for scheduling"
	subjectHandoffNeedsHuman   = "Screening needs a manual eligibility review"
	subjectHandoffAuthFailed   = "Returning participant failed PIN verification"
	subjectHandoffDisqualified = "Participant disqualified during pre-screening"
	subjectHandoffDefault      = "Screening conversation needs follow-up"
)

// subjectForReason maps a handoff reason to its mail subject.
func subjectForReason(reason string) string {
	switch reason {
	case "qualified":
		return subjectHandoffQualified
	case "needs_human":
		return subjectHandoffNeedsHuman
	case "auth_failed":
		return subjectHandoffAuthFailed
	case "disqualified":
		return subjectHandoffDisqualified
	}
	return subjectHandoffDefault
}
