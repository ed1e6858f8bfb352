package email

import (
	"strings"
	"testing"
)

func TestRenderHandoffAlertTemplate(t *testing.T) {
	html, err := renderEmailTemplate("handoff_alert.html", handoffAlertEmailData{
		baseEmailData: baseEmailData{Title: "t", Heading: "h"},
		StudyID:       "zyn",
		SessionID:     "abc-123",
		LeadID:        42,
		HasLead:       true,
		ReasonText:    reasonText("qualified"),
		Details:       []string{"Monday Morning", "Tuesday Afternoon"},
	})
	if err != nil {
		t.Fatalf("renderEmailTemplate() error = %v", err)
	}
	for _, want := range []string{"zyn", "abc-123", "#42", "Monday Morning", "availability"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered mail missing %q", want)
		}
	}
}

func TestRenderHandoffAlertNoLead(t *testing.T) {
	html, err := renderEmailTemplate("handoff_alert.html", handoffAlertEmailData{
		baseEmailData: baseEmailData{Title: "t", Heading: "h"},
		StudyID:       "zyn",
		SessionID:     "abc-123",
		ReasonText:    reasonText("auth_failed"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "Lead") {
		t.Error("lead row rendered without a lead id")
	}
	if strings.Contains(html, "Preferred appointment times") {
		t.Error("details section rendered without details")
	}
}

func TestSubjectForReason(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"qualified", subjectHandoffQualified},
		{"needs_human", subjectHandoffNeedsHuman},
		{"auth_failed", subjectHandoffAuthFailed},
		{"disqualified", subjectHandoffDisqualified},
		{"something_else", subjectHandoffDefault},
	}
	for _, tt := range tests {
		if got := subjectForReason(tt.reason); got != tt.want {
			t.Errorf("subjectForReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
