package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title   string
	Heading string
}

type handoffAlertEmailData struct {
	baseEmailData
	StudyID    string
	SessionID  string
	LeadID     int64
	HasLead    bool
	ReasonText string
	Details    []string
}

// reasonText is the human phrasing shown in the mail body.
func reasonText(reason string) string {
	switch reason {
	case "qualified":
		return "The participant passed pre-screening and shared their availability."
	case "needs_human":
		return "Eligibility could not be decided automatically; required data was missing."
	case "auth_failed":
		return "A returning participant could not verify their PIN."
	case "disqualified":
		return "The participant did not meet the study criteria."
	}
	return "The conversation ended and needs staff follow-up."
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
