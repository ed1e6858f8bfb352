// Package faq answers general study questions from indexed FAQ documents so
// the screening flow is not derailed by off-script questions.
package faq

import (
	"regexp"
	"strings"
)

var questionWordRe = regexp.MustCompile(
	`(?i)^\s*(what|how|when|where|why|who|can|is|does|do|will|are|could|would|should|tell me)\b`)

// IsQuestion reports whether a user message looks like a general FAQ
// question rather than an answer to the current screening prompt. Form
// submissions (JSON) and short replies are never FAQ questions.
func IsQuestion(message string) bool {
	text := strings.TrimSpace(message)
	if len(text) < 10 {
		return false
	}
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return false
	}
	if strings.HasSuffix(text, "?") && len(text) >= 15 {
		return true
	}
	if questionWordRe.MatchString(text) && len(text) >= 20 {
		return true
	}
	return false
}
