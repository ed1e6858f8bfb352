package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"intake_backend/internal/eligibility"
	"intake_backend/internal/leads/domain"
	"intake_backend/internal/studies"
)

// FieldGroup is a batch of profile fields collected together as one form.
type FieldGroup struct {
	Name   string
	Label  string
	Fields []string
}

// FieldGroups partitions the required profile fields into the forms shown to
// the participant, in collection order.
var FieldGroups = []FieldGroup{
	{
		Name:   "personal",
		Label:  "Personal Information",
		Fields: []string{"first_name", "last_name", "date_of_birth", "gender"},
	},
	{
		Name:   "address",
		Label:  "Address",
		Fields: []string{"address_line1", "city", "state", "zip_code"},
	},
	{
		Name:  "study",
		Label: "Study Details",
		Fields: []string{
			"has_smartphone", "advertisement_source",
			"closest_rrc_site", "nicotine_products_used",
		},
	},
	{
		Name:  "health",
		Label: "Health & Lifestyle",
		Fields: []string{
			"pregnant_or_nursing_or_planning",
			"height_feet", "height_inches", "weight_lbs",
			"alcohol_frequency", "alcohol_quantity",
			"willing_urine_drug_screen",
			"serious_medical_conditions", "medications_last_30_days",
		},
	},
}

// GroupByName returns the field group with the given name.
func GroupByName(name string) (FieldGroup, bool) {
	for _, g := range FieldGroups {
		if g.Name == name {
			return g, true
		}
	}
	return FieldGroup{}, false
}

// fieldPrompts are the single-field fallback questions.
var fieldPrompts = map[string]string{
	"first_name":                      "What is your first name?",
	"last_name":                       "What is your last name?",
	"address_line1":                   "What is your street address?",
	"city":                            "What city do you live in?",
	"state":                           "What state do you live in?",
	"zip_code":                        "What is your ZIP code?",
	"date_of_birth":                   "What is your date of birth?",
	"gender":                          "What is your gender?",
	"has_smartphone":                  "Do you have a smartphone with texting and data capability?",
	"advertisement_source":            "How did you hear about this study?",
	"closest_rrc_site":                "Which RRC site is closest to you: Raleigh or Charlotte?",
	"nicotine_products_used":          "What nicotine products do you use?",
	"pregnant_or_nursing_or_planning": "Are you pregnant, nursing, or planning to become pregnant?",
	"height_feet":                     "How tall are you (feet)?",
	"height_inches":                   "And how many inches?",
	"weight_lbs":                      "What is your weight in pounds?",
	"alcohol_frequency":               "How often do you drink alcohol?",
	"alcohol_quantity":                "When you drink, how many drinks do you typically have?",
	"willing_urine_drug_screen":       "Are you willing to submit to a urine drug screen?",
	"serious_medical_conditions":      "Do you have any current or past serious medical or psychiatric conditions?",
	"medications_last_30_days":        "Please list any prescriptions, OTC medications, or supplements taken in the last 30 days.",
}

// PrescreenToLeadField maps pre-screen question ids to lead record columns.
// Only stable numeric fields with a clear 1:1 column mapping are persisted.
var PrescreenToLeadField = map[string]string{
	"cigarettes_per_day":      "cigarettes_per_day",
	"cigarette_days_per_week": "cigarette_days_per_week",
	"cigarette_years":         "cigarette_years_smoked",
}

// ── Greeting ────────────────────────────────────────────────────────────────

func (e *Engine) runGreeting(_ context.Context, cfg *studies.Config, _ State) (Update, error) {
	text := cfg.Messaging.Greeting + " Would you like to learn more and see if you qualify?"
	return Update{
		Messages:    assistant(text),
		CurrentStep: stepPtr(NewStep(StepGreeting)),
	}, nil
}

// ── Consent ─────────────────────────────────────────────────────────────────

var (
	consentYesRe = regexp.MustCompile(`(?i)\b(yes|yeah|yep|sure|ok|okay|proceed|continue|let'?s go|i'?d like)\b`)
	consentNoRe  = regexp.MustCompile(`(?i)\b(no|nah|nope|not interested|decline|stop|don'?t)\b`)
)

func (e *Engine) runConsent(_ context.Context, _ *studies.Config, st State) (Update, error) {
	text := st.LastUserText()
	if consentYesRe.MatchString(text) {
		return Update{
			Messages:    assistant("Great! Let's get started. Could you please provide your email address and phone number?"),
			CurrentStep: stepPtr(NewStep(StepConsentGiven)),
		}, nil
	}
	if consentNoRe.MatchString(text) {
		return Update{
			Messages:    assistant("No problem at all. Thank you for your time and take care!"),
			CurrentStep: stepPtr(NewStep(StepConsentDeclined)),
		}, nil
	}
	// Ambiguous, re-prompt once per turn.
	return Update{
		Messages:    assistant("Would you like to proceed and see if you qualify for the study? Just say yes or no."),
		CurrentStep: stepPtr(NewStep(StepAwaitingConsent)),
	}, nil
}

// ── Identity collection ─────────────────────────────────────────────────────

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\d{10}`)
)

var identityThanks = "Thank you! Let me look up your information."

func (e *Engine) runIdentityCollection(_ context.Context, _ *studies.Config, st State) (Update, error) {
	text := st.LastUserText()

	// Form submissions arrive as JSON.
	if batch := tryParseJSON(text); batch != nil {
		email := strings.TrimSpace(stringValue(batch["email"]))
		digits := digitsOnly(stringValue(batch["phone"]))
		if emailRe.MatchString(email) && len(digits) >= 10 {
			return Update{
				LeadIdentity: &Identity{Email: email, Phone: digits[:10]},
				CurrentStep:  stepPtr(NewStep(StepIdentityCollected)),
				Messages:     assistant(identityThanks),
			}, nil
		}
	}

	// Plain text fallback: regex extraction.
	emailMatch := emailRe.FindString(text)
	stripped := strings.NewReplacer("-", "", " ", "", "(", "", ")", "").Replace(text)
	phoneMatch := phoneRe.FindString(stripped)

	if emailMatch != "" && phoneMatch != "" {
		return Update{
			LeadIdentity: &Identity{Email: emailMatch, Phone: phoneMatch},
			CurrentStep:  stepPtr(NewStep(StepIdentityCollected)),
			Messages:     assistant(identityThanks),
		}, nil
	}

	return Update{
		Messages:    assistant("Could you please provide your email address and phone number so I can look up your information?"),
		CurrentStep: stepPtr(NewStep(StepCollectingIdentity)),
	}, nil
}

// ── Lead lookup / create ────────────────────────────────────────────────────

func (e *Engine) runLeadLookup(ctx context.Context, _ *studies.Config, st State) (Update, error) {
	rec, err := e.store.LookupLead(ctx, st.LeadIdentity.Email, st.LeadIdentity.Phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Update{
				IsNewLead:     boolPtr(true),
				LeadRecordSet: true,
				LeadID:        int64Ptr(0),
				CurrentStep:   stepPtr(NewStep(StepLeadNotFound)),
			}, nil
		}
		return Update{}, fmt.Errorf("lead lookup: %w", err)
	}

	return Update{
		IsNewLead:        boolPtr(false),
		LeadRecord:       rec,
		LeadRecordSet:    true,
		LeadID:           int64Ptr(rec.LeadID),
		MissingFields:    rec.MissingProfileFields(),
		MissingFieldsSet: true,
		CurrentStep:      stepPtr(NewStep(StepLeadFound)),
	}, nil
}

func (e *Engine) runCreateLead(ctx context.Context, _ *studies.Config, st State) (Update, error) {
	leadID, err := e.store.CreateLead(ctx, st.LeadIdentity.Email, st.LeadIdentity.Phone)
	if err != nil {
		return Update{}, fmt.Errorf("create lead: %w", err)
	}

	var nilRec *domain.Record
	return Update{
		LeadID:           int64Ptr(leadID),
		IsNewLead:        boolPtr(true),
		MissingFields:    nilRec.MissingProfileFields(),
		MissingFieldsSet: true,
		CurrentStep:      stepPtr(NewStep(StepLeadCreated)),
	}, nil
}

// ── PIN auth ────────────────────────────────────────────────────────────────

func (e *Engine) runPinAuth(_ context.Context, _ *studies.Config, st State) (Update, error) {
	if !st.CurrentStep.Is(StepAwaitingPin) {
		return Update{
			CurrentStep: stepPtr(NewStep(StepAwaitingPin)),
			Messages:    assistant("I found your record. For security, please enter your PIN to verify your identity."),
		}, nil
	}

	entered := strings.TrimSpace(st.LastUserText())
	attempts := st.PinAttempts + 1

	if st.LeadRecord != nil && entered == st.LeadRecord.PinCode {
		return Update{
			PinVerified: boolPtr(true),
			PinAttempts: intPtr(attempts),
			HandoffType: strPtr(""),
			CurrentStep: stepPtr(NewStep(StepPinVerified)),
			Messages:    assistant("Identity confirmed. Let me continue with your profile."),
		}, nil
	}
	return Update{
		PinVerified: boolPtr(false),
		PinAttempts: intPtr(attempts),
		HandoffType: strPtr(HandoffAuthFail),
		CurrentStep: stepPtr(NewStep(StepPinFailed)),
	}, nil
}

func (e *Engine) runAuthFailHandoff(ctx context.Context, cfg *studies.Config, st State) (Update, error) {
	_, err := e.store.CreateHandoff(ctx, st.LeadID, HandoffAuthFail, map[string]interface{}{
		"reason": "PIN verification failed",
	})
	if err != nil {
		return Update{}, fmt.Errorf("create auth-fail handoff: %w", err)
	}
	return Update{
		Messages:    assistant(cfg.Messaging.PinFailure),
		CurrentStep: stepPtr(NewStep(StepAuthFailHandoff)),
	}, nil
}

// ── Profile collection ──────────────────────────────────────────────────────

func (e *Engine) runProfileCollection(ctx context.Context, _ *studies.Config, st State) (Update, error) {
	missing := append([]string(nil), st.MissingFields...)

	if st.CurrentStep.Is(StepCollectingGroup) || st.CurrentStep.Is(StepCollectingField) {
		text := st.LastUserText()

		// Batch form submission.
		if batch := tryParseJSON(text); batch != nil {
			collected := copyMap(st.CollectedAnswers)
			for field, raw := range batch {
				answer := strings.TrimSpace(stringValue(raw))
				collected[field] = answer
				missing = removeString(missing, field)
				if err := e.persistField(ctx, st.LeadID, field, answer); err != nil {
					return Update{}, err
				}
			}
			u := e.advanceToNextGroup(missing)
			u.CollectedAnswers = collected
			return u, nil
		}

		// Single-field answer.
		if st.CurrentStep.Is(StepCollectingField) {
			field := st.CurrentStep.Arg
			answer := strings.TrimSpace(text)
			collected := copyMap(st.CollectedAnswers)
			collected[field] = answer
			missing = removeString(missing, field)
			if err := e.persistField(ctx, st.LeadID, field, answer); err != nil {
				return Update{}, err
			}
			u := e.advanceToNextGroup(missing)
			u.CollectedAnswers = collected
			return u, nil
		}
	}

	// First entry: prompt for the first incomplete group.
	if len(missing) > 0 {
		return e.advanceToNextGroup(missing), nil
	}
	return Update{
		CurrentStep:      stepPtr(NewStep(StepProfileComplete)),
		MissingFields:    nil,
		MissingFieldsSet: true,
	}, nil
}

// persistField writes a collected answer to the lead record when the column
// is persistable. Lead-less sessions only keep answers in state.
func (e *Engine) persistField(ctx context.Context, leadID int64, field, answer string) error {
	if leadID == 0 || !domain.UpdatableColumns[field] {
		return nil
	}
	if err := e.store.UpdateLead(ctx, leadID, map[string]string{field: answer}); err != nil {
		return fmt.Errorf("persist profile field %s: %w", field, err)
	}
	return nil
}

// advanceToNextGroup picks the next group step and prompt, or marks the
// profile complete.
func (e *Engine) advanceToNextGroup(missing []string) Update {
	if len(missing) == 0 {
		return Update{
			CurrentStep:      stepPtr(NewStep(StepProfileComplete)),
			MissingFields:    nil,
			MissingFieldsSet: true,
		}
	}

	missingSet := toSet(missing)
	for _, group := range FieldGroups {
		if !groupHasMissing(group, missingSet) {
			continue
		}
		return Update{
			MissingFields:    missing,
			MissingFieldsSet: true,
			CurrentStep:      stepPtr(NewStepArg(StepCollectingGroup, group.Name)),
			Messages:         assistant("Please fill in your " + strings.ToLower(group.Label) + "."),
		}
	}

	// Ungrouped fields fall back to single-field prompts.
	field := missing[0]
	prompt, ok := fieldPrompts[field]
	if !ok {
		prompt = "Please provide your " + field + "."
	}
	return Update{
		MissingFields:    missing,
		MissingFieldsSet: true,
		CurrentStep:      stepPtr(NewStepArg(StepCollectingField, field)),
		Messages:         assistant(prompt),
	}
}

func groupHasMissing(group FieldGroup, missing map[string]bool) bool {
	for _, f := range group.Fields {
		if missing[f] {
			return true
		}
	}
	return false
}

// ── Pre-screen ──────────────────────────────────────────────────────────────

func (e *Engine) runPrescreen(ctx context.Context, cfg *studies.Config, st State) (Update, error) {
	questions := cfg.PreScreen.Questions
	index := st.PrescreenIndex

	if st.CurrentStep.Is(StepPrescreen) {
		qID := st.CurrentStep.Arg
		answer := strings.ToLower(strings.TrimSpace(st.LastUserText()))
		answers := copyMap(st.PrescreenAnswers)
		answers[qID] = answer
		newIndex := index + 1

		// Persist mapped numeric answers; failures are non-critical since
		// the answer is still in session state.
		if leadField, ok := PrescreenToLeadField[qID]; ok && st.LeadID != 0 {
			if err := e.store.UpdateLead(ctx, st.LeadID, map[string]string{leadField: answer}); err != nil {
				e.log.Warn("failed to persist prescreen answer",
					"lead_id", st.LeadID, "field", leadField, "error", err)
			}
		}

		if q, ok := cfg.QuestionByID(qID); ok && disqualifies(q, answer) {
			return Update{
				PrescreenAnswers: answers,
				PrescreenIndex:   intPtr(newIndex),
				CurrentStep:      stepPtr(NewStep(StepPrescreenDisqualified)),
			}, nil
		}

		newIndex, answers = skipAnswered(questions, newIndex, st.LeadRecord, answers)

		if newIndex >= len(questions) {
			return Update{
				PrescreenAnswers: answers,
				PrescreenIndex:   intPtr(newIndex),
				CurrentStep:      stepPtr(NewStep(StepPrescreenComplete)),
			}, nil
		}

		next := questions[newIndex]
		return Update{
			PrescreenAnswers: answers,
			PrescreenIndex:   intPtr(newIndex),
			CurrentStep:      stepPtr(NewStepArg(StepPrescreen, next.ID)),
			Messages:         assistant(next.Question),
		}, nil
	}

	// First entry: skip anything the lead record already answers.
	index, answers := skipAnswered(questions, index, st.LeadRecord, st.PrescreenAnswers)

	if index >= len(questions) {
		return Update{
			PrescreenAnswers: answers,
			PrescreenIndex:   intPtr(index),
			CurrentStep:      stepPtr(NewStep(StepPrescreenComplete)),
		}, nil
	}

	q := questions[index]
	return Update{
		PrescreenAnswers: answers,
		PrescreenIndex:   intPtr(index),
		CurrentStep:      stepPtr(NewStepArg(StepPrescreen, q.ID)),
		Messages:         assistant(q.Question),
	}, nil
}

// disqualifies reports whether the answer triggers the question's
// disqualify_on rule.
func disqualifies(q studies.Question, answer string) bool {
	rule := strings.ToLower(q.DisqualifyOn)
	if rule == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))

	switch rule {
	case "yes":
		return answer == "yes" || answer == "y" || answer == "true" || answer == "1"
	case "no":
		return answer == "no" || answer == "n" || answer == "false" || answer == "0"
	}
	return answer == rule
}

// skipAnswered advances past questions whose answer already exists on the
// lead record, auto-filling the answers map for each skipped question.
func skipAnswered(questions []studies.Question, start int, rec *domain.Record, answers map[string]string) (int, map[string]string) {
	out := copyMap(answers)
	idx := start
	for idx < len(questions) {
		q := questions[idx]
		leadField, mapped := PrescreenToLeadField[q.ID]
		if !mapped {
			break
		}
		value, ok := rec.Field(leadField)
		if !ok {
			break
		}
		out[q.ID] = value
		idx++
	}
	return idx, out
}

// ── Eligibility ─────────────────────────────────────────────────────────────

func (e *Engine) runEligibility(_ context.Context, cfg *studies.Config, st State) (Update, error) {
	profile := map[string]interface{}{}
	if st.LeadRecord != nil {
		for k, v := range st.LeadRecord.Profile() {
			profile[k] = v
		}
	}
	for k, v := range st.CollectedAnswers {
		profile[k] = v
	}

	// Pre-screen answers only fill fields not already present.
	for qID, raw := range st.PrescreenAnswers {
		field := qID
		if mapped, ok := PrescreenToLeadField[qID]; ok {
			field = mapped
		}
		if existing, ok := profile[field]; !ok || existing == nil {
			profile[field] = coercePrescreenValue(raw)
		}
	}

	if dob, ok := profile["date_of_birth"].(string); ok && dob != "" {
		if _, present := profile["age"]; !present {
			if age, ok := ageFromDOB(dob, e.now()); ok {
				profile["age"] = age
			}
		}
	}

	outcome, _ := eligibility.Evaluate(profile, cfg.Eligibility)

	return Update{
		EligibilityResult: outcomePtr(outcome),
		CurrentStep:       stepPtr(stepForOutcome(outcome)),
	}, nil
}

func stepForOutcome(outcome eligibility.Outcome) Step {
	switch outcome {
	case eligibility.Disqualified:
		return NewStep(StepEligibilityDisqualified)
	case eligibility.NeedsHuman:
		return NewStep(StepEligibilityNeedsHuman)
	}
	return NewStep(StepEligibilityQualified)
}

// coercePrescreenValue turns an answer string into a bool or number where
// possible so rule comparisons work on typed values.
func coercePrescreenValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "yes", "true":
		return true
	case "no", "false":
		return false
	}
	if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return f
	}
	return value
}

// ageFromDOB computes completed years from an ISO yyyy-mm-dd date of birth.
func ageFromDOB(dob string, today time.Time) (int, bool) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(dob))
	if err != nil {
		return 0, false
	}
	age := today.Year() - parsed.Year()
	if today.Month() < parsed.Month() ||
		(today.Month() == parsed.Month() && today.Day() < parsed.Day()) {
		age--
	}
	return age, true
}

// ── Scheduling ──────────────────────────────────────────────────────────────

func (e *Engine) runScheduling(_ context.Context, _ *studies.Config, st State) (Update, error) {
	if st.CurrentStep.Is(StepScheduling) {
		text := strings.TrimSpace(st.LastUserText())

		if parsed := tryParseJSON(text); parsed != nil {
			days := stringSlice(parsed["preferred_days"])
			slots := stringSlice(parsed["preferred_times"])
			if days != nil && slots != nil {
				var combined []string
				for _, day := range days {
					for _, slot := range slots {
						combined = append(combined, day+" "+slot)
					}
				}
				return Update{
					PreferredTimes: combined,
					CurrentStep:    stepPtr(NewStep(StepSchedulingComplete)),
				}, nil
			}
		}

		// Plain text fallback: comma-separated preferences.
		var times []string
		for _, t := range strings.Split(text, ",") {
			if t = strings.TrimSpace(t); t != "" {
				times = append(times, t)
			}
		}
		if len(times) == 0 {
			times = []string{text}
		}
		return Update{
			PreferredTimes: times,
			CurrentStep:    stepPtr(NewStep(StepSchedulingComplete)),
		}, nil
	}

	return Update{
		CurrentStep: stepPtr(NewStep(StepScheduling)),
		Messages: assistant(
			"You may be eligible for this study! When would be a good time for a screening call? " +
				"Please select your preferred days and times."),
	}, nil
}

// ── Terminal handoffs ───────────────────────────────────────────────────────

func (e *Engine) runQualifiedHandoff(ctx context.Context, _ *studies.Config, st State) (Update, error) {
	payload := map[string]interface{}{
		"preferred_times": st.PreferredTimes,
	}
	if st.EligibilityResult == eligibility.NeedsHuman {
		payload["eligibility_result"] = string(st.EligibilityResult)
	}
	if _, err := e.store.CreateHandoff(ctx, st.LeadID, HandoffQualified, payload); err != nil {
		return Update{}, fmt.Errorf("create qualified handoff: %w", err)
	}
	return Update{
		CurrentStep: stepPtr(NewStep(StepQualifiedHandoff)),
		Messages:    assistant("Thank you! A member of our team will reach out to schedule your screening call."),
	}, nil
}

func (e *Engine) runDisqualification(_ context.Context, cfg *studies.Config, _ State) (Update, error) {
	return Update{
		CurrentStep: stepPtr(NewStep(StepDisqualified)),
		Messages:    assistant(cfg.Messaging.Disqualification),
	}, nil
}

// ── Small helpers ───────────────────────────────────────────────────────────

// tryParseJSON decodes text as a JSON object. Anything else returns nil.
func tryParseJSON(text string) map[string]interface{} {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil
	}
	return out
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		// JSON numbers: render integers without a decimal point.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, stringValue(item))
	}
	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

func toSet(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, s := range list {
		out[s] = true
	}
	return out
}
