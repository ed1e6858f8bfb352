package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"intake_backend/internal/eligibility"
	"intake_backend/internal/leads/domain"
	"intake_backend/internal/studies"
	"intake_backend/platform/logger"
)

func testConfig() *studies.Config {
	return &studies.Config{
		Study: studies.Study{ID: "zyn", Name: "Nicotine Pouch Transition Study"},
		Messaging: studies.Messaging{
			Greeting:         "Welcome to the study!",
			PinFailure:       "We could not verify your identity. A team member will follow up.",
			Disqualification: "Unfortunately you do not qualify for this study.",
		},
		PreScreen: studies.PreScreen{
			Questions: []studies.Question{
				{ID: "smokes_daily", Question: "Do you smoke cigarettes daily?", Type: "yes_no", DisqualifyOn: "no"},
				{ID: "cigarettes_per_day", Question: "How many cigarettes do you smoke per day?", Type: "number"},
				{ID: "cigarette_years", Question: "For how many years have you smoked?", Type: "number"},
			},
		},
		Eligibility: eligibility.Rules{
			Inclusion: []eligibility.Rule{
				{Field: "age", Operator: "between", Values: []interface{}{21.0, 65.0}},
				{Field: "cigarette_years_smoked", Operator: ">=", Value: 3.0},
			},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *domain.MemStore) {
	t.Helper()
	store := domain.NewMemStore()
	e := New(store, logger.New("development"))
	e.nowFn = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e, store
}

func mustStep(t *testing.T, e *Engine, cfg *studies.Config, st State, msg string) State {
	t.Helper()
	out, err := e.Step(context.Background(), cfg, st, msg)
	if err != nil {
		t.Fatalf("Step(%q) error = %v", msg, err)
	}
	return out
}

func profileJSON(t *testing.T) string {
	t.Helper()
	fields := map[string]string{
		"first_name": "Jane", "last_name": "Doe",
		"date_of_birth": "1990-05-01", "gender": "Female",
		"address_line1": "1 Main St", "city": "Raleigh", "state": "NC", "zip_code": "27601",
		"has_smartphone": "yes", "advertisement_source": "Facebook",
		"closest_rrc_site": "Raleigh", "nicotine_products_used": "cigarettes",
		"pregnant_or_nursing_or_planning": "no",
		"height_feet":                     "5", "height_inches": "6", "weight_lbs": "150",
		"alcohol_frequency": "rarely", "alcohol_quantity": "1",
		"willing_urine_drug_screen":  "yes",
		"serious_medical_conditions": "none", "medications_last_30_days": "none",
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

// runToProfile drives a fresh session through consent and identity up to the
// first profile prompt.
func runToProfile(t *testing.T, e *Engine, cfg *studies.Config) State {
	t.Helper()
	st, err := e.Initialize(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, `{"email": "jane@example.com", "phone": "9195550101"}`)
	if !st.CurrentStep.Is(StepCollectingGroup) {
		t.Fatalf("step after identity = %s, want collecting_group", st.CurrentStep)
	}
	return st
}

// ── Step type ───────────────────────────────────────────────────────────────

func TestStepStringRoundTrip(t *testing.T) {
	tests := []Step{
		NewStep(StepGreeting),
		NewStep(StepAwaitingConsent),
		NewStepArg(StepCollectingGroup, "personal"),
		NewStepArg(StepCollectingField, "zip_code"),
		NewStepArg(StepPrescreen, "q3"),
		NewStep(StepQualifiedHandoff),
	}
	for _, step := range tests {
		if got := ParseStep(step.String()); got != step {
			t.Errorf("ParseStep(%q) = %+v, want %+v", step.String(), got, step)
		}
	}
}

func TestStepJSONRoundTrip(t *testing.T) {
	step := NewStepArg(StepPrescreen, "cigarette_years")
	raw, err := json.Marshal(step)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `"prescreen:cigarette_years"` {
		t.Errorf("marshal = %s", raw)
	}
	var back Step
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back != step {
		t.Errorf("round trip = %+v, want %+v", back, step)
	}
}

func TestStepIsTerminal(t *testing.T) {
	for _, step := range []StepKind{StepConsentDeclined, StepAuthFailHandoff, StepQualifiedHandoff, StepDisqualified} {
		if !NewStep(step).IsTerminal() {
			t.Errorf("%s.IsTerminal() = false", step)
		}
	}
	if NewStep(StepScheduling).IsTerminal() {
		t.Error("scheduling reported terminal")
	}
}

// ── State merge ─────────────────────────────────────────────────────────────

func TestApplyLeavesUnsetFieldsUntouched(t *testing.T) {
	st := NewState("zyn")
	st.PinAttempts = 2
	st.LeadID = 7
	st.LeadRecord = &domain.Record{LeadID: 7}

	out := st.Apply(Update{CurrentStep: stepPtr(NewStep(StepAwaitingPin))})
	if out.PinAttempts != 2 || out.LeadID != 7 || out.LeadRecord == nil {
		t.Errorf("Apply() clobbered unrelated fields: %+v", out)
	}
	if !out.CurrentStep.Is(StepAwaitingPin) {
		t.Errorf("CurrentStep = %s", out.CurrentStep)
	}
}

func TestApplyCanClearLeadRecord(t *testing.T) {
	st := NewState("zyn")
	st.LeadRecord = &domain.Record{LeadID: 7}

	out := st.Apply(Update{LeadRecordSet: true, LeadRecord: nil})
	if out.LeadRecord != nil {
		t.Error("LeadRecordSet=true with nil record did not clear the record")
	}
}

func TestApplyAppendsMessagesWithoutAliasing(t *testing.T) {
	st := NewState("zyn")
	st = st.Apply(Update{Messages: assistant("one")})
	branchA := st.Apply(Update{Messages: assistant("two")})
	branchB := st.Apply(Update{Messages: assistant("three")})

	if branchA.Messages[1].Content != "two" || branchB.Messages[1].Content != "three" {
		t.Errorf("branches alias: %v / %v", branchA.Messages, branchB.Messages)
	}
	if len(st.Messages) != 1 {
		t.Errorf("base state mutated: %v", st.Messages)
	}
}

// ── Consent ─────────────────────────────────────────────────────────────────

func TestConsentBranches(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantStep StepKind
	}{
		{"affirmative", "yes please", StepConsentGiven},
		{"negative", "no thanks", StepConsentDeclined},
		{"ambiguous", "maybe tell me more", StepAwaitingConsent},
		{"contraction", "let's go", StepConsentGiven},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			cfg := testConfig()
			st, err := e.Initialize(context.Background(), cfg)
			if err != nil {
				t.Fatal(err)
			}

			before := len(st.Messages)
			st = mustStep(t, e, cfg, st, tt.reply)

			switch tt.wantStep {
			case StepConsentGiven:
				// Consent ack plus the identity prompt.
				if !st.CurrentStep.Is(StepCollectingIdentity) {
					t.Errorf("step = %s, want collecting_identity", st.CurrentStep)
				}
			default:
				if !st.CurrentStep.Is(tt.wantStep) {
					t.Errorf("step = %s, want %s", st.CurrentStep, tt.wantStep)
				}
			}

			// user msg + at least one assistant msg
			if len(st.Messages) <= before {
				t.Error("no messages appended")
			}
		})
	}
}

func TestAmbiguousConsentAddsExactlyOneAssistantMessage(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()
	st, _ := e.Initialize(context.Background(), cfg)

	before := len(st.Messages)
	st = mustStep(t, e, cfg, st, "hmm")

	// one user + one assistant re-prompt, nothing else
	if got := len(st.Messages) - before; got != 2 {
		t.Errorf("appended %d messages, want 2: %v", got, st.Messages[before:])
	}
	if !st.CurrentStep.Is(StepAwaitingConsent) {
		t.Errorf("step = %s", st.CurrentStep)
	}
}

func TestDeclinedConsentIsTerminal(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()
	st, _ := e.Initialize(context.Background(), cfg)

	st = mustStep(t, e, cfg, st, "no")
	if !st.CurrentStep.IsTerminal() {
		t.Fatalf("step = %s, want terminal", st.CurrentStep)
	}

	// Terminal states ignore further input.
	after := mustStep(t, e, cfg, st, "actually yes")
	if len(after.Messages) != len(st.Messages) {
		t.Error("terminal state accepted input")
	}
}

// ── Identity ────────────────────────────────────────────────────────────────

func TestIdentityPlainTextExtraction(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()
	st, _ := e.Initialize(context.Background(), cfg)
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, "I'm jane@example.com, call me at (919) 555-0101")

	if st.LeadIdentity.Email != "jane@example.com" {
		t.Errorf("Email = %q", st.LeadIdentity.Email)
	}
	if st.LeadIdentity.Phone != "9195550101" {
		t.Errorf("Phone = %q", st.LeadIdentity.Phone)
	}
}

func TestIdentityIncompleteReprompts(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()
	st, _ := e.Initialize(context.Background(), cfg)
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, "my email is jane@example.com")

	if !st.CurrentStep.Is(StepCollectingIdentity) {
		t.Errorf("step = %s, want collecting_identity", st.CurrentStep)
	}
}

// ── New lead end to end ─────────────────────────────────────────────────────

func TestNewLeadFullFlowQualified(t *testing.T) {
	e, store := newTestEngine(t)
	cfg := testConfig()

	st := runToProfile(t, e, cfg)
	if !st.IsNewLead || st.LeadID == 0 {
		t.Fatalf("lead not created: id=%d new=%v", st.LeadID, st.IsNewLead)
	}
	if st.CurrentStep.Arg != "personal" {
		t.Errorf("first group = %q, want personal", st.CurrentStep.Arg)
	}

	// Submit the whole profile at once; collection should finish and the
	// first pre-screen question should come back in the same turn.
	st = mustStep(t, e, cfg, st, profileJSON(t))
	if !st.CurrentStep.Is(StepPrescreen) || st.CurrentStep.Arg != "smokes_daily" {
		t.Fatalf("step = %s, want prescreen:smokes_daily", st.CurrentStep)
	}

	// Profile answers were persisted to the lead record.
	rec, ok := store.Lead(st.LeadID)
	if !ok {
		t.Fatal("lead missing from store")
	}
	if v, _ := rec.Field("city"); v != "Raleigh" {
		t.Errorf("persisted city = %q", v)
	}

	st = mustStep(t, e, cfg, st, "yes")
	if st.CurrentStep.Arg != "cigarettes_per_day" {
		t.Fatalf("step = %s", st.CurrentStep)
	}
	st = mustStep(t, e, cfg, st, "15")
	st = mustStep(t, e, cfg, st, "10")

	// All questions answered; eligibility ran and scheduling prompted.
	if !st.CurrentStep.Is(StepScheduling) {
		t.Fatalf("step = %s, want scheduling", st.CurrentStep)
	}
	if st.EligibilityResult != eligibility.Qualified {
		t.Errorf("EligibilityResult = %s", st.EligibilityResult)
	}

	// Mapped pre-screen answers landed on the lead record.
	rec, _ = store.Lead(st.LeadID)
	if v, _ := rec.Field("cigarette_years_smoked"); v != "10" {
		t.Errorf("cigarette_years_smoked = %q", v)
	}

	st = mustStep(t, e, cfg, st, `{"preferred_days": ["Monday", "Friday"], "preferred_times": ["Morning"]}`)
	if !st.CurrentStep.Is(StepQualifiedHandoff) {
		t.Fatalf("step = %s, want qualified_handoff", st.CurrentStep)
	}

	handoffs := store.Handoffs()
	if len(handoffs) != 1 || handoffs[0].HandoffType != HandoffQualified {
		t.Fatalf("handoffs = %+v", handoffs)
	}
	times, _ := handoffs[0].Payload["preferred_times"].([]string)
	if len(times) != 2 || times[0] != "Monday Morning" {
		t.Errorf("preferred_times = %v", times)
	}
}

func TestPrescreenDisqualifyOn(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()

	st := runToProfile(t, e, cfg)
	st = mustStep(t, e, cfg, st, profileJSON(t))
	st = mustStep(t, e, cfg, st, "no") // smokes_daily disqualifies on "no"

	if !st.CurrentStep.Is(StepDisqualified) {
		t.Fatalf("step = %s, want disqualified", st.CurrentStep)
	}
	if got := st.LastAssistantText(); got != cfg.Messaging.Disqualification {
		t.Errorf("final message = %q", got)
	}
}

func TestEligibilityDisqualifiedEndsConversation(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()

	st := runToProfile(t, e, cfg)
	st = mustStep(t, e, cfg, st, profileJSON(t))
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, "15")
	st = mustStep(t, e, cfg, st, "1") // below the 3-year minimum

	if !st.CurrentStep.Is(StepDisqualified) {
		t.Fatalf("step = %s, want disqualified", st.CurrentStep)
	}
	if st.EligibilityResult != eligibility.Disqualified {
		t.Errorf("EligibilityResult = %s", st.EligibilityResult)
	}
}

func TestEligibilityNeedsHumanStillSchedules(t *testing.T) {
	e, store := newTestEngine(t)
	cfg := testConfig()
	cfg.Eligibility.Inclusion = append(cfg.Eligibility.Inclusion,
		eligibility.Rule{Field: "lung_capacity", Operator: ">=", Value: 1.0})

	st := runToProfile(t, e, cfg)
	st = mustStep(t, e, cfg, st, profileJSON(t))
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, "15")
	st = mustStep(t, e, cfg, st, "10")

	if !st.CurrentStep.Is(StepScheduling) {
		t.Fatalf("step = %s, want scheduling", st.CurrentStep)
	}
	if st.EligibilityResult != eligibility.NeedsHuman {
		t.Errorf("EligibilityResult = %s", st.EligibilityResult)
	}

	st = mustStep(t, e, cfg, st, "Monday morning, Friday afternoon")
	if !st.CurrentStep.Is(StepQualifiedHandoff) {
		t.Fatalf("step = %s", st.CurrentStep)
	}
	handoffs := store.Handoffs()
	if len(handoffs) != 1 {
		t.Fatalf("handoffs = %+v", handoffs)
	}
	times, _ := handoffs[0].Payload["preferred_times"].([]string)
	if len(times) != 2 || times[1] != "Friday afternoon" {
		t.Errorf("preferred_times = %v", times)
	}
}

// ── Returning lead ──────────────────────────────────────────────────────────

func seedReturningLead(store *domain.MemStore, pin string) int64 {
	rec := &domain.Record{
		Email:       "jane@example.com",
		MobilePhone: "9195550101",
		PinCode:     pin,
		Fields: map[string]string{
			"first_name": "Jane", "last_name": "Doe",
			"date_of_birth": "1990-05-01", "gender": "Female",
			"address_line1": "1 Main St", "city": "Raleigh", "state": "NC", "zip_code": "27601",
			"has_smartphone": "yes", "advertisement_source": "Facebook",
			"closest_rrc_site": "Raleigh", "nicotine_products_used": "cigarettes",
			"pregnant_or_nursing_or_planning": "no",
			"height_feet":                     "5", "height_inches": "6", "weight_lbs": "150",
			"alcohol_frequency": "rarely", "alcohol_quantity": "1",
			"willing_urine_drug_screen":  "yes",
			"serious_medical_conditions": "none", "medications_last_30_days": "none",
			"cigarettes_per_day": "20",
		},
	}
	return store.Seed(rec)
}

func TestReturningLeadPinVerifiedSkipsKnownData(t *testing.T) {
	e, store := newTestEngine(t)
	cfg := testConfig()
	seedReturningLead(store, "4321")

	st, _ := e.Initialize(context.Background(), cfg)
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, `{"email": "jane@example.com", "phone": "9195550101"}`)

	if !st.CurrentStep.Is(StepAwaitingPin) {
		t.Fatalf("step = %s, want awaiting_pin", st.CurrentStep)
	}
	if st.IsNewLead {
		t.Error("IsNewLead = true for existing record")
	}

	st = mustStep(t, e, cfg, st, "4321")
	if !st.PinVerified {
		t.Fatal("PinVerified = false after correct PIN")
	}

	// Profile is complete, so the flow jumps straight into pre-screening,
	// skipping the question already answered by the record.
	if !st.CurrentStep.Is(StepPrescreen) {
		t.Fatalf("step = %s, want prescreen", st.CurrentStep)
	}
	if st.CurrentStep.Arg == "cigarettes_per_day" {
		t.Error("asked a question already answered on the record")
	}
	if got := st.PrescreenAnswers["cigarettes_per_day"]; got != "" && got != "20" {
		t.Errorf("auto-filled answer = %q", got)
	}
}

func TestReturningLeadWrongPinCreatesAuthFailHandoff(t *testing.T) {
	e, store := newTestEngine(t)
	cfg := testConfig()
	leadID := seedReturningLead(store, "4321")

	st, _ := e.Initialize(context.Background(), cfg)
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, `{"email": "jane@example.com", "phone": "9195550101"}`)
	st = mustStep(t, e, cfg, st, "9999")

	if !st.CurrentStep.Is(StepAuthFailHandoff) {
		t.Fatalf("step = %s, want auth_fail_handoff", st.CurrentStep)
	}
	if st.HandoffType != HandoffAuthFail {
		t.Errorf("HandoffType = %q", st.HandoffType)
	}
	if got := st.LastAssistantText(); got != cfg.Messaging.PinFailure {
		t.Errorf("final message = %q", got)
	}

	handoffs := store.Handoffs()
	if len(handoffs) != 1 || handoffs[0].LeadID != leadID || handoffs[0].HandoffType != HandoffAuthFail {
		t.Fatalf("handoffs = %+v", handoffs)
	}
}

func TestReturningLeadWithoutPinSkipsAuth(t *testing.T) {
	e, store := newTestEngine(t)
	cfg := testConfig()
	store.Seed(&domain.Record{Email: "jane@example.com", MobilePhone: "9195550101"})

	st, _ := e.Initialize(context.Background(), cfg)
	st = mustStep(t, e, cfg, st, "yes")
	st = mustStep(t, e, cfg, st, `{"email": "jane@example.com", "phone": "9195550101"}`)

	// No PIN on record: straight to profile collection.
	if !st.CurrentStep.Is(StepCollectingGroup) {
		t.Fatalf("step = %s, want collecting_group", st.CurrentStep)
	}
}

// ── Misc engine behavior ────────────────────────────────────────────────────

func TestGreetingMessageUsesStudyCopy(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()
	st, err := e.Initialize(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !st.CurrentStep.Is(StepGreeting) {
		t.Errorf("step = %s", st.CurrentStep)
	}
	if got := st.LastAssistantText(); !strings.HasPrefix(got, cfg.Messaging.Greeting) {
		t.Errorf("greeting = %q", got)
	}
}

func TestSingleFieldCollectionFallback(t *testing.T) {
	e, _ := newTestEngine(t)
	cfg := testConfig()

	st := runToProfile(t, e, cfg)
	// Force single-field mode by making the step a field step.
	st.CurrentStep = NewStepArg(StepCollectingField, "zip_code")
	st.MissingFields = []string{"zip_code"}

	st = mustStep(t, e, cfg, st, "27601")
	if st.CollectedAnswers["zip_code"] != "27601" {
		t.Errorf("CollectedAnswers = %v", st.CollectedAnswers)
	}
	// zip_code was the last missing field, so pre-screen starts.
	if !st.CurrentStep.Is(StepPrescreen) {
		t.Errorf("step = %s, want prescreen", st.CurrentStep)
	}
}

func TestAgeFromDOB(t *testing.T) {
	today := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		dob  string
		want int
		ok   bool
	}{
		{"1990-05-01", 36, true},
		{"1990-06-02", 35, true}, // birthday not yet reached
		{"1990-06-01", 36, true}, // birthday today
		{"not-a-date", 0, false},
	}
	for _, tt := range tests {
		got, ok := ageFromDOB(tt.dob, today)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ageFromDOB(%q) = %d, %v; want %d, %v", tt.dob, got, ok, tt.want, tt.ok)
		}
	}
}
