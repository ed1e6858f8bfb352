// Package transport shapes engine state into the turn responses the chat
// frontend consumes.
package transport

import (
	"strings"

	"intake_backend/internal/intake/engine"
	"intake_backend/internal/studies"
)

// Response types.
const (
	TypeText = "text"
	TypeForm = "form"
	TypeEnd  = "end"
)

// FieldDescriptor tells the frontend how to render one form input.
type FieldDescriptor struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Label   string   `json:"label"`
	Options []string `json:"options,omitempty"`
}

// TurnResponse is the reply to a session create or message turn.
type TurnResponse struct {
	SessionID string            `json:"sessionId"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Step      string            `json:"step"`
	Field     string            `json:"field,omitempty"`
	Fields    []FieldDescriptor `json:"fields,omitempty"`
	Options   []string          `json:"options,omitempty"`
	Done      bool              `json:"done"`
}

var identityFields = []FieldDescriptor{
	{Name: "email", Type: "email", Label: "Email address"},
	{Name: "phone", Type: "tel", Label: "Phone number"},
}

var schedulingFields = []FieldDescriptor{
	{
		Name:    "preferred_days",
		Type:    "multi_select",
		Label:   "Preferred days",
		Options: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
	},
	{
		Name:    "preferred_times",
		Type:    "multi_select",
		Label:   "Preferred time of day",
		Options: []string{"Morning (9am-12pm)", "Afternoon (12pm-5pm)", "Evening (5pm-8pm)"},
	},
}

// profileFieldTypes maps profile columns to input type and label for form
// rendering.
var profileFieldTypes = map[string]FieldDescriptor{
	"first_name":                      {Type: "text", Label: "First name"},
	"last_name":                       {Type: "text", Label: "Last name"},
	"date_of_birth":                   {Type: "date", Label: "Date of birth"},
	"gender":                          {Type: "select", Label: "Gender"},
	"address_line1":                   {Type: "text", Label: "Street address"},
	"city":                            {Type: "text", Label: "City"},
	"state":                           {Type: "text", Label: "State"},
	"zip_code":                        {Type: "text", Label: "ZIP code"},
	"has_smartphone":                  {Type: "select", Label: "Do you have a smartphone?"},
	"advertisement_source":            {Type: "text", Label: "How did you hear about this study?"},
	"closest_rrc_site":                {Type: "select", Label: "Closest RRC site"},
	"nicotine_products_used":          {Type: "text", Label: "Nicotine products used"},
	"pregnant_or_nursing_or_planning": {Type: "select", Label: "Pregnant, nursing, or planning?"},
	"height_feet":                     {Type: "number", Label: "Height (feet)"},
	"height_inches":                   {Type: "number", Label: "Height (inches)"},
	"weight_lbs":                      {Type: "number", Label: "Weight (lbs)"},
	"alcohol_frequency":               {Type: "text", Label: "How often do you drink alcohol?"},
	"alcohol_quantity":                {Type: "text", Label: "Drinks per occasion"},
	"willing_urine_drug_screen":       {Type: "select", Label: "Willing to do a urine drug screen?"},
	"serious_medical_conditions":      {Type: "text", Label: "Serious medical conditions"},
	"medications_last_30_days":        {Type: "text", Label: "Medications in last 30 days"},
}

var fieldOptions = map[string][]string{
	"has_smartphone":                  {"Yes", "No"},
	"pregnant_or_nursing_or_planning": {"Yes", "No"},
	"willing_urine_drug_screen":       {"Yes", "No"},
	"gender":                          {"Male", "Female", "Non-binary", "Prefer not to say"},
	"closest_rrc_site":                {"Raleigh", "Charlotte"},
}

// Render converts engine state into a TurnResponse.
func Render(sessionID string, st engine.State, cfg *studies.Config) TurnResponse {
	step := st.CurrentStep
	respType := TypeText
	if step.IsTerminal() {
		respType = TypeEnd
	}

	field := ""
	switch {
	case step.Is(engine.StepCollectingField):
		field = step.Arg
	case step.Is(engine.StepAwaitingPin):
		field = "pin"
	}

	fields := renderFields(st)
	options := renderOptions(st, cfg, field)

	if respType != TypeEnd && (field != "" || fields != nil || options != nil) {
		respType = TypeForm
	}

	return TurnResponse{
		SessionID: sessionID,
		Message:   st.LastAssistantText(),
		Type:      respType,
		Step:      step.String(),
		Field:     field,
		Fields:    fields,
		Options:   options,
		Done:      respType == TypeEnd,
	}
}

// renderFields returns form descriptors for the multi-field steps.
func renderFields(st engine.State) []FieldDescriptor {
	step := st.CurrentStep
	switch step.Kind {
	case engine.StepConsentGiven, engine.StepCollectingIdentity:
		return identityFields
	case engine.StepScheduling:
		return schedulingFields
	case engine.StepCollectingGroup:
		group, ok := engine.GroupByName(step.Arg)
		if !ok {
			return nil
		}
		missing := make(map[string]bool, len(st.MissingFields))
		for _, f := range st.MissingFields {
			missing[f] = true
		}
		var fields []FieldDescriptor
		for _, f := range group.Fields {
			if !missing[f] {
				continue
			}
			desc, ok := profileFieldTypes[f]
			if !ok {
				desc = FieldDescriptor{Type: "text", Label: titleCase(f)}
			}
			desc.Name = f
			desc.Options = fieldOptions[f]
			fields = append(fields, desc)
		}
		return fields
	}
	return nil
}

// renderOptions returns the quick-reply options for single-input steps.
func renderOptions(st engine.State, cfg *studies.Config, field string) []string {
	if st.CurrentStep.Is(engine.StepPrescreen) && cfg != nil {
		if q, ok := cfg.QuestionByID(st.CurrentStep.Arg); ok && q.Type == "yes_no" {
			return []string{"Yes", "No"}
		}
		return nil
	}
	return fieldOptions[field]
}

func titleCase(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
