// Package domain holds the participant lead model and the storage contract
// used by the intake flow.
package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no lead matches a lookup.
var ErrNotFound = errors.New("lead not found")

// RequiredProfileFields lists every profile column a lead must have filled
// before pre-screening can start, in collection order.
var RequiredProfileFields = []string{
	"first_name",
	"last_name",
	"address_line1",
	"city",
	"state",
	"zip_code",
	"date_of_birth",
	"gender",
	"has_smartphone",
	"advertisement_source",
	"closest_rrc_site",
	"nicotine_products_used",
	"pregnant_or_nursing_or_planning",
	"height_feet",
	"height_inches",
	"weight_lbs",
	"alcohol_frequency",
	"alcohol_quantity",
	"willing_urine_drug_screen",
	"serious_medical_conditions",
	"medications_last_30_days",
}

// UpdatableColumns is the whitelist of lead columns that callers may write
// through UpdateLead. Identity and PIN columns are deliberately excluded.
var UpdatableColumns = func() map[string]bool {
	cols := map[string]bool{
		"cigarettes_per_day":      true,
		"cigarette_days_per_week": true,
		"cigarette_years_smoked":  true,
	}
	for _, f := range RequiredProfileFields {
		cols[f] = true
	}
	return cols
}()

// Record is a participant lead. Profile and pre-screen columns are all TEXT
// in storage and live in Fields, keyed by column name; absent keys mean NULL.
type Record struct {
	LeadID      int64             `json:"lead_id"`
	Email       string            `json:"email"`
	MobilePhone string            `json:"mobile_phone"`
	PinCode     string            `json:"pin_code,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at,omitempty"`
}

// Field returns a profile column value. Empty strings count as unset.
func (r *Record) Field(name string) (string, bool) {
	if r == nil || r.Fields == nil {
		return "", false
	}
	v, ok := r.Fields[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SetField stores a profile column value, allocating the map when needed.
func (r *Record) SetField(name, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[name] = value
}

// MissingProfileFields returns the required profile fields the record does
// not have yet, in collection order. A nil record is missing everything.
func (r *Record) MissingProfileFields() []string {
	if r == nil {
		missing := make([]string, len(RequiredProfileFields))
		copy(missing, RequiredProfileFields)
		return missing
	}
	var missing []string
	for _, f := range RequiredProfileFields {
		if _, ok := r.Field(f); !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Profile flattens the record into the map shape the eligibility engine
// evaluates: every stored field plus identity columns.
func (r *Record) Profile() map[string]interface{} {
	if r == nil {
		return map[string]interface{}{}
	}
	profile := make(map[string]interface{}, len(r.Fields)+3)
	for k, v := range r.Fields {
		profile[k] = v
	}
	profile["lead_id"] = r.LeadID
	if r.Email != "" {
		profile["email"] = r.Email
	}
	if r.MobilePhone != "" {
		profile["mobile_phone"] = r.MobilePhone
	}
	return profile
}

// Clone returns a deep copy so stored records never alias session state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Fields != nil {
		out.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return &out
}
