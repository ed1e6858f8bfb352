// Package eligibility implements the deterministic rules engine that decides
// whether a screened profile qualifies for a study. Evaluation is a pure
// function of the profile and the study's inclusion/exclusion rules; there is
// no I/O and no randomness.
package eligibility

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome is the overall eligibility decision.
type Outcome string

const (
	// Qualified means every inclusion rule passed and no exclusion matched.
	Qualified Outcome = "QUALIFIED"
	// Disqualified means at least one rule was violated.
	Disqualified Outcome = "DISQUALIFIED"
	// NeedsHuman means required data was missing, so staff must decide.
	NeedsHuman Outcome = "NEEDS_HUMAN"
)

// Rule is a single inclusion or exclusion criterion.
type Rule struct {
	Field    string        `json:"field" yaml:"field"`
	Operator string        `json:"operator" yaml:"operator"`
	Value    interface{}   `json:"value,omitempty" yaml:"value,omitempty"`
	Values   []interface{} `json:"values,omitempty" yaml:"values,omitempty"`
}

// Rules holds a study's eligibility criteria.
type Rules struct {
	Inclusion []Rule `json:"inclusion" yaml:"inclusion"`
	Exclusion []Rule `json:"exclusion" yaml:"exclusion"`
}

// Evaluate checks a profile against the study rules and returns the outcome
// together with machine-readable reason codes.
//
// A missing or nil inclusion field contributes a "<field>_missing" reason and
// forces NEEDS_HUMAN, but evaluation continues so the reasons list is
// complete. Missing fields are never grounds for exclusion. If nothing is
// missing, any violation or exclusion match yields DISQUALIFIED with just the
// disqualifying reasons; otherwise the profile is QUALIFIED with no reasons.
func Evaluate(profile map[string]interface{}, rules Rules) (Outcome, []string) {
	var reasons []string
	hasMissing := false

	for _, rule := range rules.Inclusion {
		value, ok := profile[rule.Field]
		if !ok || value == nil {
			hasMissing = true
			reasons = append(reasons, rule.Field+"_missing")
			continue
		}

		switch rule.Operator {
		case "between":
			low, lowOK := toFloat(indexValue(rule.Values, 0))
			high, highOK := toFloat(indexValue(rule.Values, 1))
			v, vOK := toFloat(value)
			if !lowOK || !highOK || !vOK || v < low || v > high {
				reasons = append(reasons, rule.Field+"_out_of_range")
			}
		case ">=":
			threshold, tOK := toFloat(rule.Value)
			v, vOK := toFloat(value)
			if !tOK || !vOK || v < threshold {
				reasons = append(reasons, rule.Field+"_below_minimum")
			}
		case "==":
			if !equals(value, rule.Value) {
				reasons = append(reasons, rule.Field+"_not_met")
			}
		}
	}

	for _, rule := range rules.Exclusion {
		value, ok := profile[rule.Field]
		if !ok || value == nil {
			continue // can't exclude on missing data
		}

		switch rule.Operator {
		case "==":
			if equals(value, rule.Value) {
				reasons = append(reasons, rule.Field+"_excluded")
			}
		case "contains_any":
			text, isString := value.(string)
			if !isString {
				continue
			}
			lower := strings.ToLower(text)
			for _, candidate := range rule.Values {
				if s, isStr := candidate.(string); isStr && strings.Contains(lower, strings.ToLower(s)) {
					reasons = append(reasons, rule.Field+"_excluded")
					break
				}
			}
		}
	}

	if hasMissing {
		return NeedsHuman, reasons
	}

	disqualifying := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if !strings.Contains(r, "missing") {
			disqualifying = append(disqualifying, r)
		}
	}
	if len(disqualifying) > 0 {
		return Disqualified, disqualifying
	}

	return Qualified, nil
}

func indexValue(values []interface{}, i int) interface{} {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

// equals compares a profile value with a rule value. Boolean-typed rule
// values are compared against the common yes/no/true/false string spellings.
func equals(profileValue, ruleValue interface{}) bool {
	if b, ok := ruleValue.(bool); ok {
		if coerced, ok := toBool(profileValue); ok {
			return coerced == b
		}
	}

	if pf, ok := toFloat(profileValue); ok {
		if rf, ok := toFloat(ruleValue); ok {
			return pf == rf
		}
	}

	return fmt.Sprintf("%v", profileValue) == fmt.Sprintf("%v", ruleValue)
}

// toBool coerces a yes/no style value to a bool. The second return value
// reports whether coercion succeeded.
func toBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "y", "true", "1":
			return true, true
		case "no", "n", "false", "0":
			return false, true
		}
	}
	return false, false
}

// toFloat coerces numbers and numeric strings to float64. Profile values that
// round-trip through TEXT columns arrive as strings.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
