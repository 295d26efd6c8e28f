// Package validation decides whether a record is complete. It is the
// single source of truth for needs_followup and confirmed: both are
// derived from the missing-field set and nowhere else.
package validation

import "github.com/akvo/logbook/internal/schema"

// MissingFields returns the required fields that are null or empty for
// the given record. occurredAt is the ISO date string, "" when unset;
// it is checked as a pseudo-field independent of the type table, so
// even an unknown-typed record reports it. A data value counts as
// missing when it is nil, an empty string, or an empty sequence.
// Explicit falsy values such as 0 or false are present.
func MissingFields(recordType schema.RecordType, occurredAt string, data map[string]any) []string {
	var missing []string

	if occurredAt == "" {
		missing = append(missing, "occurred_at")
	}

	for _, field := range schema.RequiredFields(recordType) {
		if isEmpty(data[field]) {
			missing = append(missing, field)
		}
	}

	return missing
}

// Evaluate reports whether the record needs a follow-up turn and which
// fields are still missing. Deterministic and total: identical inputs
// always yield identical output, and no input is an error.
func Evaluate(recordType schema.RecordType, occurredAt string, data map[string]any) (bool, []string) {
	missing := MissingFields(recordType, occurredAt, data)
	return len(missing) > 0, missing
}

// CanConfirm reports whether every required field is filled.
func CanConfirm(recordType schema.RecordType, occurredAt string, data map[string]any) bool {
	needsFollowup, _ := Evaluate(recordType, occurredAt, data)
	return !needsFollowup
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	return false
}
