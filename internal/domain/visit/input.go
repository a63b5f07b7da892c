package visit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ValidationError names the exact field and constraint a request violated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var validVisitTypes = map[string]bool{
	"checkup":    true,
	"sick":       true,
	"dental":     true,
	"vision":     true,
	"emergency":  true,
	"specialist": true,
	"other":      true,
}

const maxTextLen = 10000

// UpdateInput is the validated sparse update payload. Fields holds only the
// columns the caller explicitly sent: absent means "leave unchanged",
// present-with-nil means "clear this field". IllnessTypes is tracked
// separately because it syncs into the visit_illness table rather than a
// column.
type UpdateInput struct {
	ClientStamp  *time.Time
	Fields       map[string]interface{}
	IllnessTypes *[]string
}

// IsEmpty reports whether the payload touches nothing.
func (in *UpdateInput) IsEmpty() bool {
	return len(in.Fields) == 0 && in.IllnessTypes == nil
}

// PayloadForDiff returns the sparse payload the diff engine compares against
// the pre-write snapshot.
func (in *UpdateInput) PayloadForDiff() map[string]interface{} {
	payload := make(map[string]interface{}, len(in.Fields)+1)
	for k, v := range in.Fields {
		payload[k] = v
	}
	if in.IllnessTypes != nil {
		payload["illness_types"] = *in.IllnessTypes
	}
	return payload
}

// updateValidators maps each updatable field to its parser. Only fields in
// this table (plus updated_at and illness_types) may appear in an update
// request; the table also doubles as the column whitelist for the
// conditional UPDATE.
var updateValidators = map[string]func(json.RawMessage) (interface{}, error){
	"visit_date": func(raw json.RawMessage) (interface{}, error) {
		return parseDate("visit_date", raw, true)
	},
	"visit_type": func(raw json.RawMessage) (interface{}, error) {
		if isJSONNull(raw) {
			return nil, &ValidationError{"visit_type", "must not be null"}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ValidationError{"visit_type", "must be a string"}
		}
		if !validVisitTypes[s] {
			return nil, &ValidationError{"visit_type", "invalid visit type: " + s}
		}
		return s, nil
	},
	"doctor_name": func(raw json.RawMessage) (interface{}, error) {
		return parseNullableString("doctor_name", raw, 255)
	},
	"location": func(raw json.RawMessage) (interface{}, error) {
		return parseNullableString("location", raw, 255)
	},
	"reason": func(raw json.RawMessage) (interface{}, error) {
		return parseNullableString("reason", raw, maxTextLen)
	},
	"temperature": func(raw json.RawMessage) (interface{}, error) {
		return parseMeasurement("temperature", raw, 80, 115)
	},
	"weight_kg": func(raw json.RawMessage) (interface{}, error) {
		return parseMeasurement("weight_kg", raw, 0, 300)
	},
	"height_cm": func(raw json.RawMessage) (interface{}, error) {
		return parseMeasurement("height_cm", raw, 0, 250)
	},
	"symptoms": func(raw json.RawMessage) (interface{}, error) {
		return parseNullableString("symptoms", raw, maxTextLen)
	},
	"diagnosis": func(raw json.RawMessage) (interface{}, error) {
		return parseNullableString("diagnosis", raw, maxTextLen)
	},
	"treatment_notes": func(raw json.RawMessage) (interface{}, error) {
		return parseNullableString("treatment_notes", raw, maxTextLen)
	},
	"follow_up_date": func(raw json.RawMessage) (interface{}, error) {
		return parseDate("follow_up_date", raw, false)
	},
}

// ParseUpdateInput validates a raw partial-update body field by field.
// Unknown fields and attempts to rewrite the immutable child reference are
// rejected at the boundary; nothing untyped survives past this point.
func ParseUpdateInput(raw map[string]json.RawMessage) (*UpdateInput, error) {
	in := &UpdateInput{Fields: make(map[string]interface{})}

	for field, value := range raw {
		switch field {
		case "updated_at":
			stamp, err := parseStamp(value)
			if err != nil {
				return nil, err
			}
			in.ClientStamp = stamp
		case "illness_types":
			types, err := parseIllnessTypes(value)
			if err != nil {
				return nil, err
			}
			in.IllnessTypes = &types
		case "child_id", "id", "created_at":
			return nil, &ValidationError{field, "cannot be changed"}
		default:
			validate, known := updateValidators[field]
			if !known {
				return nil, &ValidationError{field, "unknown field"}
			}
			v, err := validate(value)
			if err != nil {
				return nil, err
			}
			in.Fields[field] = v
		}
	}

	return in, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func parseStamp(raw json.RawMessage) (*time.Time, error) {
	if isJSONNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &ValidationError{"updated_at", "must be a timestamp string"}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, &ValidationError{"updated_at", "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

func parseNullableString(field string, raw json.RawMessage, maxLen int) (interface{}, error) {
	if isJSONNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &ValidationError{field, "must be a string"}
	}
	if maxLen > 0 && len(s) > maxLen {
		return nil, &ValidationError{field, fmt.Sprintf("must be at most %d characters", maxLen)}
	}
	return s, nil
}

func parseDate(field string, raw json.RawMessage, required bool) (interface{}, error) {
	if isJSONNull(raw) {
		if required {
			return nil, &ValidationError{field, "must not be null"}
		}
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &ValidationError{field, "must be a date string"}
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return nil, &ValidationError{field, "must be a date in YYYY-MM-DD format"}
	}
	return s, nil
}

func parseMeasurement(field string, raw json.RawMessage, min, max float64) (interface{}, error) {
	if isJSONNull(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &ValidationError{field, "must be a number"}
	}
	if f <= min || f > max {
		return nil, &ValidationError{field, fmt.Sprintf("must be between %g and %g", min, max)}
	}
	return f, nil
}

func parseIllnessTypes(raw json.RawMessage) ([]string, error) {
	if isJSONNull(raw) {
		return []string{}, nil
	}
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, &ValidationError{"illness_types", "must be an array of strings"}
	}
	for _, t := range types {
		if t == "" {
			return nil, &ValidationError{"illness_types", "entries must not be empty"}
		}
	}
	if types == nil {
		types = []string{}
	}
	return types, nil
}

// CreateInput is the typed body for creating a visit.
type CreateInput struct {
	ChildID        string   `json:"child_id"`
	VisitDate      string   `json:"visit_date"`
	VisitType      string   `json:"visit_type"`
	DoctorName     *string  `json:"doctor_name"`
	Location       *string  `json:"location"`
	Reason         *string  `json:"reason"`
	Temperature    *float64 `json:"temperature"`
	WeightKg       *float64 `json:"weight_kg"`
	HeightCm       *float64 `json:"height_cm"`
	Symptoms       *string  `json:"symptoms"`
	Diagnosis      *string  `json:"diagnosis"`
	TreatmentNotes *string  `json:"treatment_notes"`
	FollowUpDate   *string  `json:"follow_up_date"`
	IllnessTypes   []string `json:"illness_types"`
}
