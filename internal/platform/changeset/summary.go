package changeset

import (
	"sort"
	"strconv"
	"strings"
)

// fieldLabel maps a stored field name to its display label. Measurement
// fields render their values ("Temperature: 101.5 → 99.0"); other fields are
// listed by label only so free-text notes never leak into a summary line.
type fieldLabel struct {
	Label       string
	Measurement bool
}

// entityFields is the per-entity display vocabulary. Fields absent from the
// table are internal-only and never surface in a summary. Adding an entity
// type means adding a table entry, not new control flow.
var entityFields = map[string]map[string]fieldLabel{
	"visit": {
		"visit_date":      {Label: "Visit date"},
		"visit_type":      {Label: "Visit type"},
		"doctor_name":     {Label: "Doctor"},
		"location":        {Label: "Location"},
		"reason":          {Label: "Reason"},
		"temperature":     {Label: "Temperature", Measurement: true},
		"weight_kg":       {Label: "Weight", Measurement: true},
		"height_cm":       {Label: "Height", Measurement: true},
		"symptoms":        {Label: "Symptoms"},
		"diagnosis":       {Label: "Diagnosis"},
		"treatment_notes": {Label: "Treatment notes"},
		"follow_up_date":  {Label: "Follow-up date"},
		"illness_types":   {Label: "Illnesses"},
	},
}

// Summarize renders a change set into a short human-readable sentence.
// Returns nil when no field remains eligible for display; callers must treat
// nil as "no user-visible summary", not as an error.
//
// Summarize is a pure function of (changes, entityType). Stored summary
// strings are a stale cache: the renderer is always invoked again at read
// time and its output supersedes any persisted value.
func Summarize(changes ChangeSet, entityType string) *string {
	labels, ok := entityFields[entityType]
	if !ok || len(changes) == 0 {
		return nil
	}

	fields := changes.Fields()
	sort.Strings(fields)

	var measured []string
	var renamed []string
	for _, f := range fields {
		fl, known := labels[f]
		if !known {
			continue
		}
		ch := changes[f]
		// An older diff rule set let falsy-to-falsy transitions through;
		// drop them here rather than showing an uninformative delta.
		if valuesEqual(ch.Before, ch.After) {
			continue
		}
		if fl.Measurement {
			measured = append(measured, fl.Label+": "+formatValue(ch.Before)+" → "+formatValue(ch.After))
		} else {
			renamed = append(renamed, fl.Label)
		}
	}

	var parts []string
	parts = append(parts, measured...)
	if len(renamed) > 0 {
		parts = append(parts, "Updated "+strings.Join(renamed, ", "))
	}
	if len(parts) == 0 {
		return nil
	}

	s := strings.Join(parts, "; ")
	return &s
}

// formatValue renders a measurement endpoint. Whole floats keep one decimal
// place so a temperature reads "99.0", not "99".
func formatValue(v interface{}) string {
	v = normalize(v)
	if isEmpty(v) {
		return "none"
	}
	if f, ok := asNumber(v); ok {
		if f == float64(int64(f)) {
			return strconv.FormatFloat(f, 'f', 1, 64)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return stringify(v)
}
