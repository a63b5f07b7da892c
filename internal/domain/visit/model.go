package visit

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the audit-trail entity name for visits.
const EntityType = "visit"

const dateLayout = "2006-01-02"

// Visit maps to the visit table. UpdatedAt doubles as the optimistic-lock
// version stamp: clients echo it back on update and the conditional write
// re-checks it at the storage layer.
type Visit struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ChildID        uuid.UUID  `db:"child_id" json:"child_id"`
	VisitDate      time.Time  `db:"visit_date" json:"visit_date"`
	VisitType      string     `db:"visit_type" json:"visit_type"`
	DoctorName     *string    `db:"doctor_name" json:"doctor_name,omitempty"`
	Location       *string    `db:"location" json:"location,omitempty"`
	Reason         *string    `db:"reason" json:"reason,omitempty"`
	Temperature    *float64   `db:"temperature" json:"temperature,omitempty"`
	WeightKg       *float64   `db:"weight_kg" json:"weight_kg,omitempty"`
	HeightCm       *float64   `db:"height_cm" json:"height_cm,omitempty"`
	Symptoms       *string    `db:"symptoms" json:"symptoms,omitempty"`
	Diagnosis      *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	TreatmentNotes *string    `db:"treatment_notes" json:"treatment_notes,omitempty"`
	FollowUpDate   *time.Time `db:"follow_up_date" json:"follow_up_date,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`

	// IllnessTypes are the ordered illness tags from visit_illness.
	IllnessTypes []string `db:"-" json:"illness_types"`
}

// Snapshot returns the flat business-field state used as the diff baseline.
// System fields (id, child_id, timestamps) are excluded by policy: they are
// not the caller's to change, so they never participate in a diff. Dates are
// rendered in their wire form so snapshot and payload values compare
// directly.
func (v *Visit) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"visit_date":      v.VisitDate.Format(dateLayout),
		"visit_type":      v.VisitType,
		"doctor_name":     v.DoctorName,
		"location":        v.Location,
		"reason":          v.Reason,
		"temperature":     v.Temperature,
		"weight_kg":       v.WeightKg,
		"height_cm":       v.HeightCm,
		"symptoms":        v.Symptoms,
		"diagnosis":       v.Diagnosis,
		"treatment_notes": v.TreatmentNotes,
		"illness_types":   v.IllnessTypes,
	}
	if v.FollowUpDate != nil {
		snap["follow_up_date"] = v.FollowUpDate.Format(dateLayout)
	} else {
		snap["follow_up_date"] = nil
	}
	return snap
}
