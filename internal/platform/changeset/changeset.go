package changeset

// Change records a single field's transition between two states.
type Change struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// ChangeSet maps field names to their transitions. A field appears iff its
// before/after values are not semantically equal, so an empty ChangeSet means
// "no meaningful change".
type ChangeSet map[string]Change

// Fields returns the changed field names in no particular order.
func (cs ChangeSet) Fields() []string {
	fields := make([]string, 0, len(cs))
	for f := range cs {
		fields = append(fields, f)
	}
	return fields
}
