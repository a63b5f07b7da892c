package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/famcare/famcare/internal/platform/changeset"
)

// Actions recorded against an entity.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// AuditEvent is one immutable log record of a create/update/delete action.
// Events are append-only: never mutated, never deleted except by cascading
// entity deletion.
type AuditEvent struct {
	ID         int64               `db:"id" json:"id"`
	EntityType string              `db:"entity_type" json:"entity_type"`
	EntityID   uuid.UUID           `db:"entity_id" json:"entity_id"`
	UserID     *uuid.UUID          `db:"user_id" json:"user_id,omitempty"`
	Action     string              `db:"action" json:"action"`
	Changes    changeset.ChangeSet `db:"changes" json:"changes"`
	// Summary is a persisted convenience cache only. The renderer runs
	// again at read time and its output supersedes this value.
	Summary    *string   `db:"summary" json:"summary,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
