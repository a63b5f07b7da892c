package visit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the storage contract for visits. UpdateWhere is the
// compare-and-set primitive: when expected is non-nil the update only lands
// if the stored stamp is within tolerance of it, and a zero rows-affected
// result means either the row is gone or another writer got there first.
type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	ListByChild(ctx context.Context, childID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	UpdateWhere(ctx context.Context, id uuid.UUID, expected *time.Time, tolerance time.Duration, fields map[string]interface{}) (rowsAffected int64, newStamp time.Time, err error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListIllnesses(ctx context.Context, visitID uuid.UUID) ([]string, error)
	ReplaceIllnesses(ctx context.Context, visitID uuid.UUID, types []string) error
}
