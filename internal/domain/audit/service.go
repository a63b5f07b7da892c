package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/famcare/famcare/internal/platform/changeset"
)

// ErrNotFound covers both a missing entity and a caller without read access;
// the two are deliberately indistinguishable so history requests cannot probe
// for record existence.
var ErrNotFound = errors.New("audit: entity not found")

// ViewPolicy answers whether a user may view an entity's history. The entity
// owner's domain package implements it; the audit store only forwards the
// question.
type ViewPolicy interface {
	CanViewEntity(ctx context.Context, entityType string, entityID, userID uuid.UUID) (bool, error)
}

// Service is the append-only audit store.
type Service struct {
	repo       Repository
	policy     ViewPolicy
	logger     zerolog.Logger
	failClosed bool
}

// NewService creates the audit service. With failClosed false a failed
// Record is logged and swallowed so the entity write it trails still
// succeeds; with failClosed true the storage error propagates to the caller.
func NewService(repo Repository, policy ViewPolicy, logger zerolog.Logger, failClosed bool) *Service {
	return &Service{repo: repo, policy: policy, logger: logger, failClosed: failClosed}
}

// Record persists one audit event. Callers invoke it even with an empty
// change set for created/deleted actions so the timeline shows the event;
// for updated actions callers skip the call entirely when nothing changed.
func (s *Service) Record(ctx context.Context, evt *AuditEvent) error {
	if evt.Changes == nil {
		evt.Changes = changeset.ChangeSet{}
	}
	evt.Summary = changeset.Summarize(evt.Changes, evt.EntityType)

	if err := s.repo.Insert(ctx, evt); err != nil {
		if s.failClosed {
			return fmt.Errorf("record audit event: %w", err)
		}
		// Losing an audit record is a compliance risk; surface it to
		// operators even though the request itself proceeds.
		s.logger.Error().
			Err(err).
			Str("entity_type", evt.EntityType).
			Str("entity_id", evt.EntityID.String()).
			Str("action", evt.Action).
			Msg("audit event dropped")
		return nil
	}
	return nil
}

// ListForEntity returns one page of an entity's audit trail, newest first.
// Each event's summary is regenerated under the current rendering rules;
// the stored summary string is never trusted.
func (s *Service) ListForEntity(ctx context.Context, entityType string, entityID, userID uuid.UUID, limit, offset int) ([]*AuditEvent, int, error) {
	ok, err := s.policy.CanViewEntity(ctx, entityType, entityID, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("check view access: %w", err)
	}
	if !ok {
		return nil, 0, ErrNotFound
	}

	events, total, err := s.repo.ListByEntity(ctx, entityType, entityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	for _, evt := range events {
		evt.Summary = changeset.Summarize(evt.Changes, evt.EntityType)
	}

	return events, total, nil
}
