package visit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/famcare/famcare/internal/domain/audit"
	"github.com/famcare/famcare/internal/platform/auth"
	"github.com/famcare/famcare/internal/platform/changeset"
	"github.com/famcare/famcare/internal/platform/oplock"
)

var (
	// ErrNotFound covers both a missing visit and a caller without read
	// access to the child it belongs to.
	ErrNotFound = errors.New("visit: not found")
	// ErrForbidden means the caller can see the visit but lacks write access.
	ErrForbidden = errors.New("visit: forbidden")
)

// AuditRecorder is the slice of the audit service the orchestrator needs.
type AuditRecorder interface {
	Record(ctx context.Context, evt *audit.AuditEvent) error
}

// Service coordinates visit reads and writes: family-scoped authorization,
// optimistic concurrency, field diffing and the audit trail.
type Service struct {
	repo          Repository
	access        auth.AccessControl
	auditor       AuditRecorder
	logger        zerolog.Logger
	skewTolerance time.Duration
}

func NewService(repo Repository, access auth.AccessControl, auditor AuditRecorder, logger zerolog.Logger, skewTolerance time.Duration) *Service {
	if skewTolerance <= 0 {
		skewTolerance = oplock.DefaultTolerance
	}
	return &Service{repo: repo, access: access, auditor: auditor, logger: logger, skewTolerance: skewTolerance}
}

// CreateVisit validates and persists a new visit, then records a created
// audit event with an empty change set so the timeline shows the birth of
// the record.
func (s *Service) CreateVisit(ctx context.Context, in *CreateInput) (*Visit, error) {
	childID, err := uuid.Parse(in.ChildID)
	if err != nil {
		return nil, &ValidationError{"child_id", "must be a valid UUID"}
	}
	v, err := buildVisit(childID, in)
	if err != nil {
		return nil, err
	}

	userID := auth.UserIDFromContext(ctx)
	if err := s.authorizeWrite(ctx, userID, childID); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	s.record(ctx, &audit.AuditEvent{
		EntityType: EntityType,
		EntityID:   v.ID,
		UserID:     auditUser(userID),
		Action:     audit.ActionCreated,
		Changes:    changeset.ChangeSet{},
	})
	return v, nil
}

// GetVisit loads one visit if the caller may read the child it belongs to.
func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	userID := auth.UserIDFromContext(ctx)
	ok, err := s.access.CanRead(ctx, userID, v.ChildID)
	if err != nil {
		return nil, fmt.Errorf("check read access: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// ListVisitsByChild returns one page of a child's visits, newest first.
func (s *Service) ListVisitsByChild(ctx context.Context, childID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	userID := auth.UserIDFromContext(ctx)
	ok, err := s.access.CanRead(ctx, userID, childID)
	if err != nil {
		return nil, 0, fmt.Errorf("check read access: %w", err)
	}
	if !ok {
		return nil, 0, ErrNotFound
	}
	return s.repo.ListByChild(ctx, childID, limit, offset)
}

// UpdateVisit applies a sparse update. The steps run in a fixed order and
// each failure returns before any later step has side effects: load the
// current row, authorize, check the submitted version stamp, validate and
// build the field set, write under a storage-level guard, diff and audit,
// sync illness rows, then reload the final state.
func (s *Service) UpdateVisit(ctx context.Context, id uuid.UUID, raw map[string]json.RawMessage) (*Visit, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	userID := auth.UserIDFromContext(ctx)
	if err := s.authorizeWrite(ctx, userID, current.ChildID); err != nil {
		return nil, err
	}

	// The stamp is pulled out ahead of full validation so a stale writer
	// hears about the conflict rather than about field errors in a payload
	// that will never land anyway.
	var clientStamp *time.Time
	if rawStamp, ok := raw["updated_at"]; ok {
		clientStamp, err = parseStamp(rawStamp)
		if err != nil {
			return nil, err
		}
	}
	if oplock.CheckStamp(current.UpdatedAt, clientStamp, s.skewTolerance) == oplock.Conflict {
		return nil, &oplock.ConflictError{CurrentVersion: current.UpdatedAt, SubmittedVersion: *clientStamp}
	}

	in, err := ParseUpdateInput(raw)
	if err != nil {
		return nil, err
	}
	if in.IsEmpty() {
		return current, nil
	}

	rows, _, err := s.repo.UpdateWhere(ctx, id, clientStamp, s.skewTolerance, in.Fields)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// The pre-check passed but the conditional write matched nothing:
		// either the row vanished or a concurrent writer moved the stamp.
		reloaded, rerr := s.repo.GetByID(ctx, id)
		if rerr != nil {
			return nil, ErrNotFound
		}
		if clientStamp == nil {
			return nil, ErrNotFound
		}
		return nil, &oplock.ConflictError{CurrentVersion: reloaded.UpdatedAt, SubmittedVersion: *clientStamp}
	}

	changes := changeset.Diff(current.Snapshot(), in.PayloadForDiff(), changeset.DiffOptions{
		ExcludeKeys: []string{"child_id"},
	})
	if len(changes) > 0 {
		s.record(ctx, &audit.AuditEvent{
			EntityType: EntityType,
			EntityID:   id,
			UserID:     auditUser(userID),
			Action:     audit.ActionUpdated,
			Changes:    changes,
		})
	}

	if in.IllnessTypes != nil {
		if err := s.repo.ReplaceIllnesses(ctx, id, *in.IllnessTypes); err != nil {
			return nil, fmt.Errorf("sync illnesses: %w", err)
		}
	}

	return s.repo.GetByID(ctx, id)
}

// DeleteVisit removes a visit and records the deletion.
func (s *Service) DeleteVisit(ctx context.Context, id uuid.UUID) error {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	userID := auth.UserIDFromContext(ctx)
	if err := s.authorizeWrite(ctx, userID, v.ChildID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, &audit.AuditEvent{
		EntityType: EntityType,
		EntityID:   id,
		UserID:     auditUser(userID),
		Action:     audit.ActionDeleted,
		Changes:    changeset.ChangeSet{},
	})
	return nil
}

// CanViewEntity implements audit.ViewPolicy: history visibility for a visit
// follows read access to the child it belongs to.
func (s *Service) CanViewEntity(ctx context.Context, entityType string, entityID, userID uuid.UUID) (bool, error) {
	if entityType != EntityType {
		return false, nil
	}
	v, err := s.repo.GetByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.access.CanRead(ctx, userID, v.ChildID)
}

// authorizeWrite distinguishes "cannot see the child at all" from "can see
// but cannot modify": the former reads as not-found so existence never leaks.
func (s *Service) authorizeWrite(ctx context.Context, userID, childID uuid.UUID) error {
	canRead, err := s.access.CanRead(ctx, userID, childID)
	if err != nil {
		return fmt.Errorf("check read access: %w", err)
	}
	if !canRead {
		return ErrNotFound
	}
	canWrite, err := s.access.CanWrite(ctx, userID, childID)
	if err != nil {
		return fmt.Errorf("check write access: %w", err)
	}
	if !canWrite {
		return ErrForbidden
	}
	return nil
}

// record writes the audit event on a context that survives request
// cancellation, so an entity write that already committed still gets its
// trail entry.
func (s *Service) record(ctx context.Context, evt *audit.AuditEvent) {
	if err := s.auditor.Record(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Error().Err(err).
			Str("entity_id", evt.EntityID.String()).
			Str("action", evt.Action).
			Msg("audit record failed")
	}
}

func auditUser(userID uuid.UUID) *uuid.UUID {
	if userID == uuid.Nil {
		return nil
	}
	return &userID
}

func buildVisit(childID uuid.UUID, in *CreateInput) (*Visit, error) {
	if in.VisitDate == "" {
		return nil, &ValidationError{"visit_date", "is required"}
	}
	visitDate, err := time.Parse(dateLayout, in.VisitDate)
	if err != nil {
		return nil, &ValidationError{"visit_date", "must be a date in YYYY-MM-DD format"}
	}
	if !validVisitTypes[in.VisitType] {
		return nil, &ValidationError{"visit_type", "invalid visit type: " + in.VisitType}
	}
	var followUp *time.Time
	if in.FollowUpDate != nil {
		t, err := time.Parse(dateLayout, *in.FollowUpDate)
		if err != nil {
			return nil, &ValidationError{"follow_up_date", "must be a date in YYYY-MM-DD format"}
		}
		followUp = &t
	}
	if err := checkMeasurement("temperature", in.Temperature, 80, 115); err != nil {
		return nil, err
	}
	if err := checkMeasurement("weight_kg", in.WeightKg, 0, 300); err != nil {
		return nil, err
	}
	if err := checkMeasurement("height_cm", in.HeightCm, 0, 250); err != nil {
		return nil, err
	}
	types := in.IllnessTypes
	if types == nil {
		types = []string{}
	}
	return &Visit{
		ChildID:        childID,
		VisitDate:      visitDate,
		VisitType:      in.VisitType,
		DoctorName:     in.DoctorName,
		Location:       in.Location,
		Reason:         in.Reason,
		Temperature:    in.Temperature,
		WeightKg:       in.WeightKg,
		HeightCm:       in.HeightCm,
		Symptoms:       in.Symptoms,
		Diagnosis:      in.Diagnosis,
		TreatmentNotes: in.TreatmentNotes,
		FollowUpDate:   followUp,
		IllnessTypes:   types,
	}, nil
}

func checkMeasurement(field string, v *float64, min, max float64) error {
	if v == nil {
		return nil
	}
	if *v <= min || *v > max {
		return &ValidationError{field, fmt.Sprintf("must be between %g and %g", min, max)}
	}
	return nil
}
