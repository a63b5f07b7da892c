package visit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famcare/famcare/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepoPG returns a Postgres-backed visit repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// q prefers an ambient transaction so illness syncs can share one with the
// visit write.
func (r *pgRepository) q(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitColumns = `id, child_id, visit_date, visit_type, doctor_name, location, reason,
		temperature, weight_kg, height_cm, symptoms, diagnosis, treatment_notes,
		follow_up_date, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(
		&v.ID, &v.ChildID, &v.VisitDate, &v.VisitType, &v.DoctorName, &v.Location, &v.Reason,
		&v.Temperature, &v.WeightKg, &v.HeightCm, &v.Symptoms, &v.Diagnosis, &v.TreatmentNotes,
		&v.FollowUpDate, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts the visit and its illness rows in one transaction.
func (r *pgRepository) Create(ctx context.Context, v *Visit) error {
	if db.TxFromContext(ctx) != nil {
		return r.create(ctx, v)
	}
	txCtx, tx, err := db.WithTx(ctx, r.pool)
	if err != nil {
		return fmt.Errorf("begin create visit: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := r.create(txCtx, v); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *pgRepository) create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := r.q(ctx).QueryRow(ctx, `
		INSERT INTO visit (id, child_id, visit_date, visit_type, doctor_name, location, reason,
			temperature, weight_kg, height_cm, symptoms, diagnosis, treatment_notes, follow_up_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		v.ID, v.ChildID, v.VisitDate, v.VisitType, v.DoctorName, v.Location, v.Reason,
		v.Temperature, v.WeightKg, v.HeightCm, v.Symptoms, v.Diagnosis, v.TreatmentNotes,
		v.FollowUpDate,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	if len(v.IllnessTypes) > 0 {
		if err := r.ReplaceIllnesses(ctx, v.ID, v.IllnessTypes); err != nil {
			return err
		}
	}
	return nil
}

func (r *pgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := scanVisit(r.q(ctx).QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visit WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	v.IllnessTypes, err = r.ListIllnesses(ctx, id)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *pgRepository) ListByChild(ctx context.Context, childID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM visit WHERE child_id = $1`, childID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visits: %w", err)
	}

	rows, err := r.q(ctx).Query(ctx, `
		SELECT `+visitColumns+`
		FROM visit
		WHERE child_id = $1
		ORDER BY visit_date DESC, created_at DESC
		LIMIT $2 OFFSET $3`, childID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var visits []*Visit
	byID := make(map[uuid.UUID]*Visit)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan visit: %w", err)
		}
		v.IllnessTypes = []string{}
		visits = append(visits, v)
		byID[v.ID] = v
		ids = append(ids, v.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(ids) > 0 {
		irows, err := r.q(ctx).Query(ctx, `
			SELECT visit_id, illness_type FROM visit_illness
			WHERE visit_id = ANY($1)
			ORDER BY visit_id, position`, ids)
		if err != nil {
			return nil, 0, fmt.Errorf("list visit illnesses: %w", err)
		}
		defer irows.Close()
		for irows.Next() {
			var visitID uuid.UUID
			var illnessType string
			if err := irows.Scan(&visitID, &illnessType); err != nil {
				return nil, 0, err
			}
			if v, ok := byID[visitID]; ok {
				v.IllnessTypes = append(v.IllnessTypes, illnessType)
			}
		}
		if err := irows.Err(); err != nil {
			return nil, 0, err
		}
	}

	return visits, total, nil
}

// UpdateWhere applies a sparse field set. When expected is non-nil the WHERE
// clause only matches if the stored stamp sits within tolerance of it, so a
// zero rows-affected result is the authoritative lost-the-race signal even
// when the application-level pre-check passed.
func (r *pgRepository) UpdateWhere(ctx context.Context, id uuid.UUID, expected *time.Time, tolerance time.Duration, fields map[string]interface{}) (int64, time.Time, error) {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := []any{id}
	for _, col := range cols {
		args = append(args, fields[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE visit SET %s WHERE id = $1", strings.Join(sets, ", "))
	if expected != nil {
		args = append(args, *expected)
		query += fmt.Sprintf(" AND ABS(EXTRACT(EPOCH FROM (updated_at - $%d))) <= %g", len(args), tolerance.Seconds())
	}
	query += " RETURNING updated_at"

	var newStamp time.Time
	if err := r.q(ctx).QueryRow(ctx, query, args...).Scan(&newStamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("update visit: %w", err)
	}
	return 1, newStamp, nil
}

func (r *pgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q(ctx).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepository) ListIllnesses(ctx context.Context, visitID uuid.UUID) ([]string, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT illness_type FROM visit_illness
		WHERE visit_id = $1
		ORDER BY position`, visitID)
	if err != nil {
		return nil, fmt.Errorf("list illnesses: %w", err)
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// ReplaceIllnesses rewrites the illness rows for a visit in place, preserving
// the order the caller supplied.
func (r *pgRepository) ReplaceIllnesses(ctx context.Context, visitID uuid.UUID, types []string) error {
	q := r.q(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM visit_illness WHERE visit_id = $1`, visitID); err != nil {
		return fmt.Errorf("clear illnesses: %w", err)
	}
	for i, t := range types {
		if _, err := q.Exec(ctx, `
			INSERT INTO visit_illness (visit_id, illness_type, position)
			VALUES ($1, $2, $3)`, visitID, t, i); err != nil {
			return fmt.Errorf("insert illness: %w", err)
		}
	}
	return nil
}
