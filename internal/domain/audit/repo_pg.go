package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famcare/famcare/internal/platform/changeset"
	"github.com/famcare/famcare/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *RepoPG) Insert(ctx context.Context, evt *AuditEvent) error {
	changes, err := json.Marshal(evt.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_event (entity_type, entity_id, user_id, action, changes, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, occurred_at`,
		evt.EntityType, evt.EntityID, evt.UserID, evt.Action, changes, evt.Summary).
		Scan(&evt.ID, &evt.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *RepoPG) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*AuditEvent, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_event
		WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, entity_type, entity_id, user_id, action, changes, summary, occurred_at
		FROM audit_event
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		entityType, entityID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		var evt AuditEvent
		var changes []byte
		err := rows.Scan(&evt.ID, &evt.EntityType, &evt.EntityID, &evt.UserID,
			&evt.Action, &changes, &evt.Summary, &evt.OccurredAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audit event: %w", err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &evt.Changes); err != nil {
				return nil, 0, fmt.Errorf("unmarshal changes for event %d: %w", evt.ID, err)
			}
		}
		if evt.Changes == nil {
			evt.Changes = changeset.ChangeSet{}
		}
		events = append(events, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, total, nil
}
