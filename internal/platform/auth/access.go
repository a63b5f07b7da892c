package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessControl answers whether a user may read or write records belonging
// to a child. Family and membership semantics live behind this interface;
// the audit and visit packages only forward the question.
type AccessControl interface {
	CanRead(ctx context.Context, userID, childID uuid.UUID) (bool, error)
	CanWrite(ctx context.Context, userID, childID uuid.UUID) (bool, error)
}

// FamilyAccess implements AccessControl over the family membership tables.
// Any member of the child's family may read; writing requires the parent or
// guardian role.
type FamilyAccess struct {
	pool *pgxpool.Pool
}

// NewFamilyAccess creates a FamilyAccess backed by the given pool.
func NewFamilyAccess(pool *pgxpool.Pool) *FamilyAccess {
	return &FamilyAccess{pool: pool}
}

func (a *FamilyAccess) CanRead(ctx context.Context, userID, childID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	var n int
	err := a.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM family_member fm
		JOIN child c ON c.family_id = fm.family_id
		WHERE fm.user_id = $1 AND c.id = $2`,
		userID, childID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *FamilyAccess) CanWrite(ctx context.Context, userID, childID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	var n int
	err := a.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM family_member fm
		JOIN child c ON c.family_id = fm.family_id
		WHERE fm.user_id = $1 AND c.id = $2 AND fm.role IN ('parent', 'guardian')`,
		userID, childID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
