package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchline/stitchline/internal/platform/db"
)

// Repository stores role grants in role_permissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RolePermissions lists the explicit grants of a role.
func (r *Repository) RolePermissions(ctx context.Context, role string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT permission FROM role_permissions WHERE role=$1 ORDER BY permission`, role)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ReplaceRolePermissions swaps the grants of a role atomically.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, role string, perms []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role=$1`, role); err != nil {
			return err
		}
		for _, p := range perms {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role, permission) VALUES ($1,$2)`, role, p); err != nil {
				return err
			}
		}
		return nil
	})
}
