package admins

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tras-phone/admin-access/internal/platform/db"
	"github.com/tras-phone/admin-access/internal/rbac"
)

const adminSelect = `SELECT a.id, a.email, a.name, a.is_active, a.is_super_admin, a.feature_flags,
	COALESCE((SELECT array_agg(ar.role_id ORDER BY ar.role_id) FROM admin_roles ar WHERE ar.admin_id = a.id), '{}'),
	COALESCE((SELECT array_agg(ap.permission_key ORDER BY ap.permission_key) FROM admin_permissions ap WHERE ap.admin_id = a.id), '{}'),
	a.created_at, a.updated_at
FROM admins a`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAdmins returns all admins ordered by id.
func (r *Repository) ListAdmins(ctx context.Context) ([]Admin, error) {
	rows, err := r.pool.Query(ctx, adminSelect+` ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var admins []Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return admins, nil
}

// GetAdmin returns one admin or rbac.ErrPrincipalNotFound.
func (r *Repository) GetAdmin(ctx context.Context, id int64) (Admin, error) {
	a, err := scanAdmin(r.pool.QueryRow(ctx, adminSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admin{}, rbac.ErrPrincipalNotFound
		}
		return Admin{}, err
	}
	return a, nil
}

// GetAdminByID satisfies rbac.PrincipalReader.
func (r *Repository) GetAdminByID(ctx context.Context, id int64) (rbac.Principal, error) {
	a, err := r.GetAdmin(ctx, id)
	if err != nil {
		return rbac.Principal{}, err
	}
	return a.Principal(), nil
}

// UpdateAccess replaces the fields set in patch in one transaction.
func (r *Repository) UpdateAccess(ctx context.Context, id int64, patch AccessPatch) (Admin, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE admins SET
	is_active = COALESCE($2, is_active),
	feature_flags = COALESCE($3, feature_flags),
	updated_at = NOW()
WHERE id = $1`, id, patch.IsActive, flagsArg(patch.FeatureFlags))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return rbac.ErrPrincipalNotFound
		}
		if patch.RoleIDs != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM admin_roles WHERE admin_id = $1`, id); err != nil {
				return err
			}
			if len(*patch.RoleIDs) > 0 {
				if _, err := tx.Exec(ctx, `INSERT INTO admin_roles (admin_id, role_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, id, *patch.RoleIDs); err != nil {
					return err
				}
			}
		}
		if patch.DirectPermissions != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM admin_permissions WHERE admin_id = $1`, id); err != nil {
				return err
			}
			if len(*patch.DirectPermissions) > 0 {
				if _, err := tx.Exec(ctx, `INSERT INTO admin_permissions (admin_id, permission_key)
SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`, id, *patch.DirectPermissions); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Admin{}, err
	}
	return r.GetAdmin(ctx, id)
}

func flagsArg(flags *[]string) any {
	if flags == nil {
		return nil
	}
	if *flags == nil {
		return []string{}
	}
	return *flags
}

func scanAdmin(row pgx.Row) (Admin, error) {
	var a Admin
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.IsActive, &a.IsSuperAdmin, &a.FeatureFlags,
		&a.RoleIDs, &a.DirectPermissions, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
