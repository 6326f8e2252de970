package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tras-phone/admin-access/internal/platform/db"
	"github.com/tras-phone/admin-access/internal/platform/httpx"
	"github.com/tras-phone/admin-access/internal/rbac"
)

const roleColumns = `r.id, r.name, r.localized_name, r.description, r.is_system, r.is_active,
	COALESCE(array_agg(rp.permission_key ORDER BY rp.permission_key) FILTER (WHERE rp.permission_key IS NOT NULL), '{}')`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles ordered by id with permission keys.
func (r *Repository) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+`
FROM roles r LEFT JOIN role_permissions rp ON rp.role_id = r.id
GROUP BY r.id ORDER BY r.id`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// GetRolesByIDs returns the roles with the given ids. Unknown ids are
// skipped.
func (r *Repository) GetRolesByIDs(ctx context.Context, ids []int64) ([]rbac.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+`
FROM roles r LEFT JOIN role_permissions rp ON rp.role_id = r.id
WHERE r.id = ANY($1)
GROUP BY r.id ORDER BY r.id`, ids)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// GetRole returns a role with its permissions loaded from the catalog table.
func (r *Repository) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	var role rbac.Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, localized_name, description, is_system, is_active
FROM roles WHERE id = $1`, id).Scan(&role.ID, &role.Name, &role.LocalizedName, &role.Description, &role.IsSystem, &role.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, rbac.ErrRoleNotFound
		}
		return rbac.Role{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.key, p.module, p.description
FROM role_permissions rp JOIN permissions p ON p.key = rp.permission_key
WHERE rp.role_id = $1 ORDER BY p.key`, id)
	if err != nil {
		return rbac.Role{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Module, &p.Description); err != nil {
			return rbac.Role{}, err
		}
		role.Permissions = append(role.Permissions, rbac.ResolvedRef(p))
	}
	return role, rows.Err()
}

// SaveRole inserts or replaces a role and its permission set in one
// transaction.
func (r *Repository) SaveRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	keys := role.PermissionKeys()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if role.ID == 0 {
			if err := tx.QueryRow(ctx, `INSERT INTO roles (name, localized_name, description, is_system, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, role.Name, role.LocalizedName, role.Description, role.IsSystem, role.IsActive).Scan(&role.ID); err != nil {
				return err
			}
		} else {
			tag, err := tx.Exec(ctx, `UPDATE roles SET name = $2, localized_name = $3, description = $4, is_active = $5, updated_at = NOW()
WHERE id = $1`, role.ID, role.Name, role.LocalizedName, role.Description, role.IsActive)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return rbac.ErrRoleNotFound
			}
			if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
				return err
			}
		}
		if len(keys) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_key)
SELECT $1, unnest($2::text[])`, role.ID, keys)
		return err
	})
	if err != nil {
		return rbac.Role{}, mapWriteError(err)
	}
	role.Permissions = rbac.KeyRefs(keys...)
	return role, nil
}

// DeleteRoleRecord removes the role row; its permission rows cascade.
// Admin assignments are left in place.
func (r *Repository) DeleteRoleRecord(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrRoleNotFound
	}
	return nil
}

// SyncPermissions upserts the catalog into the permissions table.
func (r *Repository) SyncPermissions(ctx context.Context, perms []rbac.Permission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range perms {
			if _, err := tx.Exec(ctx, `INSERT INTO permissions (key, module, description) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET module = EXCLUDED.module, description = EXCLUDED.description`, p.Key, p.Module, p.Description); err != nil {
				return fmt.Errorf("roles: sync permission %s: %w", p.Key, err)
			}
		}
		return nil
	})
}

// UpsertSystemRole creates or refreshes a system role by name.
func (r *Repository) UpsertSystemRole(ctx context.Context, role rbac.Role) (rbac.Role, error) {
	keys := role.PermissionKeys()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO roles (name, localized_name, description, is_system, is_active)
VALUES ($1, $2, $3, TRUE, TRUE)
ON CONFLICT (name) DO UPDATE SET localized_name = EXCLUDED.localized_name, description = EXCLUDED.description, is_system = TRUE, updated_at = NOW()
RETURNING id, is_active`, role.Name, role.LocalizedName, role.Description).Scan(&role.ID, &role.IsActive); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_key)
SELECT $1, unnest($2::text[])`, role.ID, keys)
		return err
	})
	if err != nil {
		return rbac.Role{}, mapWriteError(err)
	}
	role.IsSystem = true
	role.Permissions = rbac.KeyRefs(keys...)
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]rbac.Role, error) {
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		var (
			role rbac.Role
			keys []string
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.LocalizedName, &role.Description, &role.IsSystem, &role.IsActive, &keys); err != nil {
			return nil, err
		}
		role.Permissions = rbac.KeyRefs(keys...)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func mapWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return fmt.Errorf("roles: name already taken: %w", httpx.ErrDuplicate)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("roles: %w", rbac.ErrUnknownPermission)
	}
	return err
}
