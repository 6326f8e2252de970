package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const windowSQL = `SELECT event_id::text, occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::bigint IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6 LIMIT $7`

// PGRepository reads audit_logs through pgx.
type PGRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PGRepository)(nil)

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// AuditWindow returns entries matching q, newest first.
func (r *PGRepository) AuditWindow(ctx context.Context, q WindowQuery) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, windowSQL, q.FromAt, q.ToAt, q.ActorID, q.Entity, q.Action, q.OffsetRows, q.LimitRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.EventID, &row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
