package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	EventID  string         `json:"event_id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Validate checks the mandatory fields.
func (l AuditLog) Validate() error {
	if l.EventID == "" {
		return errors.New("audit log requires event_id")
	}
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db execer
}

// NewAuditLogger returns a new AuditLogger over a pool or transaction.
func NewAuditLogger(db execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry. Replays of the same event id are ignored
// and reported with recorded=false.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) (recorded bool, err error) {
	if l == nil || l.db == nil {
		return false, errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return false, err
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return false, err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	tag, err := l.db.Exec(ctx, `INSERT INTO audit_logs (event_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
ON CONFLICT (event_id) DO NOTHING`, log.EventID, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Prune deletes entries that occurred before cutoff.
func (l *AuditLogger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("audit logger not initialised")
	}
	tag, err := l.db.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
