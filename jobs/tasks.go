package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tras-phone/admin-access/internal/jobs"
	"github.com/tras-phone/admin-access/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit deliveries.
	QueueAudit = "audit"
	// TaskAuditRecord persists one audit entry.
	TaskAuditRecord = "access:audit.record"
	// TaskAuditPrune deletes audit entries past retention.
	TaskAuditPrune = "access:audit.prune"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NewAuditTask wraps entry in a task whose id is the event id, so the same
// entry is enqueued at most once.
func NewAuditTask(entry shared.AuditLog) (*asynq.Task, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.TaskID(entry.EventID), asynq.Queue(QueueAudit), asynq.MaxRetry(10)), nil
}

// AuditPrunePayload configures the retention run.
type AuditPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewAuditPruneTask builds the retention task.
func NewAuditPruneTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}

// AuditWriter stores audit entries.
type AuditWriter interface {
	Record(ctx context.Context, entry shared.AuditLog) (bool, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditJob handles the audit tasks.
type AuditJob struct {
	Writer  AuditWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditJob initialises the audit handlers.
func NewAuditJob(writer AuditWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditJob {
	return &AuditJob{
		Writer:  writer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleRecord persists one entry. Malformed payloads are not retried.
func (j *AuditJob) HandleRecord(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Writer == nil {
		return errors.New("audit record: handler not configured")
	}
	var entry shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return asynq.SkipRetry
	}
	if err := entry.Validate(); err != nil {
		j.logger(TaskAuditRecord).Warn("drop invalid audit entry", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuditRecord)
	defer func() {
		err = tracker.End(err)
	}()

	recorded, err := j.Writer.Record(ctx, entry)
	if err != nil {
		j.logger(TaskAuditRecord).Error("record audit entry",
			slog.String("event_id", entry.EventID),
			slog.Any("error", err),
		)
		return err
	}
	if !recorded {
		j.metrics().AddDuplicate()
		j.logger(TaskAuditRecord).Debug("audit entry already recorded", slog.String("event_id", entry.EventID))
	}
	return nil
}

// HandlePrune deletes entries older than the retention window.
func (j *AuditJob) HandlePrune(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Writer == nil {
		return errors.New("audit prune: handler not configured")
	}
	var payload AuditPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 365
	}

	tracker := j.metrics().Track(TaskAuditPrune)
	defer func() {
		err = tracker.End(err)
	}()

	cutoff := j.now().AddDate(0, 0, -payload.RetentionDays)
	removed, err := j.Writer.Prune(ctx, cutoff)
	if err != nil {
		j.logger(TaskAuditPrune).Error("prune audit entries", slog.Any("error", err))
		return err
	}
	j.metrics().AddPruned(removed)
	j.logger(TaskAuditPrune).Info("pruned audit entries",
		slog.Int64("removed", removed),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

func (j *AuditJob) logger(job string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (j *AuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuditJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
