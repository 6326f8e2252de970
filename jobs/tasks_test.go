package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/tras-phone/admin-access/internal/jobs"
	"github.com/tras-phone/admin-access/internal/shared"
)

type fakeWriter struct {
	recorded map[string]shared.AuditLog
	cutoff   time.Time
	pruned   int64
	err      error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{recorded: map[string]shared.AuditLog{}}
}

func (f *fakeWriter) Record(_ context.Context, entry shared.AuditLog) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.recorded[entry.EventID]; ok {
		return false, nil
	}
	f.recorded[entry.EventID] = entry
	return true, nil
}

func (f *fakeWriter) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.cutoff = cutoff
	return f.pruned, nil
}

func sampleEntry() shared.AuditLog {
	return shared.AuditLog{
		EventID:  "3f1c2a4e-0000-4000-8000-000000000001",
		ActorID:  7,
		Action:   "role.created",
		Entity:   "role",
		EntityID: "12",
		Meta:     map[string]any{"name": "Catalog"},
		At:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newJob(w AuditWriter) *AuditJob {
	job := NewAuditJob(w, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC) }
	return job
}

func TestNewAuditTaskCarriesEntry(t *testing.T) {
	task, err := NewAuditTask(sampleEntry())
	require.NoError(t, err)
	require.Equal(t, TaskAuditRecord, task.Type())

	var decoded shared.AuditLog
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, "role.created", decoded.Action)
	require.Equal(t, "12", decoded.EntityID)
}

func TestNewAuditTaskRejectsInvalidEntry(t *testing.T) {
	entry := sampleEntry()
	entry.EventID = ""
	_, err := NewAuditTask(entry)
	require.Error(t, err)
}

func TestHandleRecordIsIdempotent(t *testing.T) {
	writer := newFakeWriter()
	job := newJob(writer)
	task, err := NewAuditTask(sampleEntry())
	require.NoError(t, err)

	require.NoError(t, job.HandleRecord(context.Background(), task))
	require.NoError(t, job.HandleRecord(context.Background(), task))
	require.Len(t, writer.recorded, 1)
}

func TestHandleRecordSkipsMalformedPayload(t *testing.T) {
	job := newJob(newFakeWriter())
	err := job.HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandleRecord(context.Background(), asynq.NewTask(TaskAuditRecord, []byte(`{"event_id":"x"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRecordReturnsStoreErrorForRetry(t *testing.T) {
	writer := newFakeWriter()
	writer.err = errors.New("db down")
	job := newJob(writer)
	task, err := NewAuditTask(sampleEntry())
	require.NoError(t, err)

	err = job.HandleRecord(context.Background(), task)
	require.EqualError(t, err, "db down")
}

func TestHandlePruneUsesRetention(t *testing.T) {
	writer := newFakeWriter()
	writer.pruned = 4
	job := newJob(writer)

	task, err := NewAuditPruneTask(30)
	require.NoError(t, err)
	require.NoError(t, job.HandlePrune(context.Background(), task))
	require.Equal(t, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), writer.cutoff)
}

func TestHandlePruneDefaultsRetention(t *testing.T) {
	writer := newFakeWriter()
	job := newJob(writer)

	task, err := NewAuditPruneTask(0)
	require.NoError(t, err)
	require.NoError(t, job.HandlePrune(context.Background(), task))
	require.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), writer.cutoff)
}
