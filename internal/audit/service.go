package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// MaxExportRows bounds a single CSV export.
	MaxExportRows = 10000
)

// ErrExportTooLarge is returned when the filtered timeline exceeds
// MaxExportRows.
var ErrExportTooLarge = errors.New("audit: export too large, narrow the filters")

// WindowQuery is the repository form of TimelineFilters.
type WindowQuery struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	ActorID    pgtype.Int8
	Entity     pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// Repository reads audit entries newest first.
type Repository interface {
	AuditWindow(ctx context.Context, q WindowQuery) ([]TimelineRow, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService builds the audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries matching filters.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	q := windowQuery(filters)
	q.OffsetRows = int32((page - 1) * pageSize)
	q.LimitRows = int32(pageSize + 1)

	rows, err := s.repo.AuditWindow(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every entry matching filters, up to MaxExportRows.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	q := windowQuery(filters)
	q.LimitRows = MaxExportRows + 1
	rows, err := s.repo.AuditWindow(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) > MaxExportRows {
		return nil, ErrExportTooLarge
	}
	return rows, nil
}

func windowQuery(filters TimelineFilters) WindowQuery {
	q := WindowQuery{
		FromAt: toPgTime(filters.From),
		Entity: optionalText(filters.Entity),
		Action: optionalText(filters.Action),
	}
	if !filters.To.IsZero() {
		q.ToAt = toPgTime(filters.To.AddDate(0, 0, 1))
	}
	if filters.ActorID > 0 {
		q.ActorID = pgtype.Int8{Int64: filters.ActorID, Valid: true}
	}
	return q
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}
