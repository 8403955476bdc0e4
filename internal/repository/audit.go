package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

const defaultAuditLimit = 100

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditEntry) error
	Query(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error)
	Count(ctx context.Context, filter model.AuditFilter) (int, error)
}

type auditRepo struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Create(ctx context.Context, entry *model.AuditEntry) error {
	query, args, err := psq.Insert("audit_trail").
		Columns(
			"id", "kind", "session_id", "phone_number", "app_id", "menu_code", "menu_type",
			"user_input", "response_text", "api_calls_made", "processing_time_ms",
			"ip_address", "user_agent", "created_at",
		).
		Values(
			entry.ID, entry.Kind, entry.SessionID, entry.PhoneNumber, entry.AppID, entry.MenuCode, entry.MenuType,
			entry.UserInput, entry.ResponseText, entry.APICalls, entry.ProcessingTimeMs,
			entry.IPAddress, entry.UserAgent, entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *auditRepo) Query(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	qb := applyAuditFilter(psq.Select("*").From("audit_trail"), filter).
		OrderBy("created_at ASC").
		Limit(uint64(limit))
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	var entries []model.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *auditRepo) Count(ctx context.Context, filter model.AuditFilter) (int, error) {
	query, args, err := applyAuditFilter(psq.Select("COUNT(*)").From("audit_trail"), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit count: %w", err)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}

func applyAuditFilter(qb sq.SelectBuilder, filter model.AuditFilter) sq.SelectBuilder {
	if filter.SessionID != "" {
		qb = qb.Where(sq.Eq{"session_id": filter.SessionID})
	}
	if filter.PhoneNumber != "" {
		qb = qb.Where(sq.Eq{"phone_number": filter.PhoneNumber})
	}
	if filter.AppID != "" {
		qb = qb.Where(sq.Eq{"app_id": filter.AppID})
	}
	if filter.Kind != "" {
		qb = qb.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Since != nil {
		qb = qb.Where(sq.GtOrEq{"created_at": *filter.Since})
	}
	if filter.Until != nil {
		qb = qb.Where(sq.Lt{"created_at": *filter.Until})
	}
	return qb
}
