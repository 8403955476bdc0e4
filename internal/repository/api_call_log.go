package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

type ApiCallLogRepository interface {
	Create(ctx context.Context, entry *model.ApiCallLog) error
	ListBySession(ctx context.Context, sessionID string) ([]model.ApiCallLog, error)
}

type apiCallLogRepo struct {
	db *sqlx.DB
}

func NewApiCallLogRepository(db *sqlx.DB) ApiCallLogRepository {
	return &apiCallLogRepo{db: db}
}

func (r *apiCallLogRepo) Create(ctx context.Context, entry *model.ApiCallLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_call_logs (
			id, session_id, api_name, attempt, request_data, response_data,
			status_code, error_message, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.SessionID, entry.ApiName, entry.Attempt, entry.RequestData, entry.ResponseData,
		entry.StatusCode, entry.ErrorMessage, entry.DurationMs, entry.CreatedAt)
	return err
}

func (r *apiCallLogRepo) ListBySession(ctx context.Context, sessionID string) ([]model.ApiCallLog, error) {
	var logs []model.ApiCallLog
	err := r.db.SelectContext(ctx, &logs, `
		SELECT * FROM api_call_logs WHERE session_id = $1 ORDER BY created_at, attempt
	`, sessionID)
	return logs, err
}
