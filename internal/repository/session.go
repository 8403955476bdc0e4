package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

type SessionRepository interface {
	FindActive(ctx context.Context, sessionID string) (*model.Session, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.Session, error)
	// Create starts a session, resetting any inactive row that holds the same id.
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	UpdateState(ctx context.Context, sessionID string, currentMenu string, data model.JSONMap) error
	SetHistory(ctx context.Context, sessionID string, history model.History) error
	AppendHistory(ctx context.Context, sessionID string, entry model.HistoryEntry) error
	End(ctx context.Context, sessionID string) error
	DeactivateStale(ctx context.Context, idleSince time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindActive(ctx context.Context, sessionID string) (*model.Session, error) {
	return getOne[model.Session](ctx, r.db, `
		SELECT * FROM ussd_sessions WHERE session_id = $1 AND is_active = TRUE
	`, sessionID)
}

func (r *sessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Session, error) {
	return getOne[model.Session](ctx, r.db, `
		SELECT * FROM ussd_sessions WHERE session_id = $1
	`, sessionID)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO ussd_sessions (session_id, phone_number, app_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET
			phone_number = EXCLUDED.phone_number,
			app_id = EXCLUDED.app_id,
			current_menu = NULL,
			session_data = '{}',
			input_history = '[]',
			is_active = TRUE,
			created_at = NOW(),
			updated_at = NOW()
		RETURNING *
	`, params.SessionID, params.PhoneNumber, params.AppID)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) UpdateState(ctx context.Context, sessionID string, currentMenu string, data model.JSONMap) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ussd_sessions SET
			current_menu = $2,
			session_data = $3,
			updated_at = $4
		WHERE session_id = $1
	`, sessionID, currentMenu, data, time.Now())
	return err
}

func (r *sessionRepo) SetHistory(ctx context.Context, sessionID string, history model.History) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ussd_sessions SET
			input_history = $2,
			updated_at = $3
		WHERE session_id = $1
	`, sessionID, history, time.Now())
	return err
}

func (r *sessionRepo) AppendHistory(ctx context.Context, sessionID string, entry model.HistoryEntry) error {
	b, err := json.Marshal([]model.HistoryEntry{entry})
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE ussd_sessions SET
			input_history = input_history || $2::jsonb,
			updated_at = $3
		WHERE session_id = $1
	`, sessionID, string(b), time.Now())
	return err
}

func (r *sessionRepo) End(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ussd_sessions SET
			is_active = FALSE,
			updated_at = $2
		WHERE session_id = $1
	`, sessionID, time.Now())
	return err
}

func (r *sessionRepo) DeactivateStale(ctx context.Context, idleSince time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE ussd_sessions SET
			is_active = FALSE,
			updated_at = NOW()
		WHERE is_active = TRUE AND updated_at < $1
	`, idleSince)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
