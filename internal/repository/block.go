package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

type BlockRepository interface {
	FindActive(ctx context.Context, phone string) (*model.BlockRecord, error)
	Create(ctx context.Context, params model.CreateBlockParams) (*model.BlockRecord, error)
	DeactivateByPhone(ctx context.Context, phone string) (int64, error)
	DeactivateExpired(ctx context.Context) (int64, error)
}

type blockRepo struct {
	db *sqlx.DB
}

func NewBlockRepository(db *sqlx.DB) BlockRepository {
	return &blockRepo{db: db}
}

func (r *blockRepo) FindActive(ctx context.Context, phone string) (*model.BlockRecord, error) {
	return getOne[model.BlockRecord](ctx, r.db, `
		SELECT * FROM blocked_users
		WHERE phone_number = $1
		AND is_active = TRUE
		AND (unblock_at IS NULL OR unblock_at > NOW())
		ORDER BY unblock_at DESC NULLS FIRST
		LIMIT 1
	`, phone)
}

func (r *blockRepo) Create(ctx context.Context, params model.CreateBlockParams) (*model.BlockRecord, error) {
	var block model.BlockRecord
	err := r.db.GetContext(ctx, &block, `
		INSERT INTO blocked_users (phone_number, reason, blocked_by, unblock_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.PhoneNumber, params.Reason, params.BlockedBy, params.UnblockAt)
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *blockRepo) DeactivateByPhone(ctx context.Context, phone string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE blocked_users SET is_active = FALSE
		WHERE phone_number = $1 AND is_active = TRUE
	`, phone)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *blockRepo) DeactivateExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE blocked_users SET is_active = FALSE
		WHERE is_active = TRUE AND unblock_at IS NOT NULL AND unblock_at <= NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type FailedAttemptRepository interface {
	Create(ctx context.Context, attempt *model.FailedAttempt) error
	// CountSince counts attempts for phone since the given time.
	// An empty attemptType counts every type.
	CountSince(ctx context.Context, phone string, attemptType model.AttemptType, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type failedAttemptRepo struct {
	db *sqlx.DB
}

func NewFailedAttemptRepository(db *sqlx.DB) FailedAttemptRepository {
	return &failedAttemptRepo{db: db}
}

func (r *failedAttemptRepo) Create(ctx context.Context, attempt *model.FailedAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO failed_attempts (phone_number, attempt_type, menu_code, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, attempt.PhoneNumber, attempt.AttemptType, attempt.MenuCode, attempt.SessionID, attempt.CreatedAt)
	return err
}

func (r *failedAttemptRepo) CountSince(ctx context.Context, phone string, attemptType model.AttemptType, since time.Time) (int, error) {
	var count int
	var err error
	if attemptType == "" {
		err = r.db.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM failed_attempts
			WHERE phone_number = $1 AND created_at > $2
		`, phone, since)
	} else {
		err = r.db.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM failed_attempts
			WHERE phone_number = $1 AND attempt_type = $2 AND created_at > $3
		`, phone, attemptType, since)
	}
	return count, err
}

func (r *failedAttemptRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM failed_attempts WHERE created_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
