package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

type VariableRepository interface {
	Upsert(ctx context.Context, sessionID, name, value string) error
	ListBySession(ctx context.Context, sessionID string) ([]model.SessionVariable, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	WithTx(tx *sqlx.Tx) VariableRepository
}

type variableRepo struct {
	db sessionDB
}

func NewVariableRepository(db *sqlx.DB) VariableRepository {
	return &variableRepo{db: db}
}

func (r *variableRepo) WithTx(tx *sqlx.Tx) VariableRepository {
	return &variableRepo{db: tx}
}

func (r *variableRepo) Upsert(ctx context.Context, sessionID, name, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_variables (session_id, variable_name, variable_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, variable_name) DO UPDATE SET
			variable_value = EXCLUDED.variable_value,
			updated_at = NOW()
	`, sessionID, name, value)
	return err
}

func (r *variableRepo) ListBySession(ctx context.Context, sessionID string) ([]model.SessionVariable, error) {
	var vars []model.SessionVariable
	err := r.db.SelectContext(ctx, &vars, `
		SELECT session_id, variable_name, variable_value, updated_at
		FROM session_variables
		WHERE session_id = $1
		ORDER BY variable_name
	`, sessionID)
	return vars, err
}

func (r *variableRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM session_variables WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
