package repository

import (
	"context"
	"database/sql"
	"errors"

	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
)

type getter interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// getOne scans a single row into a new T. A missing row yields (nil, nil),
// which callers treat as "not configured" or "no such session".
func getOne[T any](ctx context.Context, db getter, query string, args ...interface{}) (*T, error) {
	var row T
	err := db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return &row, nil
}
