package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeMenuNotFound, "Menu main not found")
		assert.Equal(t, "MENU_NOT_FOUND: Menu main not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"menu": "enter_amount"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"InvalidInput", func() *AppError { return InvalidInput("phone", "invalid") }, ErrCodeInvalidInput},
		{"AppNotFound", func() *AppError { return AppNotFound("*384#") }, ErrCodeAppNotFound},
		{"MenuNotFound", func() *AppError { return MenuNotFound("main") }, ErrCodeMenuNotFound},
		{"NextMenuMissing", func() *AppError { return NextMenuMissing("main") }, ErrCodeNextMenuMissing},
		{"Configuration", func() *AppError { return Configuration("bad") }, ErrCodeConfiguration},
		{"SessionTimeout", func() *AppError { return SessionTimeout(nil) }, ErrCodeSessionTimeout},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
		{"Database", func() *AppError { return Database(errors.New("db")) }, ErrCodeDatabase},
		{"External", func() *AppError { return External("billing", errors.New("down")) }, ErrCodeExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			assert.Equal(t, tt.expectedCode, err.Code)
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Run("GetCode unwraps wrapped AppError", func(t *testing.T) {
		err := fmt.Errorf("load menu: %w", MenuNotFound("x"))
		assert.True(t, IsAppError(err))
		assert.Equal(t, ErrCodeMenuNotFound, GetCode(err))
	})

	t.Run("GetCode defaults to internal", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
	})

	t.Run("IsTimeout detects deadline and timeout code", func(t *testing.T) {
		assert.True(t, IsTimeout(SessionTimeout(nil)))
		assert.True(t, IsTimeout(fmt.Errorf("query: %w", context.DeadlineExceeded)))
		assert.False(t, IsTimeout(errors.New("other")))
		assert.False(t, IsTimeout(nil))
	})

	t.Run("IsConfiguration covers flow definition errors", func(t *testing.T) {
		assert.True(t, IsConfiguration(MenuNotFound("m")))
		assert.True(t, IsConfiguration(NextMenuMissing("m")))
		assert.True(t, IsConfiguration(AppNotFound("*1#")))
		assert.False(t, IsConfiguration(Database(nil)))
	})
}
