package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/database"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
)

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type SessionService struct {
	tx          TxRunner
	sessionRepo repository.SessionRepository
	varRepo     repository.VariableRepository
}

func NewSessionService(
	tx TxRunner,
	sessionRepo repository.SessionRepository,
	varRepo repository.VariableRepository,
) *SessionService {
	return &SessionService{
		tx:          tx,
		sessionRepo: sessionRepo,
		varRepo:     varRepo,
	}
}

// FindActive returns the active session for sessionID or nil.
func (s *SessionService) FindActive(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.sessionRepo.FindActive(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

// Find returns the session row for sessionID whether or not it is active.
func (s *SessionService) Find(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.sessionRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

// Start creates a session, or resets an inactive row with the same id and
// drops the variables it left behind.
func (s *SessionService) Start(ctx context.Context, sessionID, phone, appID string) (*model.Session, error) {
	var sess *model.Session
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.sessionRepo.WithTx(tx).Create(ctx, model.CreateSessionParams{
			SessionID:   sessionID,
			PhoneNumber: phone,
			AppID:       appID,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if _, err := s.varRepo.WithTx(tx).DeleteBySession(ctx, sessionID); err != nil {
			return fmt.Errorf("clear session variables: %w", err)
		}
		sess = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("sessionId", sessionID).Str("appId", appID).Msg("session started")
	return sess, nil
}

func (s *SessionService) End(ctx context.Context, sessionID string) error {
	if err := s.sessionRepo.End(ctx, sessionID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
