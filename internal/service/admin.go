package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
)

const trailLimit = 1000

// SessionView is the operator view of one session. Encrypted and
// PIN-class variables are masked.
type SessionView struct {
	Session   *model.Session     `json:"session"`
	Variables map[string]string  `json:"variables"`
	APICalls  []model.ApiCallLog `json:"apiCalls"`
}

type AdminService struct {
	sessions  *SessionService
	vars      *VariableStore
	auditRepo repository.AuditRepository
	logRepo   repository.ApiCallLogRepository
	security  *SecurityService
	masker    *audit.Masker
}

func NewAdminService(
	sessions *SessionService,
	vars *VariableStore,
	auditRepo repository.AuditRepository,
	logRepo repository.ApiCallLogRepository,
	security *SecurityService,
	masker *audit.Masker,
) *AdminService {
	return &AdminService{
		sessions:  sessions,
		vars:      vars,
		auditRepo: auditRepo,
		logRepo:   logRepo,
		security:  security,
		masker:    masker,
	}
}

func (s *AdminService) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperrors.NotFound("Session")
	}

	vars, err := s.vars.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	masked := make(map[string]string, len(vars.Values))
	for name, value := range vars.Values {
		if vars.Sealed(name) || s.isPinInput(name) {
			value = audit.Mask
		}
		masked[name] = value
	}

	calls, err := s.logRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list api calls: %w", err)
	}

	return &SessionView{Session: sess, Variables: masked, APICalls: calls}, nil
}

// Trail replays the audit entries recorded for a session.
func (s *AdminService) Trail(ctx context.Context, sessionID string) (*audit.SessionReplay, error) {
	entries, err := s.auditRepo.Query(ctx, model.AuditFilter{SessionID: sessionID, Limit: trailLimit})
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	if len(entries) == 0 {
		return nil, apperrors.NotFound("Audit trail")
	}
	replay := audit.Replay(sessionID, entries)
	return &replay, nil
}

func (s *AdminService) GetBlock(ctx context.Context, phone string) (*model.BlockRecord, error) {
	block, err := s.security.CheckBlocked(ctx, phone)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, apperrors.NotFound("Active block")
	}
	return block, nil
}

func (s *AdminService) Unblock(ctx context.Context, phone string) (int64, error) {
	return s.security.Unblock(ctx, phone)
}

// SearchAudit returns one page of audit entries and the total match count.
func (s *AdminService) SearchAudit(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, int, error) {
	entries, err := s.auditRepo.Query(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	total, err := s.auditRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	return entries, total, nil
}

func (s *AdminService) isPinInput(name string) bool {
	code, ok := strings.CutSuffix(name, inputSuffix)
	return ok && s.masker.IsPinMenu(code)
}
