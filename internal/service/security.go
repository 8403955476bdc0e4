package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	"github.com/openclaw/ussd-gateway-go/internal/metrics"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
)

// BlockRule blocks a phone once Threshold failed attempts of AttemptType
// (any type when empty) fall inside Window. A zero Duration blocks permanently.
type BlockRule struct {
	AttemptType model.AttemptType
	Threshold   int
	Window      time.Duration
	Duration    time.Duration
	Reason      string
}

var DefaultBlockRules = []BlockRule{
	{
		AttemptType: model.AttemptWrongPin,
		Threshold:   3,
		Window:      5 * time.Minute,
		Duration:    30 * time.Minute,
		Reason:      "Too many failed PIN attempts",
	},
	{
		Threshold: 10,
		Window:    time.Hour,
		Duration:  time.Hour,
		Reason:    "Suspicious activity detected",
	},
}

// AttemptParams describes one failed attempt.
type AttemptParams struct {
	PhoneNumber string
	AttemptType model.AttemptType
	MenuCode    string
	SessionID   string
}

// AttemptRecorder records failed attempts and reports a block they caused.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, params AttemptParams) (*model.BlockRecord, error)
}

type SecurityService struct {
	blockRepo   repository.BlockRepository
	attemptRepo repository.FailedAttemptRepository
	rules       []BlockRule
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewSecurityService(
	blockRepo repository.BlockRepository,
	attemptRepo repository.FailedAttemptRepository,
	rules []BlockRule,
	m *metrics.Metrics,
) *SecurityService {
	if rules == nil {
		rules = DefaultBlockRules
	}
	return &SecurityService{
		blockRepo:   blockRepo,
		attemptRepo: attemptRepo,
		rules:       rules,
		metrics:     m,
		now:         time.Now,
	}
}

// CheckBlocked returns the active block for phone or nil.
func (s *SecurityService) CheckBlocked(ctx context.Context, phone string) (*model.BlockRecord, error) {
	block, err := s.blockRepo.FindActive(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("find active block: %w", err)
	}
	return block, nil
}

// RecordAttempt stores the attempt and evaluates the block rules in order.
// The first rule that trips creates a block, replacing any active one.
func (s *SecurityService) RecordAttempt(ctx context.Context, params AttemptParams) (*model.BlockRecord, error) {
	now := s.now()
	attempt := &model.FailedAttempt{
		PhoneNumber: params.PhoneNumber,
		AttemptType: params.AttemptType,
		MenuCode:    optionalString(params.MenuCode),
		SessionID:   optionalString(params.SessionID),
		CreatedAt:   now,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}

	audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventFailedAttempt,
		Phone:     params.PhoneNumber,
		SessionID: params.SessionID,
		Details: map[string]interface{}{
			"attemptType": string(params.AttemptType),
			"menuCode":    params.MenuCode,
		},
	})

	for _, rule := range s.rules {
		count, err := s.attemptRepo.CountSince(ctx, params.PhoneNumber, rule.AttemptType, now.Add(-rule.Window))
		if err != nil {
			return nil, fmt.Errorf("count failed attempts: %w", err)
		}
		if count < rule.Threshold {
			continue
		}
		return s.block(ctx, params.PhoneNumber, rule, count)
	}
	return nil, nil
}

func (s *SecurityService) block(ctx context.Context, phone string, rule BlockRule, count int) (*model.BlockRecord, error) {
	var unblockAt *time.Time
	if rule.Duration > 0 {
		t := s.now().Add(rule.Duration)
		unblockAt = &t
	}

	if _, err := s.blockRepo.DeactivateByPhone(ctx, phone); err != nil {
		return nil, fmt.Errorf("replace active block: %w", err)
	}
	block, err := s.blockRepo.Create(ctx, model.CreateBlockParams{
		PhoneNumber: phone,
		Reason:      rule.Reason,
		BlockedBy:   model.BlockedByRule,
		UnblockAt:   unblockAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create block: %w", err)
	}

	s.metrics.ObserveBlock(rule.Reason)
	details := map[string]interface{}{
		"reason":   rule.Reason,
		"attempts": count,
	}
	if unblockAt != nil {
		details["unblockAt"] = *unblockAt
	}
	audit.LogEvent(ctx, audit.Event{Type: audit.EventBlockCreated, Phone: phone, Details: details})

	return block, nil
}

// Unblock lifts every active block on phone.
func (s *SecurityService) Unblock(ctx context.Context, phone string) (int64, error) {
	n, err := s.blockRepo.DeactivateByPhone(ctx, phone)
	if err != nil {
		return 0, fmt.Errorf("unblock phone: %w", err)
	}
	if n > 0 {
		audit.LogEvent(ctx, audit.Event{
			Type:    audit.EventBlockLifted,
			Phone:   phone,
			Details: map[string]interface{}{"blocks": n},
		})
	} else {
		log.Debug().Msg("unblock requested for phone without active blocks")
	}
	return n, nil
}

// BlockMessage renders the text shown to a blocked caller.
func BlockMessage(block *model.BlockRecord) string {
	if block.Permanent() {
		return fmt.Sprintf("Your number has been blocked: %s. Please contact support.", block.Reason)
	}
	return fmt.Sprintf("Your number has been temporarily blocked: %s. Try again after %s.",
		block.Reason, block.UnblockAt.Format("15:04"))
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
