package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

// Store persists audit entries.
type Store interface {
	Create(ctx context.Context, entry *model.AuditEntry) error
}

// Record describes one handled request. Input holds the keypresses the
// request consumed; MenuCode is empty when they could not be attributed
// to a menu.
type Record struct {
	Kind        model.AuditKind
	SessionID   string
	PhoneNumber string
	AppID       string
	MenuCode    string
	MenuType    string
	Input       string
	Response    string
	Calls       []model.CallSummary
	Duration    time.Duration
	IPAddress   string
	UserAgent   string
}

// Trail writes one masked audit entry per handled request.
type Trail struct {
	store  Store
	masker *Masker
	now    func() time.Time
}

func NewTrail(store Store, masker *Masker) *Trail {
	return &Trail{store: store, masker: masker, now: time.Now}
}

// Entry converts rec into its masked, storable form.
func (t *Trail) Entry(rec Record) *model.AuditEntry {
	kind := rec.Kind
	if kind == "" {
		kind = model.AuditKindInteraction
	}
	input := t.masker.MaskInput(rec.MenuCode, rec.Input)
	return &model.AuditEntry{
		ID:               uuid.NewString(),
		Kind:             kind,
		SessionID:        rec.SessionID,
		PhoneNumber:      rec.PhoneNumber,
		AppID:            optional(rec.AppID),
		MenuCode:         optional(rec.MenuCode),
		MenuType:         optional(rec.MenuType),
		UserInput:        input,
		ResponseText:     MaskResponse(rec.Response),
		APICalls:         model.CallSummaries(rec.Calls),
		ProcessingTimeMs: rec.Duration.Milliseconds(),
		IPAddress:        rec.IPAddress,
		UserAgent:        rec.UserAgent,
		CreatedAt:        t.now(),
	}
}

// Write stores rec. Failures are logged and swallowed so that writing the
// trail can never break the response path.
func (t *Trail) Write(ctx context.Context, rec Record) {
	entry := t.Entry(rec)
	if err := t.store.Create(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("sessionId", rec.SessionID).
			Str("kind", string(entry.Kind)).
			Msg("failed to write audit entry")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
