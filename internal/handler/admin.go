package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/service"
	"github.com/openclaw/ussd-gateway-go/internal/util"
)

type AdminService interface {
	GetSession(ctx context.Context, sessionID string) (*service.SessionView, error)
	Trail(ctx context.Context, sessionID string) (*audit.SessionReplay, error)
	GetBlock(ctx context.Context, phone string) (*model.BlockRecord, error)
	Unblock(ctx context.Context, phone string) (int64, error)
	SearchAudit(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, int, error)
}

type AdminHandler struct {
	adminService AdminService
}

func NewAdminHandler(adminService AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/sessions/{sessionId}", h.GetSession)
	r.Get("/sessions/{sessionId}/trail", h.GetTrail)

	r.Get("/blocks/{phone}", h.GetBlock)
	r.Delete("/blocks/{phone}", h.Unblock)

	r.Get("/audit", h.SearchAudit)

	return r
}

func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.adminService.GetSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *AdminHandler) GetTrail(w http.ResponseWriter, r *http.Request) {
	replay, err := h.adminService.Trail(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replay)
}

func (h *AdminHandler) GetBlock(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if !util.IsValidPhone(phone) {
		writeError(w, r, apperrors.InvalidInput("phone", "must be 7-15 digits"))
		return
	}

	block, err := h.adminService.GetBlock(r.Context(), phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")
	if !util.IsValidPhone(phone) {
		writeError(w, r, apperrors.InvalidInput("phone", "must be 7-15 digits"))
		return
	}

	n, err := h.adminService.Unblock(r.Context(), phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"lifted":  n,
	})
}

// GET /audit?sessionId=&phone=&appId=&kind=&since=&until=&limit=&offset=|page=
func (h *AdminHandler) SearchAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := parsePage(r)

	filter := model.AuditFilter{
		SessionID:   q.Get("sessionId"),
		PhoneNumber: q.Get("phone"),
		AppID:       q.Get("appId"),
		Kind:        model.AuditKind(q.Get("kind")),
		Limit:       p.Limit,
		Offset:      p.Offset,
	}
	for name, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, apperrors.InvalidInput(name, "must be an RFC 3339 timestamp"))
			return
		}
		*dst = &t
	}

	entries, total, err := h.adminService.SearchAudit(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  entries,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}
