package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	"github.com/openclaw/ussd-gateway-go/internal/database"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
	"github.com/openclaw/ussd-gateway-go/internal/template"
	"github.com/openclaw/ussd-gateway-go/internal/validation"
)

// In-memory stand-ins for the sqlx repositories.

type memDefs struct {
	apps  map[string]*model.App
	menus map[string]*model.Menu
	apis  map[string]*model.ApiCallConfig
}

func newMemDefs(app *model.App, menus ...*model.Menu) *memDefs {
	d := &memDefs{
		apps:  map[string]*model.App{app.Code: app},
		menus: map[string]*model.Menu{},
		apis:  map[string]*model.ApiCallConfig{},
	}
	for _, m := range menus {
		d.menus[app.ID+"/"+m.Code] = m
	}
	return d
}

func (d *memDefs) addAPI(appID string, cfg *model.ApiCallConfig) {
	d.apis[appID+"/"+cfg.Name] = cfg
}

func (d *memDefs) FindAppByCode(_ context.Context, code string) (*model.App, error) {
	return d.apps[code], nil
}

func (d *memDefs) FindAppByID(_ context.Context, id string) (*model.App, error) {
	for _, a := range d.apps {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (d *memDefs) FindMenu(_ context.Context, appID, code string) (*model.Menu, error) {
	return d.menus[appID+"/"+code], nil
}

func (d *memDefs) FindApiConfig(_ context.Context, appID, name string) (*model.ApiCallConfig, error) {
	return d.apis[appID+"/"+name], nil
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]*model.Session
}

func newMemSessions() *memSessions {
	return &memSessions{rows: map[string]*model.Session{}}
}

func (r *memSessions) get(id string) *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil
	}
	cp := *s
	cp.History = append(model.History{}, s.History...)
	return &cp
}

func (r *memSessions) FindActive(_ context.Context, id string) (*model.Session, error) {
	s := r.get(id)
	if s == nil || !s.IsActive {
		return nil, nil
	}
	return s, nil
}

func (r *memSessions) FindBySessionID(_ context.Context, id string) (*model.Session, error) {
	return r.get(id), nil
}

func (r *memSessions) Create(_ context.Context, p model.CreateSessionParams) (*model.Session, error) {
	r.mu.Lock()
	r.rows[p.SessionID] = &model.Session{
		ID:          "row-" + p.SessionID,
		SessionID:   p.SessionID,
		PhoneNumber: p.PhoneNumber,
		AppID:       p.AppID,
		Data:        model.JSONMap{},
		History:     model.History{},
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.mu.Unlock()
	return r.get(p.SessionID), nil
}

func (r *memSessions) update(id string, fn func(s *model.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	fn(s)
	s.UpdatedAt = time.Now()
	return nil
}

func (r *memSessions) UpdateState(_ context.Context, id, menu string, data model.JSONMap) error {
	return r.update(id, func(s *model.Session) {
		s.CurrentMenu = &menu
		s.Data = data
	})
}

func (r *memSessions) SetHistory(_ context.Context, id string, h model.History) error {
	return r.update(id, func(s *model.Session) { s.History = append(model.History{}, h...) })
}

func (r *memSessions) AppendHistory(_ context.Context, id string, e model.HistoryEntry) error {
	return r.update(id, func(s *model.Session) { s.History = append(s.History, e) })
}

func (r *memSessions) End(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (r *memSessions) DeactivateStale(_ context.Context, idleSince time.Time) (int64, error) {
	return 0, nil
}

func (r *memSessions) WithTx(*sqlx.Tx) repository.SessionRepository { return r }

type memVariables struct {
	mu   sync.Mutex
	rows map[string]map[string]string
}

func newMemVariables() *memVariables {
	return &memVariables{rows: map[string]map[string]string{}}
}

func (r *memVariables) Upsert(_ context.Context, sessionID, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[sessionID] == nil {
		r.rows[sessionID] = map[string]string{}
	}
	r.rows[sessionID][name] = value
	return nil
}

func (r *memVariables) ListBySession(_ context.Context, sessionID string) ([]model.SessionVariable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SessionVariable
	for k, v := range r.rows[sessionID] {
		out = append(out, model.SessionVariable{SessionID: sessionID, Name: k, Value: v})
	}
	return out, nil
}

func (r *memVariables) DeleteBySession(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.rows[sessionID]))
	delete(r.rows, sessionID)
	return n, nil
}

func (r *memVariables) WithTx(*sqlx.Tx) repository.VariableRepository { return r }

func (r *memVariables) value(sessionID, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.rows[sessionID][name]
	return v, ok
}

type memBlocks struct {
	mu     sync.Mutex
	blocks []*model.BlockRecord
}

func (r *memBlocks) FindActive(_ context.Context, phone string) (*model.BlockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, b := range r.blocks {
		if b.PhoneNumber == phone && b.IsActive && (b.UnblockAt == nil || b.UnblockAt.After(now)) {
			return b, nil
		}
	}
	return nil, nil
}

func (r *memBlocks) Create(_ context.Context, p model.CreateBlockParams) (*model.BlockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &model.BlockRecord{
		ID:          fmt.Sprintf("block-%d", len(r.blocks)+1),
		PhoneNumber: p.PhoneNumber,
		Reason:      p.Reason,
		BlockedBy:   p.BlockedBy,
		UnblockAt:   p.UnblockAt,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	r.blocks = append(r.blocks, b)
	return b, nil
}

func (r *memBlocks) DeactivateByPhone(_ context.Context, phone string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.blocks {
		if b.PhoneNumber == phone && b.IsActive {
			b.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memBlocks) DeactivateExpired(context.Context) (int64, error) { return 0, nil }

type memAttempts struct {
	mu       sync.Mutex
	attempts []model.FailedAttempt
}

func (r *memAttempts) Create(_ context.Context, a *model.FailedAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *memAttempts) CountSince(_ context.Context, phone string, t model.AttemptType, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attempts {
		if a.PhoneNumber == phone && (t == "" || a.AttemptType == t) && a.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAttempts) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *memAttempts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (r *memAudit) Create(_ context.Context, e *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memAudit) Query(_ context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AuditEntry
	for _, e := range r.entries {
		if f.SessionID == "" || e.SessionID == f.SessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAudit) Count(ctx context.Context, f model.AuditFilter) (int, error) {
	out, err := r.Query(ctx, f)
	return len(out), err
}

func (r *memAudit) last() model.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

func (r *memAudit) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type memCallLogs struct {
	mu   sync.Mutex
	logs []model.ApiCallLog
}

func (r *memCallLogs) Create(_ context.Context, e *model.ApiCallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *e)
	return nil
}

func (r *memCallLogs) ListBySession(_ context.Context, sessionID string) ([]model.ApiCallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ApiCallLog
	for _, l := range r.logs {
		if l.SessionID != nil && *l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	return out, nil
}

type noTx struct{}

func (noTx) WithTx(_ context.Context, fn database.TxFunc) error { return fn(nil) }

// harness wires a full service stack over the in-memory stores.
type harness struct {
	app      *model.App
	defs     *memDefs
	sessions *memSessions
	vars     *memVariables
	blocks   *memBlocks
	attempts *memAttempts
	audit    *memAudit
	logs     *memCallLogs

	security *SecurityService
	engine   *FlowEngine
	svc      *USSDService
	admin    *AdminService
}

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newHarness(app *model.App, menus ...*model.Menu) *harness {
	h := &harness{
		app:      app,
		defs:     newMemDefs(app, menus...),
		sessions: newMemSessions(),
		vars:     newMemVariables(),
		blocks:   &memBlocks{},
		attempts: &memAttempts{},
		audit:    &memAudit{},
		logs:     &memCallLogs{},
	}

	masker := audit.NewMasker([]string{"enter_pin"}, 5)
	templates := template.New()
	vars := NewVariableStore(h.vars, testEncryptionKey)
	sessions := NewSessionService(noTx{}, h.sessions, h.vars)

	h.security = NewSecurityService(h.blocks, h.attempts, nil, nil)
	orchestrator := NewOrchestrator(h.defs, h.logs, templates, nil, h.security, nil, OrchestratorConfig{
		DefaultTimeout: time.Second,
		DefaultRetries: 0,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
	})
	h.engine = NewFlowEngine(h.defs, h.sessions, vars, orchestrator, templates, validation.New(), h.security, masker)
	h.svc = NewUSSDService(
		h.defs, sessions, h.engine, h.security,
		NewSessionLocker(nil, time.Second), NewPhoneLimiter(nil, 0),
		audit.NewTrail(h.audit, masker), nil, 2*time.Second,
	)
	h.admin = NewAdminService(sessions, vars, h.audit, h.logs, h.security, masker)
	return h
}

func (h *harness) dial(sessionID, text string) USSDResponse {
	return h.svc.Handle(context.Background(), USSDRequest{
		SessionID:   sessionID,
		ServiceCode: h.app.Code,
		PhoneNumber: "+254700000001",
		Text:        text,
	})
}

func strPtr(s string) *string { return &s }
