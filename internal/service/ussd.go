package service

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/metrics"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/util"
)

var errPanic = errors.New("panic during request processing")

// Callback statuses that end a session.
var terminalStatuses = []string{"END", "TIMEOUT", "COMPLETED", "FAILED"}

type USSDRequest struct {
	SessionID   string `json:"sessionId"`
	ServiceCode string `json:"serviceCode"`
	PhoneNumber string `json:"phoneNumber"`
	Text        string `json:"text"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

type USSDResponse struct {
	Body       string
	StatusCode int
	Outcome    string
}

func reply(body, outcome string) USSDResponse {
	return USSDResponse{Body: body, StatusCode: http.StatusOK, Outcome: outcome}
}

// keypresses collects the inputs a request fed to the engine. Inputs taken
// by a sensitive menu are stored masked.
type keypresses struct {
	tokens []string
	last   *model.Menu
}

func (k *keypresses) consume(token string, menu *model.Menu, sensitive bool) {
	if sensitive && token != "" {
		token = audit.Mask
	}
	k.tokens = append(k.tokens, token)
	k.last = menu
}

func (k *keypresses) String() string {
	return strings.Join(k.tokens, "*")
}

// USSDService turns one gateway request into one protocol line and one
// audit entry.
type USSDService struct {
	defs     DefinitionStore
	sessions *SessionService
	engine   *FlowEngine
	security *SecurityService
	locker   *SessionLocker
	limiter  *PhoneLimiter
	trail    *audit.Trail
	metrics  *metrics.Metrics
	deadline time.Duration
}

func NewUSSDService(
	defs DefinitionStore,
	sessions *SessionService,
	engine *FlowEngine,
	security *SecurityService,
	locker *SessionLocker,
	limiter *PhoneLimiter,
	trail *audit.Trail,
	m *metrics.Metrics,
	deadline time.Duration,
) *USSDService {
	return &USSDService{
		defs:     defs,
		sessions: sessions,
		engine:   engine,
		security: security,
		locker:   locker,
		limiter:  limiter,
		trail:    trail,
		metrics:  m,
		deadline: deadline,
	}
}

// Handle always returns a protocol line, whatever goes wrong.
func (s *USSDService) Handle(ctx context.Context, req USSDRequest) USSDResponse {
	start := time.Now()
	rec := audit.Record{
		Kind:        model.AuditKindInteraction,
		SessionID:   req.SessionID,
		PhoneNumber: req.PhoneNumber,
		Input:       LastInput(req.Text),
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	}
	keys := &keypresses{}

	resp := s.handle(ctx, req, &rec, keys)

	if len(keys.tokens) > 0 {
		rec.Input = keys.String()
		if rec.MenuCode == "" && keys.last != nil {
			rec.MenuCode = keys.last.Code
			rec.MenuType = string(keys.last.Type)
		}
	}
	rec.Response = resp.Body
	rec.Duration = time.Since(start)
	s.trail.Write(context.WithoutCancel(ctx), rec)
	s.metrics.ObserveRequest(resp.Outcome)
	return resp
}

func (s *USSDService) handle(ctx context.Context, req USSDRequest, rec *audit.Record, keys *keypresses) USSDResponse {
	if req.SessionID == "" || req.ServiceCode == "" || req.PhoneNumber == "" {
		rec.Kind = model.AuditKindInvalidRequest
		return USSDResponse{Body: InvalidRequestResponse, StatusCode: http.StatusBadRequest, Outcome: metrics.OutcomeInvalid}
	}

	block, err := s.security.CheckBlocked(ctx, req.PhoneNumber)
	if err != nil {
		log.Error().Err(err).Str("sessionId", req.SessionID).Msg("block check failed")
		rec.Kind = model.AuditKindError
		return reply(SystemErrorResponse, metrics.OutcomeError)
	}
	if block != nil {
		rec.Kind = model.AuditKindBlocked
		audit.LogEvent(ctx, audit.Event{
			Type:      audit.EventBlockedRequest,
			Phone:     req.PhoneNumber,
			SessionID: req.SessionID,
			Details:   map[string]interface{}{"reason": block.Reason},
		})
		return reply(FormatResponse(true, BlockMessage(block)), metrics.OutcomeBlocked)
	}

	if allowed, resetAt := s.limiter.Allow(ctx, req.PhoneNumber); !allowed {
		rec.Kind = model.AuditKindRateLimited
		audit.LogEvent(ctx, audit.Event{
			Type:      audit.EventRateLimitExceed,
			Phone:     req.PhoneNumber,
			SessionID: req.SessionID,
			Details:   map[string]interface{}{"resetAt": resetAt},
		})
		return reply(RateLimitedResponse, metrics.OutcomeRateLimited)
	}

	app, err := s.defs.FindAppByCode(ctx, req.ServiceCode)
	if err != nil {
		log.Error().Err(err).Str("serviceCode", req.ServiceCode).Msg("app lookup failed")
		rec.Kind = model.AuditKindError
		return reply(SystemErrorResponse, metrics.OutcomeError)
	}
	if app == nil {
		log.Warn().Err(apperrors.AppNotFound(req.ServiceCode)).Str("sessionId", req.SessionID).Msg("request for unknown service code")
		rec.Kind = model.AuditKindError
		return reply(ServiceUnavailableResponse, metrics.OutcomeUnavailable)
	}
	rec.AppID = app.ID

	dctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	rendered, err := s.process(dctx, req, app, keys)
	if err == nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
		err = apperrors.SessionTimeout(dctx.Err())
	}
	if err != nil {
		return s.failure(ctx, dctx, req, rec, err)
	}

	source := rendered.Source
	if source == nil {
		source = rendered.Menu
	}
	if source != nil {
		rec.MenuCode = source.Code
		rec.MenuType = string(source.Type)
	}
	rec.Calls = rendered.Calls

	if rendered.Final() {
		if err := s.sessions.End(context.WithoutCancel(ctx), req.SessionID); err != nil {
			log.Error().Err(err).Str("sessionId", req.SessionID).Msg("failed to end session")
		}
		if rendered.Block != nil {
			return reply(FormatResponse(true, rendered.Text), metrics.OutcomeBlocked)
		}
		return reply(FormatResponse(true, rendered.Text), metrics.OutcomeEnd)
	}
	return reply(FormatResponse(false, rendered.Text), metrics.OutcomeContinue)
}

func (s *USSDService) failure(ctx, dctx context.Context, req USSDRequest, rec *audit.Record, err error) USSDResponse {
	if apperrors.IsTimeout(err) || errors.Is(dctx.Err(), context.DeadlineExceeded) {
		rec.Kind = model.AuditKindTimeout
		log.Warn().Err(err).Str("sessionId", req.SessionID).Msg("request deadline exceeded, ending session")

		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if endErr := s.sessions.End(endCtx, req.SessionID); endErr != nil {
			log.Error().Err(endErr).Str("sessionId", req.SessionID).Msg("failed to end timed out session")
		}
		return reply(TimeoutResponse, metrics.OutcomeTimeout)
	}

	rec.Kind = model.AuditKindError
	if errors.Is(err, errPanic) {
		return reply(SystemErrorResponse, metrics.OutcomeError)
	}

	msg := "failed to process ussd request"
	if apperrors.IsConfiguration(err) {
		msg = "flow definition error"
	}
	log.Error().Err(err).
		Str("sessionId", req.SessionID).
		Str("code", string(apperrors.GetCode(err))).
		Msg(msg)
	return reply(GenericErrorResponse, metrics.OutcomeError)
}

// process runs the flow under the session lock. A session seen for the
// first time replays every token of the accumulated text from the entry menu.
func (s *USSDService) process(ctx context.Context, req USSDRequest, app *model.App, keys *keypresses) (rendered *Rendered, err error) {
	release, err := s.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.SessionTimeout(err)
		}
		return nil, apperrors.Internal("session lock unavailable").WithCause(err)
	}
	defer release()

	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Str("sessionId", req.SessionID).
				Msg("recovered from panic in ussd request")
			rendered, err = nil, errPanic
		}
	}()

	sess, err := s.sessions.FindActive(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.AppID == app.ID {
		return s.advance(ctx, sess, app, LastInput(req.Text), keys)
	}

	sess, err = s.sessions.Start(ctx, req.SessionID, req.PhoneNumber, app.ID)
	if err != nil {
		return nil, err
	}

	rendered, err = s.engine.Advance(ctx, sess, app, "")
	if err != nil {
		return nil, err
	}
	calls := rendered.Calls
	for _, token := range InputTokens(req.Text) {
		if rendered.Final() {
			break
		}
		rendered, err = s.advance(ctx, sess, app, token, keys)
		if err != nil {
			return nil, err
		}
		calls = append(calls, rendered.Calls...)
	}
	rendered.Calls = calls
	return rendered, nil
}

// advance records input against the menu about to consume it before the
// engine runs, so a failing step still reaches the trail masked.
func (s *USSDService) advance(ctx context.Context, sess *model.Session, app *model.App, input string, keys *keypresses) (*Rendered, error) {
	menu, sensitive := s.engine.consumer(ctx, sess, app)
	keys.consume(input, menu, sensitive)
	return s.engine.Advance(ctx, sess, app, input)
}

// HandleCallback ends the session when the gateway reports a terminal status.
func (s *USSDService) HandleCallback(ctx context.Context, sessionID, status string) (bool, error) {
	if sessionID == "" || !util.IsOneOf(status, terminalStatuses...) {
		return false, nil
	}
	if err := s.sessions.End(ctx, sessionID); err != nil {
		return false, err
	}
	audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventSessionTerminated,
		SessionID: sessionID,
		Details:   map[string]interface{}{"status": status},
	})
	return true, nil
}
