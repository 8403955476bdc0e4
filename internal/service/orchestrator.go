package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/metrics"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
	"github.com/openclaw/ussd-gateway-go/internal/template"
)

const (
	maxResponseBytes = 1 << 20
	defaultAPIKeyHdr = "X-API-Key"
	redactedHeader   = "****"
)

// CallScope identifies who a batch of calls runs for.
type CallScope struct {
	AppID       string
	SessionID   string
	PhoneNumber string
	MenuCode    string
}

type CallResult struct {
	Name       string         `json:"name"`
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data,omitempty"`
	RawData    any            `json:"rawData,omitempty"`
	StatusCode int            `json:"statusCode,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
}

// Err describes why the call failed, nil when it succeeded.
func (r CallResult) Err() error {
	if r.Success {
		return nil
	}
	return apperrors.External(r.Name, errors.New(r.Error))
}

type BatchResult struct {
	Results []CallResult
	// Outputs holds every mapped value in call order; later calls win.
	// Only mapped values are persisted as session variables, so a call
	// without a response mapping is visible to its own batch alone.
	Outputs map[string]any
	// Context is the input context plus everything the batch produced.
	Context map[string]any
	// Block is set when a failed call tripped a block rule.
	Block *model.BlockRecord
}

func (b BatchResult) Summaries() []model.CallSummary {
	out := make([]model.CallSummary, 0, len(b.Results))
	for _, r := range b.Results {
		out = append(out, model.CallSummary{Name: r.Name, Success: r.Success, StatusCode: r.StatusCode})
	}
	return out
}

type OrchestratorConfig struct {
	DefaultTimeout time.Duration
	DefaultRetries int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
}

// Orchestrator runs the external API calls configured on a menu.
type Orchestrator struct {
	defs      DefinitionStore
	logRepo   repository.ApiCallLogRepository
	templates *template.Engine
	client    *http.Client
	attempts  AttemptRecorder
	metrics   *metrics.Metrics
	cfg       OrchestratorConfig
}

func NewOrchestrator(
	defs DefinitionStore,
	logRepo repository.ApiCallLogRepository,
	templates *template.Engine,
	client *http.Client,
	attempts AttemptRecorder,
	m *metrics.Metrics,
	cfg OrchestratorConfig,
) *Orchestrator {
	if client == nil {
		client = &http.Client{}
	}
	return &Orchestrator{
		defs:      defs,
		logRepo:   logRepo,
		templates: templates,
		client:    client,
		attempts:  attempts,
		metrics:   m,
		cfg:       cfg,
	}
}

// RunAll executes refs in order. Each successful call's mapped outputs and
// raw data (under the call name) are visible to the calls after it. A
// failing call is recorded and the batch moves on.
func (o *Orchestrator) RunAll(ctx context.Context, refs model.ApiCallRefs, scope CallScope, base map[string]any) BatchResult {
	batch := BatchResult{
		Outputs: map[string]any{},
		Context: mergeContext(base),
	}

	for _, ref := range refs {
		res, block := o.run(ctx, ref, scope, batch.Context)
		batch.Results = append(batch.Results, res)
		if block != nil {
			batch.Block = block
		}
		if !res.Success {
			continue
		}
		for k, v := range res.Data {
			batch.Outputs[k] = v
		}
		batch.Context = mergeContext(batch.Context, res.Data, map[string]any{res.Name: res.RawData})
	}
	return batch
}

type outgoingRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

func (o *Orchestrator) run(ctx context.Context, ref model.ApiCallRef, scope CallScope, vars map[string]any) (CallResult, *model.BlockRecord) {
	res := CallResult{Name: ref.Name}

	stored, err := o.defs.FindApiConfig(ctx, scope.AppID, ref.Name)
	if err != nil || stored == nil {
		res.Error = "API config not found"
		log.Warn().Err(err).Str("api", ref.Name).Str("appId", scope.AppID).Msg("api config not found, skipping call")
		o.metrics.ObserveAPICall(ref.Name, false, 0)
		return res, nil
	}
	cfg := stored.WithOverride(ref.Override)

	retries := o.cfg.DefaultRetries
	if cfg.RetryCount != nil {
		retries = *cfg.RetryCount
	}
	timeout := o.cfg.DefaultTimeout
	if cfg.TimeoutMs != nil && *cfg.TimeoutMs > 0 {
		timeout = time.Duration(*cfg.TimeoutMs) * time.Millisecond
	}

	req := o.buildRequest(cfg, vars)
	start := time.Now()

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, o.backoff(attempt-1)); err != nil {
				res.Error = err.Error()
				break
			}
		}

		res.Attempts = attempt + 1
		attemptStart := time.Now()
		status, data, err := o.do(ctx, req, timeout)
		o.logAttempt(ctx, scope, ref.Name, attempt+1, req, status, data, err, time.Since(attemptStart))

		res.StatusCode = status
		res.RawData = data
		if err == nil {
			res.Success = true
			res.Error = ""
			break
		}
		res.Error = err.Error()

		if status >= 400 && status < 500 {
			break
		}
		if ctx.Err() != nil {
			break
		}
		log.Debug().Err(err).Str("api", ref.Name).Int("attempt", attempt+1).Msg("api call failed, retrying")
	}

	o.metrics.ObserveAPICall(ref.Name, res.Success, time.Since(start))

	if res.Success {
		if len(cfg.ResponseMapping) > 0 {
			res.Data = template.ApplyMapping(res.RawData, cfg.ResponseMapping)
		}
		return res, nil
	}

	log.Warn().Err(res.Err()).
		Int("status", res.StatusCode).Int("attempts", res.Attempts).
		Msg("api call failed")
	return res, o.recordFailure(ctx, cfg, scope, res)
}

// recordFailure counts a client-error failure against the caller when the
// call is configured to, e.g. a wrong PIN rejected by the backend.
func (o *Orchestrator) recordFailure(ctx context.Context, cfg model.ApiCallConfig, scope CallScope, res CallResult) *model.BlockRecord {
	if o.attempts == nil || cfg.FailureAttemptType == nil || *cfg.FailureAttemptType == "" {
		return nil
	}
	if res.StatusCode < 400 || res.StatusCode >= 500 {
		return nil
	}
	block, err := o.attempts.RecordAttempt(ctx, AttemptParams{
		PhoneNumber: scope.PhoneNumber,
		AttemptType: model.AttemptType(*cfg.FailureAttemptType),
		MenuCode:    scope.MenuCode,
		SessionID:   scope.SessionID,
	})
	if err != nil {
		log.Error().Err(err).Str("api", res.Name).Msg("failed to record failed attempt")
		return nil
	}
	return block
}

func (o *Orchestrator) backoff(retry int) time.Duration {
	d := o.cfg.BaseDelay << retry
	if d <= 0 || (o.cfg.MaxDelay > 0 && d > o.cfg.MaxDelay) {
		return o.cfg.MaxDelay
	}
	return d
}

func (o *Orchestrator) buildRequest(cfg model.ApiCallConfig, vars map[string]any) outgoingRequest {
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := map[string]string{}
	for k, v := range o.templates.RenderMap(cfg.Headers, vars) {
		headers[k] = template.Stringify(v)
	}
	for k, v := range o.authHeaders(cfg.Auth, vars) {
		headers[k] = v
	}

	var body any
	if len(cfg.BodyTemplate) > 0 {
		body = o.templates.RenderMap(cfg.BodyTemplate, vars)
	}

	return outgoingRequest{
		Method:  method,
		URL:     o.templates.Render(cfg.Endpoint, vars),
		Headers: headers,
		Body:    body,
	}
}

func (o *Orchestrator) authHeaders(auth model.AuthConfig, vars map[string]any) map[string]string {
	render := func(s string) string { return o.templates.Render(s, vars) }

	switch auth.Type {
	case model.AuthTypeBearer:
		return map[string]string{"Authorization": "Bearer " + render(auth.Token)}
	case model.AuthTypeBasic:
		cred := render(auth.Username) + ":" + render(auth.Password)
		return map[string]string{"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(cred))}
	case model.AuthTypeAPIKey:
		key := render(auth.Key)
		if key == "" {
			key = defaultAPIKeyHdr
		}
		return map[string]string{key: render(auth.HeaderValue)}
	case model.AuthTypeCustom:
		out := make(map[string]string, len(auth.Headers))
		for k, v := range o.templates.RenderMap(auth.Headers, vars) {
			out[k] = template.Stringify(v)
		}
		return out
	}
	return nil
}

func (o *Orchestrator) do(ctx context.Context, spec outgoingRequest, timeout time.Duration) (int, any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := spec.URL
	var body io.Reader
	switch spec.Method {
	case http.MethodGet, http.MethodDelete:
		if m, ok := spec.Body.(map[string]any); ok && len(m) > 0 {
			u, err := url.Parse(target)
			if err != nil {
				return 0, nil, fmt.Errorf("parse endpoint: %w", err)
			}
			q := u.Query()
			for k, v := range m {
				q.Set(k, template.Stringify(v))
			}
			u.RawQuery = q.Encode()
			target = u.String()
		}
	default:
		if spec.Body != nil {
			b, err := json.Marshal(spec.Body)
			if err != nil {
				return 0, nil, fmt.Errorf("encode body: %w", err)
			}
			body = bytes.NewReader(b)
		}
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			data = string(raw)
		}
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, data, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, data, nil
}

func (o *Orchestrator) logAttempt(
	ctx context.Context,
	scope CallScope,
	name string,
	attempt int,
	req outgoingRequest,
	status int,
	data any,
	callErr error,
	d time.Duration,
) {
	if o.logRepo == nil {
		return
	}

	entry := &model.ApiCallLog{
		ID:         uuid.NewString(),
		SessionID:  optionalString(scope.SessionID),
		ApiName:    name,
		Attempt:    attempt,
		DurationMs: d.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	entry.RequestData = rawJSON(redactRequest(req))
	if data != nil {
		entry.ResponseData = rawJSON(data)
	}
	if status > 0 {
		entry.StatusCode = &status
	}
	if callErr != nil {
		msg := callErr.Error()
		entry.ErrorMessage = &msg
	}

	if err := o.logRepo.Create(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Str("api", name).Msg("failed to log api call attempt")
	}
}

func redactRequest(req outgoingRequest) outgoingRequest {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		lk := strings.ToLower(k)
		if lk == "authorization" || sensitiveName(lk) {
			v = redactedHeader
		}
		headers[k] = v
	}
	req.Headers = headers
	req.Body = redactBody(req.Body)
	return req
}

var sensitiveFragments = []string{"key", "token", "secret", "pin", "password", "otp"}

func sensitiveName(lower string) bool {
	for _, f := range sensitiveFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// redactBody masks values of sensitive-looking fields at any depth.
func redactBody(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveName(strings.ToLower(k)) {
				out[k] = redactedHeader
				continue
			}
			out[k] = redactBody(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactBody(val)
		}
		return out
	}
	return v
}

func rawJSON(v any) *json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	msg := json.RawMessage(b)
	return &msg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
