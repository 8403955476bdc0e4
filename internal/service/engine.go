package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/model"
	"github.com/openclaw/ussd-gateway-go/internal/options"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
	"github.com/openclaw/ussd-gateway-go/internal/template"
	"github.com/openclaw/ussd-gateway-go/internal/validation"
)

const (
	BackInput           = "0"
	InvalidOptionPrefix = "Invalid option. Please try again.\n\n"

	inputSuffix = "_input"
)

// Rendered is the outcome of one engine step.
type Rendered struct {
	Text    string
	Options []model.Option
	Menu    *model.Menu
	// Source is the menu that consumed the input, nil when none did.
	Source *model.Menu
	Calls  []model.CallSummary
	// Block is set when this step got the caller blocked.
	Block *model.BlockRecord
}

// Final reports whether the rendered menu ends the session.
func (r *Rendered) Final() bool {
	return r.Block != nil || (r.Menu != nil && r.Menu.Type == model.MenuTypeFinal)
}

type loadOpts struct {
	prefix string
	hint   string
}

// FlowEngine advances a session through its app's menus.
type FlowEngine struct {
	defs         DefinitionStore
	sessionRepo  repository.SessionRepository
	vars         *VariableStore
	orchestrator *Orchestrator
	templates    *template.Engine
	validator    *validation.Validator
	attempts     AttemptRecorder
	masker       *audit.Masker
	now          func() time.Time
}

func NewFlowEngine(
	defs DefinitionStore,
	sessionRepo repository.SessionRepository,
	vars *VariableStore,
	orchestrator *Orchestrator,
	templates *template.Engine,
	validator *validation.Validator,
	attempts AttemptRecorder,
	masker *audit.Masker,
) *FlowEngine {
	return &FlowEngine{
		defs:         defs,
		sessionRepo:  sessionRepo,
		vars:         vars,
		orchestrator: orchestrator,
		templates:    templates,
		validator:    validator,
		attempts:     attempts,
		masker:       masker,
		now:          time.Now,
	}
}

// Advance feeds input to the session's current menu and renders the next
// one. sess is updated in place to mirror what was persisted.
func (e *FlowEngine) Advance(ctx context.Context, sess *model.Session, app *model.App, input string) (*Rendered, error) {
	current := sess.Current()
	if current == "" {
		return e.loadMenu(ctx, sess, app, app.EntryMenu, loadOpts{})
	}

	menu, err := e.findMenu(ctx, app.ID, current)
	if err != nil {
		return nil, err
	}

	var out *Rendered
	switch menu.Type {
	case model.MenuTypeOptions:
		out, err = e.handleOptions(ctx, sess, app, menu, input)
	case model.MenuTypeInput:
		out, err = e.handleInput(ctx, sess, app, menu, input)
	case model.MenuTypeFinal:
		return e.loadMenu(ctx, sess, app, menu.Code, loadOpts{})
	default:
		return nil, apperrors.Configuration(fmt.Sprintf("menu %s has unknown type %q", menu.Code, menu.Type))
	}
	if err != nil {
		return nil, err
	}
	if out.Source == nil {
		out.Source = menu
	}
	return out, nil
}

func (e *FlowEngine) handleOptions(ctx context.Context, sess *model.Session, app *model.App, menu *model.Menu, input string) (*Rendered, error) {
	if input == BackInput && len(sess.History) > 0 {
		return e.back(ctx, sess, app)
	}

	vars, err := e.vars.Load(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	ctxMap := buildContext(sess, vars.Values)

	opts := options.Resolve(menu.Options, ctxMap)
	if len(opts) == 0 && input == BackInput {
		return e.restart(ctx, sess, app)
	}

	selected, ok := options.Find(opts, input)
	if !ok {
		return e.loadMenu(ctx, sess, app, menu.Code, loadOpts{prefix: InvalidOptionPrefix})
	}

	if err := e.vars.Set(ctx, sess.SessionID, menu.Code+inputSuffix, input); err != nil {
		return nil, err
	}
	if err := e.vars.SetAll(ctx, sess.SessionID, options.SelectionWrites(ctxMap, input)); err != nil {
		return nil, err
	}
	if err := e.appendHistory(ctx, sess, menu, input); err != nil {
		return nil, err
	}

	next := selected.Next
	if next == "" {
		next = menu.Next()
	}
	if next == "" {
		return nil, apperrors.NextMenuMissing(menu.Code)
	}
	return e.loadMenu(ctx, sess, app, next, loadOpts{})
}

func (e *FlowEngine) handleInput(ctx context.Context, sess *model.Session, app *model.App, menu *model.Menu, input string) (*Rendered, error) {
	if errs := e.validator.Validate(input, menu.ValidationRules); len(errs) > 0 {
		block := e.recordValidationFailure(ctx, sess, menu)
		if block != nil {
			return &Rendered{Text: BlockMessage(block), Menu: menu, Block: block}, nil
		}
		return e.loadMenu(ctx, sess, app, menu.Code, loadOpts{
			prefix: validation.FormatErrors(errs) + "\n\n",
			hint:   validation.Hint(menu.ValidationRules),
		})
	}

	name := menu.Code + inputSuffix
	var err error
	if e.isSensitive(menu) {
		err = e.vars.SetSecret(ctx, sess.SessionID, name, input)
	} else {
		err = e.vars.Set(ctx, sess.SessionID, name, input)
	}
	if err != nil {
		return nil, err
	}
	if err := e.appendHistory(ctx, sess, menu, input); err != nil {
		return nil, err
	}

	next := menu.Next()
	if next == "" {
		return nil, apperrors.NextMenuMissing(menu.Code)
	}
	return e.loadMenu(ctx, sess, app, next, loadOpts{})
}

func (e *FlowEngine) recordValidationFailure(ctx context.Context, sess *model.Session, menu *model.Menu) *model.BlockRecord {
	if e.attempts == nil {
		return nil
	}
	kind := model.AttemptInvalidInput
	if e.isSensitive(menu) {
		kind = model.AttemptWrongPin
	}
	block, err := e.attempts.RecordAttempt(ctx, AttemptParams{
		PhoneNumber: sess.PhoneNumber,
		AttemptType: kind,
		MenuCode:    menu.Code,
		SessionID:   sess.SessionID,
	})
	if err != nil {
		log.Error().Err(err).Str("sessionId", sess.SessionID).Msg("failed to record validation failure")
		return nil
	}
	return block
}

// back drops the newest history entry and reloads the menu of the entry
// before it, falling back to the entry menu when too little history is left.
func (e *FlowEngine) back(ctx context.Context, sess *model.Session, app *model.App) (*Rendered, error) {
	if len(sess.History) < 2 {
		return e.restart(ctx, sess, app)
	}

	history := append(model.History{}, sess.History[:len(sess.History)-1]...)
	if err := e.sessionRepo.SetHistory(ctx, sess.SessionID, history); err != nil {
		return nil, fmt.Errorf("truncate history: %w", err)
	}
	sess.History = history

	return e.loadMenu(ctx, sess, app, history[len(history)-1].Menu, loadOpts{})
}

func (e *FlowEngine) restart(ctx context.Context, sess *model.Session, app *model.App) (*Rendered, error) {
	if err := e.sessionRepo.SetHistory(ctx, sess.SessionID, model.History{}); err != nil {
		return nil, fmt.Errorf("clear history: %w", err)
	}
	sess.History = model.History{}
	return e.loadMenu(ctx, sess, app, app.EntryMenu, loadOpts{})
}

func (e *FlowEngine) appendHistory(ctx context.Context, sess *model.Session, menu *model.Menu, input string) error {
	if e.isSensitive(menu) {
		input = audit.Mask
	}
	entry := model.HistoryEntry{Input: input, Menu: menu.Code, Timestamp: e.now()}
	if err := e.sessionRepo.AppendHistory(ctx, sess.SessionID, entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	sess.History = append(sess.History, entry)
	return nil
}

// loadMenu renders code for the session: variables, context, API calls,
// text, options; then persists the menu pointer and context snapshot.
func (e *FlowEngine) loadMenu(ctx context.Context, sess *model.Session, app *model.App, code string, opts loadOpts) (*Rendered, error) {
	menu, err := e.findMenu(ctx, app.ID, code)
	if err != nil {
		return nil, err
	}

	vars, err := e.vars.Load(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	ctxMap := buildContext(sess, vars.Values)

	out := &Rendered{Menu: menu}
	if len(menu.APICalls) > 0 && e.orchestrator != nil {
		batch := e.orchestrator.RunAll(ctx, menu.APICalls, CallScope{
			AppID:       app.ID,
			SessionID:   sess.SessionID,
			PhoneNumber: sess.PhoneNumber,
			MenuCode:    menu.Code,
		}, ctxMap)
		out.Calls = batch.Summaries()

		if len(batch.Outputs) > 0 {
			persisted := make(map[string]string, len(batch.Outputs))
			for k, v := range batch.Outputs {
				persisted[k] = template.Stringify(v)
			}
			if err := e.vars.SetAll(ctx, sess.SessionID, persisted); err != nil {
				return nil, err
			}
		}
		ctxMap = mergeContext(ctxMap, batch.Outputs)

		if batch.Block != nil {
			out.Block = batch.Block
			out.Text = BlockMessage(batch.Block)
			return out, nil
		}
	}

	text := e.templates.Render(menu.TextTemplate, ctxMap)
	if opts.hint != "" {
		text = validation.Prompt(text, opts.hint)
	}
	if menu.Type == model.MenuTypeOptions {
		if options.HasNumberedOptions(text) {
			text = options.BuildText(text, nil)
		} else {
			out.Options = options.Resolve(menu.Options, ctxMap)
			text = options.BuildText(text, out.Options)
		}
	}
	out.Text = opts.prefix + text

	snapshot := e.snapshot(ctxMap, vars)
	if err := e.sessionRepo.UpdateState(ctx, sess.SessionID, menu.Code, snapshot); err != nil {
		return nil, fmt.Errorf("update session state: %w", err)
	}
	sess.CurrentMenu = &menu.Code
	sess.Data = snapshot

	return out, nil
}

// snapshot is the context persisted as session data, minus encrypted
// variables, PIN-menu inputs and the per-request identity keys.
func (e *FlowEngine) snapshot(ctxMap map[string]any, vars VariableSet) model.JSONMap {
	out := make(model.JSONMap, len(ctxMap))
	for k, v := range ctxMap {
		if vars.Sealed(k) || k == ContextPhoneNumber || k == ContextSessionID {
			continue
		}
		if code, ok := strings.CutSuffix(k, inputSuffix); ok && e.masker != nil && e.masker.IsPinMenu(code) {
			continue
		}
		out[k] = v
	}
	return out
}

func (e *FlowEngine) findMenu(ctx context.Context, appID, code string) (*model.Menu, error) {
	if code == "" {
		return nil, apperrors.MenuNotFound(code)
	}
	menu, err := e.defs.FindMenu(ctx, appID, code)
	if err != nil {
		return nil, fmt.Errorf("find menu %s: %w", code, err)
	}
	if menu == nil {
		return nil, apperrors.MenuNotFound(code)
	}
	return menu, nil
}

// consumer resolves the menu that will consume the next input of sess. It
// is nil before the entry menu has been shown. A menu that cannot be
// resolved is reported as sensitive.
func (e *FlowEngine) consumer(ctx context.Context, sess *model.Session, app *model.App) (*model.Menu, bool) {
	current := sess.Current()
	if current == "" {
		return nil, false
	}
	menu, err := e.findMenu(ctx, app.ID, current)
	if err != nil {
		return nil, true
	}
	return menu, e.isSensitive(menu)
}

func (e *FlowEngine) isSensitive(menu *model.Menu) bool {
	return menu.Sensitive || (e.masker != nil && e.masker.IsPinMenu(menu.Code))
}
