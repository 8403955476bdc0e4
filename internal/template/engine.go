// Package template renders menu text and outgoing API payloads against a
// session context. Unresolved placeholders render as empty strings.
package template

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

var (
	// A run of adjacent placeholders, e.g. {{a}} or {{a}}{{b}}.
	placeholderRun = regexp.MustCompile(`(?:\{\{\s*[^{}]+?\s*\}\})+`)
	placeholder    = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	helperCall     = regexp.MustCompile(`^(\w+):(.+)$`)
)

// Helper formats an interpolated value.
type Helper func(value string) string

type Engine struct {
	helpers map[string]Helper
}

type Option func(*Engine)

// WithHelper registers or replaces a named helper.
func WithHelper(name string, h Helper) Option {
	return func(e *Engine) {
		e.helpers[name] = h
	}
}

// WithCurrencySymbol sets the symbol used by the currency helper.
func WithCurrencySymbol(symbol string) Option {
	return func(e *Engine) {
		e.helpers["currency"] = currencyHelper(symbol)
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{helpers: defaultHelpers()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render replaces every placeholder in tpl. Adjacent placeholders with no
// separator resolve to the first non-empty value among them.
func (e *Engine) Render(tpl string, ctx map[string]any) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}
	return placeholderRun.ReplaceAllStringFunc(tpl, func(run string) string {
		for _, m := range placeholder.FindAllStringSubmatch(run, -1) {
			if v := e.evaluate(m[1], ctx); v != "" {
				return v
			}
		}
		return ""
	})
}

func (e *Engine) evaluate(expr string, ctx map[string]any) string {
	if m := helperCall.FindStringSubmatch(expr); m != nil {
		inner := Stringify(lookupOrNil(ctx, strings.TrimSpace(m[2])))
		if inner == "" {
			return ""
		}
		h, ok := e.helpers[m[1]]
		if !ok {
			return ""
		}
		return h(inner)
	}
	return Stringify(lookupOrNil(ctx, expr))
}

// RenderValue interpolates every string leaf of a structured value.
// Non-string leaves pass through unchanged.
func (e *Engine) RenderValue(v any, ctx map[string]any) any {
	switch t := v.(type) {
	case string:
		return e.Render(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = e.RenderValue(val, ctx)
		}
		return out
	case model.JSONMap:
		return e.RenderValue(map[string]any(t), ctx)
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = e.Render(val, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = e.RenderValue(val, ctx)
		}
		return out
	default:
		return v
	}
}

// RenderMap interpolates a structured map and returns it as a map.
func (e *Engine) RenderMap(m map[string]any, ctx map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := e.RenderValue(m, ctx).(map[string]any)
	return out
}

func lookupOrNil(ctx map[string]any, path string) any {
	v, _ := Lookup(ctx, path)
	return v
}

// Stringify renders a context value as menu text.
func Stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := model.ScalarString(v); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
