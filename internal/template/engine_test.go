package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	e := New()

	tests := []struct {
		name string
		tpl  string
		ctx  map[string]any
		want string
	}{
		{"simple placeholder", "Hello {{name}}", map[string]any{"name": "Ann"}, "Hello Ann"},
		{"missing placeholder renders empty", "Hi {{missing}}", map[string]any{}, "Hi "},
		{"dotted path", "Balance: {{account.balance}}", map[string]any{"account": map[string]any{"balance": 120.5}}, "Balance: 120.5"},
		{"array index segment", "{{groups.1.name}}", map[string]any{"groups": []any{map[string]any{"name": "A"}, map[string]any{"name": "B"}}}, "B"},
		{"json string is descended", "{{group_selected.name}}", map[string]any{"group_selected": `{"id":4,"name":"Chama"}`}, "Chama"},
		{"integral float renders without decimals", "{{n}}", map[string]any{"n": float64(42)}, "42"},
		{"large float stays in plain notation", "Balance {{b}}", map[string]any{"b": 1234567.89}, "Balance 1234567.89"},
		{"small float stays in plain notation", "{{r}}", map[string]any{"r": 0.00005}, "0.00005"},
		{"large integral float", "{{n}}", map[string]any{"n": float64(25000000)}, "25000000"},
		{"whitespace inside braces", "{{ name }}", map[string]any{"name": "Bo"}, "Bo"},
		{"adjacent placeholders take first non-empty", "{{a}}{{b}}", map[string]any{"b": "second"}, "second"},
		{"separated placeholders both render", "{{a}} {{b}}", map[string]any{"a": "x", "b": "y"}, "x y"},
		{"no placeholders", "plain", nil, "plain"},
		{"helper uppercase", "{{uppercase:name}}", map[string]any{"name": "ann"}, "ANN"},
		{"helper on empty value", "[{{uppercase:missing}}]", map[string]any{}, "[]"},
		{"unknown helper renders empty", "[{{shout:name}}]", map[string]any{"name": "ann"}, "[]"},
		{"currency helper", "{{currency:amount}}", map[string]any{"amount": "1234567.5"}, "$1,234,567.50"},
		{"date helper", "{{date:due}}", map[string]any{"due": "2026-03-09"}, "Mar 9, 2026"},
		{"capitalize helper", "{{capitalize:name}}", map[string]any{"name": "jOHN"}, "John"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Render(tt.tpl, tt.ctx))
		})
	}
}

func TestRenderIsStable(t *testing.T) {
	e := New()
	ctx := map[string]any{"name": "Ann", "items": []any{"a"}}
	first := e.Render("{{name}} {{items}}", ctx)
	assert.Equal(t, first, e.Render("{{name}} {{items}}", ctx))
	assert.Equal(t, `Ann ["a"]`, first)
}

func TestWithCurrencySymbol(t *testing.T) {
	e := New(WithCurrencySymbol("KES "))
	assert.Equal(t, "KES 1,000.00", e.Render("{{currency:x}}", map[string]any{"x": 1000}))
	assert.Equal(t, "-KES 5.25", e.Render("{{currency:x}}", map[string]any{"x": "-5.25"}))
	assert.Equal(t, "abc", e.Render("{{currency:x}}", map[string]any{"x": "abc"}))
}

func TestRenderValue(t *testing.T) {
	e := New()
	ctx := map[string]any{"phone": "+254700", "amount": "50"}

	got := e.RenderValue(map[string]any{
		"msisdn": "{{phone}}",
		"nested": map[string]any{"amount": "{{amount}}", "fixed": 3},
		"list":   []any{"{{phone}}", true},
	}, ctx)

	assert.Equal(t, map[string]any{
		"msisdn": "+254700",
		"nested": map[string]any{"amount": "50", "fixed": 3},
		"list":   []any{"+254700", true},
	}, got)
}

func TestExtract(t *testing.T) {
	data := map[string]any{
		"a":     map[string]any{"b": []any{map[string]any{"id": float64(7)}}},
		"token": "xyz",
	}

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{"nested with index", "$.a.b[0].id", float64(7), true},
		{"missing intermediate", "$.a.x", nil, false},
		{"index out of range", "$.a.b[3].id", nil, false},
		{"bare top-level key", "token", "xyz", true},
		{"bare key is not a path", "a.b", nil, false},
		{"root", "$", data, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(data, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestApplyMapping(t *testing.T) {
	resp := map[string]any{
		"data": map[string]any{
			"customer": map[string]any{"name": "Ann", "accounts": []any{map[string]any{"no": "001"}}},
			"groups":   []any{map[string]any{"id": 1, "label": "Chama"}},
		},
	}

	got := ApplyMapping(resp, map[string]string{
		"customer_name":  "$.data.customer.name",
		"account_no":     "$.data.customer.accounts[0].no",
		"groups_options": "$.data.groups",
		"absent":         "$.data.nothing",
	})

	assert.Equal(t, "Ann", got["customer_name"])
	assert.Equal(t, "001", got["account_no"])
	assert.Len(t, got["groups_options"], 1)
	assert.NotContains(t, got, "absent")
}
