// Package options discovers the choices shown on an options menu and
// works out which array elements a numeric selection refers to.
//
// Both steps rely on naming conventions and scan context keys in lexical
// order so the outcome never depends on map iteration order.
package options

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

// ListSuffix marks context keys that hold option lists.
const ListSuffix = "_options"

// NoOptionsText is shown when an options menu has nothing to offer.
const NoOptionsText = "No options available for this menu.\n\n0. Back to main menu"

// Keys containing these fragments are never treated as selectable arrays.
var derivedKeyFragments = []string{"_options", "_list", "_input", "_selected"}

var numberedLine = regexp.MustCompile(`\n\d+\.\s+`)

// Resolve returns the static options when present, otherwise the first
// option list found in ctx.
func Resolve(static []model.Option, ctx map[string]any) []model.Option {
	if len(static) > 0 {
		return static
	}
	opts, _ := Discover(ctx)
	return opts
}

// Discover returns the first key, in lexical order, ending in ListSuffix
// whose value parses to a non-empty option list.
func Discover(ctx map[string]any) ([]model.Option, string) {
	for _, key := range sortedKeys(ctx) {
		if !strings.HasSuffix(key, ListSuffix) {
			continue
		}
		if opts, ok := ParseList(ctx[key]); ok {
			return opts, key
		}
	}
	return nil, ""
}

// ParseList accepts a decoded array or a JSON-encoded array string.
// Every element must carry an id and a label.
func ParseList(v any) ([]model.Option, bool) {
	arr, ok := asArray(v)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	opts := make([]model.Option, 0, len(arr))
	for _, el := range arr {
		opt, ok := model.OptionFromValue(el)
		if !ok {
			return nil, false
		}
		opts = append(opts, opt)
	}
	return opts, true
}

// Find matches input against option ids exactly.
func Find(opts []model.Option, input string) (model.Option, bool) {
	for _, opt := range opts {
		if opt.ID == input {
			return opt, true
		}
	}
	return model.Option{}, false
}

// HasNumberedOptions reports whether text already lists numbered choices.
func HasNumberedOptions(text string) bool {
	return numberedLine.MatchString(text)
}

// BuildText appends "{id}. {label}" lines unless the text already lists
// numbered choices. With no options the no-options notice is appended.
func BuildText(text string, opts []model.Option) string {
	if HasNumberedOptions(text) {
		return strings.TrimSpace(text)
	}
	if len(opts) == 0 {
		if strings.TrimSpace(text) == "" {
			return NoOptionsText
		}
		return strings.TrimSpace(text) + "\n\n" + NoOptionsText
	}

	var b strings.Builder
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
	for _, opt := range opts {
		fmt.Fprintf(&b, "%s. %s\n", opt.ID, opt.Label)
	}
	return strings.TrimSpace(b.String())
}

// SelectionWrites computes the variables to persist after a numeric
// selection. For every array-valued context key long enough to contain
// element input-1 it yields <key>_selected and, when the element has
// them, <key>_selected_id and <key>_selected_name.
func SelectionWrites(ctx map[string]any, input string) map[string]string {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 {
		return nil
	}
	idx := n - 1

	writes := map[string]string{}
	for _, key := range sortedKeys(ctx) {
		if isDerivedKey(key) {
			continue
		}
		arr, ok := asArray(ctx[key])
		if !ok || idx >= len(arr) {
			continue
		}

		el := arr[idx]
		encoded, err := json.Marshal(el)
		if err != nil {
			continue
		}
		writes[key+"_selected"] = string(encoded)

		if obj, ok := el.(map[string]any); ok {
			if id, ok := model.ScalarString(obj["id"]); ok {
				writes[key+"_selected_id"] = id
			}
			if name, ok := model.ScalarString(obj["name"]); ok {
				writes[key+"_selected_name"] = name
			}
		}
	}
	return writes
}

func isDerivedKey(key string) bool {
	for _, frag := range derivedKeyFragments {
		if strings.Contains(key, frag) {
			return true
		}
	}
	return false
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "[") {
			return nil, false
		}
		var arr []any
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, false
		}
		return arr, true
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
