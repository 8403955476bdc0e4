package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// Lookup resolves a dotted path such as "a.b.0.c" in ctx. Numeric
// segments index arrays, and JSON-encoded string values are decoded on
// the way down.
func Lookup(ctx map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	if v, ok := ctx[path]; ok {
		return v, true
	}
	return walk(ctx, splitPath(path))
}

// Extract resolves a response path. "$.a.b[0].id" walks from the root,
// "$" returns the whole document and a bare name reads one top-level key.
func Extract(data any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	switch {
	case path == "$":
		return data, data != nil
	case strings.HasPrefix(path, "$"):
		rest := strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
		if rest == "" {
			return data, data != nil
		}
		return walk(data, splitPath(rest))
	default:
		obj, ok := data.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[path]
		return v, ok
	}
}

// ApplyMapping builds a flat object of extracted values. Absent paths
// are left out.
func ApplyMapping(data any, mapping map[string]string) map[string]any {
	out := make(map[string]any, len(mapping))
	for name, path := range mapping {
		if v, ok := Extract(data, path); ok && v != nil {
			out[name] = v
		}
	}
	return out
}

func splitPath(path string) []string {
	path = bracketIndex.ReplaceAllString(path, ".$1")
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func walk(cur any, segments []string) (any, bool) {
	for _, seg := range segments {
		if s, ok := cur.(string); ok {
			decoded, ok := decodeJSONString(s)
			if !ok {
				return nil, false
			}
			cur = decoded
		}

		if m, ok := cur.(model.JSONMap); ok {
			cur = map[string]any(m)
		}

		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func decodeJSONString(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
