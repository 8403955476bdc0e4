package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Rule is one configured validation predicate.
// Param is nil when the rule was given as a bare flag.
type Rule struct {
	Name    string
	Param   any
	Message string
}

// RuleSet keeps rules in the order they were configured so that
// failures are reported in a stable order.
type RuleSet []Rule

type ruleSpec struct {
	Value   any    `mapstructure:"value"`
	Message string `mapstructure:"message"`
}

// newRule normalises the three accepted forms: a bare flag, a bare
// parameter, or {value, message}. A false flag disables the rule.
func newRule(name string, raw any) (Rule, bool, error) {
	switch v := raw.(type) {
	case bool:
		if !v {
			return Rule{}, false, nil
		}
		return Rule{Name: name}, true, nil
	case map[string]any:
		var spec ruleSpec
		if err := mapstructure.Decode(v, &spec); err != nil {
			return Rule{}, false, fmt.Errorf("decode rule %s: %w", name, err)
		}
		if b, ok := spec.Value.(bool); ok {
			if !b {
				return Rule{}, false, nil
			}
			spec.Value = nil
		}
		return Rule{Name: name, Param: spec.Value, Message: spec.Message}, true, nil
	case nil:
		return Rule{Name: name}, true, nil
	default:
		return Rule{Name: name, Param: v}, true, nil
	}
}

func (rs *RuleSet) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*rs = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("validation rules must be an object")
	}

	var out RuleSet
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode rule %s: %w", name, err)
		}
		rule, ok, err := newRule(name, raw)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rule)
		}
	}
	*rs = out
	return nil
}

func (rs *RuleSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: validation rules must be a mapping", node.Line)
	}

	var out RuleSet
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var raw any
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return fmt.Errorf("line %d: decode rule %s: %w", node.Content[i].Line, name, err)
		}
		rule, ok, err := newRule(name, raw)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rule)
		}
	}
	*rs = out
	return nil
}

func (rs RuleSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(r.Name)
		buf.Write(key)
		buf.WriteByte(':')

		var val any = true
		switch {
		case r.Message != "":
			spec := map[string]any{"message": r.Message}
			if r.Param != nil {
				spec["value"] = r.Param
			} else {
				spec["value"] = true
			}
			val = spec
		case r.Param != nil:
			val = r.Param
		}
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (rs *RuleSet) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*rs = nil
		return err
	}
	return rs.UnmarshalJSON(b)
}

func (rs RuleSet) Value() (driver.Value, error) {
	if rs == nil {
		return nil, nil
	}
	return rs.MarshalJSON()
}
