package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

type Menu struct {
	ID              string      `db:"id" json:"id" yaml:"-"`
	AppID           string      `db:"app_id" json:"appId" yaml:"-"`
	Code            string      `db:"menu_code" json:"menuCode" yaml:"code"`
	Type            MenuType    `db:"menu_type" json:"menuType" yaml:"type"`
	TextTemplate    string      `db:"text_template" json:"textTemplate" yaml:"text"`
	Options         Options     `db:"options" json:"options,omitempty" yaml:"options"`
	ValidationRules RuleSet     `db:"validation_rules" json:"validationRules,omitempty" yaml:"validation"`
	APICalls        ApiCallRefs `db:"api_calls" json:"apiCalls,omitempty" yaml:"api_calls"`
	NextMenu        *string     `db:"next_menu" json:"nextMenu,omitempty" yaml:"next_menu"`
	Sensitive       bool        `db:"is_sensitive" json:"sensitive" yaml:"sensitive"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt" yaml:"-"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt" yaml:"-"`
}

// Next returns the default next menu code or "".
func (m *Menu) Next() string {
	if m.NextMenu == nil {
		return ""
	}
	return *m.NextMenu
}

// Option is one numbered choice on an options menu.
type Option struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Next  string `json:"next,omitempty" yaml:"next,omitempty"`
}

// OptionFromValue converts a decoded JSON element into an Option.
// Both id and label must be present.
func OptionFromValue(v any) (Option, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Option{}, false
	}
	id, ok := ScalarString(obj["id"])
	if !ok || id == "" {
		return Option{}, false
	}
	label, ok := ScalarString(obj["label"])
	if !ok {
		return Option{}, false
	}
	opt := Option{ID: id, Label: label}
	if next, ok := obj["next"].(string); ok {
		opt.Next = next
	}
	return opt, true
}

func (o *Option) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	opt, ok := OptionFromValue(raw)
	if !ok {
		return fmt.Errorf("option requires id and label")
	}
	*o = opt
	return nil
}

func (o *Option) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	opt, ok := OptionFromValue(raw)
	if !ok {
		return fmt.Errorf("line %d: option requires id and label", node.Line)
	}
	*o = opt
	return nil
}

// Options is the static option list of a menu.
type Options []Option

func (o *Options) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*o = nil
		return err
	}
	var out []Option
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("scan options: %w", err)
	}
	*o = out
	return nil
}

func (o Options) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal([]Option(o))
}

// ApiCallOverride replaces fields of the named ApiCallConfig for one menu.
type ApiCallOverride struct {
	Endpoint        string            `mapstructure:"endpoint" json:"endpoint,omitempty"`
	Method          string            `mapstructure:"method" json:"method,omitempty"`
	Headers         map[string]any    `mapstructure:"headers" json:"headers,omitempty"`
	BodyTemplate    map[string]any    `mapstructure:"body_template" json:"body_template,omitempty"`
	ResponseMapping map[string]string `mapstructure:"response_mapping" json:"response_mapping,omitempty"`
	TimeoutMs       *int              `mapstructure:"timeout" json:"timeout,omitempty"`
	RetryCount      *int              `mapstructure:"retry_count" json:"retry_count,omitempty"`
}

// ApiCallRef names a configured API call a menu runs on load.
type ApiCallRef struct {
	Name     string           `json:"name"`
	Override *ApiCallOverride `json:"config,omitempty"`
}

type apiCallRefDoc struct {
	Name   string         `json:"name" yaml:"name"`
	Config map[string]any `json:"config" yaml:"config"`
}

func (r *apiCallRefDoc) toRef() (ApiCallRef, error) {
	if r.Name == "" {
		return ApiCallRef{}, fmt.Errorf("api call reference requires a name")
	}
	ref := ApiCallRef{Name: r.Name}
	if len(r.Config) > 0 {
		var override ApiCallOverride
		if err := mapstructure.Decode(r.Config, &override); err != nil {
			return ApiCallRef{}, fmt.Errorf("decode config for %s: %w", r.Name, err)
		}
		ref.Override = &override
	}
	return ref, nil
}

func (r *ApiCallRef) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*r = ApiCallRef{Name: name}
		return nil
	}
	var doc apiCallRefDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	ref, err := doc.toRef()
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

func (r *ApiCallRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = ApiCallRef{Name: node.Value}
		return nil
	}
	var doc apiCallRefDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	ref, err := doc.toRef()
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*r = ref
	return nil
}

type ApiCallRefs []ApiCallRef

func (r *ApiCallRefs) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*r = nil
		return err
	}
	var out []ApiCallRef
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("scan api calls: %w", err)
	}
	*r = out
	return nil
}

func (r ApiCallRefs) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal([]ApiCallRef(r))
}
