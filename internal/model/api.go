package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AuthConfig selects how credentials are injected into an outgoing call.
// Every string field is a template rendered against the session context.
type AuthConfig struct {
	Type        AuthType       `json:"type" yaml:"type"`
	Token       string         `json:"token,omitempty" yaml:"token,omitempty"`
	Username    string         `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string         `json:"password,omitempty" yaml:"password,omitempty"`
	Key         string         `json:"key,omitempty" yaml:"key,omitempty"`
	HeaderValue string         `json:"value,omitempty" yaml:"value,omitempty"`
	Headers     map[string]any `json:"headers,omitempty" yaml:"headers,omitempty"`
}

func (a *AuthConfig) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*a = AuthConfig{}
		return err
	}
	if err := json.Unmarshal(b, a); err != nil {
		return fmt.Errorf("scan auth config: %w", err)
	}
	return nil
}

func (a AuthConfig) Value() (driver.Value, error) {
	if a.Type == AuthTypeNone {
		return nil, nil
	}
	return json.Marshal(a)
}

type ApiCallConfig struct {
	ID                 string     `db:"id" json:"id" yaml:"-"`
	AppID              string     `db:"app_id" json:"appId" yaml:"-"`
	Name               string     `db:"api_name" json:"apiName" yaml:"name"`
	Endpoint           string     `db:"endpoint" json:"endpoint" yaml:"endpoint"`
	Method             string     `db:"method" json:"method" yaml:"method"`
	Headers            JSONMap    `db:"headers" json:"headers,omitempty" yaml:"headers"`
	BodyTemplate       JSONMap    `db:"body_template" json:"bodyTemplate,omitempty" yaml:"body"`
	Auth               AuthConfig `db:"auth_config" json:"authConfig" yaml:"auth"`
	ResponseMapping    StringMap  `db:"response_mapping" json:"responseMapping,omitempty" yaml:"response_mapping"`
	TimeoutMs          *int       `db:"timeout_ms" json:"timeoutMs,omitempty" yaml:"timeout_ms"`
	RetryCount         *int       `db:"retry_count" json:"retryCount,omitempty" yaml:"retry_count"`
	FailureAttemptType *string    `db:"failure_attempt_type" json:"failureAttemptType,omitempty" yaml:"failure_attempt_type"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt" yaml:"-"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt" yaml:"-"`
}

// WithOverride returns a copy with the non-empty override fields applied.
func (c ApiCallConfig) WithOverride(o *ApiCallOverride) ApiCallConfig {
	if o == nil {
		return c
	}
	if o.Endpoint != "" {
		c.Endpoint = o.Endpoint
	}
	if o.Method != "" {
		c.Method = o.Method
	}
	if o.Headers != nil {
		c.Headers = o.Headers
	}
	if o.BodyTemplate != nil {
		c.BodyTemplate = o.BodyTemplate
	}
	if o.ResponseMapping != nil {
		c.ResponseMapping = o.ResponseMapping
	}
	if o.TimeoutMs != nil {
		c.TimeoutMs = o.TimeoutMs
	}
	if o.RetryCount != nil {
		c.RetryCount = o.RetryCount
	}
	return c
}

type ApiCallLog struct {
	ID           string           `db:"id" json:"id"`
	SessionID    *string          `db:"session_id" json:"sessionId,omitempty"`
	ApiName      string           `db:"api_name" json:"apiName"`
	Attempt      int              `db:"attempt" json:"attempt"`
	RequestData  *json.RawMessage `db:"request_data" json:"requestData,omitempty"`
	ResponseData *json.RawMessage `db:"response_data" json:"responseData,omitempty"`
	StatusCode   *int             `db:"status_code" json:"statusCode,omitempty"`
	ErrorMessage *string          `db:"error_message" json:"errorMessage,omitempty"`
	DurationMs   int64            `db:"duration_ms" json:"durationMs"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
}
