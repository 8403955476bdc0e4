package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CallSummary describes one API call made while handling a request.
type CallSummary struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
}

type CallSummaries []CallSummary

func (c *CallSummaries) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*c = nil
		return err
	}
	var out []CallSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("scan call summaries: %w", err)
	}
	*c = out
	return nil
}

func (c CallSummaries) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]CallSummary(c))
}

type AuditEntry struct {
	ID               string        `db:"id" json:"id"`
	Kind             AuditKind     `db:"kind" json:"kind"`
	SessionID        string        `db:"session_id" json:"sessionId"`
	PhoneNumber      string        `db:"phone_number" json:"phoneNumber"`
	AppID            *string       `db:"app_id" json:"appId,omitempty"`
	MenuCode         *string       `db:"menu_code" json:"menuCode,omitempty"`
	MenuType         *string       `db:"menu_type" json:"menuType,omitempty"`
	UserInput        string        `db:"user_input" json:"userInput"`
	ResponseText     string        `db:"response_text" json:"responseText"`
	APICalls         CallSummaries `db:"api_calls_made" json:"apiCallsMade"`
	ProcessingTimeMs int64         `db:"processing_time_ms" json:"processingTimeMs"`
	IPAddress        string        `db:"ip_address" json:"ipAddress"`
	UserAgent        string        `db:"user_agent" json:"userAgent"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
}

// AuditFilter narrows audit trail queries. Zero values are ignored.
type AuditFilter struct {
	SessionID   string
	PhoneNumber string
	AppID       string
	Kind        AuditKind
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}
