package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Session struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"sessionId"`
	PhoneNumber string    `db:"phone_number" json:"phoneNumber"`
	AppID       string    `db:"app_id" json:"appId"`
	CurrentMenu *string   `db:"current_menu" json:"currentMenu,omitempty"`
	Data        JSONMap   `db:"session_data" json:"sessionData"`
	History     History   `db:"input_history" json:"inputHistory"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Current returns the current menu code or "".
func (s *Session) Current() string {
	if s.CurrentMenu == nil {
		return ""
	}
	return *s.CurrentMenu
}

type HistoryEntry struct {
	Input     string    `json:"input"`
	Menu      string    `json:"menu"`
	Timestamp time.Time `json:"timestamp"`
}

type History []HistoryEntry

func (h *History) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil || b == nil {
		*h = History{}
		return err
	}
	var out []HistoryEntry
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("scan input history: %w", err)
	}
	*h = out
	return nil
}

func (h History) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]HistoryEntry(h))
}

type CreateSessionParams struct {
	SessionID   string
	PhoneNumber string
	AppID       string
}

type SessionVariable struct {
	SessionID string    `db:"session_id" json:"sessionId"`
	Name      string    `db:"variable_name" json:"name"`
	Value     string    `db:"variable_value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
