package model

import "time"

type App struct {
	ID        string    `db:"id" json:"id" yaml:"-"`
	Code      string    `db:"ussd_code" json:"ussdCode" yaml:"code"`
	Name      string    `db:"app_name" json:"appName" yaml:"name"`
	EntryMenu string    `db:"entry_menu" json:"entryMenu" yaml:"entry_menu"`
	Config    JSONMap   `db:"config" json:"config,omitempty" yaml:"config"`
	IsActive  bool      `db:"is_active" json:"isActive" yaml:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt" yaml:"-"`
}
