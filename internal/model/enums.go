package model

type MenuType string

const (
	MenuTypeOptions MenuType = "options"
	MenuTypeInput   MenuType = "input"
	MenuTypeFinal   MenuType = "final"
)

func (t MenuType) Valid() bool {
	switch t {
	case MenuTypeOptions, MenuTypeInput, MenuTypeFinal:
		return true
	}
	return false
}

type AuthType string

const (
	AuthTypeNone   AuthType = ""
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeAPIKey AuthType = "apikey"
	AuthTypeCustom AuthType = "custom"
)

type AuditKind string

const (
	AuditKindInteraction    AuditKind = "interaction"
	AuditKindError          AuditKind = "error"
	AuditKindTimeout        AuditKind = "timeout"
	AuditKindBlocked        AuditKind = "blocked"
	AuditKindInvalidRequest AuditKind = "invalid_request"
	AuditKindRateLimited    AuditKind = "rate_limited"
)

type AttemptType string

const (
	AttemptWrongPin     AttemptType = "wrong_pin"
	AttemptInvalidInput AttemptType = "invalid_input"
)

// BlockedByRule marks blocks created by the automatic rule evaluator.
const BlockedByRule = "AUTOMATIC_RULE"
