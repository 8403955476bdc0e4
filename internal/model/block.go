package model

import "time"

type BlockRecord struct {
	ID          string     `db:"id" json:"id"`
	PhoneNumber string     `db:"phone_number" json:"phoneNumber"`
	Reason      string     `db:"reason" json:"reason"`
	BlockedBy   string     `db:"blocked_by" json:"blockedBy"`
	UnblockAt   *time.Time `db:"unblock_at" json:"unblockAt,omitempty"`
	IsActive    bool       `db:"is_active" json:"isActive"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// Permanent reports whether the block has no expiry.
func (b *BlockRecord) Permanent() bool {
	return b.UnblockAt == nil
}

type CreateBlockParams struct {
	PhoneNumber string
	Reason      string
	BlockedBy   string
	UnblockAt   *time.Time
}

type FailedAttempt struct {
	ID          string      `db:"id" json:"id"`
	PhoneNumber string      `db:"phone_number" json:"phoneNumber"`
	AttemptType AttemptType `db:"attempt_type" json:"attemptType"`
	MenuCode    *string     `db:"menu_code" json:"menuCode,omitempty"`
	SessionID   *string     `db:"session_id" json:"sessionId,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}
