package models

import "time"

// RefreshToken represents a persisted refresh-token session. Only the
// SHA-256 hash of the raw token is stored; the raw value is irrecoverable.
// A token is usable iff RevokedAt is nil and ExpiresAt is in the future.
type RefreshToken struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	TokenHash  string     `db:"token_hash" json:"-"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	DeviceInfo JSONMap    `db:"device_info" json:"device_info"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	UserAgent  string     `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// TokenBlacklistEntry permanently bars a token hash. The blacklist is
// consulted before the refresh_tokens row, so an entry here revokes a token
// even if its row is still marked active.
type TokenBlacklistEntry struct {
	TokenHash string    `db:"token_hash" json:"-"`
	UserID    string    `db:"user_id" json:"user_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Revocation reasons recorded alongside blacklist entries and bulk revokes.
const (
	RevokeReasonLogout   = "logout"
	RevokeReasonRotation = "rotated"
	RevokeReasonManual   = "manual_revocation"
	RevokeReasonSecurity = "security_incident"
)

