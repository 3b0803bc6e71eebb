package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionRegister    = "REGISTER"
	AuditActionLogin       = "LOGIN"
	AuditActionLoginFailed = "LOGIN_FAILED"
	AuditActionRefresh     = "TOKEN_REFRESH"
	AuditActionRevoke      = "TOKEN_REVOKE"
	AuditActionLogoutAll   = "LOGOUT_ALL"
	AuditActionAPIRequest  = "API_REQUEST"
)

// AuditLog represents an audit trail record. Writes are best-effort: a
// failed audit insert is logged and never fails the originating request.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	Entity    string    `db:"entity" json:"entity"`
	EntityID  *string   `db:"entity_id" json:"entity_id,omitempty"`
	Metadata  JSONMap   `db:"metadata" json:"metadata,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
