package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// APIKeyPrefix starts every issued key so leaked values are recognisable in
// logs and scanners.
const APIKeyPrefix = "rvk_"

// DefaultAPIKeyScopes applies when a key is created without explicit scopes.
var DefaultAPIKeyScopes = ScopeList{"read"}

// APIKey is a persisted key record. The raw key value is returned to the
// caller exactly once at creation; only its SHA-256 hash is stored.
type APIKey struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Label           string     `db:"label" json:"label"`
	KeyHash         string     `db:"key_hash" json:"-"`
	KeyPrefix       string     `db:"key_prefix" json:"key_prefix"`
	Scopes          ScopeList  `db:"scopes" json:"scopes"`
	RateLimitReqs   int        `db:"rate_limit_requests" json:"rate_limit_requests"`
	RateLimitWindow int        `db:"rate_limit_window_seconds" json:"rate_limit_window_seconds"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt      *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt       *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// APIKeyUsage is a per-key fixed-window usage counter row.
type APIKeyUsage struct {
	APIKeyID     string    `db:"api_key_id" json:"api_key_id"`
	WindowStart  time.Time `db:"window_start" json:"window_start"`
	RequestCount int64     `db:"request_count" json:"request_count"`
}

// APIKeyIdentity is the request-scoped identity resolved from a valid key.
type APIKeyIdentity struct {
	UserID   string    `json:"user_id"`
	APIKeyID string    `json:"api_key_id"`
	Scopes   ScopeList `json:"scopes"`
}

// CreateAPIKeyRequest mints a new key for the caller.
type CreateAPIKeyRequest struct {
	Label           string    `json:"label" validate:"required,min=1,max=200"`
	Scopes          ScopeList `json:"scopes" validate:"omitempty,dive,oneof=read write admin"`
	RateLimitReqs   int       `json:"rate_limit_requests" validate:"omitempty,min=1"`
	RateLimitWindow int       `json:"rate_limit_window_seconds" validate:"omitempty,min=1"`
}

// CreateAPIKeyResponse carries the only exposure of the raw key.
type CreateAPIKeyResponse struct {
	ID        string    `json:"id"`
	APIKey    string    `json:"api_key"`
	KeyPrefix string    `json:"key_prefix"`
	Label     string    `json:"label"`
	Scopes    ScopeList `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

// ScopeList is a set of capability strings persisted as JSONB.
type ScopeList []string

// Contains reports whether the scope is granted.
func (s ScopeList) Contains(scope string) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

// Value marshals scopes to JSON for persistence.
func (s ScopeList) Value() (driver.Value, error) {
	if s == nil {
		s = ScopeList{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal scopes: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the list.
func (s *ScopeList) Scan(value interface{}) error {
	if value == nil {
		*s = ScopeList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ScopeList", value)
	}
	if len(data) == 0 {
		*s = ScopeList{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal scopes: %w", err)
	}
	return nil
}
