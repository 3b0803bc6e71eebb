package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeBearer is the token_type reported with every issued pair.
const TokenTypeBearer = "bearer"

// RefreshTokenClaimType discriminates refresh tokens from access tokens.
const RefreshTokenClaimType = "refresh"

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RevokeTokenRequest revokes one specific refresh token.
type RevokeTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ClientInfo carries request-scoped caller metadata into token issuance.
type ClientInfo struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo JSONMap
}

// TokenPair is the issued credential set returned to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthResponse returns the issued tokens together with the user profile.
type AuthResponse struct {
	TokenPair
	User UserInfo `json:"user"`
}

// RevokedCountResponse reports how many sessions a bulk revoke touched.
type RevokedCountResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

// AccessClaims is the JWT payload for access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
}

// RefreshClaims is the JWT payload for refresh tokens. The Type field must
// equal RefreshTokenClaimType or the token is rejected during refresh.
type RefreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Session summarises an active refresh-token session. The token itself is
// never included.
type Session struct {
	ID         string     `db:"id" json:"id"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DeviceInfo JSONMap    `db:"device_info" json:"device_info"`
	IPAddress  string     `db:"ip_address" json:"ip_address"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}
