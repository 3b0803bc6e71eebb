package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

type tokenStore interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindActiveByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string, revokedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
	Blacklist(ctx context.Context, entry *models.TokenBlacklistEntry) error
	IsBlacklisted(ctx context.Context, tokenHash string, now time.Time) (bool, error)
}

type auditRecorder interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// TokenConfig defines signing and lifetime parameters for issued pairs.
type TokenConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// TokenService mints, rotates and invalidates JWT credential pairs. It is
// the single source of truth for session lifetime.
type TokenService struct {
	store  tokenStore
	audit  auditRecorder
	logger *zap.Logger
	config TokenConfig
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(store tokenStore, audit auditRecorder, logger *zap.Logger, config TokenConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AccessExpiry <= 0 {
		config.AccessExpiry = 30 * time.Minute
	}
	if config.RefreshExpiry <= 0 {
		config.RefreshExpiry = 720 * time.Hour
	}
	return &TokenService{store: store, audit: audit, logger: logger, config: config}
}

// CreateTokenPair issues a fresh access/refresh pair and durably persists
// the hashed refresh session before returning. Every call adds one session
// row; concurrent sessions per user are unbounded (multi-device).
func (s *TokenService) CreateTokenPair(ctx context.Context, userID string, client models.ClientInfo) (*models.TokenPair, error) {
	issuedAt := time.Now().UTC()

	accessToken, err := s.generateAccessToken(userID, issuedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, refreshExpiry, err := s.generateRefreshToken(userID, issuedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	row := &models.RefreshToken{
		UserID:     userID,
		TokenHash:  HashToken(refreshToken),
		ExpiresAt:  refreshExpiry,
		DeviceInfo: client.DeviceInfo,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		CreatedAt:  issuedAt,
	}
	if err := s.store.CreateRefreshToken(ctx, row); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    models.TokenTypeBearer,
		ExpiresIn:    int64(s.config.AccessExpiry.Seconds()),
	}, nil
}

// RefreshAccessToken rotates a refresh token for a new pair. Checks run in a
// fixed order: claim verification, blacklist, stored row, wall-clock expiry.
// The new pair is issued before the old row is revoked, so a crash between
// the two leaves the old token valid rather than stranding the caller. All
// failures collapse to one generic message to avoid leaking which check
// rejected the token.
func (s *TokenService) RefreshAccessToken(ctx context.Context, rawRefresh string, client models.ClientInfo) (*models.TokenPair, error) {
	claims, err := s.parseRefreshClaims(rawRefresh)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	now := time.Now().UTC()
	tokenHash := HashToken(rawRefresh)

	blacklisted, err := s.store.IsBlacklisted(ctx, tokenHash, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check token blacklist")
	}
	if blacklisted {
		s.logger.Warn("refresh attempt with blacklisted token", zap.String("token_hash", tokenHash))
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	row, err := s.store.FindActiveByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}

	if row.UserID != claims.Subject {
		s.logger.Warn("refresh token subject mismatch", zap.String("token_hash", tokenHash))
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}
	if now.After(row.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	pair, err := s.CreateTokenPair(ctx, row.UserID, client)
	if err != nil {
		return nil, err
	}

	// Single-use rotation. A failure here is logged, not surfaced: the
	// caller already holds a valid new pair and the janitor reconciles
	// stale rows.
	if err := s.store.Revoke(ctx, row.ID, now); err != nil {
		s.logger.Warn("failed to revoke rotated refresh token",
			zap.String("token_id", row.ID), zap.Error(err))
	}

	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &row.UserID,
		Action:    models.AuditActionRefresh,
		Entity:    "refresh_token",
		EntityID:  &row.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return pair, nil
}

// RevokeToken permanently bars a refresh token. Both revocation stores are
// written: the blacklist entry is authoritative and the session row update
// keeps the sessions listing honest.
func (s *TokenService) RevokeToken(ctx context.Context, rawToken, reason string, client models.ClientInfo) error {
	claims, err := s.parseRefreshClaims(rawToken)
	if err != nil {
		return appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	now := time.Now().UTC()
	tokenHash := HashToken(rawToken)

	expiresAt := now.Add(s.config.RefreshExpiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	entry := &models.TokenBlacklistEntry{
		TokenHash: tokenHash,
		UserID:    claims.Subject,
		ExpiresAt: expiresAt,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := s.store.Blacklist(ctx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to blacklist token")
	}

	// The blacklist write above already bars the token; a failure on the
	// session row is not fatal.
	if err := s.store.RevokeByHash(ctx, tokenHash, now); err != nil {
		s.logger.Warn("failed to revoke refresh token row", zap.String("token_hash", tokenHash), zap.Error(err))
	}

	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &entry.UserID,
		Action:    models.AuditActionRevoke,
		Entity:    "refresh_token",
		Metadata:  models.JSONMap{"reason": reason},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return nil
}

// RevokeAllUserTokens bulk-revokes every active session for the user and
// returns the count. Individual tokens are not blacklisted; the session
// rows' revoked_at suffices for tokens that only exist in that table.
func (s *TokenService) RevokeAllUserTokens(ctx context.Context, userID, reason string, client models.ClientInfo) (int64, error) {
	count, err := s.store.RevokeAllForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke user tokens")
	}

	s.logger.Info("revoked all user sessions",
		zap.String("user_id", userID), zap.Int64("count", count), zap.String("reason", reason))

	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &userID,
		Action:    models.AuditActionLogoutAll,
		Entity:    "refresh_token",
		Metadata:  models.JSONMap{"reason": reason, "count": fmt.Sprintf("%d", count)},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return count, nil
}

// GetUserSessions lists the caller's active sessions, newest first.
func (s *TokenService) GetUserSessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.store.ListActiveSessions(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// ValidateAccessToken parses and validates an access token, returning its
// claims. Used by the authentication middleware.
func (s *TokenService) ValidateAccessToken(tokenString string) (*models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *TokenService) parseRefreshClaims(tokenString string) (*models.RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.RefreshClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.RefreshClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid refresh claims")
	}
	if claims.Type != models.RefreshTokenClaimType {
		return nil, fmt.Errorf("not a refresh token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("refresh token missing subject")
	}
	return claims, nil
}

func (s *TokenService) generateAccessToken(userID string, issuedAt time.Time) (string, error) {
	claims := &models.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) generateRefreshToken(userID string, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(s.config.RefreshExpiry)
	claims := &models.RefreshClaims{
		Type: models.RefreshTokenClaimType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *TokenService) recordAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

// HashToken returns the hex SHA-256 digest under which raw token values are
// persisted. Raw values never reach storage or logs.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
