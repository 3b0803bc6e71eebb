package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

// Per-key budget applied when a key is created without explicit limits.
const (
	defaultKeyRateLimitReqs   = 1000
	defaultKeyRateLimitWindow = 3600
)

type apiKeyStore interface {
	Create(ctx context.Context, key *models.APIKey) error
	FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	ListForUser(ctx context.Context, userID string) ([]models.APIKey, error)
	Revoke(ctx context.Context, id, userID string, revokedAt time.Time) (int64, error)
	TouchLastUsed(ctx context.Context, id string, ts time.Time) error
	UsageCount(ctx context.Context, apiKeyID string, windowStart time.Time) (int64, error)
	IncrementUsage(ctx context.Context, apiKeyID string, windowStart time.Time) error
}

// APIKeyService mints and authenticates service-to-service keys. Keys carry
// their own fixed-window budget, independent of the owner's plan limits.
type APIKeyService struct {
	store     apiKeyStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAPIKeyService constructs an APIKeyService instance.
func NewAPIKeyService(store apiKeyStore, validate *validator.Validate, logger *zap.Logger) *APIKeyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &APIKeyService{store: store, validator: validate, logger: logger}
}

// CreateKey mints a key for the caller. The raw value appears in the
// response and nowhere else; storage holds only its hash and prefix.
func (s *APIKeyService) CreateKey(ctx context.Context, userID string, req *models.CreateAPIKeyRequest) (*models.CreateAPIKeyResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid api key data")
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate api key")
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = models.DefaultAPIKeyScopes
	}
	rateLimitReqs := req.RateLimitReqs
	if rateLimitReqs == 0 {
		rateLimitReqs = defaultKeyRateLimitReqs
	}
	rateLimitWindow := req.RateLimitWindow
	if rateLimitWindow == 0 {
		rateLimitWindow = defaultKeyRateLimitWindow
	}

	key := &models.APIKey{
		UserID:          userID,
		Label:           req.Label,
		KeyHash:         HashToken(rawKey),
		KeyPrefix:       rawKey[:12] + "...",
		Scopes:          scopes,
		RateLimitReqs:   rateLimitReqs,
		RateLimitWindow: rateLimitWindow,
	}
	if err := s.store.Create(ctx, key); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create api key")
	}

	s.logger.Info("api key created",
		zap.String("user_id", userID), zap.String("key_id", key.ID), zap.String("key_prefix", key.KeyPrefix))

	return &models.CreateAPIKeyResponse{
		ID:        key.ID,
		APIKey:    rawKey,
		KeyPrefix: key.KeyPrefix,
		Label:     key.Label,
		Scopes:    key.Scopes,
		CreatedAt: key.CreatedAt,
	}, nil
}

// ListKeys returns the caller's keys, hashes excluded.
func (s *APIKeyService) ListKeys(ctx context.Context, userID string) ([]models.APIKey, error) {
	keys, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list api keys")
	}
	return keys, nil
}

// RevokeKey disables a key the caller owns. Revoking another user's key
// reports not-found, indistinguishable from a key that never existed.
func (s *APIKeyService) RevokeKey(ctx context.Context, userID, keyID string) error {
	count, err := s.store.Revoke(ctx, keyID, userID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke api key")
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "api key not found")
	}
	s.logger.Info("api key revoked", zap.String("user_id", userID), zap.String("key_id", keyID))
	return nil
}

// Authenticate resolves a raw key to its identity, charging one request
// against the key's own budget. Unknown, revoked and malformed keys all
// fail with the same message.
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (*models.APIKeyIdentity, error) {
	if len(rawKey) <= len(models.APIKeyPrefix) || rawKey[:len(models.APIKeyPrefix)] != models.APIKeyPrefix {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid api key")
	}

	key, err := s.store.FindByHash(ctx, HashToken(rawKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid api key")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up api key")
	}
	if key.RevokedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid api key")
	}

	now := time.Now().UTC()
	window := time.Duration(key.RateLimitWindow) * time.Second
	windowStart := now.Truncate(window)

	// Usage accounting degrades open: a broken counter store must not lock
	// out otherwise valid keys. Key lookup above stays strict.
	count, err := s.store.UsageCount(ctx, key.ID, windowStart)
	if err != nil {
		s.logger.Warn("api key usage lookup failed, skipping budget check",
			zap.String("key_id", key.ID), zap.Error(err))
	} else if count >= int64(key.RateLimitReqs) {
		return nil, appErrors.Clone(appErrors.ErrRateLimited, "api key rate limit exceeded")
	}

	if err := s.store.IncrementUsage(ctx, key.ID, windowStart); err != nil {
		s.logger.Warn("failed to record api key usage", zap.String("key_id", key.ID), zap.Error(err))
	}
	if err := s.store.TouchLastUsed(ctx, key.ID, now); err != nil {
		s.logger.Warn("failed to update api key last_used_at", zap.String("key_id", key.ID), zap.Error(err))
	}

	return &models.APIKeyIdentity{UserID: key.UserID, APIKeyID: key.ID, Scopes: key.Scopes}, nil
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key entropy: %w", err)
	}
	return models.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
