package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id, fullName string, updatedAt time.Time) error
}

type tokenIssuer interface {
	CreateTokenPair(ctx context.Context, userID string, client models.ClientInfo) (*models.TokenPair, error)
}

// AuthConfig contains account-security parameters.
type AuthConfig struct {
	BcryptCost int
}

// AuthService handles registration, credential verification and profile
// access. Token lifecycle is delegated to the TokenService.
type AuthService struct {
	userRepo  authUserRepository
	tokens    tokenIssuer
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(userRepo authUserRepository, tokens tokenIssuer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		userRepo:  userRepo,
		tokens:    tokens,
		audit:     audit,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Register creates an account and signs the new user in immediately.
func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest, client models.ClientInfo) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration data")
	}

	// bcrypt silently truncates input past 72 bytes; reject instead so two
	// passwords sharing a 72-byte prefix cannot verify against each other.
	if len(req.Password) > 72 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password must not exceed 72 bytes")
	}

	if _, err := s.userRepo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		BillingPlan:  models.PlanFree,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	pair, err := s.tokens.CreateTokenPair(ctx, user.ID, client)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &user.ID,
		Action:    models.AuditActionRegister,
		Entity:    "user",
		EntityID:  &user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return &models.AuthResponse{TokenPair: *pair, User: user.Info()}, nil
}

// Login verifies credentials and issues a token pair. Unknown emails and
// wrong passwords return byte-identical errors so responses cannot be used
// to probe which accounts exist.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest, client models.ClientInfo) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login data")
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordAudit(ctx, &models.AuditLog{
			UserID:    &user.ID,
			Action:    models.AuditActionLoginFailed,
			Entity:    "user",
			EntityID:  &user.ID,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	pair, err := s.tokens.CreateTokenPair(ctx, user.ID, client)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &models.AuditLog{
		UserID:    &user.ID,
		Action:    models.AuditActionLogin,
		Entity:    "user",
		EntityID:  &user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return &models.AuthResponse{TokenPair: *pair, User: user.Info()}, nil
}

// GetProfile returns the caller's profile.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// UpdateProfile changes the caller-mutable profile fields and returns the
// updated profile.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req *models.UpdateProfileRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile data")
	}

	if err := s.userRepo.UpdateProfile(ctx, userID, req.FullName, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return s.GetProfile(ctx, userID)
}

func (s *AuthService) recordAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", log.Action), zap.Error(err))
	}
}
