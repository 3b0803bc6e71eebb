package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

type workspaceStore interface {
	CreateSpaceWithOwner(ctx context.Context, space *models.Space) error
	FindSpace(ctx context.Context, id string) (*models.Space, error)
	ListSpacesForUser(ctx context.Context, userID string) ([]models.Space, error)
	UpdateSpace(ctx context.Context, space *models.Space) error
	DeleteSpace(ctx context.Context, id string) error
	GetMember(ctx context.Context, spaceID, userID string) (*models.SpaceMember, error)
	ListMembers(ctx context.Context, spaceID string) ([]models.SpaceMemberInfo, error)
	AddMember(ctx context.Context, member *models.SpaceMember) error
	RemoveMember(ctx context.Context, spaceID, userID string) (int64, error)
}

type memberDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type permissionChecker interface {
	CheckPermission(ctx context.Context, userID string, spaceID *string, requiredRole string) (*models.PermissionDecision, error)
}

// WorkspaceService manages spaces and their memberships.
type WorkspaceService struct {
	store     workspaceStore
	users     memberDirectory
	perms     permissionChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewWorkspaceService constructs a WorkspaceService instance.
func NewWorkspaceService(store workspaceStore, users memberDirectory, perms permissionChecker, validate *validator.Validate, logger *zap.Logger) *WorkspaceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &WorkspaceService{store: store, users: users, perms: perms, validator: validate, logger: logger}
}

// CreateSpace creates a workspace with the caller as owner.
func (s *WorkspaceService) CreateSpace(ctx context.Context, ownerID string, req *models.CreateSpaceRequest) (*models.Space, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workspace data")
	}

	space := &models.Space{
		OwnerUserID: ownerID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.store.CreateSpaceWithOwner(ctx, space); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workspace")
	}

	s.logger.Info("workspace created", zap.String("space_id", space.ID), zap.String("owner_id", ownerID))
	return space, nil
}

// ListSpaces returns the workspaces the caller belongs to.
func (s *WorkspaceService) ListSpaces(ctx context.Context, userID string) ([]models.Space, error) {
	spaces, err := s.store.ListSpacesForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workspaces")
	}
	return spaces, nil
}

// GetSpace returns one workspace. Callers outside the space receive the same
// not-found error as for a workspace that does not exist, so reads cannot be
// used to probe which tenants exist.
func (s *WorkspaceService) GetSpace(ctx context.Context, userID, spaceID string) (*models.Space, error) {
	decision, err := s.perms.CheckPermission(ctx, userID, &spaceID, models.RoleViewer)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "workspace not found")
	}

	space, err := s.store.FindSpace(ctx, spaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workspace not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	}
	return space, nil
}

// UpdateSpace mutates workspace attributes. Role enforcement happens in the
// route middleware.
func (s *WorkspaceService) UpdateSpace(ctx context.Context, spaceID string, req *models.UpdateSpaceRequest) (*models.Space, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workspace data")
	}

	space, err := s.store.FindSpace(ctx, spaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workspace not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	}

	space.Name = req.Name
	space.Description = req.Description
	if err := s.store.UpdateSpace(ctx, space); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update workspace")
	}
	return space, nil
}

// DeleteSpace removes a workspace and all of its memberships.
func (s *WorkspaceService) DeleteSpace(ctx context.Context, spaceID string) error {
	if _, err := s.store.FindSpace(ctx, spaceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "workspace not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	}

	if err := s.store.DeleteSpace(ctx, spaceID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete workspace")
	}
	s.logger.Info("workspace deleted", zap.String("space_id", spaceID))
	return nil
}

// ListMembers returns the space's membership roster.
func (s *WorkspaceService) ListMembers(ctx context.Context, spaceID string) ([]models.SpaceMemberInfo, error) {
	members, err := s.store.ListMembers(ctx, spaceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	return members, nil
}

// AddMember grants a user a role in the space, defaulting to viewer.
func (s *WorkspaceService) AddMember(ctx context.Context, spaceID string, req *models.AddMemberRequest) (*models.SpaceMember, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member data")
	}

	role := req.Role
	if role == "" {
		role = models.RoleViewer
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up user")
	}

	if _, err := s.store.GetMember(ctx, spaceID, user.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user is already a member")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}

	member := &models.SpaceMember{UserID: user.ID, SpaceID: spaceID, Role: role}
	if err := s.store.AddMember(ctx, member); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add member")
	}

	s.logger.Info("member added",
		zap.String("space_id", spaceID), zap.String("user_id", user.ID), zap.String("role", role))
	return member, nil
}

// RemoveMember revokes a user's membership. The owner cannot be removed;
// ownership ends only when the space is deleted.
func (s *WorkspaceService) RemoveMember(ctx context.Context, spaceID, targetUserID string) error {
	space, err := s.store.FindSpace(ctx, spaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "workspace not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workspace")
	}
	if space.OwnerUserID == targetUserID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot remove the workspace owner")
	}

	count, err := s.store.RemoveMember(ctx, spaceID, targetUserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove member")
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "member not found")
	}
	return nil
}
