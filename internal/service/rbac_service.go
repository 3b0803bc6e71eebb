package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
)

type rbacStore interface {
	MemberRole(ctx context.Context, spaceID, userID string) (string, int, error)
	GetRole(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
}

type rbacUserStore interface {
	IsPlatformAdmin(ctx context.Context, userID string) (bool, error)
}

// RBACService answers workspace-scoped permission questions. Decisions fail
// closed: any error denies.
type RBACService struct {
	store  rbacStore
	users  rbacUserStore
	logger *zap.Logger
}

// NewRBACService constructs an RBACService instance.
func NewRBACService(store rbacStore, users rbacUserStore, logger *zap.Logger) *RBACService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RBACService{store: store, users: users, logger: logger}
}

// CheckPermission decides whether the user may act with requiredRole inside
// the given space. The check is strictly workspace-scoped: a nil space denies
// before any lookup, regardless of the caller's platform-wide flags, so
// handlers that forget to resolve a workspace cannot accidentally authorize.
// Platform-wide access is a separate, unscoped question; see IsPlatformAdmin.
func (s *RBACService) CheckPermission(ctx context.Context, userID string, spaceID *string, requiredRole string) (*models.PermissionDecision, error) {
	if spaceID == nil || *spaceID == "" {
		return &models.PermissionDecision{
			Allowed:      false,
			RequiredRole: requiredRole,
			Reason:       "no workspace specified",
		}, nil
	}

	requiredLevel, err := s.roleLevel(ctx, requiredRole)
	if err != nil {
		return nil, err
	}
	if requiredLevel == 0 {
		return &models.PermissionDecision{
			Allowed:      false,
			RequiredRole: requiredRole,
			Reason:       fmt.Sprintf("unknown role '%s'", requiredRole),
		}, nil
	}

	userRole, userLevel, err := s.store.MemberRole(ctx, *spaceID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.PermissionDecision{
				Allowed:           false,
				RequiredRole:      requiredRole,
				RequiredRoleLevel: requiredLevel,
				Reason:            "not a member of this workspace",
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve membership")
	}
	if userLevel == 0 {
		userLevel = models.DefaultRoleLevels[userRole]
	}

	decision := &models.PermissionDecision{
		Allowed:           userLevel >= requiredLevel,
		UserRole:          userRole,
		UserRoleLevel:     userLevel,
		RequiredRole:      requiredRole,
		RequiredRoleLevel: requiredLevel,
	}
	if !decision.Allowed {
		decision.Reason = fmt.Sprintf("role '%s' does not satisfy required role '%s'", userRole, requiredRole)
	}
	return decision, nil
}

// IsPlatformAdmin reports whether the user holds the platform admin flag.
func (s *RBACService) IsPlatformAdmin(ctx context.Context, userID string) (bool, error) {
	isAdmin, err := s.users.IsPlatformAdmin(ctx, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check platform admin")
	}
	return isAdmin, nil
}

// Roles returns the role catalog, highest privilege first. When the catalog
// table is unseeded the embedded defaults are synthesized so the hierarchy
// stays inspectable.
func (s *RBACService) Roles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	if len(roles) > 0 {
		return roles, nil
	}

	roles = make([]models.Role, 0, len(models.DefaultRoleLevels))
	for name, level := range models.DefaultRoleLevels {
		roles = append(roles, models.Role{
			Name:           name,
			HierarchyLevel: level,
			Permissions:    json.RawMessage(`{}`),
		})
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].HierarchyLevel > roles[j].HierarchyLevel })
	return roles, nil
}

// roleLevel resolves a role name to its hierarchy level: catalog first, then
// the embedded defaults. Zero means the role is unknown everywhere.
func (s *RBACService) roleLevel(ctx context.Context, name string) (int, error) {
	role, err := s.store.GetRole(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultRoleLevels[name], nil
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve role")
	}
	return role.HierarchyLevel, nil
}
