package models

import (
	"encoding/json"
	"time"
)

// Workspace role names, ordered by hierarchy level. RoleSystem is
// platform-wide and never appears in space_members rows.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
	RoleSystem = "system"
)

// DefaultRoleLevels is the embedded fallback catalog. The roles table is the
// source of truth; these values keep permission checks answerable when the
// catalog has not been seeded.
var DefaultRoleLevels = map[string]int{
	RoleViewer: 60,
	RoleEditor: 70,
	RoleAdmin:  80,
	RoleOwner:  90,
	RoleSystem: 100,
}

// Space is the tenant boundary scoping roles and resources.
type Space struct {
	ID          string    `db:"id" json:"id"`
	OwnerUserID string    `db:"owner_user_id" json:"owner_user_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SpaceMember relates a user to a space with a single role. At most one row
// exists per (user_id, space_id).
type SpaceMember struct {
	UserID    string    `db:"user_id" json:"user_id"`
	SpaceID   string    `db:"space_id" json:"space_id"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SpaceMemberInfo is a membership row joined with user identity for listings.
type SpaceMemberInfo struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Role is a catalog entry; HierarchyLevel totally orders roles. Permissions
// is an opaque JSONB payload the core never interprets.
type Role struct {
	Name           string          `db:"name" json:"name"`
	HierarchyLevel int             `db:"hierarchy_level" json:"hierarchy_level"`
	Permissions    json.RawMessage `db:"permissions" json:"permissions,omitempty"`
	Description    string          `db:"description" json:"description"`
}

// PermissionDecision is the result of a workspace permission check.
type PermissionDecision struct {
	Allowed           bool   `json:"allowed"`
	UserRole          string `json:"user_role"`
	UserRoleLevel     int    `json:"user_role_level"`
	RequiredRole      string `json:"required_role"`
	RequiredRoleLevel int    `json:"required_role_level"`
	Reason            string `json:"reason,omitempty"`
}

// CreateSpaceRequest creates a workspace; the caller becomes its owner.
type CreateSpaceRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// UpdateSpaceRequest mutates workspace attributes (owner only).
type UpdateSpaceRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// AddMemberRequest grants a user a role within a space.
type AddMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=viewer editor admin owner"`
}
