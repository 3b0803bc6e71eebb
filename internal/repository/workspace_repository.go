package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reverie-ai/reverie-api/internal/models"
)

// WorkspaceRepository provides database access for spaces, memberships and
// the role catalog.
type WorkspaceRepository struct {
	db *sqlx.DB
}

// NewWorkspaceRepository creates a new instance of WorkspaceRepository.
func NewWorkspaceRepository(db *sqlx.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// CreateSpaceWithOwner inserts a space and its owner membership atomically
// so a tenant can never exist without its highest-privilege member.
func (r *WorkspaceRepository) CreateSpaceWithOwner(ctx context.Context, space *models.Space) (err error) {
	if space.ID == "" {
		space.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if space.CreatedAt.IsZero() {
		space.CreatedAt = now
	}
	space.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create space transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const spaceQuery = `INSERT INTO spaces (id, owner_user_id, name, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, spaceQuery, space.ID, space.OwnerUserID, space.Name, space.Description, space.CreatedAt, space.UpdatedAt); err != nil {
		return fmt.Errorf("insert space: %w", err)
	}

	const memberQuery = `INSERT INTO space_members (user_id, space_id, role, created_at) VALUES ($1, $2, $3, $4)`
	if _, err = tx.ExecContext(ctx, memberQuery, space.OwnerUserID, space.ID, models.RoleOwner, now); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create space: %w", err)
	}
	return nil
}

// FindSpace returns a space by identifier.
func (r *WorkspaceRepository) FindSpace(ctx context.Context, id string) (*models.Space, error) {
	const query = `SELECT id, owner_user_id, name, description, created_at, updated_at FROM spaces WHERE id = $1 LIMIT 1`
	var space models.Space
	if err := r.db.GetContext(ctx, &space, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find space: %w", err)
	}
	return &space, nil
}

// ListSpacesForUser returns every space the user belongs to, newest first.
func (r *WorkspaceRepository) ListSpacesForUser(ctx context.Context, userID string) ([]models.Space, error) {
	const query = `SELECT s.id, s.owner_user_id, s.name, s.description, s.created_at, s.updated_at
FROM spaces s
JOIN space_members sm ON sm.space_id = s.id
WHERE sm.user_id = $1
ORDER BY s.created_at DESC`
	var spaces []models.Space
	if err := r.db.SelectContext(ctx, &spaces, query, userID); err != nil {
		return nil, fmt.Errorf("list spaces for user: %w", err)
	}
	return spaces, nil
}

// UpdateSpace updates mutable space attributes.
func (r *WorkspaceRepository) UpdateSpace(ctx context.Context, space *models.Space) error {
	space.UpdatedAt = time.Now().UTC()
	const query = `UPDATE spaces SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, space); err != nil {
		return fmt.Errorf("update space: %w", err)
	}
	return nil
}

// DeleteSpace removes a space and its memberships atomically.
func (r *WorkspaceRepository) DeleteSpace(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete space transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM space_members WHERE space_id = $1`, id); err != nil {
		return fmt.Errorf("delete space memberships: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM spaces WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete space: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete space: %w", err)
	}
	return nil
}

// GetMember returns the membership row for (user, space).
func (r *WorkspaceRepository) GetMember(ctx context.Context, spaceID, userID string) (*models.SpaceMember, error) {
	const query = `SELECT user_id, space_id, role, created_at FROM space_members WHERE space_id = $1 AND user_id = $2 LIMIT 1`
	var member models.SpaceMember
	if err := r.db.GetContext(ctx, &member, query, spaceID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &member, nil
}

// MemberRole resolves the user's role name and catalog hierarchy level in
// one lookup. Level 0 means the catalog has no row for the role; callers
// fall back to the embedded defaults.
func (r *WorkspaceRepository) MemberRole(ctx context.Context, spaceID, userID string) (string, int, error) {
	const query = `SELECT sm.role, COALESCE(r.hierarchy_level, 0) AS hierarchy_level
FROM space_members sm
LEFT JOIN roles r ON r.name = sm.role
WHERE sm.space_id = $1 AND sm.user_id = $2
LIMIT 1`
	var row struct {
		Role           string `db:"role"`
		HierarchyLevel int    `db:"hierarchy_level"`
	}
	if err := r.db.GetContext(ctx, &row, query, spaceID, userID); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("resolve member role: %w", err)
	}
	return row.Role, row.HierarchyLevel, nil
}

// ListMembers returns membership rows joined with user identity.
func (r *WorkspaceRepository) ListMembers(ctx context.Context, spaceID string) ([]models.SpaceMemberInfo, error) {
	const query = `SELECT sm.user_id, u.email, u.full_name, sm.role, sm.created_at
FROM space_members sm
JOIN users u ON u.id = sm.user_id
WHERE sm.space_id = $1
ORDER BY sm.created_at ASC`
	var members []models.SpaceMemberInfo
	if err := r.db.SelectContext(ctx, &members, query, spaceID); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember inserts a membership row.
func (r *WorkspaceRepository) AddMember(ctx context.Context, member *models.SpaceMember) error {
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO space_members (user_id, space_id, role, created_at) VALUES (:user_id, :space_id, :role, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row, reporting how many rows matched.
func (r *WorkspaceRepository) RemoveMember(ctx context.Context, spaceID, userID string) (int64, error) {
	const query = `DELETE FROM space_members WHERE space_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, spaceID, userID)
	if err != nil {
		return 0, fmt.Errorf("remove member: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count removed members: %w", err)
	}
	return count, nil
}

// GetRole returns a role catalog entry by name.
func (r *WorkspaceRepository) GetRole(ctx context.Context, name string) (*models.Role, error) {
	const query = `SELECT name, hierarchy_level, permissions, description FROM roles WHERE name = $1 LIMIT 1`
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &role, nil
}

// ListRoles returns the role catalog, highest privilege first.
func (r *WorkspaceRepository) ListRoles(ctx context.Context) ([]models.Role, error) {
	const query = `SELECT name, hierarchy_level, permissions, description FROM roles ORDER BY hierarchy_level DESC`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// CountSpaces returns the number of spaces platform-wide.
func (r *WorkspaceRepository) CountSpaces(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM spaces`
	var count int64
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count spaces: %w", err)
	}
	return count, nil
}
