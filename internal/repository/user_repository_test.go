package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverie-ai/reverie-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func userRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "billing_plan", "is_platform_admin", "created_at", "updated_at"}).
		AddRow("user-1", "user@example.com", "hash", "User One", string(models.PlanFree), false, now, now)
}

func TestUserFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, billing_plan, is_platform_admin, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(userRows(time.Now()))

	user, err := repo.FindByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, models.PlanFree, user.BillingPlan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindByEmailMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT .* FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, billing_plan, is_platform_admin, created_at, updated_at FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("user-1").
		WillReturnRows(userRows(time.Now()))

	user, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "new@example.com", PasswordHash: "hash", FullName: "New User"}
	err := repo.Create(context.Background(), user)
	require.NoError(t, err)

	// The repository fills in missing identity and plan defaults.
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, models.PlanFree, user.BillingPlan)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpdateProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET full_name = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("user-1", "Renamed", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateProfile(context.Background(), "user-1", "Renamed", now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserBillingPlan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("pro"))

	plan, err := repo.BillingPlan(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "pro", plan)
}

// Unknown users fall back to the free plan rather than erroring; limiter code
// treats missing rows as baseline traffic.
func TestUserBillingPlanMissingUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	plan, err := repo.BillingPlan(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, string(models.PlanFree), plan)
}

func TestUserIsPlatformAdmin(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT is_platform_admin FROM users WHERE id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"is_platform_admin"}).AddRow(true))

	isAdmin, err := repo.IsPlatformAdmin(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestUserIsPlatformAdminMissingUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT is_platform_admin FROM users").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	isAdmin, err := repo.IsPlatformAdmin(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestUserList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, billing_plan, is_platform_admin, created_at, updated_at FROM users WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(userRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserListFiltered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	listQuery := "SELECT id, email, password_hash, full_name, billing_plan, is_platform_admin, created_at, updated_at FROM users WHERE 1=1 AND billing_plan = $1 AND (LOWER(email) LIKE $2 OR LOWER(full_name) LIKE $2) ORDER BY created_at DESC LIMIT 5 OFFSET 5"
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WithArgs("pro", "%ada%").
		WillReturnRows(userRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND billing_plan = $1 AND (LOWER(email) LIKE $2 OR LOWER(full_name) LIKE $2)")).
		WithArgs("pro", "%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	plan := models.PlanPro
	users, total, err := repo.List(context.Background(), models.UserFilter{
		Plan:     &plan,
		Search:   "Ada",
		Page:     2,
		PageSize: 5,
	})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
