package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/internal/service"
)

type rbacStoreStub struct {
	memberRole  string
	memberLevel int
	memberErr   error
}

func (s *rbacStoreStub) MemberRole(_ context.Context, _, _ string) (string, int, error) {
	if s.memberErr != nil {
		return "", 0, s.memberErr
	}
	return s.memberRole, s.memberLevel, nil
}

func (s *rbacStoreStub) GetRole(_ context.Context, _ string) (*models.Role, error) {
	return nil, sql.ErrNoRows
}

func (s *rbacStoreStub) ListRoles(_ context.Context) ([]models.Role, error) {
	return nil, nil
}

type adminFlagStub struct {
	admin bool
	err   error
}

func (s *adminFlagStub) IsPlatformAdmin(_ context.Context, _ string) (bool, error) {
	return s.admin, s.err
}

// rbacRouter mounts RequireRole behind the real workspace extractor. userID
// is seeded into the context the way the JWT middleware would.
func rbacRouter(rbac *service.RBACService, requiredRole, userID string, gotRole *string) *gin.Engine {
	router := gin.New()
	if userID != "" {
		router.Use(func(c *gin.Context) { c.Set(ContextUserIDKey, userID) })
	}
	router.Use(WorkspaceContext())
	router.GET("/resource", RequireRole(rbac, requiredRole), func(c *gin.Context) {
		if gotRole != nil {
			*gotRole = c.GetString(ContextRoleKey)
		}
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireRoleWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rbac := service.NewRBACService(&rbacStoreStub{}, &adminFlagStub{}, nil)
	router := rbacRouter(rbac, models.RoleViewer, "", nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resource?space_id=space-1", nil))

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, recorder).Error.Code)
}

func TestRequireRoleWithoutWorkspace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rbac := service.NewRBACService(&rbacStoreStub{memberRole: models.RoleOwner, memberLevel: 90}, &adminFlagStub{}, nil)
	router := rbacRouter(rbac, models.RoleViewer, "user-1", nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resource", nil))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	envelope := decodeError(t, recorder)
	assert.Equal(t, "WORKSPACE_REQUIRED", envelope.Error.Code)
	assert.Equal(t, "space_id is required for this operation", envelope.Error.Message)
}

func TestRequireRoleForbiddenBelowLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &rbacStoreStub{memberRole: models.RoleViewer, memberLevel: 60}
	rbac := service.NewRBACService(store, &adminFlagStub{}, nil)
	router := rbacRouter(rbac, models.RoleAdmin, "user-1", nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resource?space_id=space-1", nil))

	require.Equal(t, http.StatusForbidden, recorder.Code)
	envelope := decodeError(t, recorder)
	assert.Equal(t, "FORBIDDEN", envelope.Error.Code)
	assert.Equal(t, "role 'viewer' does not satisfy required role 'admin'", envelope.Error.Message)
}

func TestRequireRoleAllowsAndExposesRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &rbacStoreStub{memberRole: models.RoleAdmin, memberLevel: 80}
	rbac := service.NewRBACService(store, &adminFlagStub{}, nil)

	var gotRole string
	router := rbacRouter(rbac, models.RoleEditor, "user-1", &gotRole)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resource?space_id=space-1", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, models.RoleAdmin, gotRole)
}

func TestRequireRolePlatformAdminNotExemptFromMembership(t *testing.T) {
	gin.SetMode(gin.TestMode)
	// The platform flag does not stand in for a membership: a scoped route
	// denies an admin who holds no role in the workspace.
	store := &rbacStoreStub{memberErr: sql.ErrNoRows}
	rbac := service.NewRBACService(store, &adminFlagStub{admin: true}, nil)
	router := rbacRouter(rbac, models.RoleViewer, "root-1", nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resource?space_id=space-1", nil))

	require.Equal(t, http.StatusForbidden, recorder.Code)
	envelope := decodeError(t, recorder)
	assert.Equal(t, "FORBIDDEN", envelope.Error.Code)
	assert.Equal(t, "not a member of this workspace", envelope.Error.Message)
}

func TestRequireRoleFailsClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &rbacStoreStub{memberErr: assert.AnError}
	rbac := service.NewRBACService(store, &adminFlagStub{}, nil)
	router := rbacRouter(rbac, models.RoleViewer, "user-1", nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/resource?space_id=space-1", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, recorder).Error.Code)
}

func TestRequirePlatformAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name        string
		userID      string
		users       *adminFlagStub
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{name: "anonymous", userID: "", users: &adminFlagStub{}, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "non-admin", userID: "user-1", users: &adminFlagStub{}, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN", wantMessage: "platform admin required"},
		{name: "admin", userID: "root-1", users: &adminFlagStub{admin: true}, wantStatus: http.StatusOK},
		{name: "lookup failure denies", userID: "user-1", users: &adminFlagStub{err: assert.AnError}, wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rbac := service.NewRBACService(&rbacStoreStub{}, tc.users, nil)
			router := gin.New()
			if tc.userID != "" {
				router.Use(func(c *gin.Context) { c.Set(ContextUserIDKey, tc.userID) })
			}
			router.GET("/admin", RequirePlatformAdmin(rbac), func(c *gin.Context) { c.Status(http.StatusOK) })

			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin", nil))

			require.Equal(t, tc.wantStatus, recorder.Code)
			if tc.wantCode != "" {
				envelope := decodeError(t, recorder)
				assert.Equal(t, tc.wantCode, envelope.Error.Code)
				if tc.wantMessage != "" {
					assert.Equal(t, tc.wantMessage, envelope.Error.Message)
				}
			}
		})
	}
}
