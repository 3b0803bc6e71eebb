package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/middleware"
	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/internal/provider"
	"github.com/reverie-ai/reverie-api/internal/service"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
	"github.com/reverie-ai/reverie-api/pkg/response"
)

type providerLister interface {
	List() []provider.Info
}

// AdminHandler exposes the platform-admin surface: cross-tenant stats, user
// and audit listings, the role catalog, provider registry and limiter resets.
type AdminHandler struct {
	admin     *service.AdminService
	rbac      *service.RBACService
	limiter   *service.RateLimitService
	metrics   *service.MetricsService
	providers providerLister
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(admin *service.AdminService, rbac *service.RBACService, limiter *service.RateLimitService, metrics *service.MetricsService, providers providerLister) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		rbac:      rbac,
		limiter:   limiter,
		metrics:   metrics,
		providers: providers,
	}
}

// Stats godoc
// @Summary Platform statistics
// @Description Cross-tenant totals: users, workspaces, keys, sessions
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	start := time.Now()
	stats, cacheHit, err := h.admin.PlatformStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetProcessingTime(c, time.Since(start))
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Metrics godoc
// @Summary Runtime metrics snapshot
// @Description In-process counters complementing the Prometheus endpoint
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/metrics [get]
func (h *AdminHandler) Metrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// ListUsers godoc
// @Summary List users
// @Description List users across the platform with pagination and filtering
// @Tags Admin
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param plan query string false "Billing plan filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var filter models.UserFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	if plan := c.Query("plan"); plan != "" {
		p := models.BillingPlan(plan)
		filter.Plan = &p
	}
	filter.Search = c.Query("search")

	users, pagination, err := h.admin.ListUsers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	infos := make([]models.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, users[i].Info())
	}
	response.JSON(c, http.StatusOK, infos, pagination)
}

// AuditLogs godoc
// @Summary Recent audit events
// @Tags Admin
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/audit [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	logs, pagination, err := h.admin.AuditLogs(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// Roles godoc
// @Summary Role catalog
// @Description Workspace roles ordered by hierarchy level, highest first
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/roles [get]
func (h *AdminHandler) Roles(c *gin.Context) {
	roles, err := h.rbac.Roles(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// Providers godoc
// @Summary Registered providers
// @Description Provider names with their registered capabilities
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/providers [get]
func (h *AdminHandler) Providers(c *gin.Context) {
	if h.providers == nil {
		response.JSON(c, http.StatusOK, []provider.Info{}, nil)
		return
	}
	response.JSON(c, http.StatusOK, h.providers.List(), nil)
}

// ResetRateLimit godoc
// @Summary Reset rate limit counters
// @Description Drop all windowed counters for one user
// @Tags Admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/ratelimits/{userId} [delete]
func (h *AdminHandler) ResetRateLimit(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "userId is required"))
		return
	}
	if err := h.limiter.ResetUser(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
