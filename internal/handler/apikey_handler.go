package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reverie-ai/reverie-api/internal/middleware"
	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/internal/service"
	appErrors "github.com/reverie-ai/reverie-api/pkg/errors"
	"github.com/reverie-ai/reverie-api/pkg/response"
)

// APIKeyHandler exposes API key management plus the key-authenticated
// service surface.
type APIKeyHandler struct {
	service *service.APIKeyService
}

// NewAPIKeyHandler creates a new handler.
func NewAPIKeyHandler(svc *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{service: svc}
}

// Create godoc
// @Summary Create API key
// @Description Mint a new API key; the secret is returned exactly once
// @Tags API Keys
// @Accept json
// @Produce json
// @Param payload body models.CreateAPIKeyRequest true "Key payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /apikeys [post]
func (h *APIKeyHandler) Create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid api key payload"))
		return
	}

	created, err := h.service.CreateKey(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, created)
}

// List godoc
// @Summary List API keys
// @Description List the caller's keys; secrets are masked to their prefix
// @Tags API Keys
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /apikeys [get]
func (h *APIKeyHandler) List(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	keys, err := h.service.ListKeys(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, keys, nil)
}

// Revoke godoc
// @Summary Revoke API key
// @Description Revoke one of the caller's keys
// @Tags API Keys
// @Produce json
// @Param id path string true "Key ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /apikeys/{id} [delete]
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.RevokeKey(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// WhoAmI godoc
// @Summary Identify API key
// @Description Return the identity behind the presented X-API-Key header
// @Tags Service
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /service/whoami [get]
func (h *APIKeyHandler) WhoAmI(c *gin.Context) {
	identity := middleware.APIKeyFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, identity, nil)
}
