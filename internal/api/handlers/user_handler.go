package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/hiready/internal/api/middleware"
	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/services"
	"github.com/yoockh/hiready/internal/utils"
)

type UserHandler struct {
	svc services.UserService
}

func NewUserHandler(svc services.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type SyncUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// SyncMe mirrors the caller's profile from the identity provider.
func (h *UserHandler) SyncMe(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req SyncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "UserHandler.SyncMe", "invalid request body", err))
		return
	}
	if req.Email == "" {
		req.Email = c.GetString(middleware.KeyEmail)
	}

	u := &models.User{ID: userID, Email: req.Email, Name: req.Name, ImageURL: req.ImageURL}
	if err := h.svc.Sync(c.Request.Context(), u); err != nil {
		writeError(c, err)
		return
	}
	out, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type SetEntitlementsRequest struct {
	Entitlements []string `json:"entitlements"`
}

func (h *UserHandler) SetEntitlements(c *gin.Context) {
	var req SetEntitlementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "UserHandler.SetEntitlements", "invalid request body", err))
		return
	}

	userID := c.Param("id")
	if err := h.svc.SetEntitlements(c.Request.Context(), userID, req.Entitlements); err != nil {
		writeError(c, err)
		return
	}
	u, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
