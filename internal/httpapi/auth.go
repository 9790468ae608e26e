package httpapi

import (
	"net/http"

	"librix-licensing/pkg/errutil"
	"librix-licensing/services/app"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	apps *app.Service
}

func NewAuthHandler(apps *app.Service) *AuthHandler {
	return &AuthHandler{apps: apps}
}

type authRequest struct {
	AppID  string `json:"appId" binding:"required"`
	AppKey string `json:"appKey" binding:"required"`
}

type authResponse struct {
	AccessToken string `json:"accessToken"`
}

// Authenticate exchanges application credentials for a session token.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	session, err := h.apps.Authenticate(c.Request.Context(), req.AppID, req.AppKey)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, authResponse{AccessToken: session})
}
