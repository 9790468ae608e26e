package httpapi

import (
	"net/http"

	"librix-licensing/pkg/errutil"
	"librix-licensing/pkg/middleware"
	"librix-licensing/services/corporation"
	"librix-licensing/services/token"

	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	corps  *corporation.Service
	tokens *token.Service
}

func NewClientHandler(corps *corporation.Service, tokens *token.Service) *ClientHandler {
	return &ClientHandler{corps: corps, tokens: tokens}
}

type demoRequest struct {
	Code string `json:"code" binding:"required"`
}

type linkRequest struct {
	Code       string `json:"code" binding:"required"`
	LicenseKey string `json:"licenseKey" binding:"required"`
}

// Omitted fields stay nil so updates merge instead of blanking columns.
type updateCorporationRequest struct {
	Code        string  `json:"code"`
	Description *string `json:"description"`
	Town        *string `json:"town"`
	City        *string `json:"city"`
}

// Status reports the caller's corporation, license key and governing
// entitlement period.
func (h *ClientHandler) Status(c *gin.Context) {
	status, err := h.corps.GetClientStatus(c.Request.Context(), middleware.ConsumerKey(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GrantDemo attaches the caller to a corporation on a 30-day demo license.
func (h *ClientHandler) GrantDemo(c *gin.Context) {
	var req demoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	grant, err := h.corps.GrantDemo(c.Request.Context(), middleware.ConsumerKey(c), req.Code)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, grant)
}

// Link attaches the caller to a corporation with an explicit license key.
func (h *ClientHandler) Link(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	if err := h.corps.Link(c.Request.Context(), middleware.ConsumerKey(c), req.Code, req.LicenseKey); err != nil {
		_ = c.Error(err)
		return
	}

	status, err := h.corps.GetClientStatus(c.Request.Context(), middleware.ConsumerKey(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// Unlink detaches the caller and returns its license key to the pool.
func (h *ClientHandler) Unlink(c *gin.Context) {
	if err := h.corps.Unlink(c.Request.Context(), middleware.ConsumerKey(c)); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// IssueToken mints a short-lived token for subsequent self-service calls.
func (h *ClientHandler) IssueToken(c *gin.Context) {
	issued, err := h.tokens.Issue(c.Request.Context(), middleware.ConsumerKey(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, issued)
}

// UpdateViaToken updates the caller's own corporation. The consumer key is
// resolved from the presented client token, not from session headers.
func (h *ClientHandler) UpdateViaToken(c *gin.Context) {
	var req updateCorporationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	in := corporation.UpdateInput{
		Code:        req.Code,
		Description: req.Description,
		Town:        req.Town,
		City:        req.City,
	}
	if err := h.corps.UpdateForConsumer(c.Request.Context(), middleware.ConsumerKey(c), in); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
