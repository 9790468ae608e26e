package httpapi

import (
	"net/http"

	"librix-licensing/pkg/db/pagination"
	"librix-licensing/pkg/errutil"
	"librix-licensing/pkg/middleware"
	"librix-licensing/services/corporation"

	"github.com/gin-gonic/gin"
)

type CorporationHandler struct {
	corps *corporation.Service
}

func NewCorporationHandler(corps *corporation.Service) *CorporationHandler {
	return &CorporationHandler{corps: corps}
}

type adminUpdateRequest struct {
	updateCorporationRequest
	Banned *bool `json:"banned"`
}

// Get returns the public-safe corporation profile by code.
func (h *CorporationHandler) Get(c *gin.Context) {
	view, err := h.corps.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// List pages through the corporation directory.
func (h *CorporationHandler) List(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err, errutil.WithErr(err)))
		return
	}

	views, pageInfo, err := h.corps.List(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      views,
		"page_info": pageInfo,
	})
}

// Create registers a new corporation.
func (h *CorporationHandler) Create(c *gin.Context) {
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
	if err := h.corps.Create(c.Request.Context(), in); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// UpdateSelf updates the corporation the calling consumer is attached to.
func (h *CorporationHandler) UpdateSelf(c *gin.Context) {
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

// UpdateByCode is the administrative update path; it may toggle the ban
// flag.
func (h *CorporationHandler) UpdateByCode(c *gin.Context) {
	var req adminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err, errutil.WithErr(err)))
		return
	}

	in := corporation.AdminUpdateInput{
		UpdateInput: corporation.UpdateInput{
			Code:        req.Code,
			Description: req.Description,
			Town:        req.Town,
			City:        req.City,
		},
		Banned: req.Banned,
	}
	if err := h.corps.UpdateByCode(c.Request.Context(), c.Param("code"), in); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
