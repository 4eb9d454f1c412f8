package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vault-guard/internal/risk"
	"vault-guard/internal/service"
	"vault-guard/internal/settings"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler provides HTTP endpoints for vault operations.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new vault handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// RegisterRoutes sets up the per-account routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	acct := r.Group("/accounts/:account")
	acct.POST("/analyze", h.Analyze)
	acct.POST("/transactions", h.Submit)
	acct.GET("/pending", h.ListPending)
	acct.POST("/pending/:index/cancel", h.Cancel)
	acct.POST("/pending/:index/execute", h.Execute)
	acct.GET("/freeze", h.GetFreeze)
	acct.POST("/freeze", h.ActivateFreeze)
	acct.DELETE("/freeze", h.DeactivateFreeze)
	acct.GET("/settings", h.GetSettings)
	acct.PATCH("/settings", h.UpdateSettings)
	acct.POST("/guardians", h.AddGuardian)
	acct.DELETE("/guardians/:id", h.RemoveGuardian)
	acct.GET("/notifications", h.ListNotifications)
	acct.POST("/notifications/read", h.MarkNotificationsRead)
	acct.DELETE("/notifications/:id", h.DeleteNotification)
	acct.DELETE("/notifications", h.ClearNotifications)
	acct.GET("/assessments", h.ListAssessments)
}

// Analyze handles POST /v1/accounts/:account/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var intent risk.TransactionIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	analysis, err := h.service.Analyze(c.Request.Context(), c.Param("account"), intent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis})
}

// Submit handles POST /v1/accounts/:account/transactions
func (h *Handler) Submit(c *gin.Context) {
	var intent risk.TransactionIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	result, err := h.service.Submit(c.Request.Context(), c.Param("account"), intent)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == service.OutcomeQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// ListPending handles GET /v1/accounts/:account/pending
func (h *Handler) ListPending(c *gin.Context) {
	entries, err := h.service.Pending(c.Request.Context(), c.Param("account"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": entries, "count": len(entries)})
}

// Cancel handles POST /v1/accounts/:account/pending/:index/cancel
func (h *Handler) Cancel(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	entry, err := h.service.Cancel(c.Request.Context(), c.Param("account"), index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": entry})
}

// Execute handles POST /v1/accounts/:account/pending/:index/execute
func (h *Handler) Execute(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	entry, err := h.service.Execute(c.Request.Context(), c.Param("account"), index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": entry})
}

// GetFreeze handles GET /v1/accounts/:account/freeze
func (h *Handler) GetFreeze(c *gin.Context) {
	state, err := h.service.FreezeState(c.Request.Context(), c.Param("account"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"freeze": state})
}

type activateFreezeRequest struct {
	DurationHours int `json:"durationHours"`
}

// ActivateFreeze handles POST /v1/accounts/:account/freeze
func (h *Handler) ActivateFreeze(c *gin.Context) {
	var req activateFreezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	state, err := h.service.ActivateFreeze(c.Request.Context(), c.Param("account"), req.DurationHours)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"freeze": state})
}

// DeactivateFreeze handles DELETE /v1/accounts/:account/freeze
func (h *Handler) DeactivateFreeze(c *gin.Context) {
	state, err := h.service.DeactivateFreeze(c.Request.Context(), c.Param("account"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"freeze": state})
}

// GetSettings handles GET /v1/accounts/:account/settings
func (h *Handler) GetSettings(c *gin.Context) {
	current, err := h.service.Settings(c.Request.Context(), c.Param("account"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": current})
}

// UpdateSettings handles PATCH /v1/accounts/:account/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	updated, err := h.service.UpdateSettings(c.Request.Context(), c.Param("account"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": updated})
}

type addGuardianRequest struct {
	Name    string                `json:"name" binding:"required"`
	Address string                `json:"address" binding:"required"`
	Type    settings.GuardianType `json:"type"`
}

// AddGuardian handles POST /v1/accounts/:account/guardians
func (h *Handler) AddGuardian(c *gin.Context) {
	var req addGuardianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	updated, err := h.service.AddGuardian(c.Request.Context(), c.Param("account"), settings.Guardian{
		Name:    req.Name,
		Address: req.Address,
		Type:    req.Type,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"settings": updated})
}

// RemoveGuardian handles DELETE /v1/accounts/:account/guardians/:id
func (h *Handler) RemoveGuardian(c *gin.Context) {
	updated, err := h.service.RemoveGuardian(c.Request.Context(), c.Param("account"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": updated})
}

// ListNotifications handles GET /v1/accounts/:account/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	events, unread, err := h.service.Notifications(c.Param("account"), limitParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": events, "unread": unread})
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

// MarkNotificationsRead handles POST /v1/accounts/:account/notifications/read.
// An empty body marks everything read.
func (h *Handler) MarkNotificationsRead(c *gin.Context) {
	var req markReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}
	if err := h.service.MarkNotificationsRead(c.Param("account"), req.IDs); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteNotification handles DELETE /v1/accounts/:account/notifications/:id
func (h *Handler) DeleteNotification(c *gin.Context) {
	if err := h.service.DeleteNotification(c.Param("account"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearNotifications handles DELETE /v1/accounts/:account/notifications
func (h *Handler) ClearNotifications(c *gin.Context) {
	if err := h.service.ClearNotifications(c.Param("account")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAssessments handles GET /v1/accounts/:account/assessments
func (h *Handler) ListAssessments(c *gin.Context) {
	records, err := h.service.History(c.Request.Context(), c.Param("account"), limitParam(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": records, "count": len(records)})
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "index must be an integer")
		return 0, false
	}
	return index, true
}

func limitParam(c *gin.Context) int {
	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxListLimit {
				limit = maxListLimit
			}
		}
	}
	return limit
}
