package recharges

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/students"
)

// Handler provides HTTP endpoints for card recharges.
type Handler struct {
	service *Service
}

// NewHandler creates a new recharge handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public recharge routes. The webhook must stay
// unauthenticated: the gateway signs its own requests.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/wompi", h.Webhook)
}

// RegisterProtectedRoutes sets up auth-required recharge routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/recargas", h.CreateRecharge)
	r.GET("/recargas/:id", h.GetRecharge)
	r.GET("/recargas/:id/widget", h.WidgetConfig)
	r.POST("/recargas/:id/cancelar", h.CancelRecharge)
	r.GET("/estudiantes/:id/recargas", h.ListRecharges)
}

// RegisterAdminRoutes sets up staff-only recharge routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/recargas/:id/aprobar", h.ApproveRecharge)
}

type createRechargeRequest struct {
	StudentID int64           `json:"usuario_id" binding:"required"`
	Amount    decimal.Decimal `json:"monto" binding:"required"`
}

// CreateRecharge handles POST /api/recargas
func (h *Handler) CreateRecharge(c *gin.Context) {
	var req createRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "usuario_id and monto are required",
		})
		return
	}

	r, err := h.service.CreatePending(c.Request.Context(), req.StudentID, req.Amount)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrAmountOutOfRange):
			status = http.StatusBadRequest
			code = "amount_out_of_range"
		case errors.Is(err, students.ErrStudentNotFound):
			status = http.StatusNotFound
			code = "not_found"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GetRecharge handles GET /api/recargas/:id
func (h *Handler) GetRecharge(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrRechargeNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Recharge not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, r)
}

// WidgetConfig handles GET /api/recargas/:id/widget
func (h *Handler) WidgetConfig(c *gin.Context) {
	cfg, err := h.service.WidgetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrRechargeNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotPending):
			status = http.StatusConflict
			code = "already_processed"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Webhook handles POST /api/webhooks/wompi
//
// It always answers 200 so the gateway stops retrying: payment events
// carry no user data we need to reject, and failures are our problem to
// log and reconcile, not the gateway's.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "unreadable body"})
		return
	}

	ev, ok := h.service.VerifyWebhook(payload,
		c.GetHeader("X-Event-Checksum"),
		c.GetHeader("X-Timestamp"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "invalid_signature"})
		return
	}

	r, err := h.service.ProcessWebhook(c.Request.Context(), ev)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if r == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"recarga": r.ID,
		"estado":  r.Status,
	})
}

// CancelRecharge handles POST /api/recargas/:id/cancelar
func (h *Handler) CancelRecharge(c *gin.Context) {
	r, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrRechargeNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrNotPending):
			status = http.StatusConflict
			code = "already_processed"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

// ApproveRecharge handles POST /api/recargas/:id/aprobar
func (h *Handler) ApproveRecharge(c *gin.Context) {
	r, err := h.service.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		if errors.Is(err, ErrRechargeNotFound) {
			status = http.StatusNotFound
			code = "not_found"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

// ListRecharges handles GET /api/estudiantes/:id/recargas
func (h *Handler) ListRecharges(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	limit := 10
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.service.ListByStudent(c.Request.Context(), studentID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recargas": list, "count": len(list)})
}
