package orders

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/catalog"
	"github.com/foodcash/foodcash/internal/students"
)

// Handler provides HTTP endpoints for purchases and pre-orders.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up auth-required order routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/compras", h.CreatePurchase)
	r.GET("/compras/:id", h.GetPurchase)
	r.GET("/estudiantes/:id/compras", h.ListPurchases)

	r.POST("/precompras", h.CreatePreOrder)
	r.GET("/precompras/:id", h.GetPreOrder)
	r.GET("/estudiantes/:id/precompras", h.ListPreOrders)
	r.DELETE("/precompras/:id", h.CancelPreOrder)
}

// RegisterAdminRoutes sets up admin-only order routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/compras", h.ListAllPurchases)
	r.GET("/precompras-pendientes", h.ListPendingPreOrders)
	r.POST("/precompras/:id/entregar", h.MarkDelivered)
	r.POST("/precompras/:id/cancelar-entrega", h.CancelDelivery)
}

type orderRequest struct {
	StudentID int64         `json:"usuario_id" binding:"required"`
	Items     []ItemRequest `json:"items" binding:"required"`
	Surcharge string        `json:"costo_adicional"`
}

func respondOrderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, students.ErrStudentNotFound), errors.Is(err, catalog.ErrFoodNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, students.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
		code = "insufficient_balance"
	case errors.Is(err, catalog.ErrInsufficientStock):
		status = http.StatusConflict
		code = "insufficient_stock"
	case errors.Is(err, ErrFoodBlocked):
		status = http.StatusForbidden
		code = "food_blocked"
	case errors.Is(err, ErrEmptyOrder):
		status = http.StatusBadRequest
		code = "empty_order"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

// CreatePurchase handles POST /api/compras
func (h *Handler) CreatePurchase(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "usuario_id and items are required",
		})
		return
	}

	purchase, err := h.service.Purchase(c.Request.Context(), req.StudentID, req.Items)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

// GetPurchase handles GET /api/compras/:id
func (h *Handler) GetPurchase(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid purchase ID",
		})
		return
	}

	purchase, err := h.service.GetPurchase(c.Request.Context(), id)
	if err != nil {
		if err == ErrPurchaseNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Purchase not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, purchase)
}

// ListPurchases handles GET /api/estudiantes/:id/compras
func (h *Handler) ListPurchases(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.service.ListPurchases(c.Request.Context(), studentID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"compras": list, "count": len(list)})
}

// ListAllPurchases handles GET /api/compras
func (h *Handler) ListAllPurchases(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.service.ListAllPurchases(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"compras": list, "count": len(list)})
}

// CreatePreOrder handles POST /api/precompras
func (h *Handler) CreatePreOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "usuario_id and items are required",
		})
		return
	}

	surcharge := decimal.Zero
	if req.Surcharge != "" {
		parsed, err := decimal.NewFromString(req.Surcharge)
		if err != nil || parsed.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "costo_adicional must be a non-negative amount",
			})
			return
		}
		surcharge = parsed
	}

	po, purchase, err := h.service.PreOrder(c.Request.Context(), req.StudentID, req.Items, surcharge)
	if err != nil {
		respondOrderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"precompra": po,
		"compra":    purchase,
	})
}

// GetPreOrder handles GET /api/precompras/:id
func (h *Handler) GetPreOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid pre-order ID",
		})
		return
	}

	po, err := h.service.GetPreOrder(c.Request.Context(), id)
	if err != nil {
		if err == ErrPreOrderNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Pre-order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, po)
}

// ListPreOrders handles GET /api/estudiantes/:id/precompras
func (h *Handler) ListPreOrders(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	onlyPending := c.Query("pendientes") == "true"

	list, err := h.service.ListPreOrders(c.Request.Context(), studentID, onlyPending)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"precompras": list, "count": len(list)})
}

// ListPendingPreOrders handles GET /api/precompras-pendientes
func (h *Handler) ListPendingPreOrders(c *gin.Context) {
	list, err := h.service.ListPendingPreOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"precompras": list, "count": len(list)})
}

// MarkDelivered handles POST /api/precompras/:id/entregar
func (h *Handler) MarkDelivered(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid pre-order ID",
		})
		return
	}

	po, err := h.service.MarkDelivered(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch err {
		case ErrPreOrderNotFound:
			status = http.StatusNotFound
			code = "not_found"
		case ErrAlreadyDelivered:
			status = http.StatusConflict
			code = "already_delivered"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, po)
}

// CancelDelivery handles POST /api/precompras/:id/cancelar-entrega
func (h *Handler) CancelDelivery(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid pre-order ID",
		})
		return
	}

	po, err := h.service.CancelDelivery(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch err {
		case ErrPreOrderNotFound:
			status = http.StatusNotFound
			code = "not_found"
		case ErrNotDelivered:
			status = http.StatusConflict
			code = "not_delivered"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, po)
}

// CancelPreOrder handles DELETE /api/precompras/:id
func (h *Handler) CancelPreOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid pre-order ID",
		})
		return
	}

	if err := h.service.CancelPreOrder(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch err {
		case ErrPreOrderNotFound:
			status = http.StatusNotFound
			code = "not_found"
		case ErrDeliveredPreOrder:
			status = http.StatusConflict
			code = "already_delivered"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pre-order cancelled and refunded"})
}
