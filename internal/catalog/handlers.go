package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler provides HTTP endpoints for the food catalog.
type Handler struct {
	service *Service
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up auth-required catalog routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/alimentos", h.ListFoods)
	r.GET("/alimentos/:id", h.GetFood)
	r.GET("/estudiantes/:id/alimentos-bloqueados", h.ListBlocks)
	r.POST("/estudiantes/:id/alimentos-bloqueados", h.BlockFood)
	r.DELETE("/estudiantes/:id/alimentos-bloqueados/:foodID", h.UnblockFood)
}

// RegisterAdminRoutes sets up admin-only catalog routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/alimentos", h.CreateFood)
	r.PUT("/alimentos/:id", h.UpdateFood)
	r.DELETE("/alimentos/:id", h.DeactivateFood)
}

type foodRequest struct {
	Name     string          `json:"nombre"`
	Price    decimal.Decimal `json:"precio"`
	Stock    *int            `json:"cantidad_en_stock"`
	Calories *int            `json:"calorias"`
	Image    string          `json:"imagen"`
	Category string          `json:"categoria"`
}

// CreateFood handles POST /api/alimentos
func (h *Handler) CreateFood(c *gin.Context) {
	var req foodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	food := &Food{
		Name:     req.Name,
		Price:    req.Price,
		Image:    req.Image,
		Category: req.Category,
	}
	if req.Stock != nil {
		food.Stock = *req.Stock
	}
	if req.Calories != nil {
		food.Calories = *req.Calories
	}

	created, err := h.service.CreateFood(c.Request.Context(), food)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_food",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetFood handles GET /api/alimentos/:id
func (h *Handler) GetFood(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid food ID",
		})
		return
	}

	food, err := h.service.GetFood(c.Request.Context(), id)
	if err != nil {
		if err == ErrFoodNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Food not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, food)
}

// ListFoods handles GET /api/alimentos
func (h *Handler) ListFoods(c *gin.Context) {
	includeInactive := c.Query("incluir_inactivos") == "true"

	foods, err := h.service.ListFoods(c.Request.Context(), includeInactive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alimentos": foods, "count": len(foods)})
}

// UpdateFood handles PUT /api/alimentos/:id
func (h *Handler) UpdateFood(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid food ID",
		})
		return
	}

	var req struct {
		Name     string           `json:"nombre"`
		Price    *decimal.Decimal `json:"precio"`
		Stock    *int             `json:"cantidad_en_stock"`
		Calories *int             `json:"calorias"`
		Image    string           `json:"imagen"`
		Category string           `json:"categoria"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	// Stock changes go through the atomic path, not the profile update.
	if req.Stock != nil {
		food, err := h.service.GetFood(c.Request.Context(), id)
		if err == nil {
			if delta := *req.Stock - food.Stock; delta != 0 {
				if _, err := h.service.store.AdjustStock(c.Request.Context(), id, delta); err != nil {
					c.JSON(http.StatusConflict, gin.H{
						"error":   "insufficient_stock",
						"message": err.Error(),
					})
					return
				}
			}
		}
	}

	food, err := h.service.UpdateFood(c.Request.Context(), id, req.Name, req.Price, nil, req.Calories, req.Image, req.Category)
	if err != nil {
		if err == ErrFoodNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Food not found",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_food",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, food)
}

// DeactivateFood handles DELETE /api/alimentos/:id
func (h *Handler) DeactivateFood(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid food ID",
		})
		return
	}

	if err := h.service.DeactivateFood(c.Request.Context(), id); err != nil {
		if err == ErrFoodNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Food not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Food deactivated"})
}

// BlockFood handles POST /api/estudiantes/:id/alimentos-bloqueados
func (h *Handler) BlockFood(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	var req struct {
		FoodID int64 `json:"id_alimento" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "id_alimento is required",
		})
		return
	}

	block, err := h.service.BlockFood(c.Request.Context(), studentID, req.FoodID)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch err {
		case ErrFoodNotFound:
			status = http.StatusNotFound
			code = "not_found"
		case ErrAlreadyBlocked:
			status = http.StatusConflict
			code = "already_blocked"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, block)
}

// UnblockFood handles DELETE /api/estudiantes/:id/alimentos-bloqueados/:foodID
func (h *Handler) UnblockFood(c *gin.Context) {
	studentID, err1 := strconv.ParseInt(c.Param("id"), 10, 64)
	foodID, err2 := strconv.ParseInt(c.Param("foodID"), 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid IDs",
		})
		return
	}

	if err := h.service.UnblockFood(c.Request.Context(), studentID, foodID); err != nil {
		if err == ErrBlockNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Block not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Food unblocked"})
}

// ListBlocks handles GET /api/estudiantes/:id/alimentos-bloqueados
func (h *Handler) ListBlocks(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	blocks, err := h.service.ListBlocks(c.Request.Context(), studentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alimentos_bloqueados": blocks, "count": len(blocks)})
}
