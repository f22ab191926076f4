package students

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for student management.
type Handler struct {
	service *Service
}

// NewHandler creates a new student handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up auth-required student routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/estudiantes", h.ListStudents)
	r.GET("/estudiantes/:id", h.GetStudent)
	r.GET("/estudiantes/:id/saldo", h.GetBalance)
	// Separate prefix: gin's router does not allow a static segment
	// alongside the :id wildcard.
	r.GET("/estudiantes-por-cedula/:cedula", h.GetByCedula)
}

// RegisterAdminRoutes sets up admin-only student routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/estudiantes", h.CreateStudent)
	r.PUT("/estudiantes/:id", h.UpdateStudent)
}

type createStudentRequest struct {
	Name      string `json:"nombre" binding:"required"`
	Email     string `json:"email"`
	BirthDate string `json:"fecha_nacimiento"`
	Guardian  string `json:"responsable_financiero"`
	Cedula    string `json:"cedula" binding:"required"`
}

// CreateStudent handles POST /api/estudiantes
func (h *Handler) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "nombre and cedula are required",
		})
		return
	}

	student, err := h.service.Create(c.Request.Context(), req.Name, req.Email, req.BirthDate, req.Guardian, req.Cedula)
	if err != nil {
		if err == ErrDuplicateCedula {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_cedula",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, student)
}

// GetStudent handles GET /api/estudiantes/:id
func (h *Handler) GetStudent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	student, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if err == ErrStudentNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Student not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, student)
}

// GetBalance handles GET /api/estudiantes/:id/saldo
func (h *Handler) GetBalance(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	balance, err := h.service.Balance(c.Request.Context(), id)
	if err != nil {
		if err == ErrStudentNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Student not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"estudiante_id": id,
		"saldo":         balance,
	})
}

// GetByCedula handles GET /api/estudiantes-por-cedula/:cedula
func (h *Handler) GetByCedula(c *gin.Context) {
	student, err := h.service.GetByCedula(c.Request.Context(), c.Param("cedula"))
	if err != nil {
		if err == ErrStudentNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Student not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, student)
}

// ListStudents handles GET /api/estudiantes
//
// With ?responsable=<username> it filters to that guardian's students,
// which is what the parent-facing frontend uses.
func (h *Handler) ListStudents(c *gin.Context) {
	if guardian := c.Query("responsable"); guardian != "" {
		list, err := h.service.ListByGuardian(c.Request.Context(), guardian)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"estudiantes": list, "count": len(list)})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"estudiantes": list, "count": len(list)})
}

type updateStudentRequest struct {
	Name      string `json:"nombre"`
	Email     string `json:"email"`
	BirthDate string `json:"fecha_nacimiento"`
	Guardian  string `json:"responsable_financiero"`
}

// UpdateStudent handles PUT /api/estudiantes/:id
func (h *Handler) UpdateStudent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid student ID",
		})
		return
	}

	var req updateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	student, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if err == ErrStudentNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Student not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	if req.Name != "" {
		student.Name = NormalizeName(req.Name)
	}
	if req.Email != "" {
		student.Email = req.Email
	}
	if req.BirthDate != "" {
		student.BirthDate = req.BirthDate
	}
	if req.Guardian != "" {
		student.Guardian = req.Guardian
	}

	if err := h.service.store.Update(c.Request.Context(), student); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, student)
}
