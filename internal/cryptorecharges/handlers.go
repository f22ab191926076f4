package cryptorecharges

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/auth"
)

// Handler provides HTTP endpoints for crypto recharges.
type Handler struct {
	service *Service
}

// NewHandler creates a new crypto recharge handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public crypto recharge routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/recargas-crypto/configuracion", h.GetConfig)
}

// RegisterProtectedRoutes sets up auth-required crypto recharge routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/recargas-crypto/crear", h.CreateRecharge)
	r.GET("/recargas-crypto/instrucciones/:id", h.GetInstructions)
	r.POST("/recargas-crypto/confirmar", h.ConfirmPayment)
	r.GET("/recargas-crypto/estado/:id", h.GetStatus)
	r.GET("/recargas-crypto/usuario/:id", h.ListByUser)
}

type createCryptoRequest struct {
	Amount decimal.Decimal `json:"monto_cop" binding:"required"`
	Asset  Asset           `json:"tipo_crypto"`
}

// CreateRecharge handles POST /api/recargas-crypto/crear
func (h *Handler) CreateRecharge(c *gin.Context) {
	var req createCryptoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "monto_cop is required",
		})
		return
	}

	r, err := h.service.CreatePending(c.Request.Context(), auth.UserID(c), req.Amount, req.Asset)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrAmountOutOfRange):
			status = http.StatusBadRequest
			code = "amount_out_of_range"
		case errors.Is(err, ErrUnsupportedAsset):
			status = http.StatusBadRequest
			code = "unsupported_asset"
		case errors.Is(err, auth.ErrUserNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrChainUnavailable):
			status = http.StatusServiceUnavailable
			code = "chain_unavailable"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, r)
}

// GetInstructions handles GET /api/recargas-crypto/instrucciones/:id
func (h *Handler) GetInstructions(c *gin.Context) {
	instructions, err := h.service.Instructions(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrRechargeNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrAlreadyProcessed):
			status = http.StatusConflict
			code = "already_processed"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, instructions)
}

type confirmPaymentRequest struct {
	RechargeID    string `json:"recarga_id" binding:"required"`
	TxHash        string `json:"tx_hash" binding:"required"`
	WalletAddress string `json:"wallet_address" binding:"required"`
}

// ConfirmPayment handles POST /api/recargas-crypto/confirmar
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "recarga_id, tx_hash and wallet_address are required",
		})
		return
	}

	r, err := h.service.ConfirmPayment(c.Request.Context(), req.RechargeID, req.TxHash, req.WalletAddress)
	if err != nil {
		status := http.StatusInternalServerError
		code := "internal_error"
		switch {
		case errors.Is(err, ErrInvalidTxHash), errors.Is(err, ErrInvalidWalletAddr):
			status = http.StatusBadRequest
			code = "invalid_request"
		case errors.Is(err, ErrRechargeNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, ErrAlreadyProcessed):
			status = http.StatusConflict
			code = "already_processed"
		case errors.Is(err, ErrExpired):
			status = http.StatusGone
			code = "expired"
		case errors.Is(err, ErrChainUnavailable):
			status = http.StatusServiceUnavailable
			code = "chain_unavailable"
		case errors.Is(err, ErrVerificationFailed):
			status = http.StatusUnprocessableEntity
			code = "verification_failed"
		}
		resp := gin.H{"error": code, "message": err.Error()}
		if r != nil {
			resp["recarga"] = r
		}
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Pago verificado y saldo acreditado exitosamente",
		"recarga": r,
	})
}

// GetStatus handles GET /api/recargas-crypto/estado/:id
func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrRechargeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Crypto recharge not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListByUser handles GET /api/recargas-crypto/usuario/:id
func (h *Handler) ListByUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid user ID",
		})
		return
	}

	list, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recargas": list, "count": len(list)})
}

// GetConfig handles GET /api/recargas-crypto/configuracion
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Config(c.Request.Context()))
}
