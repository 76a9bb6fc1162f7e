package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	sales    *service.SaleService
	loyalty  *service.LoyaltyService
	verifier *TokenVerifier
	ready    map[string]ReadinessCheck
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. verifier may be nil to leave the API
// unauthenticated.
func NewHandler(sales *service.SaleService, loyalty *service.LoyaltyService, verifier *TokenVerifier) *Handler {
	return &Handler{
		sales:    sales,
		loyalty:  loyalty,
		verifier: verifier,
		ready:    make(map[string]ReadinessCheck),
		logger:   util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency checked by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.ready[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	adjust := []gin.HandlerFunc{h.adjustInventory}
	if h.verifier != nil {
		v1.Use(authMiddleware(h.verifier))
		adjust = append([]gin.HandlerFunc{requireRole(RoleManager, RoleAdmin)}, adjust...)
	}
	{
		v1.POST("/pos/sales", h.createSale)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/inventory/:id", h.getInventory)
		v1.POST("/inventory/:id/adjust", adjust...)
		v1.GET("/loyalty/:customerId", h.getLoyalty)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.ready {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"errors": failures,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createSale handles POST /api/v1/pos/sales
func (h *Handler) createSale(c *gin.Context) {
	var req service.CreateSaleRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	if req.UserID == "" {
		req.UserID = c.GetString(ctxStaffID)
	}

	resp, err := h.sales.CreateSale(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.sales.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"order":   order,
	})
}

func (h *Handler) getInventory(c *gin.Context) {
	rec, err := h.sales.GetInventory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"inventory": rec,
	})
}

type adjustInventoryRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// adjustInventory handles manual stock corrections
func (h *Handler) adjustInventory(c *gin.Context) {
	var req adjustInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	id := c.Param("id")
	quantity, err := h.sales.AdjustInventory(c.Request.Context(), id, req.Delta, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"inventoryId": id,
		"quantity":    quantity,
	})
}

func (h *Handler) getLoyalty(c *gin.Context) {
	vendorID := c.Query("vendorId")
	if vendorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "vendorId query parameter is required",
		})
		return
	}

	account, err := h.loyalty.GetAccount(c.Request.Context(), c.Param("customerId"), vendorID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"loyalty": account,
	})
}

// writeError maps service errors to HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validation  *service.ValidationError
		shortage    *service.InsufficientInventoryError
		persistence *service.PersistenceError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Missing or invalid fields",
			"details": validation.Message,
		})
	case errors.As(err, &shortage):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   shortage.Error(),
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Not found",
			"details": err.Error(),
		})
	case errors.As(err, &persistence):
		h.logger.Error("Sale persistence failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to " + persistence.Op,
			"details": persistence.Err.Error(),
		})
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
