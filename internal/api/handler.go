package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"canteen-order-service/internal/apperr"
	"canteen-order-service/internal/models"
	"canteen-order-service/internal/service"
	"canteen-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	cartService     *service.CartService
	orderService    *service.OrderService
	jwtSecret       string
	defaultPageSize int
	maxPageSize     int
}

// NewHandler creates a new HTTP handler
func NewHandler(
	cartService *service.CartService,
	orderService *service.OrderService,
	jwtSecret string,
	defaultPageSize, maxPageSize int,
) *Handler {
	return &Handler{
		cartService:     cartService,
		orderService:    orderService,
		jwtSecret:       jwtSecret,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// The pickup-board status lookup is intentionally unauthenticated.
	v1.GET("/orders/:id/status", h.getOrderStatus)

	auth := v1.Group("")
	auth.Use(authMiddleware(h.jwtSecret))
	{
		auth.GET("/cart", h.getCart)
		auth.POST("/cart/items", h.addCartItem)
		auth.PUT("/cart/items/:id", h.updateCartItem)
		auth.DELETE("/cart/items/:id", h.removeCartItem)
		auth.DELETE("/cart", h.clearCart)

		auth.POST("/orders", h.createOrder)
		auth.GET("/orders", h.listMyOrders)
		auth.GET("/orders/:id", h.getOrder)
		auth.POST("/orders/:id/cancel", h.cancelOrder)
		auth.POST("/orders/:id/feedback", h.submitFeedback)
		auth.PATCH("/orders/:id/status", h.updateOrderStatus)
	}

	staff := v1.Group("/admin")
	staff.Use(authMiddleware(h.jwtSecret), requireStaff())
	{
		staff.GET("/orders", h.listAllOrders)
		staff.GET("/orders/active", h.listActiveOrders)
		staff.GET("/statistics/today", h.todayStatistics)
		staff.GET("/statistics/range", h.statisticsRange)
		staff.GET("/payments", requireAdmin(), h.listPayments)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getCart returns the caller's cart, lazily creating an empty one.
func (h *Handler) getCart(c *gin.Context) {
	actor := currentActor(c)

	cart, err := h.cartService.GetCart(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

// addCartItem adds or merges a line into the caller's cart
func (h *Handler) addCartItem(c *gin.Context) {
	actor := currentActor(c)

	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cart, err := h.cartService.AddItem(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cart)
}

// updateCartItem mutates quantity, instructions or customizations of a line
func (h *Handler) updateCartItem(c *gin.Context) {
	actor := currentActor(c)
	itemID := c.Param("id")

	var req service.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cart, err := h.cartService.UpdateItem(c.Request.Context(), actor.ID, itemID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

// removeCartItem deletes a line from the caller's cart
func (h *Handler) removeCartItem(c *gin.Context) {
	actor := currentActor(c)

	cart, err := h.cartService.RemoveItem(c.Request.Context(), actor.ID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

// clearCart empties the caller's cart
func (h *Handler) clearCart(c *gin.Context) {
	actor := currentActor(c)

	if err := h.cartService.Clear(c.Request.Context(), actor.ID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// createOrder converts the caller's cart into an order
func (h *Handler) createOrder(c *gin.Context) {
	actor := currentActor(c)

	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listMyOrders pages through the caller's own orders
func (h *Handler) listMyOrders(c *gin.Context) {
	actor := currentActor(c)
	page, pageSize := h.pagination(c)

	orders, total, err := h.orderService.ListMyOrders(
		c.Request.Context(), actor.ID, c.Query("status"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewPage(orders, total, page, pageSize))
}

// getOrder returns a hydrated order. Staff see any order, everyone
// else only their own.
func (h *Handler) getOrder(c *gin.Context) {
	actor := currentActor(c)

	ownerID := actor.ID
	if actor.IsStaff() {
		ownerID = ""
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// getOrderStatus is the public pickup-board lookup
func (h *Handler) getOrderStatus(c *gin.Context) {
	status, err := h.orderService.GetOrderStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// updateOrderStatus drives a status transition
func (h *Handler) updateOrderStatus(c *gin.Context) {
	actor := currentActor(c)

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// cancelOrder cancels the caller's own order
func (h *Handler) cancelOrder(c *gin.Context) {
	actor := currentActor(c)

	var req service.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orderService.Cancel(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// submitFeedback rates a completed order
func (h *Handler) submitFeedback(c *gin.Context) {
	actor := currentActor(c)

	var req service.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orderService.SubmitFeedback(c.Request.Context(), c.Param("id"), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// listAllOrders is the staff listing with filters
func (h *Handler) listAllOrders(c *gin.Context) {
	page, pageSize := h.pagination(c)

	orders, total, err := h.orderService.ListAllOrders(
		c.Request.Context(), c.Query("status"), c.Query("search"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewPage(orders, total, page, pageSize))
}

// listActiveOrders is the staff kitchen board
func (h *Handler) listActiveOrders(c *gin.Context) {
	orders, err := h.orderService.ListActiveOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// todayStatistics computes the current day's rollup
func (h *Handler) todayStatistics(c *gin.Context) {
	stats, err := h.orderService.TodayStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// statisticsRange reads the daily rollup for a date range
func (h *Handler) statisticsRange(c *gin.Context) {
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")
	if startDate == "" || endDate == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "start_date and end_date are required",
		})
		return
	}

	stats, err := h.orderService.StatisticsRange(c.Request.Context(), startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// listPayments is the admin payment listing
func (h *Handler) listPayments(c *gin.Context) {
	page, pageSize := h.pagination(c)

	payments, total, err := h.orderService.ListPayments(
		c.Request.Context(), c.Query("status"), c.Query("method"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewPage(payments, total, page, pageSize))
}

func (h *Handler) pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	return util.ClampPage(page, pageSize, h.defaultPageSize, h.maxPageSize)
}

// respondError maps service errors onto HTTP statuses without leaking
// internals for unexpected failures.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrEmptyCart),
		errors.Is(err, apperr.ErrLimitExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, apperr.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrUpstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream service unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
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
