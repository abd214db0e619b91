package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"carrito-backend/internal/models"
	"carrito-backend/internal/payment"
	"carrito-backend/internal/service"
	"carrito-backend/internal/shipping"
	"carrito-backend/internal/store"
	"carrito-backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Finalizer drives the order-finalization workflow.
type Finalizer interface {
	Finalize(ctx context.Context, req *service.FinalizeRequest, confirmation *payment.Confirmation) (*service.FinalizeResult, error)
}

// Catalog serves product reads.
type Catalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// PaymentGateway initiates and confirms card transactions.
type PaymentGateway interface {
	Init(ctx context.Context, buyOrder, sessionID string, amount float64, returnURL string) (*payment.InitResult, error)
	Confirm(ctx context.Context, token string) (*payment.Confirmation, error)
}

// CarrierGateway forwards carrier lookups and shipment operations.
type CarrierGateway interface {
	Regions(ctx context.Context) (json.RawMessage, error)
	CoverageAreas(ctx context.Context, regionCode string, typ int) (json.RawMessage, error)
	SearchStreets(ctx context.Context, countyName, streetName string) (json.RawMessage, error)
	StreetNumbers(ctx context.Context, streetID, streetNumber int) (json.RawMessage, error)
	Georeference(ctx context.Context, address json.RawMessage) (json.RawMessage, error)
	DeliveryOffices(ctx context.Context, regionCode, countyName string) (json.RawMessage, error)
	Quote(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
	Track(ctx context.Context, body map[string]interface{}) (json.RawMessage, error)
	CreateShipmentRaw(ctx context.Context, body json.RawMessage) (json.RawMessage, error)
}

// DirectoryStore serves user, address and order reads.
type DirectoryStore interface {
	Users(ctx context.Context) ([]models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
	AddressesByUserID(ctx context.Context, userID string) ([]models.Address, error)
	OrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	InsertOrder(ctx context.Context, order *models.Order) (string, error)
}

// Handler contains HTTP handlers
type Handler struct {
	finalizer Finalizer
	catalog   Catalog
	payments  PaymentGateway
	carrier   CarrierGateway
	directory DirectoryStore
}

// NewHandler creates a new HTTP handler
func NewHandler(finalizer Finalizer, catalog Catalog, payments PaymentGateway, carrier CarrierGateway, directory DirectoryStore) *Handler {
	return &Handler{
		finalizer: finalizer,
		catalog:   catalog,
		payments:  payments,
		carrier:   carrier,
		directory: directory,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, corsOrigins []string) {
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(corsOrigins))
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/api/init-tx", h.initTransaction)
	router.POST("/api/confirm-transaction/:token", h.confirmTransaction)

	router.GET("/regiones", h.regions)
	router.GET("/comunas/:region_id", h.coverageAreas)
	router.POST("/chilexpress/streets/search", h.searchStreets)
	router.GET("/chilexpress/numeraciones/:street_id/:nro", h.streetNumbers)
	router.POST("/chilexpress/georeferencia", h.georeference)
	router.GET("/chilexpress/oficinas-de-entrega/:region_id/:commune_name", h.deliveryOffices)
	router.POST("/chilexpress/cotizar-envio", h.quote)
	router.POST("/chilexpress/crear-envio", h.createShipment)
	router.POST("/chilexpress/tracking", h.track)
	router.POST("/chilexpress/process-order-and-shipping", h.finalizeOrder)

	router.GET("/products", h.listProducts)
	router.GET("/products/:product_id", h.getProduct)
	router.GET("/users", h.listUsers)
	router.GET("/user/:user_id", h.getUser)
	router.GET("/addresses/:user_id", h.listAddresses)
	router.GET("/orders", h.listOrders)
	router.POST("/create-test-order", h.createTestOrder)
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

// --- payments ---

type initTransactionRequest struct {
	BuyOrder  string  `json:"buy_order" binding:"required"`
	SessionID string  `json:"session_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
	ReturnURL string  `json:"return_url" binding:"required"`
}

func (h *Handler) initTransaction(c *gin.Context) {
	var req initTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.payments.Init(c.Request.Context(), req.BuyOrder, req.SessionID, req.Amount, req.ReturnURL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to initiate payment transaction",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": result.URL, "token": result.Token})
}

func (h *Handler) confirmTransaction(c *gin.Context) {
	token := c.Param("token")

	confirmation, err := h.payments.Confirm(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to confirm payment transaction",
			"details": err.Error(),
		})
		return
	}

	if !confirmation.Approved() {
		c.JSON(http.StatusOK, gin.H{
			"response_code": confirmation.ResponseCode,
			"status":        confirmation.Status,
			"message":       "Pago rechazado.",
		})
		return
	}

	c.JSON(http.StatusOK, confirmation)
}

// --- carrier lookups ---

func (h *Handler) regions(c *gin.Context) {
	h.carrierResponse(c)(h.carrier.Regions(c.Request.Context()))
}

func (h *Handler) coverageAreas(c *gin.Context) {
	h.carrierResponse(c)(h.carrier.CoverageAreas(c.Request.Context(), c.Param("region_id"), 1))
}

type streetSearchRequest struct {
	CountyName string `json:"countyName" binding:"required"`
	StreetName string `json:"streetName"`
}

func (h *Handler) searchStreets(c *gin.Context) {
	var req streetSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "countyName is required"})
		return
	}
	h.carrierResponse(c)(h.carrier.SearchStreets(c.Request.Context(), req.CountyName, req.StreetName))
}

func (h *Handler) streetNumbers(c *gin.Context) {
	streetID, err := strconv.Atoi(c.Param("street_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid street id"})
		return
	}
	nro, err := strconv.Atoi(c.Param("nro"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid street number"})
		return
	}
	h.carrierResponse(c)(h.carrier.StreetNumbers(c.Request.Context(), streetID, nro))
}

func (h *Handler) georeference(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	h.carrierResponse(c)(h.carrier.Georeference(c.Request.Context(), body))
}

func (h *Handler) deliveryOffices(c *gin.Context) {
	h.carrierResponse(c)(h.carrier.DeliveryOffices(c.Request.Context(), c.Param("region_id"), c.Param("commune_name")))
}

func (h *Handler) quote(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	h.carrierResponse(c)(h.carrier.Quote(c.Request.Context(), body))
}

func (h *Handler) createShipment(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	h.carrierResponse(c)(h.carrier.CreateShipmentRaw(c.Request.Context(), body))
}

func (h *Handler) track(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	h.carrierResponse(c)(h.carrier.Track(c.Request.Context(), body))
}

// carrierResponse forwards a carrier payload or normalizes the error:
// carrier rejections keep their original status code and body, network
// failures map to 502.
func (h *Handler) carrierResponse(c *gin.Context) func(json.RawMessage, error) {
	return func(raw json.RawMessage, err error) {
		if err == nil {
			c.Data(http.StatusOK, "application/json", raw)
			return
		}

		var apiErr *shipping.APIError
		if errors.As(err, &apiErr) {
			c.JSON(apiErr.StatusCode, gin.H{
				"error":             "Carrier API error",
				"chilexpress_error": json.RawMessage(apiErr.Body),
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Carrier unreachable",
			"details": err.Error(),
		})
	}
}

// --- finalization ---

type finalizeOrderRequest struct {
	Payload           service.FinalizeRequest `json:"payload" binding:"required"`
	TransbankResponse payment.Confirmation    `json:"transbank_response" binding:"required"`
}

func (h *Handler) finalizeOrder(c *gin.Context) {
	var req finalizeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.finalizer.Finalize(c.Request.Context(), &req.Payload, &req.TransbankResponse)
	if err != nil {
		status, body := finalizeErrorResponse(err)
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

// finalizeErrorResponse maps a finalization failure to a status code and a
// body naming the failed stage, so callers can tell "no shipment created"
// apart from "shipment created but commit failed".
func finalizeErrorResponse(err error) (int, gin.H) {
	var declined *payment.DeclinedError
	var apiErr *shipping.APIError
	var transportErr *shipping.TransportError
	var notFound *store.ProductNotFoundError
	var insufficient *store.InsufficientStockError

	switch {
	case errors.As(err, &declined):
		return http.StatusPaymentRequired, gin.H{
			"error":         "Payment was declined",
			"stage":         "payment",
			"response_code": declined.ResponseCode,
			"status":        declined.Status,
		}
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, gin.H{
			"error":             "Shipment creation failed",
			"stage":             "shipping",
			"chilexpress_error": json.RawMessage(apiErr.Body),
		}
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, gin.H{
			"error":   "Shipment creation failed",
			"stage":   "shipping",
			"details": err.Error(),
		}
	case errors.As(err, &notFound):
		return http.StatusBadRequest, gin.H{
			"error":      "Product not found",
			"stage":      "inventory",
			"product_id": notFound.ProductID,
		}
	case errors.As(err, &insufficient):
		return http.StatusConflict, gin.H{
			"error":      "Insufficient stock",
			"stage":      "inventory",
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		}
	case errors.Is(err, store.ErrTxContention):
		return http.StatusServiceUnavailable, gin.H{
			"error": "Order commit kept conflicting, try again",
			"stage": "order_commit",
		}
	default:
		return http.StatusInternalServerError, gin.H{
			"error":   "Failed to process order and shipping",
			"stage":   "order_commit",
			"details": err.Error(),
		}
	}
}

// --- catalog, users, orders ---

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list products",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("product_id"))
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get product",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.directory.Users(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list users",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) getUser(c *gin.Context) {
	user, err := h.directory.UserByID(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get user",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) listAddresses(c *gin.Context) {
	addresses, err := h.directory.AddressesByUserID(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list addresses",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, addresses)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.directory.OrdersByUser(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list orders",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) createTestOrder(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid order body",
			"details": err.Error(),
		})
		return
	}

	orderID, err := h.directory.InsertOrder(c.Request.Context(), &order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create test order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Test order created",
		"order_id": orderID,
	})
}

// --- middleware ---

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
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
