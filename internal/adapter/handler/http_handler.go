package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/core/service"
	"github.com/dcastano/lotledger/internal/port"
	"github.com/dcastano/lotledger/internal/relay"
)

// HTTPHandler is the collaborator-facing surface: sale creation,
// ticket lookup, inventory operations and the outbox admin endpoints.
// Authentication is outside the core; the acting user arrives in
// headers.
type HTTPHandler struct {
	sales     *service.SaleService
	inventory *service.InventoryService
	tickets   port.TicketRepository
	outbox    port.OutboxRepository
	worker    *relay.Worker
	logger    *zap.Logger
}

func NewHTTPHandler(sales *service.SaleService, inventory *service.InventoryService,
	tickets port.TicketRepository, outbox port.OutboxRepository,
	worker *relay.Worker, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		sales:     sales,
		inventory: inventory,
		tickets:   tickets,
		outbox:    outbox,
		worker:    worker,
		logger:    logger,
	}
}

func (h *HTTPHandler) RegisterRoutes(e *gin.Engine) {
	e.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := e.Group("/api/v1")
	api.POST("/sales", h.createSale)
	api.GET("/sales", h.listSales)
	api.GET("/sales/:id", h.getSale)

	api.POST("/inventory/entries", h.createEntry)
	api.POST("/inventory/adjustments", h.createAdjustment)
	api.POST("/inventory/expire-sweep", h.sweepExpired)
	api.GET("/inventory/movements", h.listMovements)
	api.GET("/inventory/stock/:product_id", h.productStock)

	admin := api.Group("/admin/outbox")
	admin.GET("/stats", h.outboxStats)
	admin.POST("/retry/:id", h.retryEvent)
	admin.POST("/process-now", h.processNow)
}

func identityFrom(c *gin.Context) domain.Identity {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		id = "anonymous"
	}
	name := c.GetHeader("X-User-Name")
	if name == "" {
		name = id
	}
	return domain.Identity{UserID: id, Username: name}
}

func (h *HTTPHandler) createSale(c *gin.Context) {
	var req domain.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	receipt, err := h.sales.CreateSale(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (h *HTTPHandler) getSale(c *gin.Context) {
	ticket, err := h.tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "sale not found",
				"note":  "a just-created sale may not be synced yet",
			})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sale": ticket})
}

func (h *HTTPHandler) listSales(c *gin.Context) {
	limit := intQuery(c, "per_page", 20, 100)
	page := intQuery(c, "page", 1, 1<<30)

	tickets, total, err := h.tickets.List(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sales":    tickets,
		"total":    total,
		"page":     page,
		"per_page": limit,
	})
}

func (h *HTTPHandler) createEntry(c *gin.Context) {
	var req service.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	batch, err := h.inventory.CreateEntry(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"batch_id":   batch.ID,
		"batch_code": batch.BatchCode,
		"quantity":   batch.Quantity,
	})
}

func (h *HTTPHandler) createAdjustment(c *gin.Context) {
	var req service.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.inventory.CreateAdjustment(c.Request.Context(), identityFrom(c), req); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "adjustment applied"})
}

func (h *HTTPHandler) sweepExpired(c *gin.Context) {
	swept, err := h.inventory.SweepExpired(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

func (h *HTTPHandler) listMovements(c *gin.Context) {
	batchID, _ := strconv.ParseInt(c.Query("batch_id"), 10, 64)
	limit := intQuery(c, "limit", 50, 100)

	movements, err := h.inventory.ListMovements(c.Request.Context(), batchID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

func (h *HTTPHandler) productStock(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	stock, err := h.inventory.ProductStock(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "stock": stock})
}

func (h *HTTPHandler) outboxStats(c *gin.Context) {
	stats, err := h.worker.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// retryEvent resets a FAILED or COMPLETED event to PENDING; the worker
// picks it up on its next cycle through the normal apply path.
func (h *HTTPHandler) retryEvent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.outbox.Reset(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "event reset for retry",
		"event_id": id,
	})
}

func (h *HTTPHandler) processNow(c *gin.Context) {
	processed, failed, err := h.worker.RunCycle(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": processed, "failed": failed})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientStock):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateBatch), errors.Is(err, domain.ErrEventNotResettable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, key string, fallback, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}
