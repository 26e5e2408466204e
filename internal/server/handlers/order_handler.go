package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/service/orders"
)

// OrderHandler serves order requests.
type OrderHandler struct {
	queue  orders.Queue
	logger *zap.Logger
}

// NewOrderHandler constructs the order handler.
func NewOrderHandler(queue orders.Queue, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{queue: queue, logger: logger}
}

type submitOrderRequest struct {
	Client   string `json:"client"`
	BookName string `json:"book_name" binding:"required"`
	Quantity int64  `json:"quantity"`
}

// Submit records a pending order request.
func (h *OrderHandler) Submit(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid order payload", err)
		return
	}

	order, err := h.queue.Submit(c.Request.Context(), req.Client, req.BookName, req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// List returns every order.
func (h *OrderHandler) List(c *gin.Context) {
	list, err := h.queue.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// Pending returns the unfulfilled orders.
func (h *OrderHandler) Pending(c *gin.Context) {
	list, err := h.queue.Pending(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// Fulfill marks an order fulfilled.
func (h *OrderHandler) Fulfill(c *gin.Context) {
	order, err := h.queue.Fulfill(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
