package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/service/alerts"
)

// AlertHandler triggers operator notifications.
type AlertHandler struct {
	notifier alerts.Notifier
	logger   *zap.Logger
}

// NewAlertHandler constructs the alert handler.
func NewAlertHandler(notifier alerts.Notifier, logger *zap.Logger) *AlertHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertHandler{notifier: notifier, logger: logger}
}

// Send pushes the current digest, or a free-form message when the body
// carries one.
func (h *AlertHandler) Send(c *gin.Context) {
	var req models.OutboundMessageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, "invalid outbound payload", err)
			return
		}
		if err := h.notifier.SendOutbound(c.Request.Context(), req); err != nil {
			h.sendFailed(c, err)
			return
		}
		c.Status(http.StatusAccepted)
		return
	}

	digest, err := h.notifier.SendDigest(c.Request.Context())
	if err != nil {
		h.sendFailed(c, err)
		return
	}
	c.JSON(http.StatusAccepted, digest)
}

func (h *AlertHandler) sendFailed(c *gin.Context, err error) {
	if errors.Is(err, alerts.ErrDisabled) || statusFor(err) != http.StatusInternalServerError {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Error("failed sending alert", zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Error: "unable to send message"})
}
