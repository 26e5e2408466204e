package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/repository/mongodb"
	"github.com/inhapress/stockledger/internal/service/alerts"
	"github.com/inhapress/stockledger/internal/service/ledger"
	"github.com/inhapress/stockledger/internal/service/orders"
	"github.com/inhapress/stockledger/internal/service/reporting"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error      string   `json:"error"`
	Reason     string   `json:"reason,omitempty"`
	Committed  string   `json:"committed,omitempty"`
	Failed     string   `json:"failed,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrPartialPersist):
		return http.StatusInternalServerError
	case errors.Is(err, ledger.ErrPendingWrite),
		errors.Is(err, ledger.ErrAmbiguousReversal):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnknownBook),
		errors.Is(err, ledger.ErrReversalTargetNotFound),
		errors.Is(err, orders.ErrUnknownBook),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, mongodb.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrWouldGoNegative):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrMissingClient),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInvalidKind),
		errors.Is(err, orders.ErrMissingClient),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, reporting.ErrInvalidMonth):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrStoreUnavailable),
		errors.Is(err, ledger.ErrEmptyCatalog),
		errors.Is(err, orders.ErrStoreUnavailable),
		errors.Is(err, reporting.ErrCatalogUnavailable),
		errors.Is(err, reporting.ErrHistoryUnavailable),
		errors.Is(err, alerts.ErrDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with its mapped status. Server-side failures are
// logged at error level, rejected input at info.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}
	if reason := ledger.Reason(err); reason != "internal" {
		body.Reason = reason
	}

	var partial *ledger.PartialPersistError
	if errors.As(err, &partial) {
		body.Committed = partial.Committed
		body.Failed = partial.Failed
	}
	var ambiguous *ledger.AmbiguousReversalError
	if errors.As(err, &ambiguous) {
		body.Candidates = ambiguous.Candidates
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, logger *zap.Logger, message string, err error) {
	logger.Warn(message, zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message})
}
