package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/service/ledger"
)

// Ledger is the stock movement surface used by the HTTP layer.
type Ledger interface {
	ApplyMovement(ctx context.Context, m ledger.Movement) (ledger.MovementResult, error)
	RevertTransaction(ctx context.Context, id string) (ledger.ReversalResult, error)
	RevertByKey(ctx context.Context, key models.TransactionKey) (ledger.ReversalResult, error)
	Transactions(ctx context.Context) ([]models.Transaction, error)
	Pending() *ledger.PendingWrite
	RetryPending(ctx context.Context) error
	DiscardPending() *ledger.PendingWrite
}

// LedgerHandler serves stock movements and reversals.
type LedgerHandler struct {
	ledger Ledger
	logger *zap.Logger
}

// NewLedgerHandler constructs the ledger handler.
func NewLedgerHandler(l Ledger, logger *zap.Logger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{ledger: l, logger: logger}
}

// movementRequest accepts the kind as enum name or Korean label.
type movementRequest struct {
	BookName string `json:"book_name" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	Quantity int64  `json:"quantity"`
	Client   string `json:"client"`
}

// Apply records a stock movement.
func (h *LedgerHandler) Apply(c *gin.Context) {
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid movement payload", err)
		return
	}

	kind, err := models.ParseTransactionKind(req.Kind)
	if err != nil {
		respondError(c, h.logger, &ledger.StockError{Book: req.BookName, Kind: models.TransactionKind(req.Kind), Err: ledger.ErrInvalidKind})
		return
	}

	result, err := h.ledger.ApplyMovement(c.Request.Context(), ledger.Movement{
		BookName: req.BookName,
		Kind:     kind,
		Quantity: req.Quantity,
		Client:   req.Client,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Transactions lists the log newest first.
func (h *LedgerHandler) Transactions(c *gin.Context) {
	txs, err := h.ledger.Transactions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, toTransactionView(tx))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": views, "count": len(views)})
}

type transactionView struct {
	models.Transaction
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
	When   string `json:"when"`
}

func toTransactionView(tx models.Transaction) transactionView {
	return transactionView{Transaction: tx, Label: tx.Kind.Label(), Amount: tx.Amount(), When: tx.TimestampText()}
}

// RevertByID removes one transaction and undoes its stock effect.
func (h *LedgerHandler) RevertByID(c *gin.Context) {
	result, err := h.ledger.RevertTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type revertKeyRequest struct {
	Timestamp string `json:"timestamp" binding:"required"`
	BookName  string `json:"book_name" binding:"required"`
	Kind      string `json:"kind" binding:"required"`
	Quantity  int64  `json:"quantity"`
}

// RevertByKey reverts the single transaction matching a structural key.
func (h *LedgerHandler) RevertByKey(c *gin.Context) {
	var req revertKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid reversal payload", err)
		return
	}

	kind, err := models.ParseTransactionKind(req.Kind)
	if err != nil {
		respondError(c, h.logger, &ledger.StockError{Book: req.BookName, Kind: models.TransactionKind(req.Kind), Err: ledger.ErrInvalidKind})
		return
	}

	result, err := h.ledger.RevertByKey(c.Request.Context(), models.TransactionKey{
		Timestamp: req.Timestamp,
		BookName:  req.BookName,
		Kind:      kind,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PendingWrite reports the write awaiting retry, if any.
func (h *LedgerHandler) PendingWrite(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": h.ledger.Pending()})
}

// RetryPending replays the pending write.
func (h *LedgerHandler) RetryPending(c *gin.Context) {
	if err := h.ledger.RetryPending(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": nil})
}

// DiscardPending drops the pending write once the log was fixed by hand.
func (h *LedgerHandler) DiscardPending(c *gin.Context) {
	discarded := h.ledger.DiscardPending()
	if discarded == nil {
		c.JSON(http.StatusOK, gin.H{"discarded": nil})
		return
	}
	h.logger.Warn("pending write discarded by admin",
		zap.String("operation", discarded.Operation),
		zap.String("id", discarded.Transaction.ID),
		zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"discarded": discarded})
}
