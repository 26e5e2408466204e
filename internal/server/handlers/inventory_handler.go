package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/service/ledger"
)

// Catalog lists books, optionally filtered by a search term.
type Catalog interface {
	Books(ctx context.Context, term string) ([]models.Book, error)
}

// InventoryHandler serves the public catalog.
type InventoryHandler struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewInventoryHandler constructs the catalog handler.
func NewInventoryHandler(catalog Catalog, logger *zap.Logger) *InventoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHandler{catalog: catalog, logger: logger}
}

// bookView adds the derived flags shown next to each catalog row.
type bookView struct {
	models.Book
	LowStock   bool  `json:"low_stock"`
	StockValue int64 `json:"stock_value"`
}

func toBookView(b models.Book) bookView {
	return bookView{Book: b, LowStock: b.IsLowStock(), StockValue: b.StockValue()}
}

// List returns the catalog; ?q= filters by name or ISBN.
func (h *InventoryHandler) List(c *gin.Context) {
	books, err := h.catalog.Books(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	views := make([]bookView, 0, len(books))
	for _, b := range books {
		views = append(views, toBookView(b))
	}
	c.JSON(http.StatusOK, gin.H{"books": views, "count": len(views)})
}

// Get returns one book by exact name.
func (h *InventoryHandler) Get(c *gin.Context) {
	name := c.Param("name")
	books, err := h.catalog.Books(c.Request.Context(), "")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	for _, b := range books {
		if b.Name == name {
			c.JSON(http.StatusOK, toBookView(b))
			return
		}
	}
	respondError(c, h.logger, &ledger.StockError{Book: name, Err: ledger.ErrUnknownBook})
}
