package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/repository/mongodb"
	"github.com/inhapress/stockledger/internal/service/reporting"
)

// Reports is the read-only analytics surface.
type Reports interface {
	LowStock(ctx context.Context) ([]models.Book, error)
	Valuation(ctx context.Context) (reporting.Valuation, error)
	Monthly(ctx context.Context, month string) (reporting.Financials, error)
	Months(ctx context.Context) ([]string, error)
	ReturnRates(ctx context.Context) ([]reporting.ReturnRate, error)
}

// ArchiveReader reads archived monthly reports.
type ArchiveReader interface {
	MonthlyReport(ctx context.Context, month string) (models.MonthlyReport, error)
}

// Archiver archives a month on demand.
type Archiver interface {
	Archive(ctx context.Context, month string) error
}

// ReportHandler serves the reporting views. The archive endpoints answer
// 404 when no archive is configured.
type ReportHandler struct {
	reports  Reports
	archive  ArchiveReader
	archiver Archiver
	logger   *zap.Logger
}

// NewReportHandler constructs the report handler. archive and archiver may be nil.
func NewReportHandler(reports Reports, archive ArchiveReader, archiver Archiver, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reports: reports, archive: archive, archiver: archiver, logger: logger}
}

// LowStock lists books at or below their safety stock.
func (h *ReportHandler) LowStock(c *gin.Context) {
	books, err := h.reports.LowStock(c.Request.Context())
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

// Valuation returns the stock value per book and in total.
func (h *ReportHandler) Valuation(c *gin.Context) {
	v, err := h.reports.Valuation(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Monthly returns the financial summary of ?month=YYYY-MM, current month by default.
func (h *ReportHandler) Monthly(c *gin.Context) {
	f, err := h.reports.Monthly(c.Request.Context(), c.Query("month"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// Months lists months with recorded movements.
func (h *ReportHandler) Months(c *gin.Context) {
	months, err := h.reports.Months(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": months})
}

// ReturnRates lists per-client return rates.
func (h *ReportHandler) ReturnRates(c *gin.Context) {
	rates, err := h.reports.ReturnRates(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": rates})
}

// Archived returns the stored report of a month.
func (h *ReportHandler) Archived(c *gin.Context) {
	month := c.Param("month")
	if h.archive == nil {
		respondError(c, h.logger, mongodb.ErrReportNotFound)
		return
	}
	report, err := h.archive.MonthlyReport(c.Request.Context(), month)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ArchiveNow builds and stores the report of ?month=.
func (h *ReportHandler) ArchiveNow(c *gin.Context) {
	if h.archiver == nil {
		respondError(c, h.logger, mongodb.ErrReportNotFound)
		return
	}
	month := c.Query("month")
	if err := h.archiver.Archive(c.Request.Context(), month); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"month": month, "archived": true})
}
