package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/metrics"
	"github.com/inhapress/stockledger/internal/server/handlers"
)

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Inventory *handlers.InventoryHandler
	Orders    *handlers.OrderHandler
	Ledger    *handlers.LedgerHandler
	Reports   *handlers.ReportHandler
	Alerts    *handlers.AlertHandler
	Admin     handlers.Authorizer
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	if m != nil {
		r.Use(metricsMiddleware(m))
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/books", h.Inventory.List)
	api.GET("/books/:name", h.Inventory.Get)
	api.POST("/orders", h.Orders.Submit)

	admin := api.Group("", handlers.AdminOnly(h.Admin, logger))
	admin.GET("/orders", h.Orders.List)
	admin.GET("/orders/pending", h.Orders.Pending)
	admin.POST("/orders/:id/fulfill", h.Orders.Fulfill)

	admin.POST("/movements", h.Ledger.Apply)
	admin.GET("/transactions", h.Ledger.Transactions)
	admin.POST("/transactions/:id/revert", h.Ledger.RevertByID)
	admin.POST("/transactions/revert", h.Ledger.RevertByKey)
	admin.GET("/ledger/pending", h.Ledger.PendingWrite)
	admin.POST("/ledger/pending/retry", h.Ledger.RetryPending)
	admin.DELETE("/ledger/pending", h.Ledger.DiscardPending)

	admin.GET("/reports/low-stock", h.Reports.LowStock)
	admin.GET("/reports/monthly", h.Reports.Monthly)
	admin.GET("/reports/months", h.Reports.Months)
	admin.GET("/reports/return-rates", h.Reports.ReturnRates)
	admin.GET("/reports/valuation", h.Reports.Valuation)
	admin.GET("/reports/archive/:month", h.Reports.Archived)
	admin.POST("/reports/archive", h.Reports.ArchiveNow)

	admin.POST("/alerts/send", h.Alerts.Send)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
