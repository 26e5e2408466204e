package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/repository/dataset"
)

var (
	// ErrCatalogUnavailable is returned when the catalog cannot be loaded or is empty.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrHistoryUnavailable is returned when a report that is stored for
	// later cannot read the transaction log.
	ErrHistoryUnavailable = errors.New("transaction log unavailable")
)

// Service exposes read-only analytics over the stored datasets.
type Service struct {
	store  dataset.Store
	codec  dataset.Codec
	names  dataset.Names
	policy CancelIncreasePolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a new reporting service instance.
func NewService(store dataset.Store, codec dataset.Codec, names dataset.Names, policy CancelIncreasePolicy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = CancelIncreaseAsCost
	}
	return &Service{store: store, codec: codec, names: names, policy: policy, logger: logger, now: time.Now}
}

// Books returns the catalog, optionally filtered by a search term.
func (s *Service) Books(ctx context.Context, term string) ([]models.Book, error) {
	books, err := s.books(ctx)
	if err != nil {
		return nil, err
	}
	return FilterBooks(books, term), nil
}

// LowStock returns the books that need reordering.
func (s *Service) LowStock(ctx context.Context) ([]models.Book, error) {
	books, err := s.books(ctx)
	if err != nil {
		return nil, err
	}
	return LowStockBooks(books), nil
}

// Valuation values the catalog.
func (s *Service) Valuation(ctx context.Context) (Valuation, error) {
	books, err := s.books(ctx)
	if err != nil {
		return Valuation{}, err
	}
	return AssetValuation(books), nil
}

// Monthly computes the financial summary for month; an empty month selects
// the current one.
func (s *Service) Monthly(ctx context.Context, month string) (Financials, error) {
	return s.monthly(month, s.transactions(ctx))
}

func (s *Service) monthly(month string, txs []models.Transaction) (Financials, error) {
	if month == "" {
		month = s.now().In(s.codec.Location).Format(models.MonthLayout)
	}
	f, err := MonthlyFinancials(txs, month, s.policy)
	if err != nil {
		return Financials{}, err
	}
	if f.Excluded > 0 {
		s.logger.Warn("transactions with invalid timestamps excluded from report",
			zap.String("month", month), zap.Int("excluded", f.Excluded))
	}
	return f, nil
}

// Months lists the months with recorded movements.
func (s *Service) Months(ctx context.Context) ([]string, error) {
	return AvailableMonths(s.transactions(ctx)), nil
}

// ReturnRates computes per-client return rates over the whole log.
func (s *Service) ReturnRates(ctx context.Context) ([]ReturnRate, error) {
	return ReturnRateByClient(s.transactions(ctx)), nil
}

// MonthlyReport builds the archived form of a month's figures. Unlike the
// interactive views it fails when the log cannot be read, so an archive is
// never overwritten with an empty month.
func (s *Service) MonthlyReport(ctx context.Context, month string) (models.MonthlyReport, error) {
	txs, err := s.loadTransactions(ctx)
	if err != nil {
		return models.MonthlyReport{}, err
	}
	f, err := s.monthly(month, txs)
	if err != nil {
		return models.MonthlyReport{}, err
	}

	report := models.MonthlyReport{
		Month:     f.Month,
		Revenue:   f.Revenue,
		Cost:      f.Cost,
		NetProfit: f.NetProfit,
		ByKind:    make(map[string]int64, len(f.ByKind)),
		Excluded:  f.Excluded,
		Policy:    string(f.Policy),
		CreatedAt: s.now().UTC(),
	}
	for k, v := range f.ByKind {
		report.ByKind[string(k)] = v
	}

	if low, err := s.LowStock(ctx); err == nil {
		for _, b := range low {
			report.LowStock = append(report.LowStock, b.Name)
		}
	} else {
		s.logger.Debug("low stock lookup failed for report", zap.Error(err))
	}
	return report, nil
}

func (s *Service) books(ctx context.Context) ([]models.Book, error) {
	table, err := s.store.Load(ctx, s.names.Inventory)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	books, err := s.codec.DecodeBooks(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("%w: %s has no books", ErrCatalogUnavailable, s.names.Inventory)
	}
	return books, nil
}

// transactions loads the log softly: a store or decode failure is logged
// and reported as an empty history.
func (s *Service) transactions(ctx context.Context) []models.Transaction {
	txs, err := s.loadTransactions(ctx)
	if err != nil {
		s.logger.Warn("reporting on empty history", zap.Error(err))
		return nil
	}
	return txs
}

func (s *Service) loadTransactions(ctx context.Context) ([]models.Transaction, error) {
	table, err := s.store.Load(ctx, s.names.Transactions)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrHistoryUnavailable, s.names.Transactions, err)
	}
	txs, err := s.codec.DecodeTransactions(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return txs, nil
}
