package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/repository/dataset"
)

var (
	// ErrMissingClient is returned when an order has no client name.
	ErrMissingClient = errors.New("client is required")
	// ErrInvalidQuantity is returned for zero or negative requested quantities.
	ErrInvalidQuantity = errors.New("requested quantity must be positive")
	// ErrUnknownBook is returned when the order names a book not in the catalog.
	ErrUnknownBook = errors.New("unknown book")
	// ErrOrderNotFound is returned when fulfilling an unknown order.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStoreUnavailable is returned when the datasets cannot be read or written.
	ErrStoreUnavailable = errors.New("dataset store unavailable")
)

// Queue is the order request surface used by the HTTP layer.
type Queue interface {
	Submit(ctx context.Context, client, bookName string, quantity int64) (models.Order, error)
	Fulfill(ctx context.Context, id string) (models.Order, error)
	List(ctx context.Context) ([]models.Order, error)
	Pending(ctx context.Context) ([]models.Order, error)
}

// Service stores order requests. Orders are requests, not reservations:
// stock is never checked or decremented here.
type Service struct {
	store  dataset.Store
	codec  dataset.Codec
	names  dataset.Names
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu sync.Mutex
}

// NewService wires the order queue over store.
func NewService(store dataset.Store, codec dataset.Codec, names dataset.Names, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		codec:  codec,
		names:  names,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Submit appends a pending order for a book present in the catalog.
func (s *Service) Submit(ctx context.Context, client, bookName string, quantity int64) (models.Order, error) {
	client = strings.TrimSpace(client)
	if client == "" {
		return models.Order{}, ErrMissingClient
	}
	if quantity <= 0 {
		return models.Order{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireBook(ctx, bookName); err != nil {
		return models.Order{}, err
	}

	table, orders, err := s.load(ctx)
	if err != nil {
		return models.Order{}, err
	}

	order := models.Order{
		ID:                s.newID(),
		Timestamp:         s.now().In(s.codec.Location).Truncate(time.Second),
		Client:            client,
		BookName:          bookName,
		RequestedQuantity: quantity,
		Status:            models.OrderPending,
	}
	orders = append(orders, order)

	if err := s.save(ctx, table, orders, fmt.Sprintf("Order request: %s", client)); err != nil {
		return models.Order{}, err
	}

	s.logger.Info("order submitted",
		zap.String("id", order.ID),
		zap.String("client", client),
		zap.String("book", bookName),
		zap.Int64("quantity", quantity))
	return order, nil
}

// Fulfill marks the order fulfilled. Fulfilling an already fulfilled order
// succeeds without writing.
func (s *Service) Fulfill(ctx context.Context, id string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, orders, err := s.load(ctx)
	if err != nil {
		return models.Order{}, err
	}

	for i := range orders {
		if orders[i].ID != id {
			continue
		}
		if orders[i].Status == models.OrderFulfilled {
			return orders[i], nil
		}
		orders[i].Status = models.OrderFulfilled
		if err := s.save(ctx, table, orders, fmt.Sprintf("Fulfill order: %s - %s", orders[i].Client, orders[i].BookName)); err != nil {
			return models.Order{}, err
		}
		s.logger.Info("order fulfilled", zap.String("id", id), zap.String("client", orders[i].Client))
		return orders[i], nil
	}

	return models.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
}

// List returns every order in storage order.
func (s *Service) List(ctx context.Context) ([]models.Order, error) {
	_, orders, err := s.load(ctx)
	return orders, err
}

// Pending returns orders still awaiting fulfilment.
func (s *Service) Pending(ctx context.Context) ([]models.Order, error) {
	_, orders, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == models.OrderPending {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

func (s *Service) requireBook(ctx context.Context, name string) error {
	inv, err := s.store.Load(ctx, s.names.Inventory)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, s.names.Inventory, err)
	}
	books, err := s.codec.DecodeBooks(inv)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, s.names.Inventory, err)
	}
	for _, b := range books {
		if b.Name == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownBook, name)
}

func (s *Service) load(ctx context.Context) (dataset.Table, []models.Order, error) {
	table, err := s.store.Load(ctx, s.names.Orders)
	if err != nil {
		return dataset.Table{}, nil, fmt.Errorf("%w: load %s: %v", ErrStoreUnavailable, s.names.Orders, err)
	}
	orders, err := s.codec.DecodeOrders(table)
	if err != nil {
		return dataset.Table{}, nil, fmt.Errorf("%w: decode %s: %v", ErrStoreUnavailable, s.names.Orders, err)
	}
	return table, orders, nil
}

func (s *Service) save(ctx context.Context, base dataset.Table, orders []models.Order, message string) error {
	if err := s.store.Save(ctx, s.codec.EncodeOrders(base, orders), message); err != nil {
		s.logger.Error("orders save failed", zap.Error(err))
		return fmt.Errorf("%w: save %s: %w", ErrStoreUnavailable, s.names.Orders, err)
	}
	return nil
}
