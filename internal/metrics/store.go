package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/inhapress/stockledger/internal/repository/dataset"
)

// InstrumentedStore times every call to the wrapped store.
type InstrumentedStore struct {
	next    dataset.Store
	metrics *Metrics
}

// InstrumentStore wraps next with call metrics.
func InstrumentStore(next dataset.Store, m *Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, metrics: m}
}

func (s *InstrumentedStore) Load(ctx context.Context, name string) (dataset.Table, error) {
	start := time.Now()
	table, err := s.next.Load(ctx, name)
	s.metrics.ObserveStoreCall(name, "load", outcome(err), time.Since(start).Seconds())
	return table, err
}

func (s *InstrumentedStore) Save(ctx context.Context, table dataset.Table, message string) error {
	start := time.Now()
	err := s.next.Save(ctx, table, message)
	s.metrics.ObserveStoreCall(table.Name, "save", outcome(err), time.Since(start).Seconds())
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, dataset.ErrVersionConflict):
		return "conflict"
	}
	return "error"
}
