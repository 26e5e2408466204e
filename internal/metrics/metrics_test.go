package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inhapress/stockledger/internal/repository/dataset"
)

func TestRecorderCounters(t *testing.T) {
	m := New()

	m.MovementApplied("OUT")
	m.MovementApplied("OUT")
	m.ReversalApplied("IN")
	m.OperationRejected("apply movement", "insufficient_stock")
	m.PersistFailed("transactions.csv")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.movements.WithLabelValues("OUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reversals.WithLabelValues("IN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("apply movement", "insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistFailure.WithLabelValues("transactions.csv")))
}

func TestInstrumentedStore(t *testing.T) {
	m := New()
	store := InstrumentStore(dataset.NewMemoryStore(), m)
	ctx := context.Background()

	table, err := store.Load(ctx, "orders.csv")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, table, "create"))
	assert.ErrorIs(t, store.Save(ctx, table, "stale"), dataset.ErrVersionConflict)

	assert.Equal(t, 3, testutil.CollectAndCount(m.storeCalls))
}
