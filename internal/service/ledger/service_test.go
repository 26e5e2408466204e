package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/repository/dataset"
)

var errBackend = errors.New("backend down")

// flakyStore fails the next failSaves saves of one dataset. lostReplies
// saves of that dataset land but still report failure, and interfere runs
// once before the next save of it.
type flakyStore struct {
	dataset.Store
	mu          sync.Mutex
	failOn      string
	failSaves   int
	lostReplies int
	failLoad    bool
	interfere   func()
	messages    []string
}

func (s *flakyStore) Load(ctx context.Context, name string) (dataset.Table, error) {
	if s.failLoad {
		return dataset.Table{}, errBackend
	}
	return s.Store.Load(ctx, name)
}

func (s *flakyStore) Save(ctx context.Context, t dataset.Table, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Name == s.failOn && s.interfere != nil {
		interfere := s.interfere
		s.interfere = nil
		interfere()
	}
	if t.Name == s.failOn && s.failSaves > 0 {
		s.failSaves--
		return errBackend
	}
	s.messages = append(s.messages, message)
	if err := s.Store.Save(ctx, t, message); err != nil {
		return err
	}
	if t.Name == s.failOn && s.lostReplies > 0 {
		s.lostReplies--
		return errBackend
	}
	return nil
}

type recorded struct {
	mu         sync.Mutex
	movements  []string
	reversals  []string
	rejections []string
	failures   []string
}

func (r *recorded) MovementApplied(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, kind)
}

func (r *recorded) ReversalApplied(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reversals = append(r.reversals, kind)
}

func (r *recorded) OperationRejected(op, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, reason)
}

func (r *recorded) PersistFailed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, name)
}

func newTestService(t *testing.T, books ...[]string) (*Service, *flakyStore, *recorded) {
	t.Helper()

	inventory := dataset.Table{
		Name:   "inventory.csv",
		Header: []string{"책 이름", "ISBN", "가격", "현재 수량", "안전 재고"},
		Rows:   books,
	}
	store := &flakyStore{Store: dataset.NewMemoryStore(inventory)}
	rec := &recorded{}

	svc := NewService(store, dataset.NewCodec(time.UTC), dataset.DefaultNames(), rec, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }

	var seq int
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("tx-%d", seq)
	}
	return svc, store, rec
}

func TestService_ApplyAndRevertPersistBoth(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t, []string{"Intro to Systems", "978", "10000", "50", "5"})

	res, err := svc.ApplyMovement(ctx, Movement{BookName: "Intro to Systems", Kind: models.KindOut, Quantity: 20, Client: "Bookstore A"})
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.NewQuantity)
	assert.Equal(t, []string{"Update Inventory: Intro to Systems", "Add Tx: 출고 - Intro to Systems"}, store.messages)

	book, err := svc.Book(ctx, "Intro to Systems")
	require.NoError(t, err)
	assert.Equal(t, int64(30), book.Quantity)

	txs, err := svc.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-1", txs[0].ID)

	_, err = svc.RevertTransaction(ctx, "tx-1")
	require.NoError(t, err)

	state, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), state.Books[0].Quantity)
	assert.Empty(t, state.Transactions)

	assert.Equal(t, []string{"OUT"}, rec.movements)
	assert.Equal(t, []string{"OUT"}, rec.reversals)
}

func TestService_RejectedMovementWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t, []string{"A", "1", "1000", "5", "1"})

	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindOut, Quantity: 10, Client: "X"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Empty(t, store.messages)
	assert.Equal(t, []string{"insufficient_stock"}, rec.rejections)

	book, err := svc.Book(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(5), book.Quantity)
}

func TestService_CatalogSaveFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	store.failOn, store.failSaves = "inventory.csv", 1

	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 3, Client: "X"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrPartialPersist)
	assert.Nil(t, svc.Pending())
	assert.Equal(t, []string{"inventory.csv"}, rec.failures)

	state, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.Books[0].Quantity)
	assert.Empty(t, state.Transactions)
}

func TestService_PartialPersistBlocksUntilRetried(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	store.failOn, store.failSaves = "transactions.csv", 2

	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 3, Client: "X"})
	require.ErrorIs(t, err, ErrPartialPersist)

	var partial *PartialPersistError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "inventory.csv", partial.Committed)
	assert.Equal(t, "transactions.csv", partial.Failed)

	pending := svc.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, "transactions.csv", pending.Dataset)

	_, err = svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 1, Client: "X"})
	require.ErrorIs(t, err, ErrPendingWrite)
	_, err = svc.RevertTransaction(ctx, "tx-1")
	require.ErrorIs(t, err, ErrPendingWrite)

	require.ErrorIs(t, svc.RetryPending(ctx), ErrStoreUnavailable)
	require.NotNil(t, svc.Pending())

	require.NoError(t, svc.RetryPending(ctx))
	assert.Nil(t, svc.Pending())

	state, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), state.Books[0].Quantity)
	require.Len(t, state.Transactions, 1)
	assert.Equal(t, int64(3), state.Transactions[0].Quantity)

	_, err = svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindOut, Quantity: 8, Client: "X"})
	require.NoError(t, err)
}

func TestService_RetryWithoutPendingIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	assert.NoError(t, svc.RetryPending(context.Background()))
}

func TestService_LoadFailures(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newTestService(t)
	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 1, Client: "X"})
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	svc, store, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	store.failLoad = true
	_, err = svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 1, Client: "X"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBackend)
}

func TestService_RevertByKeyAmbiguous(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, []string{"A", "1", "1000", "20", "1"})

	for i := 0; i < 2; i++ {
		_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindOut, Quantity: 2, Client: "X"})
		require.NoError(t, err)
	}

	txs, err := svc.Transactions(ctx)
	require.NoError(t, err)
	_, err = svc.RevertByKey(ctx, txs[0].Key())
	require.ErrorIs(t, err, ErrAmbiguousReversal)

	_, err = svc.RevertTransaction(ctx, "tx-2")
	require.NoError(t, err)

	_, err = svc.RevertByKey(ctx, txs[0].Key())
	require.NoError(t, err)

	book, err := svc.Book(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(20), book.Quantity)
}

// appendForeignRow writes one log row behind the service's back, as a second
// process would.
func appendForeignRow(t *testing.T, store dataset.Store) {
	t.Helper()
	ctx := context.Background()
	codec := dataset.NewCodec(time.UTC)

	table, err := store.Load(ctx, "transactions.csv")
	require.NoError(t, err)
	txs, err := codec.DecodeTransactions(table)
	require.NoError(t, err)
	txs = append(txs, models.Transaction{
		ID: "other-1", Timestamp: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		Client: "Y", BookName: "A", Quantity: 1, UnitPrice: 1000, Kind: models.KindIn,
	})
	require.NoError(t, store.Save(ctx, codec.EncodeTransactions(table, txs), "other writer"))
}

func TestService_RetryReplaysOntoConcurrentlyChangedLog(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	store.failOn = "transactions.csv"
	store.interfere = func() { appendForeignRow(t, store.Store) }

	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 3, Client: "X"})
	require.ErrorIs(t, err, ErrPartialPersist)
	require.ErrorIs(t, err, dataset.ErrVersionConflict)

	pending := svc.Pending()
	require.NotNil(t, pending)
	assert.Equal(t, "tx-1", pending.Transaction.ID)
	assert.False(t, pending.Removal)

	require.NoError(t, svc.RetryPending(ctx))
	assert.Nil(t, svc.Pending())

	state, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.Transactions, 2)
	assert.Equal(t, "other-1", state.Transactions[0].ID)
	assert.Equal(t, "tx-1", state.Transactions[1].ID)

	_, err = svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindOut, Quantity: 1, Client: "X"})
	require.NoError(t, err)
}

func TestService_RetryOfRevertAfterConflict(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})

	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 3, Client: "X"})
	require.NoError(t, err)

	store.failOn = "transactions.csv"
	store.interfere = func() { appendForeignRow(t, store.Store) }
	_, err = svc.RevertTransaction(ctx, "tx-1")
	require.ErrorIs(t, err, ErrPartialPersist)
	require.True(t, svc.Pending().Removal)

	require.NoError(t, svc.RetryPending(ctx))

	state, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, state.Transactions, 1)
	assert.Equal(t, "other-1", state.Transactions[0].ID)
	assert.Equal(t, int64(5), state.Books[0].Quantity)
}

func TestService_RetryAfterLostReplyDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	store.failOn, store.lostReplies = "transactions.csv", 1

	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 3, Client: "X"})
	require.ErrorIs(t, err, ErrPartialPersist)

	require.NoError(t, svc.RetryPending(ctx))
	assert.Nil(t, svc.Pending())

	state, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Transactions, 1)
}

func TestService_DiscardPendingUnblocksWrites(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	store.failOn, store.failSaves = "transactions.csv", 10

	assert.Nil(t, svc.DiscardPending())

	_, err := svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindIn, Quantity: 3, Client: "X"})
	require.ErrorIs(t, err, ErrPartialPersist)
	require.ErrorIs(t, svc.RetryPending(ctx), ErrStoreUnavailable)

	discarded := svc.DiscardPending()
	require.NotNil(t, discarded)
	assert.Equal(t, "tx-1", discarded.Transaction.ID)
	assert.Nil(t, svc.Pending())

	store.failSaves = 0
	_, err = svc.ApplyMovement(ctx, Movement{BookName: "A", Kind: models.KindOut, Quantity: 2, Client: "X"})
	require.NoError(t, err)
}

func TestService_VerifyCatalog(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"}, []string{"B", "2", "500", "1", "1"})
	count, err := svc.VerifyCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	svc, _, _ = newTestService(t)
	_, err = svc.VerifyCatalog(ctx)
	require.ErrorIs(t, err, ErrEmptyCatalog)
	assert.True(t, IsCorruptCatalog(err))

	svc, _, _ = newTestService(t, []string{"A", "1", "lots", "5", "1"})
	_, err = svc.VerifyCatalog(ctx)
	require.ErrorIs(t, err, dataset.ErrInvalidRow)
	assert.True(t, IsCorruptCatalog(err))

	svc, store, _ := newTestService(t, []string{"A", "1", "1000", "5", "1"})
	store.failLoad = true
	_, err = svc.VerifyCatalog(ctx)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, IsCorruptCatalog(err))
}
