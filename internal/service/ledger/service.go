package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/repository/dataset"
)

// Recorder receives ledger outcomes for metrics.
type Recorder interface {
	MovementApplied(kind string)
	ReversalApplied(kind string)
	OperationRejected(operation, reason string)
	PersistFailed(dataset string)
}

type nopRecorder struct{}

func (nopRecorder) MovementApplied(string)           {}
func (nopRecorder) ReversalApplied(string)           {}
func (nopRecorder) OperationRejected(string, string) {}
func (nopRecorder) PersistFailed(string)             {}

// PendingWrite is a log write that failed after the catalog write of the
// same operation was committed. It records the change rather than the table
// so a retry can replay it onto whatever the log holds by then.
type PendingWrite struct {
	Operation   string             `json:"operation"`
	Dataset     string             `json:"dataset"`
	Message     string             `json:"message"`
	Error       string             `json:"error"`
	Since       time.Time          `json:"since"`
	Transaction models.Transaction `json:"transaction"`
	Removal     bool               `json:"removal"`
}

// replayOnto applies the pending change to txs. It reports false when the
// log already reflects the change.
func (p *PendingWrite) replayOnto(txs []models.Transaction) ([]models.Transaction, bool) {
	at := -1
	for i, tx := range txs {
		if tx.ID == p.Transaction.ID {
			at = i
			break
		}
	}

	if p.Removal {
		if at < 0 {
			return txs, false
		}
		out := make([]models.Transaction, 0, len(txs)-1)
		out = append(out, txs[:at]...)
		return append(out, txs[at+1:]...), true
	}
	if at >= 0 {
		return txs, false
	}
	out := make([]models.Transaction, 0, len(txs)+1)
	out = append(out, txs...)
	return append(out, p.Transaction), true
}

// Service sequences load, engine call and persistence for each ledger
// operation. The catalog is always written before the log.
type Service struct {
	store    dataset.Store
	codec    dataset.Codec
	names    dataset.Names
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	pending *PendingWrite
}

// NewService wires a ledger service over store.
func NewService(store dataset.Store, codec dataset.Codec, names dataset.Names, recorder Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:    store,
		codec:    codec,
		names:    names,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

type loaded struct {
	state     State
	inventory dataset.Table
	log       dataset.Table
}

func (s *Service) load(ctx context.Context) (loaded, error) {
	inv, err := s.store.Load(ctx, s.names.Inventory)
	if err != nil {
		return loaded{}, &StoreError{Dataset: s.names.Inventory, Op: "load", Err: err}
	}
	books, err := s.codec.DecodeBooks(inv)
	if err != nil {
		return loaded{}, &StoreError{Dataset: s.names.Inventory, Op: "decode", Err: err}
	}
	if len(books) == 0 {
		return loaded{}, ErrEmptyCatalog
	}

	log, err := s.store.Load(ctx, s.names.Transactions)
	if err != nil {
		return loaded{}, &StoreError{Dataset: s.names.Transactions, Op: "load", Err: err}
	}
	txs, err := s.codec.DecodeTransactions(log)
	if err != nil {
		return loaded{}, &StoreError{Dataset: s.names.Transactions, Op: "decode", Err: err}
	}

	return loaded{state: State{Books: books, Transactions: txs}, inventory: inv, log: log}, nil
}

// VerifyCatalog loads and decodes the catalog alone and returns its size.
// An empty catalog yields ErrEmptyCatalog.
func (s *Service) VerifyCatalog(ctx context.Context) (int, error) {
	inv, err := s.store.Load(ctx, s.names.Inventory)
	if err != nil {
		return 0, &StoreError{Dataset: s.names.Inventory, Op: "load", Err: err}
	}
	books, err := s.codec.DecodeBooks(inv)
	if err != nil {
		return 0, &StoreError{Dataset: s.names.Inventory, Op: "decode", Err: err}
	}
	if len(books) == 0 {
		return 0, ErrEmptyCatalog
	}
	return len(books), nil
}

// IsCorruptCatalog reports whether err from VerifyCatalog means the stored
// catalog itself is unusable, as opposed to the store being unreachable.
func IsCorruptCatalog(err error) bool {
	var se *StoreError
	return errors.Is(err, ErrEmptyCatalog) || (errors.As(err, &se) && se.Op == "decode")
}

// Snapshot loads the current catalog and log.
func (s *Service) Snapshot(ctx context.Context) (State, error) {
	l, err := s.load(ctx)
	if err != nil {
		return State{}, err
	}
	return l.state, nil
}

// Books returns the catalog in storage order.
func (s *Service) Books(ctx context.Context) ([]models.Book, error) {
	state, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return state.Books, nil
}

// Book returns one catalog entry.
func (s *Service) Book(ctx context.Context, name string) (models.Book, error) {
	state, err := s.Snapshot(ctx)
	if err != nil {
		return models.Book{}, err
	}
	book, ok := state.Book(name)
	if !ok {
		return models.Book{}, &StockError{Book: name, Err: ErrUnknownBook}
	}
	return book, nil
}

// Transactions returns the log newest first.
func (s *Service) Transactions(ctx context.Context) ([]models.Transaction, error) {
	state, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return models.SortNewestFirst(state.Transactions), nil
}

// ApplyMovement records a stock movement and persists both datasets.
func (s *Service) ApplyMovement(ctx context.Context, m Movement) (MovementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "apply movement"
	if err := s.checkPending(op); err != nil {
		return MovementResult{}, err
	}

	l, err := s.load(ctx)
	if err != nil {
		return MovementResult{}, s.reject(op, err)
	}

	next, result, err := ApplyMovement(l.state, m, s.now().In(s.codec.Location), s.newID())
	if err != nil {
		return MovementResult{}, s.reject(op, err)
	}

	tx := result.Transaction
	err = s.commit(ctx, op, l, next,
		fmt.Sprintf("Update Inventory: %s", tx.BookName),
		fmt.Sprintf("Add Tx: %s - %s", tx.Kind.Label(), tx.BookName),
		tx, false)
	if err != nil {
		return MovementResult{}, err
	}

	s.recorder.MovementApplied(string(tx.Kind))
	s.logger.Info("movement applied",
		zap.String("id", tx.ID),
		zap.String("book", tx.BookName),
		zap.String("kind", string(tx.Kind)),
		zap.Int64("quantity", tx.Quantity),
		zap.String("client", tx.Client),
		zap.Int64("new_quantity", result.NewQuantity))

	return result, nil
}

// RevertTransaction undoes the transaction with the given ID.
func (s *Service) RevertTransaction(ctx context.Context, id string) (ReversalResult, error) {
	return s.revert(ctx, func(state State) (State, ReversalResult, error) {
		return RevertTransaction(state, id)
	})
}

// RevertByKey undoes the transaction matching a structural key.
func (s *Service) RevertByKey(ctx context.Context, key models.TransactionKey) (ReversalResult, error) {
	return s.revert(ctx, func(state State) (State, ReversalResult, error) {
		return RevertByKey(state, key)
	})
}

func (s *Service) revert(ctx context.Context, fn func(State) (State, ReversalResult, error)) (ReversalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "revert transaction"
	if err := s.checkPending(op); err != nil {
		return ReversalResult{}, err
	}

	l, err := s.load(ctx)
	if err != nil {
		return ReversalResult{}, s.reject(op, err)
	}

	next, result, err := fn(l.state)
	if err != nil {
		return ReversalResult{}, s.reject(op, err)
	}

	tx := result.Removed
	err = s.commit(ctx, op, l, next,
		fmt.Sprintf("Revert Inventory: %s", tx.BookName),
		fmt.Sprintf("Revert Tx: %s - %s (%s)", tx.Kind.Label(), tx.BookName, tx.TimestampText()),
		tx, true)
	if err != nil {
		return ReversalResult{}, err
	}

	s.recorder.ReversalApplied(string(tx.Kind))
	s.logger.Info("transaction reverted",
		zap.String("id", tx.ID),
		zap.String("book", tx.BookName),
		zap.String("kind", string(tx.Kind)),
		zap.Int64("quantity", tx.Quantity),
		zap.Int64("restored_quantity", result.RestoredQuantity))

	return result, nil
}

func (s *Service) commit(ctx context.Context, op string, l loaded, next State, catalogMsg, logMsg string, tx models.Transaction, removal bool) error {
	inv, err := s.codec.EncodeBooks(l.inventory, next.Books)
	if err != nil {
		return &StoreError{Dataset: s.names.Inventory, Op: "encode", Err: err}
	}
	log := s.codec.EncodeTransactions(l.log, next.Transactions)

	if err := s.store.Save(ctx, inv, catalogMsg); err != nil {
		s.recorder.PersistFailed(s.names.Inventory)
		s.logger.Error("catalog save failed, nothing persisted",
			zap.String("operation", op), zap.Error(err))
		return &StoreError{Dataset: s.names.Inventory, Op: "save", Err: err}
	}

	if err := s.store.Save(ctx, log, logMsg); err != nil {
		s.recorder.PersistFailed(s.names.Transactions)
		s.pending = &PendingWrite{
			Operation:   op,
			Dataset:     s.names.Transactions,
			Message:     logMsg,
			Error:       err.Error(),
			Since:       s.now(),
			Transaction: tx,
			Removal:     removal,
		}
		s.logger.Error("transaction log save failed after catalog commit",
			zap.String("operation", op),
			zap.String("committed", s.names.Inventory),
			zap.String("failed", s.names.Transactions),
			zap.Error(err))
		return &PartialPersistError{
			Operation: op,
			Committed: s.names.Inventory,
			Failed:    s.names.Transactions,
			Err:       err,
		}
	}
	return nil
}

func (s *Service) reject(op string, err error) error {
	s.recorder.OperationRejected(op, Reason(err))
	if IsClientError(err) {
		s.logger.Info("operation rejected", zap.String("operation", op), zap.Error(err))
	} else {
		s.logger.Warn("operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

func (s *Service) checkPending(op string) error {
	if s.pending == nil {
		return nil
	}
	err := fmt.Errorf("%w: %s of %s since %s", ErrPendingWrite,
		s.pending.Dataset, s.pending.Operation, s.pending.Since.Format(time.RFC3339))
	return s.reject(op, err)
}

// Pending returns the write awaiting retry, if any.
func (s *Service) Pending() *PendingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// RetryPending replays only the failed log change of a partially persisted
// operation, onto a freshly loaded log. It is a no-op when nothing is
// pending.
func (s *Service) RetryPending(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil
	}

	p := s.pending
	if err := s.replay(ctx, p); err != nil {
		s.recorder.PersistFailed(p.Dataset)
		p.Error = err.Error()
		s.logger.Error("pending write retry failed", zap.String("dataset", p.Dataset), zap.Error(err))
		return &StoreError{Dataset: p.Dataset, Op: "retry", Err: err}
	}

	s.logger.Info("pending write recovered",
		zap.String("dataset", p.Dataset),
		zap.String("operation", p.Operation),
		zap.String("id", p.Transaction.ID))
	s.pending = nil
	return nil
}

func (s *Service) replay(ctx context.Context, p *PendingWrite) error {
	table, err := s.store.Load(ctx, p.Dataset)
	if err != nil {
		return err
	}
	txs, err := s.codec.DecodeTransactions(table)
	if err != nil {
		return err
	}

	next, changed := p.replayOnto(txs)
	if !changed {
		s.logger.Info("log already holds the pending change", zap.String("id", p.Transaction.ID))
		return nil
	}
	return s.store.Save(ctx, s.codec.EncodeTransactions(table, next), p.Message)
}

// DiscardPending drops the pending write after the log was reconciled by
// hand and returns it, or nil when nothing was pending.
func (s *Service) DiscardPending() *PendingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil
	}
	p := *s.pending
	s.pending = nil
	s.logger.Warn("pending write discarded",
		zap.String("dataset", p.Dataset),
		zap.String("operation", p.Operation),
		zap.String("id", p.Transaction.ID),
		zap.Time("since", p.Since))
	return &p
}
