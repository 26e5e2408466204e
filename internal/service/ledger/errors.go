package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/inhapress/stockledger/internal/domain/models"
)

var (
	// ErrUnknownBook is returned when a movement names a book missing from the catalog.
	ErrUnknownBook = errors.New("unknown book")

	// ErrMissingClient is returned when a movement that needs a client has none.
	ErrMissingClient = errors.New("client is required")

	// ErrInvalidQuantity is returned for zero or negative movement quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrInvalidKind is returned for a kind outside the enumeration.
	ErrInvalidKind = errors.New("invalid transaction kind")

	// ErrInsufficientStock is returned when a decreasing movement exceeds stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrWouldGoNegative is returned when reverting a movement would leave
	// negative stock behind.
	ErrWouldGoNegative = errors.New("reversal would make stock negative")

	// ErrReversalTargetNotFound is returned when no active transaction matches.
	ErrReversalTargetNotFound = errors.New("transaction to revert not found")

	// ErrAmbiguousReversal is returned when a structural key matches more than
	// one transaction and the caller must pick one by ID.
	ErrAmbiguousReversal = errors.New("ambiguous reversal target")

	// ErrPartialPersist is returned when the catalog was saved but the
	// transaction log was not. The datasets disagree until the log write is retried.
	ErrPartialPersist = errors.New("partial persist failure")

	// ErrStoreUnavailable is returned when the dataset store cannot be read or written.
	ErrStoreUnavailable = errors.New("dataset store unavailable")

	// ErrEmptyCatalog is returned when the inventory dataset has no books.
	ErrEmptyCatalog = errors.New("inventory catalog is empty")

	// ErrPendingWrite is returned while a partially persisted operation awaits retry.
	ErrPendingWrite = errors.New("a previous write is pending retry")
)

// StockError describes a rejected movement or reversal with the values the
// operator needs to correct it.
type StockError struct {
	Book      string
	Client    string
	Kind      models.TransactionKind
	Quantity  int64
	Available int64
	Err       error
}

func (e *StockError) Error() string {
	switch {
	case errors.Is(e.Err, ErrInsufficientStock):
		return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.Book, e.Quantity, e.Available)
	case errors.Is(e.Err, ErrWouldGoNegative):
		return fmt.Sprintf("cannot revert %s of %d for %q: only %d in stock", e.Kind, e.Quantity, e.Book, e.Available)
	case errors.Is(e.Err, ErrMissingClient):
		return fmt.Sprintf("client is required for %s of %d %q", e.Kind, e.Quantity, e.Book)
	case errors.Is(e.Err, ErrInvalidQuantity):
		return fmt.Sprintf("quantity %d for %q must be positive", e.Quantity, e.Book)
	case errors.Is(e.Err, ErrUnknownBook):
		return fmt.Sprintf("book %q is not in the catalog", e.Book)
	case errors.Is(e.Err, ErrInvalidKind):
		return fmt.Sprintf("invalid transaction kind %q for %q", e.Kind, e.Book)
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Book)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// AmbiguousReversalError lists the transactions sharing one structural key.
type AmbiguousReversalError struct {
	Key        models.TransactionKey
	Candidates []string
}

func (e *AmbiguousReversalError) Error() string {
	return fmt.Sprintf("%d transactions match %s %s of %d %q; revert by id (%s)",
		len(e.Candidates), e.Key.Timestamp, e.Key.Kind, e.Key.Quantity, e.Key.BookName, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousReversalError) Unwrap() error {
	return ErrAmbiguousReversal
}

// StoreError wraps a failed load or save of one dataset.
type StoreError struct {
	Dataset string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Dataset, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// PartialPersistError names the dataset whose write failed after the other
// one was committed. Retrying the whole movement would double-count it; only
// the failed write must be replayed.
type PartialPersistError struct {
	Operation string
	Committed string
	Failed    string
	Err       error
}

func (e *PartialPersistError) Error() string {
	return fmt.Sprintf("%s: %s saved but %s was not (%v); retry the %s write only",
		e.Operation, e.Committed, e.Failed, e.Err, e.Failed)
}

func (e *PartialPersistError) Unwrap() []error {
	return []error{ErrPartialPersist, e.Err}
}

// IsClientError reports whether err was caused by invalid input rather than
// by the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownBook) ||
		errors.Is(err, ErrMissingClient) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrWouldGoNegative) ||
		errors.Is(err, ErrReversalTargetNotFound) ||
		errors.Is(err, ErrAmbiguousReversal)
}

// Reason is a short stable label for err, used in metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownBook):
		return "unknown_book"
	case errors.Is(err, ErrMissingClient):
		return "missing_client"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrWouldGoNegative):
		return "would_go_negative"
	case errors.Is(err, ErrReversalTargetNotFound):
		return "not_found"
	case errors.Is(err, ErrAmbiguousReversal):
		return "ambiguous"
	case errors.Is(err, ErrPartialPersist):
		return "partial_persist"
	case errors.Is(err, ErrPendingWrite):
		return "pending_write"
	case errors.Is(err, ErrEmptyCatalog):
		return "empty_catalog"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "internal"
}
