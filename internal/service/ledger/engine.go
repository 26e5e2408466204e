package ledger

import (
	"strings"
	"time"

	"github.com/inhapress/stockledger/internal/domain/models"
)

// ClientNotApplicable is recorded for movements that carry no client.
const ClientNotApplicable = "N/A"

// State is the in-memory pair the engine keeps consistent: the catalog and
// the movement log that explains every quantity in it. Engine functions
// never modify the State they receive; they return a new one.
type State struct {
	Books        []models.Book
	Transactions []models.Transaction
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	return State{
		Books:        append([]models.Book(nil), s.Books...),
		Transactions: append([]models.Transaction(nil), s.Transactions...),
	}
}

// Book looks up a catalog entry by name.
func (s State) Book(name string) (models.Book, bool) {
	if i := s.bookIndex(name); i >= 0 {
		return s.Books[i], true
	}
	return models.Book{}, false
}

func (s State) bookIndex(name string) int {
	for i, b := range s.Books {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// Movement is a request to change stock.
type Movement struct {
	BookName string                 `json:"book_name"`
	Kind     models.TransactionKind `json:"kind"`
	Quantity int64                  `json:"quantity"`
	Client   string                 `json:"client"`
}

// MovementResult describes a committed movement.
type MovementResult struct {
	Transaction      models.Transaction `json:"transaction"`
	PreviousQuantity int64              `json:"previous_quantity"`
	NewQuantity      int64              `json:"new_quantity"`
}

// ReversalResult describes a committed reversal.
type ReversalResult struct {
	Removed          models.Transaction `json:"removed"`
	PreviousQuantity int64              `json:"previous_quantity"`
	RestoredQuantity int64              `json:"restored_quantity"`
}

// ApplyMovement validates m against state and returns the state with the
// book quantity updated and one transaction appended. Nothing changes when
// validation fails.
func ApplyMovement(state State, m Movement, now time.Time, id string) (State, MovementResult, error) {
	client := strings.TrimSpace(m.Client)

	if !m.Kind.Valid() {
		return state, MovementResult{}, &StockError{Book: m.BookName, Kind: m.Kind, Quantity: m.Quantity, Err: ErrInvalidKind}
	}
	if m.Quantity <= 0 {
		return state, MovementResult{}, &StockError{Book: m.BookName, Kind: m.Kind, Quantity: m.Quantity, Err: ErrInvalidQuantity}
	}

	idx := state.bookIndex(m.BookName)
	if idx < 0 {
		return state, MovementResult{}, &StockError{Book: m.BookName, Kind: m.Kind, Quantity: m.Quantity, Err: ErrUnknownBook}
	}

	if client == "" {
		if !m.Kind.ClientOptional() {
			return state, MovementResult{}, &StockError{Book: m.BookName, Kind: m.Kind, Quantity: m.Quantity, Err: ErrMissingClient}
		}
		client = ClientNotApplicable
	}

	book := state.Books[idx]
	newQty := book.Quantity + m.Kind.Signed(m.Quantity)
	if newQty < 0 {
		return state, MovementResult{}, &StockError{
			Book:      book.Name,
			Client:    client,
			Kind:      m.Kind,
			Quantity:  m.Quantity,
			Available: book.Quantity,
			Err:       ErrInsufficientStock,
		}
	}

	tx := models.Transaction{
		ID:        id,
		Timestamp: now.Truncate(time.Second),
		Client:    client,
		BookName:  book.Name,
		Quantity:  m.Quantity,
		UnitPrice: book.UnitPrice,
		Kind:      m.Kind,
	}

	next := state.Clone()
	next.Books[idx].Quantity = newQty
	next.Transactions = append(next.Transactions, tx)

	return next, MovementResult{Transaction: tx, PreviousQuantity: book.Quantity, NewQuantity: newQty}, nil
}

// RevertTransaction undoes the transaction with the given ID: the inverse
// of its direction is applied to the book and the entry is removed.
func RevertTransaction(state State, id string) (State, ReversalResult, error) {
	for i, tx := range state.Transactions {
		if tx.ID == id {
			return revertAt(state, i)
		}
	}
	return state, ReversalResult{}, ErrReversalTargetNotFound
}

// RevertByKey undoes the single transaction matching key. Files written
// before surrogate IDs existed can only be addressed this way; when several
// entries share the key the caller has to choose one by ID.
func RevertByKey(state State, key models.TransactionKey) (State, ReversalResult, error) {
	var matches []int
	for i, tx := range state.Transactions {
		if tx.Key() == key {
			matches = append(matches, i)
		}
	}

	switch len(matches) {
	case 0:
		return state, ReversalResult{}, ErrReversalTargetNotFound
	case 1:
		return revertAt(state, matches[0])
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = state.Transactions[m].ID
	}
	return state, ReversalResult{}, &AmbiguousReversalError{Key: key, Candidates: ids}
}

func revertAt(state State, i int) (State, ReversalResult, error) {
	tx := state.Transactions[i]

	idx := state.bookIndex(tx.BookName)
	if idx < 0 {
		return state, ReversalResult{}, &StockError{Book: tx.BookName, Kind: tx.Kind, Quantity: tx.Quantity, Err: ErrUnknownBook}
	}

	book := state.Books[idx]
	restored := book.Quantity - tx.Kind.Signed(tx.Quantity)
	if restored < 0 {
		return state, ReversalResult{}, &StockError{
			Book:      book.Name,
			Client:    tx.Client,
			Kind:      tx.Kind,
			Quantity:  tx.Quantity,
			Available: book.Quantity,
			Err:       ErrWouldGoNegative,
		}
	}

	next := state.Clone()
	next.Books[idx].Quantity = restored
	next.Transactions = append(next.Transactions[:i], next.Transactions[i+1:]...)

	return next, ReversalResult{Removed: tx, PreviousQuantity: book.Quantity, RestoredQuantity: restored}, nil
}

// NetMovement sums the signed effect of txs per book.
func NetMovement(txs []models.Transaction) map[string]int64 {
	net := make(map[string]int64)
	for _, tx := range txs {
		net[tx.BookName] += tx.Kind.Signed(tx.Quantity)
	}
	return net
}
