package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TransactionKind enumerates the stock movements the ledger understands.
type TransactionKind string

const (
	KindIn             TransactionKind = "IN"
	KindOut            TransactionKind = "OUT"
	KindDamage         TransactionKind = "DAMAGE"
	KindReturn         TransactionKind = "RETURN"
	KindCancelIncrease TransactionKind = "CANCEL_INCREASE"
	KindCancelDecrease TransactionKind = "CANCEL_DECREASE"
)

// Direction is the sign a kind applies to the catalog quantity.
type Direction int

const (
	DirectionDecrease Direction = -1
	DirectionIncrease Direction = 1
)

// AllKinds lists every kind in a stable order.
var AllKinds = []TransactionKind{
	KindIn, KindOut, KindDamage, KindReturn, KindCancelIncrease, KindCancelDecrease,
}

var kindLabels = map[TransactionKind]string{
	KindIn:             "입고",
	KindOut:            "출고",
	KindDamage:         "파손",
	KindReturn:         "반품",
	KindCancelIncrease: "취소(증가)",
	KindCancelDecrease: "취소(감소)",
}

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// Direction returns whether the kind adds to or removes from stock.
func (k TransactionKind) Direction() Direction {
	switch k {
	case KindIn, KindReturn, KindCancelIncrease:
		return DirectionIncrease
	default:
		return DirectionDecrease
	}
}

// Signed returns qty with the sign of the kind's direction.
func (k TransactionKind) Signed(qty int64) int64 {
	return int64(k.Direction()) * qty
}

// ClientOptional reports whether a movement of this kind may omit the client.
func (k TransactionKind) ClientOptional() bool {
	return k == KindDamage
}

// Label is the text stored in the transaction file.
func (k TransactionKind) Label() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return string(k)
}

// ParseTransactionKind accepts the stored labels as well as the enum names.
// Any label mentioning damage resolves to KindDamage.
func ParseTransactionKind(value string) (TransactionKind, error) {
	trimmed := strings.Join(strings.Fields(value), "")
	if trimmed == "" {
		return "", fmt.Errorf("empty transaction kind")
	}

	upper := strings.ToUpper(trimmed)
	if strings.Contains(trimmed, "파손") || strings.Contains(upper, "DAMAGE") {
		return KindDamage, nil
	}

	for kind, label := range kindLabels {
		if trimmed == label || upper == string(kind) {
			return kind, nil
		}
	}

	switch upper {
	case "CANCEL(INCREASE)", "CANCEL-INCREASE":
		return KindCancelIncrease, nil
	case "CANCEL(DECREASE)", "CANCEL-DECREASE":
		return KindCancelDecrease, nil
	}

	return "", fmt.Errorf("unknown transaction kind %q", value)
}

// Transaction is one entry of the append-only stock movement log.
type Transaction struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Client    string          `json:"client"`
	BookName  string          `json:"book_name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice int64           `json:"unit_price"`
	Kind      TransactionKind `json:"kind"`

	// RawTimestamp keeps the stored text when it could not be parsed so the
	// row survives a re-save untouched.
	RawTimestamp string `json:"raw_timestamp,omitempty"`
}

// TransactionKey is the structural identity of a transaction used by files
// that predate surrogate identifiers.
type TransactionKey struct {
	Timestamp string          `json:"timestamp"`
	BookName  string          `json:"book_name"`
	Kind      TransactionKind `json:"kind"`
	Quantity  int64           `json:"quantity"`
}

func (k TransactionKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.Timestamp, k.BookName, k.Kind, k.Quantity)
}

// Key returns the structural identity of the transaction.
func (t Transaction) Key() TransactionKey {
	return TransactionKey{
		Timestamp: t.TimestampText(),
		BookName:  t.BookName,
		Kind:      t.Kind,
		Quantity:  t.Quantity,
	}
}

// TimestampText renders the timestamp the way it is stored.
func (t Transaction) TimestampText() string {
	return FormatTimestamp(t.Timestamp, t.RawTimestamp)
}

// HasValidTimestamp is false for rows whose stored timestamp did not parse.
func (t Transaction) HasValidTimestamp() bool {
	return !t.Timestamp.IsZero()
}

// Amount is quantity valued at the unit price recorded with the movement.
func (t Transaction) Amount() int64 {
	return t.Quantity * t.UnitPrice
}

// SortNewestFirst returns a copy of txs ordered by timestamp descending.
// Storage order is canonical; this ordering is for display only. Rows with
// unparsable timestamps sort last, in storage order.
func SortNewestFirst(txs []Transaction) []Transaction {
	out := append([]Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
