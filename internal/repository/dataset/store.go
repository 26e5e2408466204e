package dataset

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by Save when the stored dataset changed
// since the caller loaded it.
var ErrVersionConflict = errors.New("dataset version conflict")

// Table is the raw tabular content of one dataset file.
type Table struct {
	Name    string     `json:"name"`
	Header  []string   `json:"header"`
	Rows    [][]string `json:"rows"`
	Version string     `json:"version"`
}

// Empty reports whether the table holds no data rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := Table{Name: t.Name, Version: t.Version}
	out.Header = append([]string(nil), t.Header...)
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// Store persists named tabular datasets. Each Save is atomic per dataset and
// conditioned on the Version carried by the table; there is no multi-dataset
// transaction.
type Store interface {
	// Load returns the dataset. A dataset that does not exist yet loads as an
	// empty table without error.
	Load(ctx context.Context, name string) (Table, error)
	// Save replaces the dataset content.
	Save(ctx context.Context, table Table, message string) error
}

// Names identifies the three datasets the service works with.
type Names struct {
	Inventory    string
	Transactions string
	Orders       string
}

// DefaultNames matches the files the department keeps in its repository.
func DefaultNames() Names {
	return Names{
		Inventory:    "inventory.csv",
		Transactions: "transactions.csv",
		Orders:       "orders.csv",
	}
}
