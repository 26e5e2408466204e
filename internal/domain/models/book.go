package models

// Book is one row of the inventory catalog. Name is the join key used by
// transactions and orders.
type Book struct {
	Name        string `json:"name"`
	ISBN        string `json:"isbn"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int64  `json:"quantity"`
	SafetyStock int64  `json:"safety_stock"`
}

// IsLowStock reports whether the book is at or below its safety threshold.
func (b Book) IsLowStock() bool {
	return b.Quantity <= b.SafetyStock
}

// StockValue is the current quantity valued at the unit price.
func (b Book) StockValue() int64 {
	return b.Quantity * b.UnitPrice
}
