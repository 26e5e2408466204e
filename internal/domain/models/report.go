package models

import "time"

// MonthlyReport is the archived financial summary of one month of movements.
type MonthlyReport struct {
	Month     string           `bson:"month" json:"month"`
	Revenue   int64            `bson:"revenue" json:"revenue"`
	Cost      int64            `bson:"cost" json:"cost"`
	NetProfit int64            `bson:"net_profit" json:"net_profit"`
	ByKind    map[string]int64 `bson:"by_kind" json:"by_kind"`
	Excluded  int              `bson:"excluded" json:"excluded"`
	Policy    string           `bson:"policy" json:"policy"`
	LowStock  []string         `bson:"low_stock" json:"low_stock"`
	CreatedAt time.Time        `bson:"created_at" json:"created_at"`
}
