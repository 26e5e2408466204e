package reporting

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inhapress/stockledger/internal/domain/models"
)

// ErrInvalidMonth is returned for a month not in YYYY-MM form.
var ErrInvalidMonth = errors.New("invalid month, expected YYYY-MM")

// CancelIncreasePolicy decides where CANCEL_INCREASE amounts land in the
// monthly figures.
type CancelIncreasePolicy string

const (
	// CancelIncreaseAsCost books cancel-increase amounts as cost, like IN.
	CancelIncreaseAsCost CancelIncreasePolicy = "cost"
	// CancelIncreaseReducesRevenue subtracts them from revenue, like RETURN.
	CancelIncreaseReducesRevenue CancelIncreasePolicy = "revenue"
)

// ParseCancelIncreasePolicy reads a policy name; empty selects the default.
func ParseCancelIncreasePolicy(value string) (CancelIncreasePolicy, error) {
	switch CancelIncreasePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", CancelIncreaseAsCost:
		return CancelIncreaseAsCost, nil
	case CancelIncreaseReducesRevenue:
		return CancelIncreaseReducesRevenue, nil
	}
	return "", fmt.Errorf("unknown cancel-increase policy %q", value)
}

// LowStockBooks returns books at or below their safety stock.
func LowStockBooks(books []models.Book) []models.Book {
	var low []models.Book
	for _, b := range books {
		if b.IsLowStock() {
			low = append(low, b)
		}
	}
	return low
}

// Financials summarises one month of movements.
type Financials struct {
	Month        string                           `json:"month"`
	ByKind       map[models.TransactionKind]int64 `json:"by_kind"`
	Revenue      int64                            `json:"revenue"`
	Cost         int64                            `json:"cost"`
	NetProfit    int64                            `json:"net_profit"`
	Transactions []models.Transaction             `json:"transactions"`
	Excluded     int                              `json:"excluded"`
	Policy       CancelIncreasePolicy             `json:"policy"`
}

// MonthlyFinancials sums quantity*unitPrice per kind for movements inside
// month (YYYY-MM) and derives revenue, cost and net profit. Rows whose
// timestamp did not parse are left out and counted in Excluded.
func MonthlyFinancials(txs []models.Transaction, month string, policy CancelIncreasePolicy) (Financials, error) {
	if _, err := time.Parse(models.MonthLayout, month); err != nil {
		return Financials{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	if policy == "" {
		policy = CancelIncreaseAsCost
	}

	f := Financials{
		Month:  month,
		ByKind: make(map[models.TransactionKind]int64, len(models.AllKinds)),
		Policy: policy,
	}
	for _, k := range models.AllKinds {
		f.ByKind[k] = 0
	}

	for _, tx := range txs {
		if !tx.HasValidTimestamp() {
			f.Excluded++
			continue
		}
		if tx.Timestamp.Format(models.MonthLayout) != month {
			continue
		}
		f.ByKind[tx.Kind] += tx.Amount()
		f.Transactions = append(f.Transactions, tx)
	}

	k := f.ByKind
	f.Revenue = k[models.KindOut] + k[models.KindCancelDecrease] - k[models.KindReturn]
	f.Cost = k[models.KindIn] + k[models.KindDamage]
	if policy == CancelIncreaseReducesRevenue {
		f.Revenue -= k[models.KindCancelIncrease]
	} else {
		f.Cost += k[models.KindCancelIncrease]
	}
	f.NetProfit = f.Revenue - f.Cost
	return f, nil
}

// AvailableMonths lists the months that have movements, newest first.
func AvailableMonths(txs []models.Transaction) []string {
	seen := make(map[string]struct{})
	for _, tx := range txs {
		if tx.HasValidTimestamp() {
			seen[tx.Timestamp.Format(models.MonthLayout)] = struct{}{}
		}
	}
	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// ReturnRate is the share of shipped copies a client sent back.
type ReturnRate struct {
	Client   string  `json:"client"`
	Out      int64   `json:"out"`
	Returned int64   `json:"returned"`
	Rate     float64 `json:"rate"`
}

// ReturnRateByClient computes returned/out*100 per client, rounded to two
// decimals. Movements without a client ("N/A") are ignored; a client with
// no shipments has rate 0.
func ReturnRateByClient(txs []models.Transaction) []ReturnRate {
	byClient := make(map[string]*ReturnRate)
	for _, tx := range txs {
		if tx.Client == "" || tx.Client == "N/A" {
			continue
		}
		if tx.Kind != models.KindOut && tx.Kind != models.KindReturn {
			continue
		}
		r, ok := byClient[tx.Client]
		if !ok {
			r = &ReturnRate{Client: tx.Client}
			byClient[tx.Client] = r
		}
		if tx.Kind == models.KindOut {
			r.Out += tx.Quantity
		} else {
			r.Returned += tx.Quantity
		}
	}

	rates := make([]ReturnRate, 0, len(byClient))
	for _, r := range byClient {
		if r.Out > 0 {
			r.Rate = decimal.NewFromInt(r.Returned).
				Mul(decimal.NewFromInt(100)).
				DivRound(decimal.NewFromInt(r.Out), 2).
				InexactFloat64()
		}
		rates = append(rates, *r)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Client < rates[j].Client })
	return rates
}

// BookValue is the stock value of one title.
type BookValue struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Value    int64  `json:"value"`
}

// Valuation is the value of the whole catalog at unit price.
type Valuation struct {
	Books []BookValue `json:"books"`
	Total int64       `json:"total"`
}

// AssetValuation values every book at quantity*unitPrice.
func AssetValuation(books []models.Book) Valuation {
	v := Valuation{Books: make([]BookValue, 0, len(books))}
	for _, b := range books {
		v.Books = append(v.Books, BookValue{Name: b.Name, Quantity: b.Quantity, Value: b.StockValue()})
		v.Total += b.StockValue()
	}
	return v
}

// FilterBooks keeps books whose name or ISBN contains term. An empty term
// keeps everything.
func FilterBooks(books []models.Book, term string) []models.Book {
	term = strings.TrimSpace(term)
	if term == "" {
		return books
	}
	var out []models.Book
	for _, b := range books {
		if strings.Contains(b.Name, term) || strings.Contains(b.ISBN, term) {
			out = append(out, b)
		}
	}
	return out
}
