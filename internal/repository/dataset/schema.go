package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/inhapress/stockledger/internal/domain/models"
)

var (
	// ErrSchema is returned when a dataset is missing required columns.
	ErrSchema = errors.New("dataset schema mismatch")
	// ErrInvalidRow is returned when a row cannot be decoded into its model.
	ErrInvalidRow = errors.New("invalid dataset row")
	// ErrDuplicateBook is returned when two catalog rows share a name.
	ErrDuplicateBook = errors.New("duplicate book name in catalog")
	// ErrDuplicateID is returned when two log rows carry the same ID.
	ErrDuplicateID = errors.New("duplicate transaction id in log")
)

// legacyNamespace seeds the deterministic identifiers assigned to rows
// written before the ID column existed.
var legacyNamespace = uuid.MustParse("6f1c2a4e-7d1b-4c35-9a0e-3b8f5d2e9c71")

type column struct {
	field    string
	header   string
	aliases  []string
	required bool
}

var (
	bookColumns = []column{
		{field: "name", header: "책 이름", aliases: []string{"책이름", "bookname", "name", "title"}, required: true},
		{field: "isbn", header: "ISBN", aliases: []string{"isbn"}, required: true},
		{field: "price", header: "가격", aliases: []string{"가격", "단가", "unitprice", "price"}, required: true},
		{field: "quantity", header: "현재 수량", aliases: []string{"현재수량", "quantity", "currentquantity"}, required: true},
		{field: "safety", header: "안전 재고", aliases: []string{"안전재고", "safetystock", "safetystockthreshold"}, required: true},
	}

	transactionColumns = []column{
		{field: "id", header: "ID", aliases: []string{"id"}},
		{field: "timestamp", header: "일시", aliases: []string{"일시", "timestamp", "datetime"}, required: true},
		{field: "client", header: "거래처", aliases: []string{"거래처", "client"}, required: true},
		{field: "book", header: "책 이름", aliases: []string{"책이름", "bookname"}, required: true},
		{field: "quantity", header: "수량", aliases: []string{"수량", "quantity"}, required: true},
		{field: "price", header: "가격", aliases: []string{"가격", "unitprice", "price"}, required: true},
		{field: "kind", header: "유형", aliases: []string{"유형", "kind", "type"}, required: true},
	}

	orderColumns = []column{
		{field: "id", header: "ID", aliases: []string{"id"}},
		{field: "timestamp", header: "일시", aliases: []string{"일시", "timestamp", "datetime"}, required: true},
		{field: "client", header: "거래처", aliases: []string{"거래처", "client"}, required: true},
		{field: "book", header: "책 이름", aliases: []string{"책이름", "bookname"}, required: true},
		{field: "quantity", header: "주문 수량", aliases: []string{"주문수량", "requestedquantity", "quantity"}, required: true},
		{field: "status", header: "상태", aliases: []string{"상태", "status"}, required: true},
	}
)

// NormalizeHeader strips byte order marks and every kind of space and folds
// case, so "책 이름 ", "책이름" and a BOM-prefixed "책\u00a0이름" compare equal.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range h {
		if unicode.IsSpace(r) || r == '\ufeff' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// resolve maps each schema field to its column index. Exact alias matches
// win; remaining fields fall back to a substring match, which tolerates
// decorated headers like "현재 수량(권)".
func resolve(dataset string, header []string, columns []column) (map[string]int, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}

	index := make(map[string]int, len(columns))
	taken := make(map[int]bool, len(header))

	for _, col := range columns {
		for i, h := range normalized {
			if taken[i] {
				continue
			}
			if containsString(col.aliases, h) {
				index[col.field] = i
				taken[i] = true
				break
			}
		}
	}

	for _, col := range columns {
		if _, ok := index[col.field]; ok {
			continue
		}
	search:
		for i, h := range normalized {
			if taken[i] {
				continue
			}
			for _, alias := range col.aliases {
				if len(alias) > 2 && strings.Contains(h, alias) {
					index[col.field] = i
					taken[i] = true
					break search
				}
			}
		}
	}

	var missing []string
	for _, col := range columns {
		if _, ok := index[col.field]; !ok && col.required {
			missing = append(missing, col.header)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s is missing columns %s", ErrSchema, dataset, strings.Join(missing, ", "))
	}
	return index, nil
}

// Codec converts raw tables into typed models and back. Normalisation of
// headers and values happens here once, at the store boundary.
type Codec struct {
	Location *time.Location
}

// NewCodec builds a codec that reads and writes timestamps in loc.
func NewCodec(loc *time.Location) Codec {
	if loc == nil {
		loc = time.Local
	}
	return Codec{Location: loc}
}

// DecodeBooks reads the catalog. Book names must be unique.
func (c Codec) DecodeBooks(t Table) ([]models.Book, error) {
	if t.Empty() {
		return nil, nil
	}
	index, err := resolve(t.Name, t.Header, bookColumns)
	if err != nil {
		return nil, err
	}

	books := make([]models.Book, 0, len(t.Rows))
	seen := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		line := i + 2
		name := strings.TrimSpace(cell(row, index["name"]))
		if name == "" {
			return nil, rowError(t.Name, line, "book name is empty")
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q on rows %d and %d", ErrDuplicateBook, name, prev, line)
		}
		seen[name] = line

		price, err := parseNumber(cell(row, index["price"]))
		if err != nil {
			return nil, rowError(t.Name, line, "price: %v", err)
		}
		qty, err := parseNumber(cell(row, index["quantity"]))
		if err != nil {
			return nil, rowError(t.Name, line, "quantity: %v", err)
		}
		safety, err := parseNumber(cell(row, index["safety"]))
		if err != nil {
			return nil, rowError(t.Name, line, "safety stock: %v", err)
		}
		if price < 0 || qty < 0 || safety < 0 {
			return nil, rowError(t.Name, line, "negative value for %q", name)
		}

		books = append(books, models.Book{
			Name:        name,
			ISBN:        strings.TrimSpace(cell(row, index["isbn"])),
			UnitPrice:   price,
			Quantity:    qty,
			SafetyStock: safety,
		})
	}
	return books, nil
}

// EncodeBooks writes the quantities of books into a copy of base. Only the
// quantity cell changes; extra columns and row order are preserved.
func (c Codec) EncodeBooks(base Table, books []models.Book) (Table, error) {
	out := base.Clone()
	if len(out.Header) == 0 {
		for _, col := range bookColumns {
			out.Header = append(out.Header, col.header)
		}
	}
	index, err := resolve(out.Name, out.Header, bookColumns)
	if err != nil {
		return Table{}, err
	}

	rowByName := make(map[string]int, len(out.Rows))
	for i, row := range out.Rows {
		rowByName[strings.TrimSpace(cell(row, index["name"]))] = i
	}

	for _, b := range books {
		i, ok := rowByName[b.Name]
		if !ok {
			row := make([]string, len(out.Header))
			row[index["name"]] = b.Name
			row[index["isbn"]] = b.ISBN
			row[index["price"]] = strconv.FormatInt(b.UnitPrice, 10)
			row[index["safety"]] = strconv.FormatInt(b.SafetyStock, 10)
			out.Rows = append(out.Rows, row)
			i = len(out.Rows) - 1
		}
		out.Rows[i] = setCell(out.Rows[i], index["quantity"], strconv.FormatInt(b.Quantity, 10))
	}
	return out, nil
}

// DecodeTransactions reads the movement log in storage order. Rows without
// an ID receive a deterministic one; unparsable timestamps are kept raw.
func (c Codec) DecodeTransactions(t Table) ([]models.Transaction, error) {
	if t.Empty() {
		return nil, nil
	}
	index, err := resolve(t.Name, t.Header, transactionColumns)
	if err != nil {
		return nil, err
	}

	occurrences := make(map[string]int)
	seen := make(map[string]int)
	txs := make([]models.Transaction, 0, len(t.Rows))
	for i, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		line := i + 2

		qty, err := parseNumber(cell(row, index["quantity"]))
		if err != nil {
			return nil, rowError(t.Name, line, "quantity: %v", err)
		}
		price, err := parseNumber(cell(row, index["price"]))
		if err != nil {
			return nil, rowError(t.Name, line, "price: %v", err)
		}
		kind, err := models.ParseTransactionKind(cell(row, index["kind"]))
		if err != nil {
			return nil, rowError(t.Name, line, "%v", err)
		}

		tx := models.Transaction{
			Client:    strings.TrimSpace(cell(row, index["client"])),
			BookName:  strings.TrimSpace(cell(row, index["book"])),
			Quantity:  qty,
			UnitPrice: price,
			Kind:      kind,
		}
		raw := strings.TrimSpace(cell(row, index["timestamp"]))
		if ts, err := models.ParseTimestamp(raw, c.Location); err == nil {
			tx.Timestamp = ts
		} else {
			tx.RawTimestamp = raw
		}

		if idx, ok := index["id"]; ok {
			tx.ID = strings.TrimSpace(cell(row, idx))
		}
		if tx.ID == "" {
			tx.ID = legacyID(t.Name, tx.Key().String(), occurrences)
		}
		if first, ok := seen[tx.ID]; ok {
			return nil, fmt.Errorf("%w: %q on rows %d and %d", ErrDuplicateID, tx.ID, first, line)
		}
		seen[tx.ID] = line
		txs = append(txs, tx)
	}
	return txs, nil
}

// EncodeTransactions renders the log with canonical headers.
func (c Codec) EncodeTransactions(base Table, txs []models.Transaction) Table {
	out := Table{Name: base.Name, Version: base.Version, Header: headers(transactionColumns)}
	out.Rows = make([][]string, 0, len(txs))
	for _, tx := range txs {
		out.Rows = append(out.Rows, []string{
			tx.ID,
			c.formatTimestamp(tx.Timestamp, tx.RawTimestamp),
			tx.Client,
			tx.BookName,
			strconv.FormatInt(tx.Quantity, 10),
			strconv.FormatInt(tx.UnitPrice, 10),
			tx.Kind.Label(),
		})
	}
	return out
}

// DecodeOrders reads the order queue in storage order.
func (c Codec) DecodeOrders(t Table) ([]models.Order, error) {
	if t.Empty() {
		return nil, nil
	}
	index, err := resolve(t.Name, t.Header, orderColumns)
	if err != nil {
		return nil, err
	}

	occurrences := make(map[string]int)
	orders := make([]models.Order, 0, len(t.Rows))
	for i, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		line := i + 2

		qty, err := parseNumber(cell(row, index["quantity"]))
		if err != nil {
			return nil, rowError(t.Name, line, "requested quantity: %v", err)
		}
		status, err := models.ParseOrderStatus(cell(row, index["status"]))
		if err != nil {
			return nil, rowError(t.Name, line, "%v", err)
		}

		o := models.Order{
			Client:            strings.TrimSpace(cell(row, index["client"])),
			BookName:          strings.TrimSpace(cell(row, index["book"])),
			RequestedQuantity: qty,
			Status:            status,
		}
		raw := strings.TrimSpace(cell(row, index["timestamp"]))
		if ts, err := models.ParseTimestamp(raw, c.Location); err == nil {
			o.Timestamp = ts
		} else {
			o.RawTimestamp = raw
		}

		if idx, ok := index["id"]; ok {
			o.ID = strings.TrimSpace(cell(row, idx))
		}
		if o.ID == "" {
			key := fmt.Sprintf("%s|%s|%s|%d", o.TimestampText(), o.Client, o.BookName, o.RequestedQuantity)
			o.ID = legacyID(t.Name, key, occurrences)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// EncodeOrders renders the order queue with canonical headers.
func (c Codec) EncodeOrders(base Table, orders []models.Order) Table {
	out := Table{Name: base.Name, Version: base.Version, Header: headers(orderColumns)}
	out.Rows = make([][]string, 0, len(orders))
	for _, o := range orders {
		out.Rows = append(out.Rows, []string{
			o.ID,
			c.formatTimestamp(o.Timestamp, o.RawTimestamp),
			o.Client,
			o.BookName,
			strconv.FormatInt(o.RequestedQuantity, 10),
			o.Status.Label(),
		})
	}
	return out
}

func (c Codec) formatTimestamp(ts time.Time, raw string) string {
	if ts.IsZero() {
		return raw
	}
	return ts.In(c.Location).Format(models.TimestampLayout)
}

func legacyID(dataset, key string, occurrences map[string]int) string {
	n := occurrences[key]
	occurrences[key] = n + 1
	name := dataset + "|" + key + "|" + strconv.Itoa(n)
	return uuid.NewSHA1(legacyNamespace, []byte(name)).String()
}

// parseNumber accepts integers as spreadsheets and pandas tend to write
// them: "10,000", "10000.0", "5권", "12000원".
func parseNumber(value string) (int64, error) {
	cleaned := strings.NewReplacer(",", "", "원", "", "권", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return 0, errors.New("empty numeric value")
	}
	if n, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", value)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%q is out of range", value)
	}
	return int64(f), nil
}

func headers(columns []column) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = col.header
	}
	return out
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func setCell(row []string, i int, value string) []string {
	for len(row) <= i {
		row = append(row, "")
	}
	row[i] = value
	return row
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func rowError(dataset string, line int, format string, args ...any) error {
	return fmt.Errorf("%w: %s row %d: %s", ErrInvalidRow, dataset, line, fmt.Sprintf(format, args...))
}
