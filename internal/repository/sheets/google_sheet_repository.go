package sheets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/inhapress/stockledger/internal/config"
	"github.com/inhapress/stockledger/internal/repository/dataset"
)

// GoogleSheetRepository keeps each dataset in its own tab of a spreadsheet,
// named after the dataset file without extension ("inventory.csv" lives in
// tab "inventory"). Sheets has no revision precondition, so the version is
// a content hash checked right before each write.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed dataset store.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger, opts ...option.ClientOption) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(opts) == 0 {
		opts = []option.ClientOption{
			option.WithCredentialsFile(cfg.CredentialsPath),
			option.WithScopes(sheetsapi.SpreadsheetsScope),
		}
	}

	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// Load reads the whole tab. The first row is the header.
func (r *GoogleSheetRepository) Load(ctx context.Context, name string) (dataset.Table, error) {
	values, err := r.read(ctx, name)
	if err != nil {
		return dataset.Table{}, err
	}

	table := dataset.Table{Name: name, Version: versionOf(values)}
	if len(values) == 0 {
		return table, nil
	}

	table.Header = values[0]
	table.Rows = values[1:]
	return table, nil
}

// Save replaces the tab content when it still matches the loaded version.
// The new content is written in one update that also blanks every cell the
// old content used beyond it, so a failed write leaves the tab untouched.
func (r *GoogleSheetRepository) Save(ctx context.Context, table dataset.Table, message string) error {
	current, err := r.read(ctx, table.Name)
	if err != nil {
		return err
	}
	if versionOf(current) != table.Version {
		return fmt.Errorf("save %s: %w", table.Name, dataset.ErrVersionConflict)
	}

	sheetRange := tabRange(table.Name)
	payload := &sheetsapi.ValueRange{Values: overwrite(current, table)}
	call := r.service.Spreadsheets.Values.Update(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("RAW").
		Context(ctx)
	if _, err := call.Do(); err != nil {
		return fmt.Errorf("write range %s: %w", sheetRange, err)
	}

	r.logger.Info("dataset written to sheet", zap.String("range", sheetRange), zap.Int("rows", len(table.Rows)), zap.String("message", message))
	return nil
}

// overwrite lays out header and rows padded with empty strings to cover the
// extent of current.
func overwrite(current [][]string, table dataset.Table) [][]interface{} {
	lines := make([][]string, 0, len(table.Rows)+1)
	lines = append(lines, table.Header)
	lines = append(lines, table.Rows...)

	width := 0
	for _, row := range current {
		width = max(width, len(row))
	}
	for len(lines) < len(current) {
		lines = append(lines, nil)
	}

	out := make([][]interface{}, len(lines))
	for i, line := range lines {
		row := toInterfaces(line)
		for len(row) < width {
			row = append(row, "")
		}
		out[i] = row
	}
	return out
}

func (r *GoogleSheetRepository) read(ctx context.Context, name string) ([][]string, error) {
	sheetRange := tabRange(name)
	resp, err := r.service.Spreadsheets.Values.Get(r.spreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", sheetRange, err)
	}

	values := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		values[i] = make([]string, len(row))
		for j, v := range row {
			values[i][j] = fmt.Sprint(v)
		}
	}
	return values, nil
}

func tabRange(name string) string {
	tab := strings.TrimSuffix(name, path.Ext(name))
	return fmt.Sprintf("'%s'", strings.ReplaceAll(tab, "'", "''"))
}

func versionOf(values [][]string) string {
	h := sha256.New()
	for _, row := range values {
		for _, v := range row {
			h.Write([]byte(v))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
