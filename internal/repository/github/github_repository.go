package github

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/repository/dataset"
	client "github.com/inhapress/stockledger/pkg/clients/github"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Repository stores each dataset as a CSV file in a GitHub repository. The
// blob SHA is the dataset version, so GitHub rejects writes based on stale
// reads.
type Repository struct {
	client client.Client
	logger *zap.Logger
}

// NewRepository builds a CSV-over-GitHub dataset store.
func NewRepository(c client.Client, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{client: c, logger: logger}
}

// Load fetches and parses a CSV file. A missing file is an empty dataset.
func (r *Repository) Load(ctx context.Context, name string) (dataset.Table, error) {
	file, err := r.client.GetFile(ctx, name)
	if errors.Is(err, client.ErrNotFound) {
		r.logger.Info("dataset file missing, treating as empty", zap.String("dataset", name))
		return dataset.Table{Name: name}, nil
	}
	if err != nil {
		return dataset.Table{}, fmt.Errorf("load %s: %w", name, err)
	}

	table, err := decodeCSV(name, file.Content)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("parse %s: %w", name, err)
	}
	table.Version = file.SHA

	r.logger.Debug("dataset loaded", zap.String("dataset", name), zap.Int("rows", len(table.Rows)), zap.String("sha", file.SHA))
	return table, nil
}

// Save commits the table as CSV on top of the version it was loaded at.
func (r *Repository) Save(ctx context.Context, table dataset.Table, message string) error {
	content, err := encodeCSV(table)
	if err != nil {
		return fmt.Errorf("encode %s: %w", table.Name, err)
	}

	err = r.client.PutFile(ctx, client.PutFileRequest{
		Path:    table.Name,
		Message: message,
		Content: content,
		SHA:     table.Version,
	})
	if errors.Is(err, client.ErrConflict) {
		return fmt.Errorf("save %s: %w: %v", table.Name, dataset.ErrVersionConflict, err)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", table.Name, err)
	}

	r.logger.Info("dataset committed", zap.String("dataset", table.Name), zap.Int("rows", len(table.Rows)), zap.String("message", message))
	return nil
}

func decodeCSV(name string, content []byte) (dataset.Table, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if len(bytes.TrimSpace(content)) == 0 {
		return dataset.Table{Name: name}, nil
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return dataset.Table{}, err
	}

	table := dataset.Table{Name: name, Header: records[0]}
	if len(records) > 1 {
		table.Rows = records[1:]
	}
	return table, nil
}

func encodeCSV(table dataset.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(table.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
