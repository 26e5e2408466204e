package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inhapress/stockledger/internal/config"
	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/repository/dataset"
	"github.com/inhapress/stockledger/internal/service/reporting"
)

type fakeReports struct{ months []string }

func (f *fakeReports) MonthlyReport(_ context.Context, month string) (models.MonthlyReport, error) {
	if month == "bad" {
		return models.MonthlyReport{}, errors.New("invalid month")
	}
	f.months = append(f.months, month)
	return models.MonthlyReport{Month: month, NetProfit: 1}, nil
}

type fakeArchive struct{ saved []models.MonthlyReport }

func (f *fakeArchive) SaveMonthlyReport(_ context.Context, r models.MonthlyReport) error {
	f.saved = append(f.saved, r)
	return nil
}

func TestPreviousMonth(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	assert.Equal(t, "2024-02", PreviousMonth(time.Date(2024, 3, 31, 23, 0, 0, 0, kst)))
	assert.Equal(t, "2023-12", PreviousMonth(time.Date(2024, 1, 1, 0, 10, 0, 0, kst)))
}

func TestArchivePreviousMonth(t *testing.T) {
	reports, archive := &fakeReports{}, &fakeArchive{}
	s := NewScheduler(config.ReportingConfig{}, time.UTC, reports, archive, nil, nil)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 0, 10, 0, 0, time.UTC) }

	s.archivePreviousMonth()

	require.Len(t, archive.saved, 1)
	assert.Equal(t, "2024-04", archive.saved[0].Month)
}

func TestArchive_Errors(t *testing.T) {
	s := NewScheduler(config.ReportingConfig{}, time.UTC, &fakeReports{}, nil, nil, nil)
	assert.Error(t, s.Archive(context.Background(), "2024-04"))

	s = NewScheduler(config.ReportingConfig{}, time.UTC, &fakeReports{}, &fakeArchive{}, nil, nil)
	assert.Error(t, s.Archive(context.Background(), "bad"))
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := NewScheduler(config.ReportingConfig{ArchiveSchedule: "every day"}, time.UTC, &fakeReports{}, &fakeArchive{}, nil, nil)
	assert.Error(t, s.Start())

	s = NewScheduler(config.ReportingConfig{ArchiveSchedule: "10 0 1 * *"}, time.UTC, &fakeReports{}, &fakeArchive{}, nil, nil)
	require.NoError(t, s.Start())
	s.Stop()
}

type unreadableLog struct {
	dataset.Store
}

func (s unreadableLog) Load(ctx context.Context, name string) (dataset.Table, error) {
	if name == "transactions.csv" {
		return dataset.Table{}, errors.New("github: 502 bad gateway")
	}
	return s.Store.Load(ctx, name)
}

func TestArchive_KeepsStoredReportWhenLogUnreadable(t *testing.T) {
	store := unreadableLog{Store: dataset.NewMemoryStore(dataset.Table{
		Name:   "inventory.csv",
		Header: []string{"책 이름", "ISBN", "가격", "현재 수량", "안전 재고"},
		Rows:   [][]string{{"A", "978-1", "1000", "3", "1"}},
	})}
	reports := reporting.NewService(store, dataset.NewCodec(time.UTC), dataset.DefaultNames(), reporting.CancelIncreaseAsCost, nil)
	archive := &fakeArchive{}
	s := NewScheduler(config.ReportingConfig{}, time.UTC, reports, archive, nil, nil)

	err := s.Archive(context.Background(), "2024-03")
	assert.ErrorIs(t, err, reporting.ErrHistoryUnavailable)
	assert.Empty(t, archive.saved)
}
