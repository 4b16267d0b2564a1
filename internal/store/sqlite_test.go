package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faustostangler/FL2-sub000/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func quarter(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func rawRow(company string, q time.Time, version int, frame, account string, value float64) model.StatementRow {
	return model.StatementRow{
		CompanyName: company,
		Quarter:     q,
		Version:     version,
		NSDType:     model.GroupIndividual,
		Frame:       frame,
		Account:     account,
		Description: "Conta " + account,
		Value:       value,
		NSD:         1000,
	}
}

func TestSaveCompaniesIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := model.Company{
		CVMCode:     "9512",
		CompanyName: "PETROBRAS",
		TradingName: "PETROBRAS",
		TickerCodes: []string{"PETR3", "PETR4"},
		ISINCodes:   []string{"BRPETRACNOR9"},
		DateListing: time.Date(1977, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveCompanies(ctx, []model.Company{c}))

	c.Website = "https://petrobras.com.br"
	require.NoError(t, s.SaveCompanies(ctx, []model.Company{c}))

	got, err := s.ListCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://petrobras.com.br", got[0].Website)
	assert.Equal(t, []string{"PETR3", "PETR4"}, got[0].TickerCodes)
	assert.Equal(t, c.DateListing, got[0].DateListing.UTC())

	one, err := s.GetCompany(ctx, "9512")
	require.NoError(t, err)
	assert.Equal(t, "PETROBRAS", one.CompanyName)

	_, err = s.GetCompany(ctx, "404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveNSDsAndMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, sent, err := s.MaxNSD(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, sent.IsZero())

	nsds := []model.NSD{
		{NSD: 100, CompanyName: "PETROBRAS", Quarter: quarter(2024, 3, 31), Version: 1,
			NSDType: model.NSDTypeITR, SentDate: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{NSD: 101, CompanyName: "AMBEV", Quarter: quarter(2024, 3, 31), Version: 1,
			NSDType: model.NSDTypeDFP, SentDate: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, s.SaveNSDs(ctx, nsds))

	n, sent, err = s.MaxNSD(ctx)
	require.NoError(t, err)
	assert.Equal(t, 101, n)
	assert.Equal(t, nsds[1].SentDate, sent)

	count, err := s.CountNSDsSince(ctx, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	nums, err := s.ListNSDNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 101}, nums)

	itrs, err := s.ListNSDsByTypes(ctx, []string{model.NSDTypeITR})
	require.NoError(t, err)
	require.Len(t, itrs, 1)
	assert.Equal(t, 100, itrs[0].NSD)

	got, err := s.GetNSD(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "AMBEV", got.CompanyName)
}

func TestRawUpsertPreservesProcessedOnSameVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := rawRow("PETROBRAS", quarter(2024, 3, 31), 1, "Balanço Patrimonial Ativo", "1.01", 1000)
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{row}))

	// mark processed
	require.NoError(t, s.SaveNormalizedAndMark(ctx, "PETROBRAS", nil))

	// re-fetch of the same version must not reset processed
	row.Value = 1001
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{row}))

	pending, err := s.ListPendingCompanies(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rows, err := s.LoadCompanyStatements(ctx, "PETROBRAS")
	require.NoError(t, err)
	assert.Empty(t, rows, "no unprocessed year, nothing to load")
}

func TestRawInsertTriggerAddsPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", quarter(2024, 3, 31), 1, "Balanço Patrimonial Ativo", "1.01", 1000),
		rawRow("AMBEV", quarter(2024, 3, 31), 1, "Balanço Patrimonial Ativo", "1.01", 500),
	}))

	pending, err := s.ListPendingCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMBEV", "PETROBRAS"}, pending)
}

func TestMarkProcessedClearsPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := quarter(2024, 3, 31)
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", q, 1, "Balanço Patrimonial Ativo", "1.01", 1000),
		rawRow("PETROBRAS", q, 1, "Balanço Patrimonial Ativo", "1.02", 2000),
	}))

	norm := []model.NormalizedRow{{
		StatementRow:     rawRow("PETROBRAS", q, 1, "Balanço Patrimonial Ativo", "1.01", 1000),
		StandardCriteria: "startswith:1.01",
	}}
	require.NoError(t, s.SaveNormalizedAndMark(ctx, "PETROBRAS", norm))

	pending, err := s.ListPendingCompanies(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.ListNormalized(ctx, "PETROBRAS")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "startswith:1.01", got[0].StandardCriteria)
	assert.Nil(t, got[0].OriginalValue)
}

func TestNewVersionReopensPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := quarter(2024, 3, 31)
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", q, 1, "Balanço Patrimonial Ativo", "1.01", 1000),
	}))
	require.NoError(t, s.SaveNormalizedAndMark(ctx, "PETROBRAS", nil))

	// a re-presentation arrives: same key except version
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", q, 2, "Balanço Patrimonial Ativo", "1.01", 1100),
	}))

	pending, err := s.ListPendingCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PETROBRAS"}, pending)
}

func TestLoadCompanyStatementsPullsWholeYear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 2023 fully processed, 2024 has one unprocessed quarter
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", quarter(2023, 3, 31), 1, "DRE", "3.01", 10),
		rawRow("PETROBRAS", quarter(2023, 12, 31), 1, "DRE", "3.01", 40),
	}))
	require.NoError(t, s.SaveNormalizedAndMark(ctx, "PETROBRAS", nil))

	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", quarter(2024, 3, 31), 1, "DRE", "3.01", 15),
		rawRow("PETROBRAS", quarter(2024, 6, 30), 1, "DRE", "3.01", 30),
	}))

	rows, err := s.LoadCompanyStatements(ctx, "PETROBRAS")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, 2024, r.Quarter.Year())
	}
}

func TestLoadCompanyStatementsIncludesProcessedSiblings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Q1 processed, Q2 pending: both must come back so the quarter
	// adjustment sees the full year.
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", quarter(2024, 3, 31), 1, "DRE", "3.01", 15),
	}))
	require.NoError(t, s.SaveNormalizedAndMark(ctx, "PETROBRAS", nil))
	require.NoError(t, s.SaveRawStatements(ctx, []model.StatementRow{
		rawRow("PETROBRAS", quarter(2024, 6, 30), 1, "DRE", "3.01", 30),
	}))

	rows, err := s.LoadCompanyStatements(ctx, "PETROBRAS")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
