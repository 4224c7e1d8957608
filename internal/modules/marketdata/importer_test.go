package marketdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozlov/portsim/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeImportFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "Securities.csv"),
		"Ticker,Name,PartialShares,FixedPrice\n"+
			"XYZ,Test Corp,false,\n"+
			"CASH,Cash,true,1.0\n")

	writeFile(t, filepath.Join(dir, "quotes", "XYZ_SecurityPrices.csv"),
		"Date,Open,High,Low,Close,Volume,Adj Close\n"+
			"2020-01-06,9,11,9,10,1200,10\n"+
			"2020-01-07,10,12,10,11,900,11\n")

	writeFile(t, filepath.Join(dir, "quotes", "XYZ_SecurityDividends.csv"),
		"Date,Dividends\n2020-03-15,0.42\n")

	writeFile(t, filepath.Join(dir, "ModelPortfolios.csv"),
		"ModelPortfolioId,Name\nm1,60-40\n")
	writeFile(t, filepath.Join(dir, "m1_ModelPortfolioAssets.csv"),
		"Ticker,Allocation,CashReserve\nXYZ,0.6,\nCASH,0.4,1000\n")

	writeFile(t, filepath.Join(dir, "Portfolios.csv"),
		"PortfolioId,Name,TransactionFee\np1,My Portfolio,9.95\n")
	writeFile(t, filepath.Join(dir, "p1_Holdings.csv"),
		"Ticker,Units,BookCost\nXYZ,25,500\nCASH,10000,10000\n")

	writeFile(t, filepath.Join(dir, "SimulationParameters.csv"),
		"SimulationId,ModelPortfolioId,PortfolioId,InceptionDate,StopDate,ForceInitialRebalancing,SetInitialBookCost,Schedule\n"+
			"sim1,m1,p1,2020-01-15,2021-01-15,true,false,monthly\n")

	return dir
}

func TestImportAll(t *testing.T) {
	repo := newTestRepo(t)
	importer := NewImporter(repo, zerolog.Nop())
	require.NoError(t, importer.ImportAll(writeImportFixture(t)))

	sec, err := repo.GetSecurity("XYZ")
	require.NoError(t, err)
	assert.Equal(t, "Test Corp", sec.Name)
	require.Len(t, sec.Quotes(), 2)
	assert.Equal(t, 11.0, sec.Quotes()[0].High)
	assert.Equal(t, int64(900), sec.Quotes()[1].Volume)
	assert.Equal(t, 0.42, sec.DividendOn(domain.Date(2020, 3, 15)))

	cash, err := repo.GetSecurity("CASH")
	require.NoError(t, err)
	assert.True(t, cash.IsCash())
	assert.Empty(t, cash.Quotes(), "fixed-price securities carry no history")

	model, err := repo.GetModelPortfolio("m1")
	require.NoError(t, err)
	require.Len(t, model.Components, 2)
	assert.Equal(t, 1000.0, model.CashReserve())
	assert.NoError(t, model.Validate())

	p, err := repo.GetPortfolio("p1")
	require.NoError(t, err)
	assert.Equal(t, 9.95, p.TransactionFee)
	assert.Equal(t, 25.0, p.Asset("XYZ").Units())
	assert.Equal(t, 10000.0, p.CashAsset().BookValue)

	run, err := repo.GetRun("sim1")
	require.NoError(t, err)
	assert.Equal(t, domain.Date(2020, 1, 15), run.InceptionDate)
	assert.Equal(t, domain.ScheduleMonthly, run.Schedule)
	assert.True(t, run.ForceInitialRebalancing)
	assert.False(t, run.SetInitialBookCost)
}

func TestImportUnknownModelSecurity(t *testing.T) {
	repo := newTestRepo(t)
	dir := writeImportFixture(t)
	writeFile(t, filepath.Join(dir, "m1_ModelPortfolioAssets.csv"),
		"Ticker,Allocation,CashReserve\nNOPE,1.0,\n")

	importer := NewImporter(repo, zerolog.Nop())
	assert.Error(t, importer.ImportAll(dir))
}

func TestImportMissingPriceFileIsTolerated(t *testing.T) {
	repo := newTestRepo(t)
	dir := writeImportFixture(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "quotes", "XYZ_SecurityPrices.csv")))
	require.NoError(t, os.Remove(filepath.Join(dir, "quotes", "XYZ_SecurityDividends.csv")))

	importer := NewImporter(repo, zerolog.Nop())
	require.NoError(t, importer.ImportAll(dir))

	sec, err := repo.GetSecurity("XYZ")
	require.NoError(t, err)
	assert.Empty(t, sec.Quotes())
}

func TestParseDateFormats(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "2020-01-15", expected: "2020-01-15"},
		{input: "1/15/2020", expected: "2020-01-15"},
		{input: "01/15/2020", expected: "2020-01-15"},
	}
	for _, tt := range tests {
		d, err := parseDate(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, d.Format("2006-01-02"))
	}

	_, err := parseDate("15 Jan 2020")
	assert.Error(t, err)
}
