package reporting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozlov/portsim/internal/database"
	"github.com/akozlov/portsim/internal/domain"
)

func sampleRecord(runID string, annualized float64) StatRecord {
	return StatRecord{
		RunID:     runID,
		StartDate: domain.Date(2020, 1, 15),
		Stats: domain.PortfolioStats{
			InitialValue:         10000,
			BookCost:             10200,
			MarketValue:          10600,
			DividendsPaid:        60,
			ManagementExpenses:   19.9,
			TotalReturn:          600,
			TotalReturnRate:      0.06,
			AnnualizedReturnRate: annualized,
		},
	}
}

func newTestStatsRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "stats.db"),
		Profile: database.ProfileStandard,
		Name:    "stats",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestStatsRoundTrip(t *testing.T) {
	repo := newTestStatsRepo(t)

	require.NoError(t, repo.SaveStats(sampleRecord("r1", 0.52)))
	require.NoError(t, repo.SaveStats(sampleRecord("r1", 0.48)))
	require.NoError(t, repo.SaveStats(sampleRecord("other", 0.1)))

	records, err := repo.GetStats("r1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 0.52, records[0].Stats.AnnualizedReturnRate)
	assert.Equal(t, 0.48, records[1].Stats.AnnualizedReturnRate)
	assert.Equal(t, domain.Date(2020, 1, 15), records[0].StartDate)
	assert.Equal(t, 10600.0, records[0].Stats.MarketValue)
}

func TestGetStatsEmpty(t *testing.T) {
	repo := newTestStatsRepo(t)
	records, err := repo.GetStats("missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAppendStatsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Stats.csv")

	require.NoError(t, AppendStatsCSV(path, sampleRecord("r1", 0.52)))
	require.NoError(t, AppendStatsCSV(path, sampleRecord("r2", 0.48)))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")

	require.Len(t, lines, 3, "header plus two rows")
	assert.Equal(t, strings.Join(statsHeader, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "r1,2020-01-15,10000.00,"))
	assert.True(t, strings.HasPrefix(lines[2], "r2,"))
}

func TestSummarize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, SweepSummary{}, Summarize(nil))
	})

	t.Run("single record has zero stddev", func(t *testing.T) {
		s := Summarize([]StatRecord{sampleRecord("r1", 0.2)})
		assert.Equal(t, 1, s.Runs)
		assert.InDelta(t, 0.2, s.Mean, 1e-9)
		assert.Equal(t, 0.0, s.StdDev)
	})

	t.Run("aggregates", func(t *testing.T) {
		s := Summarize([]StatRecord{
			sampleRecord("r1", 0.1),
			sampleRecord("r1", 0.2),
			sampleRecord("r1", 0.3),
		})
		assert.Equal(t, 3, s.Runs)
		assert.InDelta(t, 0.2, s.Mean, 1e-9)
		assert.InDelta(t, 0.1, s.StdDev, 1e-9)
		assert.InDelta(t, 0.1, s.Min, 1e-9)
		assert.InDelta(t, 0.3, s.Max, 1e-9)
	})
}

func TestLogHoldingsDoesNotPanic(t *testing.T) {
	p := domain.NewPortfolio("test", 0)
	cash := domain.NewAsset(domain.NewCashSecurity("CASH", "Cash", 1.0))
	cash.BookValue = 1000
	require.NoError(t, p.AddAsset(cash))

	LogHoldings(zerolog.Nop(), p)
	LogStats(zerolog.Nop(), "r1", domain.PortfolioStats{})
}
