package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brookluers/chdtrend/internal/survey"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fid, err := os.Open(path)
	require.NoError(t, err)
	defer fid.Close()
	recs, err := csv.NewReader(fid).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestWrite(t *testing.T) {

	dir := t.TempDir()
	res := &Results{
		ByEra: []Row{
			{Key: "Era1_1988-1994", Est: survey.Estimate{N: 1200, Cases: 84,
				Value: 0.07, SE: 0.005, Lo: 0.0602, Hi: 0.0798}},
		},
		Trend: []TrendRow{
			{Model: "unadjusted", Coef: survey.Coef{
				Name: "EraRank", Est: -0.081, SE: 0.02, T: -4.05, P: 0.0001}},
		},
	}

	require.NoError(t, Write(dir, res))

	// Every table file exists, rows or not.
	for _, name := range []string{FileByEra, FileAgeStd, FileBySex,
		FileByRace, FileTrend, FileRiskFactor, FileByAgeGroup} {
		_, err := os.Stat(filepath.Join(dir, "tables", name))
		assert.NoError(t, err, name)
	}

	byEra := readCSV(t, filepath.Join(dir, "tables", FileByEra))
	require.Len(t, byEra, 2)
	assert.Equal(t, []string{"key", "n", "estimate", "se", "ci_low", "ci_high"}, byEra[0])
	assert.Equal(t, []string{"Era1_1988-1994", "1200", "0.070000",
		"0.005000", "0.060200", "0.079800"}, byEra[1])

	// An empty table is header-only.
	bySex := readCSV(t, filepath.Join(dir, "tables", FileBySex))
	require.Len(t, bySex, 1)

	trend := readCSV(t, filepath.Join(dir, "tables", FileTrend))
	require.Len(t, trend, 2)
	assert.Equal(t, []string{"model", "term", "coef", "se", "t", "p"}, trend[0])
	assert.Equal(t, []string{"unadjusted", "EraRank", "-0.081000",
		"0.020000", "-4.050000", "0.000100"}, trend[1])
}
