// Package report serializes the computed prevalence tables to
// fixed-name delimited files and prints human-readable summaries.
// It is a pure sink; nothing here computes.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/brookluers/chdtrend/internal/survey"
)

// Row is one stratified prevalence estimate keyed by its stratum
// label ("Era3_2007-2014", "Era2_1999-2006/Female", ...).
type Row struct {
	Key string
	Est survey.Estimate
}

// TrendRow is one coefficient of a fitted trend model.
type TrendRow struct {
	Model string
	Coef  survey.Coef
}

// Results collects every table the estimator produces.
type Results struct {
	ByEra      []Row
	AgeStd     []Row
	BySex      []Row
	ByRace     []Row
	ByAgeGroup []Row
	RiskFactor []Row
	Trend      []TrendRow
}

// Table file names are fixed; only the output directory moves.
const (
	FileByEra      = "table1_chd_prevalence_by_era.csv"
	FileAgeStd     = "table2_age_standardized_by_era.csv"
	FileBySex      = "table3_chd_by_sex.csv"
	FileByRace     = "table4_chd_by_race.csv"
	FileTrend      = "table5_trend_tests.csv"
	FileRiskFactor = "table6_risk_factors_by_era.csv"
	FileByAgeGroup = "table7_chd_by_age_group.csv"
)

// estimateHeader is the fixed column order for prevalence tables.
var estimateHeader = []string{"key", "n", "estimate", "se", "ci_low", "ci_high"}

// Write emits every table under dir/tables and prints a short
// summary of each to stdout.
func Write(dir string, r *Results) error {

	tdir := filepath.Join(dir, "tables")
	if err := os.MkdirAll(tdir, 0o755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}

	for _, t := range []struct {
		file string
		rows []Row
	}{
		{FileByEra, r.ByEra},
		{FileAgeStd, r.AgeStd},
		{FileBySex, r.BySex},
		{FileByRace, r.ByRace},
		{FileRiskFactor, r.RiskFactor},
		{FileByAgeGroup, r.ByAgeGroup},
	} {
		if err := writeEstimates(filepath.Join(tdir, t.file), t.rows); err != nil {
			return err
		}
		printEstimates(t.file, t.rows)
	}

	if err := writeTrend(filepath.Join(tdir, FileTrend), r.Trend); err != nil {
		return err
	}
	printTrend(r.Trend)

	return nil
}

func writeEstimates(path string, rows []Row) error {

	fid, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer fid.Close()

	w := csv.NewWriter(fid)
	if err := w.Write(estimateHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Key,
			strconv.Itoa(r.Est.N),
			fmtF(r.Est.Value),
			fmtF(r.Est.SE),
			fmtF(r.Est.Lo),
			fmtF(r.Est.Hi),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeTrend(path string, rows []TrendRow) error {

	fid, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	defer fid.Close()

	w := csv.NewWriter(fid)
	if err := w.Write([]string{"model", "term", "coef", "se", "t", "p"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Model,
			r.Coef.Name,
			fmtF(r.Coef.Est),
			fmtF(r.Coef.SE),
			fmtF(r.Coef.T),
			fmtF(r.Coef.P),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func fmtF(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func printEstimates(name string, rows []Row) {
	fmt.Printf("\n[%s]\n", name)
	for _, r := range rows {
		fmt.Printf("  %-32s n=%-7d %6.2f%%  (%.2f%% - %.2f%%)\n",
			r.Key, r.Est.N, 100*r.Est.Value, 100*r.Est.Lo, 100*r.Est.Hi)
	}
}

func printTrend(rows []TrendRow) {
	fmt.Printf("\n[%s]\n", FileTrend)
	for _, r := range rows {
		fmt.Printf("  %-14s %-12s coef=%9.5f  se=%8.5f  t=%7.3f  p=%.4f\n",
			r.Model, r.Coef.Name, r.Coef.Est, r.Coef.SE, r.Coef.T, r.Coef.P)
	}
}
