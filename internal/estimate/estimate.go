// Package estimate runs the survey-weighted analysis over the
// assembled cohort: analytic exclusions, design construction, the
// stratified prevalence tables with their minimum-cell gates, and the
// trend models.
package estimate

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/kshedden/dstream/dstream"
	"go.uber.org/zap"

	"github.com/brookluers/chdtrend/internal/nhanes"
	"github.com/brookluers/chdtrend/internal/report"
	"github.com/brookluers/chdtrend/internal/survey"
)

const (
	// Chunk size for reading the binary-column cohort
	csize = 100000

	// Minimum cell counts; a stratified estimate must exceed these
	// or it is suppressed rather than reported with unstable variance
	minAgeBandN  = 30
	minSubgroupN = 50
)

var sexLabels = []struct {
	code  float64
	label string
}{
	{1, "Male"},
	{2, "Female"},
}

var raceLabels = []struct {
	code  float64
	label string
}{
	{1, "Mexican American"},
	{2, "Other Hispanic"},
	{3, "Non-Hispanic White"},
	{4, "Non-Hispanic Black"},
	{5, "Other/Multi-racial"},
}

// cohortCols is the filtered analytic sample as parallel columns.
type cohortCols struct {
	age, sex, race, chd     []float64
	stratum, psu, wt, era   []float64
	htn, dm, lipid, obesity []float64
}

// Run computes every table and writes them under outputDir.
func Run(cohortDir, outputDir string, log *zap.Logger) error {

	cc, err := loadCohort(cohortDir, log)
	if err != nil {
		return err
	}
	log.Info("analytic sample ready", zap.Int("records", len(cc.chd)))

	des, err := survey.NewDesign(cc.designStrata(), cc.psu, cc.wt)
	if err != nil {
		return fmt.Errorf("estimate: build design: %w", err)
	}

	res := &report.Results{}
	computeByEra(des, cc, res, log)
	computeAgeStandardized(des, cc, res, log)
	computeSubgroups(des, cc, res, log)
	computeRiskFactors(des, cc, res, log)
	computeTrend(des, cc, res, log)

	if err := report.Write(outputDir, res); err != nil {
		return err
	}
	log.Info("tables written", zap.String("dir", filepath.Join(outputDir, "tables")))
	return nil
}

// loadCohort reads the binary-column cohort and applies the analytic
// exclusions: age >= 20, positive exam weight, non-missing CHD, and
// observed design variables.
func loadCohort(dir string, log *zap.Logger) (*cohortCols, error) {

	if _, err := os.Stat(filepath.Join(dir, "dtypes.json")); err != nil {
		return nil, fmt.Errorf("estimate: no assembled cohort at %s: %w", dir, err)
	}

	data := dstream.NewBCols(dir, csize).Done()

	agef := func(x interface{}, keep []bool) bool {
		age := x.([]float64)
		for i, a := range age {
			if math.IsNaN(a) || a < 20 {
				keep[i] = false
			}
		}
		return true
	}
	wtf := func(x interface{}, keep []bool) bool {
		wt := x.([]float64)
		for i, w := range wt {
			if !(w > 0) {
				keep[i] = false
			}
		}
		return true
	}
	chdf := func(x interface{}, keep []bool) bool {
		chd := x.([]float64)
		for i, c := range chd {
			if math.IsNaN(c) {
				keep[i] = false
			}
		}
		return true
	}
	// A nulled stratum or PSU excludes the record, it cannot be
	// placed in a variance unit.
	noDesign := 0
	designf := func(x interface{}, keep []bool) bool {
		v := x.([]float64)
		for i, u := range v {
			if math.IsNaN(u) {
				if keep[i] {
					noDesign++
				}
				keep[i] = false
			}
		}
		return true
	}
	data = dstream.Filter(data, map[string]dstream.FilterFunc{
		"Age": agef, "MECWeight": wtf, "CHD": chdf,
		"Stratum": designf, "PSU": designf,
	})
	data.Reset()
	data = dstream.MemCopy(data)

	col := func(name string) []float64 {
		data.Reset()
		return dstream.GetCol(data, name).([]float64)
	}

	cc := &cohortCols{
		age:     col("Age"),
		sex:     col("Sex"),
		race:    col("RaceEth"),
		chd:     col("CHD"),
		stratum: col("Stratum"),
		psu:     col("PSU"),
		wt:      col("MECWeight"),
		era:     col("EraRank"),
		htn:     col("Hypertension"),
		dm:      col("Diabetes"),
		lipid:   col("Hyperlipidemia"),
		obesity: col("Obesity"),
	}
	if noDesign > 0 {
		log.Warn("records missing design variables excluded", zap.Int("count", noDesign))
	}
	if len(cc.chd) == 0 {
		return nil, fmt.Errorf("estimate: no records survive the analytic exclusions")
	}
	return cc, nil
}

// designStrata keys the strata by era as well as stratum code.  The
// masked codes restart across survey releases, so the same
// (stratum, PSU) pair in different eras names different sampling
// units and must not be merged.
func (cc *cohortCols) designStrata() []float64 {
	s := make([]float64, len(cc.stratum))
	for i := range s {
		s[i] = cc.era[i]*1000 + cc.stratum[i]
	}
	return s
}

// cell computes one gated prevalence cell; a failed or undersized
// cell is skipped.  The count must exceed minN.
func cell(des *survey.Design, y []float64, domain []bool, minN int,
	key string, log *zap.Logger) (survey.Estimate, bool) {

	est, err := des.Prevalence(y, domain)
	if err != nil {
		log.Warn("cell skipped", zap.String("key", key), zap.Error(err))
		return survey.Estimate{}, false
	}
	if est.N <= minN {
		log.Info("cell below minimum size", zap.String("key", key), zap.Int("n", est.N))
		return survey.Estimate{}, false
	}
	return est, true
}

func (cc *cohortCols) inEra(rank int) []bool {
	d := make([]bool, len(cc.era))
	for i, e := range cc.era {
		d[i] = e == float64(rank)
	}
	return d
}

func and(a, b []bool) []bool {
	d := make([]bool, len(a))
	for i := range a {
		d[i] = a[i] && b[i]
	}
	return d
}

func computeByEra(des *survey.Design, cc *cohortCols, res *report.Results, log *zap.Logger) {
	for _, era := range nhanes.Eras() {
		if est, ok := cell(des, cc.chd, cc.inEra(era.Rank), 0, era.Label, log); ok {
			res.ByEra = append(res.ByEra, report.Row{Key: era.Label, Est: est})
		}
	}
}

func computeAgeStandardized(des *survey.Design, cc *cohortCols, res *report.Results, log *zap.Logger) {

	for _, era := range nhanes.Eras() {
		in := cc.inEra(era.Rank)
		byBand := make(map[string]survey.Estimate)
		for _, band := range survey.AgeBands() {
			dom := make([]bool, len(in))
			for i := range dom {
				dom[i] = in[i] && survey.AgeBand(cc.age[i]) == band
			}
			key := era.Label + "/" + band
			if est, ok := cell(des, cc.chd, dom, minAgeBandN, key, log); ok {
				byBand[band] = est
				res.ByAgeGroup = append(res.ByAgeGroup, report.Row{Key: key, Est: est})
			}
		}
		std, err := survey.Standardize(byBand)
		if err != nil {
			log.Warn("age standardization skipped", zap.String("era", era.Label), zap.Error(err))
			continue
		}
		res.AgeStd = append(res.AgeStd, report.Row{Key: era.Label, Est: std})
	}
}

func computeSubgroups(des *survey.Design, cc *cohortCols, res *report.Results, log *zap.Logger) {

	for _, era := range nhanes.Eras() {
		in := cc.inEra(era.Rank)

		for _, sx := range sexLabels {
			dom := make([]bool, len(in))
			for i := range dom {
				dom[i] = in[i] && cc.sex[i] == sx.code
			}
			key := era.Label + "/" + sx.label
			if est, ok := cell(des, cc.chd, dom, minSubgroupN, key, log); ok {
				res.BySex = append(res.BySex, report.Row{Key: key, Est: est})
			}
		}

		for _, rc := range raceLabels {
			dom := make([]bool, len(in))
			for i := range dom {
				dom[i] = in[i] && cc.race[i] == rc.code
			}
			key := era.Label + "/" + rc.label
			if est, ok := cell(des, cc.chd, dom, minSubgroupN, key, log); ok {
				res.ByRace = append(res.ByRace, report.Row{Key: key, Est: est})
			}
		}
	}
}

// computeRiskFactors tabulates risk-factor prevalence among CHD
// cases per era.  NHANES III lacks the component variables, so its
// cells drop out as empty domains.
func computeRiskFactors(des *survey.Design, cc *cohortCols, res *report.Results, log *zap.Logger) {

	factors := []struct {
		name string
		col  []float64
	}{
		{"Hypertension", cc.htn},
		{"Diabetes", cc.dm},
		{"Hyperlipidemia", cc.lipid},
		{"Obesity", cc.obesity},
	}

	for _, era := range nhanes.Eras() {
		in := cc.inEra(era.Rank)
		for _, f := range factors {
			dom := make([]bool, len(in))
			for i := range dom {
				dom[i] = in[i] && cc.chd[i] == 1 && !math.IsNaN(f.col[i])
			}
			key := era.Label + "/" + f.name
			if est, ok := cell(des, f.col, dom, minAgeBandN, key, log); ok {
				res.RiskFactor = append(res.RiskFactor, report.Row{Key: key, Est: est})
			}
		}
	}
}

// computeTrend fits the era-rank logistic models, unadjusted and
// adjusted for age band.
func computeTrend(des *survey.Design, cc *cohortCols, res *report.Results, log *zap.Logger) {

	n := len(cc.chd)
	icept := make([]float64, n)
	for i := range icept {
		icept[i] = 1
	}

	fit := func(model string, x [][]float64, names []string) {
		coefs, err := des.Logistic(cc.chd, x, names)
		if err != nil {
			log.Warn("trend model skipped", zap.String("model", model), zap.Error(err))
			return
		}
		for _, c := range coefs {
			res.Trend = append(res.Trend, report.TrendRow{Model: model, Coef: c})
		}
	}

	fit("unadjusted", [][]float64{icept, cc.era}, []string{"icept", "EraRank"})

	// Age-band dummies, 20-29 reference.
	x := [][]float64{icept, cc.era}
	names := []string{"icept", "EraRank"}
	for _, band := range survey.AgeBands()[1:] {
		dum := make([]float64, n)
		for i := range dum {
			if survey.AgeBand(cc.age[i]) == band {
				dum[i] = 1
			}
		}
		x = append(x, dum)
		names = append(names, "Age"+band)
	}
	fit("age_adjusted", x, names)
}
