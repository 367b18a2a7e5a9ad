/*
Package harmonize maps the cycle-native survey variables onto the
unified analysis schema.  Two rule sets exist: the continuous NHANES
cycles (1999 onward, XPT component files) and NHANES III (1988-1994,
a fixed-width interview file with different names and codings).
*/
package harmonize

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/brookluers/chdtrend/internal/cohort"
	"github.com/brookluers/chdtrend/internal/nhanes"
	"github.com/brookluers/chdtrend/internal/xpt"
)

// Harmonizer converts raw cycle files into unified records.
type Harmonizer struct {
	rawDir string
	log    *zap.Logger
}

// New returns a Harmonizer reading from the raw data cache.
func New(rawDir string, log *zap.Logger) *Harmonizer {
	return &Harmonizer{rawDir: rawDir, log: log}
}

// Run harmonizes every cycle with cached raw data and writes one
// stage file per cycle under processedDir.  Cycles whose raw files
// are absent are logged and skipped; producing no cycle at all is an
// error.
func (h *Harmonizer) Run(processedDir string) error {

	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return err
	}

	done := 0
	for _, cycle := range nhanes.AllCycles() {
		recs, err := h.Cycle(cycle)
		if err != nil {
			h.log.Warn("cycle not harmonized", zap.String("cycle", cycle), zap.Error(err))
			continue
		}
		if err := cohort.WriteStage(cohort.StagePath(processedDir, cycle), recs); err != nil {
			return fmt.Errorf("harmonize: write stage for %s: %w", cycle, err)
		}
		h.log.Info("harmonized cycle", zap.String("cycle", cycle), zap.Int("records", len(recs)))
		done++
	}

	if done == 0 {
		return fmt.Errorf("harmonize: no raw cycle data under %s", h.rawDir)
	}
	return nil
}

// Cycle harmonizes a single cycle.
func (h *Harmonizer) Cycle(cycle string) ([]cohort.Record, error) {
	if cycle == nhanes.CycleIII {
		return h.cycleIII()
	}
	return h.continuousCycle(cycle)
}

// component is one loaded XPT file with a respondent index.
type component struct {
	f   *xpt.File
	idx map[float64]int
}

// value returns a variable for one respondent, NaN when the
// component, the variable, or the respondent is absent.
func (c *component) value(name string, seqn float64) float64 {
	if c == nil {
		return math.NaN()
	}
	col, ok := c.f.Column(name)
	if !ok {
		return math.NaN()
	}
	i, ok := c.idx[seqn]
	if !ok || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// open loads one component file for a cycle, or nil if the file is a
// known gap (not downloaded).
func (h *Harmonizer) open(cycle, comp string) *component {

	name, err := nhanes.FileName(cycle, comp)
	if err != nil {
		return nil
	}
	path := filepath.Join(h.rawDir, cycle, name+".xpt")
	fid, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			h.log.Warn("component unreadable", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	defer fid.Close()

	f, err := xpt.Read(fid)
	if err != nil {
		h.log.Warn("component unparseable", zap.String("path", path), zap.Error(err))
		return nil
	}

	c := &component{f: f, idx: make(map[float64]int)}
	if col, ok := f.Column("SEQN"); ok {
		for i, s := range col {
			c.idx[s] = i
		}
	}
	return c
}

func (h *Harmonizer) continuousCycle(cycle string) ([]cohort.Record, error) {

	demo := h.open(cycle, nhanes.Demo)
	if demo == nil {
		return nil, fmt.Errorf("no DEMO file for %s", cycle)
	}
	seqn, ok := demo.f.Column("SEQN")
	if !ok {
		return nil, fmt.Errorf("DEMO file for %s lacks SEQN", cycle)
	}

	mcq := h.open(cycle, nhanes.MCQ)
	bpq := h.open(cycle, nhanes.BPQ)
	diq := h.open(cycle, nhanes.DIQ)
	smq := h.open(cycle, nhanes.SMQ)
	bmx := h.open(cycle, nhanes.BMX)
	bpx := h.open(cycle, nhanes.BPX)
	ghb := h.open(cycle, nhanes.GHB)
	glu := h.open(cycle, nhanes.GLU)
	tchol := h.open(cycle, nhanes.TCHOL)
	hdl := h.open(cycle, nhanes.HDL)
	trigly := h.open(cycle, nhanes.TRIGLY)

	recs := make([]cohort.Record, len(seqn))
	for i, s := range seqn {

		r := &recs[i]
		r.Seqn = s
		r.Cycle = cycle
		r.Age = demo.value("RIDAGEYR", s)
		r.Sex = demo.value("RIAGENDR", s)
		r.RaceEth = demo.value("RIDRETH1", s)
		r.MECWeight = demo.value("WTMEC2YR", s)
		r.Stratum = demo.value("SDMVSTRA", s)
		r.PSU = demo.value("SDMVPSU", s)

		r.CHD = Composite(
			mcq.value("MCQ160C", s),
			mcq.value("MCQ160D", s),
			mcq.value("MCQ160E", s),
		)

		sbp := meanObserved(
			bpx.value("BPXSY1", s), bpx.value("BPXSY2", s), bpx.value("BPXSY3", s))
		dbp := meanObserved(
			bpx.value("BPXDI1", s), bpx.value("BPXDI2", s), bpx.value("BPXDI3", s))
		r.Hypertension = hypertension(sbp, dbp, bpq.value("BPQ040A", s))

		r.Diabetes = diabetes(
			ghb.value("LBXGH", s), glu.value("LBXGLU", s),
			diq.value("DIQ050", s), diq.value("DIQ070", s), diq.value("DIQ010", s))

		tc := tchol.value("LBXTC", s)
		r.Hyperlipidemia = hyperlipidemia(tc,
			friedewaldLDL(tc, hdl.value("LBDHDD", s), trigly.value("LBXTR", s)))

		r.Obesity = obesity(bmx.value("BMXBMI", s))
		r.SmokingStatus = SmokingStatus(smq.value("SMQ020", s), smq.value("SMQ040", s))
	}

	return recs, nil
}

// NHANES coding for yes/no questionnaire items.
const (
	codeYes = 1
	codeNo  = 2
)

// Composite folds the three heart-condition questions into the CHD
// outcome: positive if any was affirmed, negative only if all three
// were denied, missing otherwise.
func Composite(chd, angina, mi float64) float64 {
	if chd == codeYes || angina == codeYes || mi == codeYes {
		return 1
	}
	if chd == codeNo && angina == codeNo && mi == codeNo {
		return 0
	}
	return math.NaN()
}

// SmokingStatus classifies 1=current, 2=former, 3=never from the
// lifetime-100-cigarettes and current-smoking items.
func SmokingStatus(smoke100, smokeNow float64) float64 {
	switch {
	case smoke100 == codeNo:
		return 3
	case smoke100 == codeYes && (smokeNow == 1 || smokeNow == 2):
		return 1
	case smoke100 == codeYes && smokeNow == 3:
		return 2
	}
	return math.NaN()
}

// hypertension follows the 2017 ACC/AHA thresholds: mean SBP >= 130,
// mean DBP >= 80, or reported BP medication.
func hypertension(sbp, dbp, bpMed float64) float64 {
	return anyTrue(sbp >= 130, dbp >= 80, bpMed == codeYes,
		observed(sbp, dbp, bpMed))
}

// diabetes: HbA1c >= 6.5%, fasting glucose >= 126 mg/dL, insulin or
// oral medication use, or a prior diagnosis.
func diabetes(hba1c, glucose, insulin, oralMed, told float64) float64 {
	return anyTrue(hba1c >= 6.5, glucose >= 126,
		insulin == codeYes, oralMed == codeYes, told == codeYes,
		observed(hba1c, glucose, insulin, oralMed, told))
}

// hyperlipidemia: total cholesterol >= 200 or calculated LDL >= 130.
func hyperlipidemia(tc, ldl float64) float64 {
	return anyTrue(tc >= 200, ldl >= 130, observed(tc, ldl))
}

func obesity(bmi float64) float64 {
	if math.IsNaN(bmi) {
		return math.NaN()
	}
	return anyTrue(bmi >= 30, true)
}

// friedewaldLDL estimates LDL as TC - HDL - TG/5, undefined when
// triglycerides reach 400 mg/dL.
func friedewaldLDL(tc, hdl, tg float64) float64 {
	if math.IsNaN(tc) || math.IsNaN(hdl) || math.IsNaN(tg) || tg >= 400 {
		return math.NaN()
	}
	return tc - hdl - tg/5
}

// anyTrue returns 1 if any condition holds, 0 if none do and at
// least one input was observed, NaN otherwise.  NaN comparisons are
// always false, so missing inputs can never assert a condition.
func anyTrue(conds ...bool) float64 {
	if len(conds) == 0 {
		return math.NaN()
	}
	obs := conds[len(conds)-1]
	for _, c := range conds[:len(conds)-1] {
		if c {
			return 1
		}
	}
	if !obs {
		return math.NaN()
	}
	return 0
}

func observed(xs ...float64) bool {
	for _, x := range xs {
		if !math.IsNaN(x) {
			return true
		}
	}
	return false
}

func meanObserved(xs ...float64) float64 {
	s, n := 0.0, 0
	for _, x := range xs {
		if !math.IsNaN(x) {
			s += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}
