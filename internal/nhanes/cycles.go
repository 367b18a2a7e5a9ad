// Package nhanes describes the NHANES survey cycles used by the CHD
// trend analysis: which cycles exist, which era each belongs to, and
// where each cycle's component files live on the CDC archive.
package nhanes

import "fmt"

// Component names for the continuous (1999+) cycles.  Each component
// is one XPT transport file per cycle.
const (
	Demo   = "DEMO"
	MCQ    = "MCQ"
	BPQ    = "BPQ"
	DIQ    = "DIQ"
	SMQ    = "SMQ"
	PAQ    = "PAQ"
	BMX    = "BMX"
	BPX    = "BPX"
	GHB    = "GHB"
	GLU    = "GLU"
	TCHOL  = "TCHOL"
	HDL    = "HDL"
	TRIGLY = "TRIGLY"
)

// Components lists every continuous-cycle component in download order.
var Components = []string{
	Demo, MCQ, BPQ, DIQ, SMQ, PAQ, BMX, BPX, GHB, GLU, TCHOL, HDL, TRIGLY,
}

// CycleIII is the NHANES III (1988-1994) cycle identifier.  Its raw
// data is a single fixed-width ASCII file rather than per-component
// XPT files.
const CycleIII = "1988-1994"

// AdultDat is the NHANES III adult interview file name.
const AdultDat = "adult.dat"

// Era is one of the five fixed multi-year groupings of cycles used as
// the unit of trend comparison.  Rank runs 1-5 and doubles as the
// continuous regressor in the trend models.
type Era struct {
	Rank  int
	Label string
}

var eras = []Era{
	{1, "Era1_1988-1994"},
	{2, "Era2_1999-2006"},
	{3, "Era3_2007-2014"},
	{4, "Era4a_2015-2020"},
	{5, "Era4b_2021-2023"},
}

// Eras returns the five eras in rank order.
func Eras() []Era {
	out := make([]Era, len(eras))
	copy(out, eras)
	return out
}

// EraByRank returns the era with the given rank, or false if the rank
// is outside 1-5.
func EraByRank(rank int) (Era, bool) {
	for _, e := range eras {
		if e.Rank == rank {
			return e, true
		}
	}
	return Era{}, false
}

// cycleEra maps every source cycle to its era rank.  Every record's
// era is determined solely by this table.
var cycleEra = map[string]int{
	CycleIII:    1,
	"1999-2000": 2,
	"2001-2002": 2,
	"2003-2004": 2,
	"2005-2006": 2,
	"2007-2008": 3,
	"2009-2010": 3,
	"2011-2012": 3,
	"2013-2014": 3,
	"2015-2016": 4,
	"2017-2020": 4,
	"2021-2023": 5,
}

// EraForCycle returns the era for a cycle identifier.
func EraForCycle(cycle string) (Era, error) {
	rank, ok := cycleEra[cycle]
	if !ok {
		return Era{}, fmt.Errorf("nhanes: unknown cycle %q", cycle)
	}
	e, _ := EraByRank(rank)
	return e, nil
}

// continuousCycles lists the continuous NHANES cycles in time order,
// with the release letter appended to component file names.  The
// 1999-2000 baseline release has no letter.
var continuousCycles = []struct {
	name   string
	letter string
}{
	{"1999-2000", ""},
	{"2001-2002", "B"},
	{"2003-2004", "C"},
	{"2005-2006", "D"},
	{"2007-2008", "E"},
	{"2009-2010", "F"},
	{"2011-2012", "G"},
	{"2013-2014", "H"},
	{"2015-2016", "I"},
	{"2017-2020", ""}, // pre-pandemic combined release, P_ prefix
	{"2021-2023", "L"},
}

// ContinuousCycles returns the continuous cycle identifiers in time
// order.
func ContinuousCycles() []string {
	var out []string
	for _, c := range continuousCycles {
		out = append(out, c.name)
	}
	return out
}

// AllCycles returns every cycle, NHANES III first.
func AllCycles() []string {
	return append([]string{CycleIII}, ContinuousCycles()...)
}

// Early-cycle laboratory components were released under legacy file
// names before the 2005-2006 cycle.
var labOverrides = map[string]map[string]string{
	"1999-2000": {GHB: "LAB10", GLU: "LAB10AM", TCHOL: "LAB13", HDL: "LAB13", TRIGLY: "LAB13AM"},
	"2001-2002": {GHB: "L10_B", GLU: "L10AM_B", TCHOL: "L13_B", HDL: "L13_B", TRIGLY: "L13AM_B"},
	"2003-2004": {GHB: "L10_C", GLU: "L10AM_C", TCHOL: "L13_C", HDL: "L13_C", TRIGLY: "L13AM_C"},
}

// The oscillometric blood pressure exam replaced the auscultatory
// protocol from 2017 onward.
var bpxOverrides = map[string]string{
	"2017-2020": "P_BPXO",
	"2021-2023": "BPXO_L",
}

// FileName returns the remote file name (without extension) for a
// component of a continuous cycle.
func FileName(cycle, component string) (string, error) {
	if ov, ok := labOverrides[cycle]; ok {
		if n, ok := ov[component]; ok {
			return n, nil
		}
	}
	if component == BPX {
		if n, ok := bpxOverrides[cycle]; ok {
			return n, nil
		}
	}
	for _, c := range continuousCycles {
		if c.name != cycle {
			continue
		}
		switch {
		case cycle == "2017-2020":
			return "P_" + component, nil
		case c.letter == "":
			return component, nil
		default:
			return component + "_" + c.letter, nil
		}
	}
	return "", fmt.Errorf("nhanes: unknown continuous cycle %q", cycle)
}

// FileURL returns the full download URL for a component of a
// continuous cycle.  base is the archive root, normally
// https://wwwn.cdc.gov.
func FileURL(base, cycle, component string) (string, error) {
	name, err := FileName(cycle, component)
	if err != nil {
		return "", err
	}
	switch cycle {
	case "2017-2020":
		return fmt.Sprintf("%s/Nchs/Data/Nhanes/Public/2017/DataFiles/%s.xpt", base, name), nil
	case "2021-2023":
		return fmt.Sprintf("%s/Nchs/Data/Nhanes/Public/2021/DataFiles/%s.xpt", base, name), nil
	default:
		return fmt.Sprintf("%s/Nchs/Nhanes/%s/%s.xpt", base, cycle, name), nil
	}
}

// AdultDatURL returns the download URL for the NHANES III adult
// interview file.
func AdultDatURL(base string) string {
	return base + "/nchs/data/nhanes3/1a/" + AdultDat
}
