package harmonize

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brookluers/chdtrend/internal/cohort"
	"github.com/brookluers/chdtrend/internal/nhanes"
)

// NHANES III adult interview file layout, 1-indexed inclusive column
// ranges from the published SAS input statement.
var adultFields = []struct {
	name       string
	start, end int
}{
	{"SEQN", 1, 5},
	{"DMARETHN", 12, 12},
	{"HSSEX", 15, 15},
	{"HSAGEIR", 18, 19},
	{"SDPPSU6", 43, 43},
	{"SDPSTRA6", 44, 45},
	{"WTPFEX6", 61, 69},
	{"HAD1", 1561, 1561},
	{"HAD2", 1562, 1562},
	{"HAD3", 1563, 1563},
	{"HAR1", 1707, 1707},
	{"HAR3", 1712, 1712},
}

// NHANES III race coding (1=NH White, 2=NH Black, 3=Mexican
// American, 4=Other) recoded onto the continuous-cycle values.
var raceRecode = map[float64]float64{1: 3, 2: 4, 3: 1, 4: 5}

// cycleIII harmonizes the 1988-1994 adult file.
func (h *Harmonizer) cycleIII() ([]cohort.Record, error) {

	path := filepath.Join(h.rawDir, nhanes.CycleIII, nhanes.AdultDat)
	fid, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("no adult file for %s: %w", nhanes.CycleIII, err)
	}
	defer fid.Close()

	var recs []cohort.Record
	malformed := 0

	sc := bufio.NewScanner(fid)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		v := make(map[string]float64, len(adultFields))
		for _, fl := range adultFields {
			x, ok := fixedField(line, fl.start, fl.end)
			if !ok {
				// Field nulled, record retained.
				malformed++
			}
			v[fl.name] = x
		}

		race := math.NaN()
		if rc, ok := raceRecode[v["DMARETHN"]]; ok {
			race = rc
		}

		recs = append(recs, cohort.Record{
			Seqn:           v["SEQN"],
			Age:            v["HSAGEIR"],
			Sex:            v["HSSEX"],
			RaceEth:        race,
			CHD:            Composite(v["HAD1"], v["HAD2"], v["HAD3"]),
			Stratum:        v["SDPSTRA6"],
			PSU:            v["SDPPSU6"],
			MECWeight:      v["WTPFEX6"],
			Hypertension:   math.NaN(),
			Diabetes:       math.NaN(),
			Hyperlipidemia: math.NaN(),
			Obesity:        math.NaN(),
			SmokingStatus:  SmokingStatus(v["HAR1"], v["HAR3"]),
			Cycle:          nhanes.CycleIII,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read adult file: %w", err)
	}
	if malformed > 0 {
		h.log.Warn("malformed fields nulled", zap.Int("count", malformed))
	}

	return recs, nil
}

// fixedField extracts a 1-indexed inclusive column range as a number.
// Blank is missing (NaN, ok); a non-numeric value is malformed (NaN,
// not ok).
func fixedField(line string, start, end int) (float64, bool) {

	if start > len(line) {
		return math.NaN(), true
	}
	if end > len(line) {
		end = len(line)
	}
	s := strings.TrimSpace(line[start-1 : end])
	if s == "" {
		return math.NaN(), true
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return x, true
}
