package harmonize

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brookluers/chdtrend/internal/nhanes"
)

// adultLine builds one fixed-width adult interview line with the
// given field values at their published positions.
func adultLine(vals map[string]string) string {

	line := make([]byte, 1800)
	for i := range line {
		line[i] = ' '
	}
	for _, fl := range adultFields {
		v, ok := vals[fl.name]
		if !ok {
			continue
		}
		// Right-justify within the field.
		start := fl.end - len(v)
		copy(line[start:fl.end], v)
	}
	return string(line)
}

func writeAdultDat(t *testing.T, rawDir string, lines ...string) {
	t.Helper()
	dir := filepath.Join(rawDir, nhanes.CycleIII)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, nhanes.AdultDat), []byte(out), 0o644))
}

func TestCycleIII(t *testing.T) {

	rawDir := t.TempDir()
	writeAdultDat(t, rawDir,
		adultLine(map[string]string{
			"SEQN": "3", "DMARETHN": "2", "HSSEX": "2", "HSAGEIR": "63",
			"SDPPSU6": "1", "SDPSTRA6": "12", "WTPFEX6": "5213.44",
			"HAD1": "2", "HAD2": "2", "HAD3": "1",
			"HAR1": "1", "HAR3": "3",
		}),
		adultLine(map[string]string{
			"SEQN": "4", "DMARETHN": "3", "HSSEX": "1", "HSAGEIR": "41",
			"SDPPSU6": "2", "SDPSTRA6": "12", "WTPFEX6": "xx44", // malformed weight
			"HAD1": "2", "HAD2": "2", "HAD3": "2",
		}),
	)

	h := New(rawDir, zap.NewNop())
	recs, err := h.Cycle(nhanes.CycleIII)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	r := recs[0]
	assert.Equal(t, 3.0, r.Seqn)
	assert.Equal(t, 63.0, r.Age)
	assert.Equal(t, 2.0, r.Sex)
	assert.Equal(t, 4.0, r.RaceEth, "NH Black recoded onto the unified coding")
	assert.Equal(t, 1.0, r.CHD, "heart attack alone makes the composite positive")
	assert.Equal(t, 12.0, r.Stratum)
	assert.Equal(t, 1.0, r.PSU)
	assert.InDelta(t, 5213.44, r.MECWeight, 1e-9)
	assert.Equal(t, 2.0, r.SmokingStatus)
	assert.True(t, math.IsNaN(r.Obesity), "no body measures in the adult interview extract")
	assert.Equal(t, nhanes.CycleIII, r.Cycle)

	// Malformed weight nulls the field, not the record.
	r = recs[1]
	assert.Equal(t, 4.0, r.Seqn)
	assert.True(t, math.IsNaN(r.MECWeight))
	assert.Equal(t, 0.0, r.CHD)
	assert.Equal(t, 1.0, r.RaceEth, "Mexican American recoded onto the unified coding")
}

func TestCycleIIIMissingFile(t *testing.T) {
	h := New(t.TempDir(), zap.NewNop())
	_, err := h.Cycle(nhanes.CycleIII)
	assert.Error(t, err)
}

func TestFixedField(t *testing.T) {

	line := "ab 12 3.5"
	x, ok := fixedField(line, 4, 5)
	assert.True(t, ok)
	assert.Equal(t, 12.0, x)

	x, ok = fixedField(line, 7, 9)
	assert.True(t, ok)
	assert.Equal(t, 3.5, x)

	x, ok = fixedField(line, 1, 2)
	assert.False(t, ok, "non-numeric is malformed")
	assert.True(t, math.IsNaN(x))

	x, ok = fixedField(line, 3, 3)
	assert.True(t, ok, "blank is missing, not malformed")
	assert.True(t, math.IsNaN(x))

	x, ok = fixedField(line, 50, 60)
	assert.True(t, ok, "past end of line is missing")
	assert.True(t, math.IsNaN(x))
}
