package cohort

import (
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleRecords(cycle string) []Record {
	return []Record{
		{Seqn: 1, Age: 52, Sex: 1, RaceEth: 3, CHD: 0, Stratum: 5, PSU: 1,
			MECWeight: 20312.5, Hypertension: 1, Diabetes: 0, Hyperlipidemia: 1,
			Obesity: 0, SmokingStatus: 3, Cycle: cycle},
		{Seqn: 2, Age: 71, Sex: 2, RaceEth: 4, CHD: 1, Stratum: 5, PSU: 2,
			MECWeight: 881.25, Hypertension: math.NaN(), Diabetes: math.NaN(),
			Hyperlipidemia: math.NaN(), Obesity: math.NaN(),
			SmokingStatus: math.NaN(), Cycle: cycle},
	}
}

func TestStageRoundTrip(t *testing.T) {

	path := filepath.Join(t.TempDir(), "2013-2014.gob.gz")
	want := sampleRecords("2013-2014")
	require.NoError(t, WriteStage(path, want))

	got, err := ReadStage(path)
	require.NoError(t, err)
	require.Len(t, got, len(want))

	assert.Equal(t, want[0], got[0])
	assert.Equal(t, want[1].Seqn, got[1].Seqn)
	assert.Equal(t, want[1].Cycle, got[1].Cycle)
	assert.True(t, math.IsNaN(got[1].Hypertension), "NaN survives the stage file")
}

// readColumn reads one binary column back the same way the estimator
// will: gzip over little-endian float64.
func readColumn(t *testing.T, path string) []float64 {
	t.Helper()

	fid, err := os.Open(path)
	require.NoError(t, err)
	defer fid.Close()
	zr, err := gzip.NewReader(fid)
	require.NoError(t, err)
	defer zr.Close()

	var out []float64
	for {
		var x float64
		err := binary.Read(zr, binary.LittleEndian, &x)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, x)
	}
	return out
}

func TestAssemble(t *testing.T) {

	processed := t.TempDir()
	cohortDir := filepath.Join(t.TempDir(), "cohort")

	require.NoError(t, WriteStage(StagePath(processed, "1988-1994"), sampleRecords("1988-1994")))
	require.NoError(t, WriteStage(StagePath(processed, "2013-2014"), sampleRecords("2013-2014")))
	require.NoError(t, WriteStage(StagePath(processed, "2021-2023"), sampleRecords("2021-2023")))

	require.NoError(t, Assemble(processed, cohortDir, zap.NewNop()))

	// Every declared column materializes with one value per record.
	var dt map[string]string
	fid, err := os.Open(filepath.Join(cohortDir, "dtypes.json"))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(fid).Decode(&dt))
	fid.Close()
	require.Len(t, dt, len(Columns))
	for _, na := range Columns {
		assert.Equal(t, "float64", dt[na])
	}

	age := readColumn(t, filepath.Join(cohortDir, "Age.bin.gz"))
	require.Len(t, age, 6, "no record is silently dropped")
	assert.Equal(t, []float64{52, 71, 52, 71, 52, 71}, age)

	// Era ranks follow the fixed cycle lookup, cycles in time order.
	era := readColumn(t, filepath.Join(cohortDir, "EraRank.bin.gz"))
	assert.Equal(t, []float64{1, 1, 3, 3, 5, 5}, era)

	wt := readColumn(t, filepath.Join(cohortDir, "MECWeight.bin.gz"))
	assert.InDelta(t, 20312.5, wt[0], 1e-9)

	smoke := readColumn(t, filepath.Join(cohortDir, "SmokingStatus.bin.gz"))
	assert.True(t, math.IsNaN(smoke[1]), "NaN survives the binary columns")
}

func TestAssembleEmptyIsFatal(t *testing.T) {
	err := Assemble(t.TempDir(), filepath.Join(t.TempDir(), "cohort"), zap.NewNop())
	assert.Error(t, err)
}
