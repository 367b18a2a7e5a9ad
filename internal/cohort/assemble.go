package cohort

import (
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/brookluers/chdtrend/internal/nhanes"
)

// Columns lists the assembled cohort's variables in file order.  The
// estimator selects from these by name.
var Columns = []string{
	"Seqn", "Age", "Sex", "RaceEth", "CHD", "Stratum", "PSU", "MECWeight",
	"EraRank", "Hypertension", "Diabetes", "Hyperlipidemia", "Obesity",
	"SmokingStatus",
}

// columnValues returns one row in Columns order.
func columnValues(r *Record, eraRank float64) []float64 {
	return []float64{
		r.Seqn, r.Age, r.Sex, r.RaceEth, r.CHD, r.Stratum, r.PSU,
		r.MECWeight, eraRank, r.Hypertension, r.Diabetes,
		r.Hyperlipidemia, r.Obesity, r.SmokingStatus,
	}
}

// StagePath returns the harmonized stage file path for a cycle.
func StagePath(processedDir, cycle string) string {
	return filepath.Join(processedDir, cycle+".gob.gz")
}

// Assemble concatenates every cycle's harmonized stage file, tags
// each record with its era rank, and persists the result as a
// binary-column directory under cohortDir.  A missing stage file is a
// logged gap; an empty cohort is fatal.
func Assemble(processedDir, cohortDir string, log *zap.Logger) error {

	var cols [][]float64
	for range Columns {
		cols = append(cols, nil)
	}

	total := 0
	for _, cycle := range nhanes.AllCycles() {
		era, err := nhanes.EraForCycle(cycle)
		if err != nil {
			return err
		}
		recs, err := ReadStage(StagePath(processedDir, cycle))
		if os.IsNotExist(err) {
			log.Warn("no stage file for cycle", zap.String("cycle", cycle))
			continue
		}
		if err != nil {
			return fmt.Errorf("cohort: read stage for %s: %w", cycle, err)
		}
		for i := range recs {
			for j, v := range columnValues(&recs[i], float64(era.Rank)) {
				cols[j] = append(cols[j], v)
			}
		}
		total += len(recs)
		log.Info("assembled cycle", zap.String("cycle", cycle),
			zap.String("era", era.Label), zap.Int("records", len(recs)))
	}

	if total == 0 {
		return fmt.Errorf("cohort: no harmonized cycles found under %s", processedDir)
	}

	if err := writeBCols(cohortDir, Columns, cols); err != nil {
		return err
	}
	log.Info("cohort written", zap.String("dir", cohortDir), zap.Int("records", total))
	return nil
}

// writeBCols stores each column as gzipped little-endian float64 and
// records the column types in dtypes.json, the layout dstream's
// NewBCols reads back.
func writeBCols(dir string, names []string, cols [][]float64) error {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	dt := make(map[string]string)
	for j, na := range names {
		if err := writeColumn(filepath.Join(dir, na+".bin.gz"), cols[j]); err != nil {
			return fmt.Errorf("cohort: write column %s: %w", na, err)
		}
		dt[na] = "float64"
	}

	fid, err := os.Create(filepath.Join(dir, "dtypes.json"))
	if err != nil {
		return err
	}
	defer fid.Close()
	return json.NewEncoder(fid).Encode(&dt)
}

func writeColumn(path string, x []float64) error {

	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fid.Close()

	zw := gzip.NewWriter(fid)
	if err := binary.Write(zw, binary.LittleEndian, x); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
