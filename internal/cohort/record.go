// Package cohort defines the unified respondent record and the
// on-disk forms it moves through: gzipped gob stage files per cycle,
// and the assembled binary-column cohort read by the estimator.
package cohort

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// Record is one respondent on the unified schema.  Numeric fields use
// NaN for missing; codes follow the continuous NHANES conventions
// (Sex 1=male 2=female; RaceEth 1=Mexican American, 2=Other Hispanic,
// 3=NH White, 4=NH Black, 5=Other).
type Record struct {

	// Respondent sequence number within the source cycle
	Seqn float64

	// Age in years at screening
	Age float64

	Sex     float64
	RaceEth float64

	// CHD composite: 1 if any of coronary heart disease, angina or
	// heart attack was affirmed, 0 if all three were denied, NaN
	// otherwise
	CHD float64

	// Masked variance units
	Stratum float64
	PSU     float64

	// MEC exam weight
	MECWeight float64

	// Risk-factor indicators (1/0/NaN)
	Hypertension   float64
	Diabetes       float64
	Hyperlipidemia float64
	Obesity        float64

	// 1=current, 2=former, 3=never
	SmokingStatus float64

	// Source cycle, e.g. "2013-2014"
	Cycle string
}

// WriteStage writes records for one cycle as a gzipped gob stream.
func WriteStage(path string, recs []Record) error {

	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fid.Close()

	zw := gzip.NewWriter(fid)
	enc := gob.NewEncoder(zw)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			zw.Close()
			return fmt.Errorf("cohort: encode record: %w", err)
		}
	}
	return zw.Close()
}

// ReadStage reads one cycle's stage file back.
func ReadStage(path string) ([]Record, error) {

	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()

	zr, err := gzip.NewReader(fid)
	if err != nil {
		return nil, fmt.Errorf("cohort: open stage file: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var recs []Record
	for {
		var r Record
		err := dec.Decode(&r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cohort: decode record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, nil
}
