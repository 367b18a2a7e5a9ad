/*
Package xpt reads version 5 SAS transport (XPORT) files, the format
the NHANES archive publishes its per-cycle component files in.

A transport file is a sequence of 80-byte card-image records: a
library header, a member header, one 140-byte NAMESTR entry per
variable, an observation header, and then fixed-length rows.  Numeric
values are stored as truncated IBM System/360 doubles.  Only numeric
variables are materialized; NHANES analysis variables are all numeric.
*/
package xpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	recordLen  = 80
	namestrLen = 140
)

// variable describes one column of the member dataset.
type variable struct {
	name    string
	numeric bool
	length  int
	pos     int
}

// File is a parsed transport member.
type File struct {
	// Names lists every variable in file order, character
	// variables included.
	Names []string

	// Numeric holds the numeric columns, missing values as NaN.
	Numeric map[string][]float64

	// NumRows is the observation count.
	NumRows int
}

// Read parses a single-member transport file.
func Read(r io.Reader) (*File, error) {

	rd := &recordReader{r: r}

	if err := rd.expect("HEADER RECORD*******LIBRARY HEADER RECORD!!!!!!!"); err != nil {
		return nil, err
	}
	// Two real-header records: SAS version/OS and modification date.
	if err := rd.skip(2); err != nil {
		return nil, err
	}

	if err := rd.expect("HEADER RECORD*******MEMBER  HEADER RECORD!!!!!!!"); err != nil {
		return nil, err
	}
	if err := rd.expect("HEADER RECORD*******DSCRPTR HEADER RECORD!!!!!!!"); err != nil {
		return nil, err
	}
	// Member name/date records.
	if err := rd.skip(2); err != nil {
		return nil, err
	}

	rec, err := rd.next()
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(rec, []byte("HEADER RECORD*******NAMESTR HEADER RECORD!!!!!!!")) {
		return nil, fmt.Errorf("xpt: malformed namestr header record")
	}
	// Variable count lives in columns 55-58 of the namestr header.
	nvar := 0
	if _, err := fmt.Sscanf(string(bytes.TrimSpace(rec[54:58])), "%d", &nvar); err != nil || nvar <= 0 {
		return nil, fmt.Errorf("xpt: bad variable count in namestr header")
	}

	vars, err := rd.readNamestrs(nvar)
	if err != nil {
		return nil, err
	}

	if err := rd.expect("HEADER RECORD*******OBS     HEADER RECORD!!!!!!!"); err != nil {
		return nil, err
	}

	f := &File{Numeric: make(map[string][]float64)}
	rowLen := 0
	for _, v := range vars {
		f.Names = append(f.Names, v.name)
		if v.numeric {
			f.Numeric[v.name] = nil
		}
		rowLen += v.length
	}
	if rowLen == 0 {
		return nil, fmt.Errorf("xpt: zero-length observation record")
	}

	// Observations run to end of file; the final 80-byte record is
	// padded with spaces.
	for {
		row := make([]byte, rowLen)
		n, err := io.ReadFull(rd.r, row)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			if allBlank(row[:n]) {
				break
			}
			return nil, fmt.Errorf("xpt: truncated observation record")
		}
		if err != nil {
			return nil, err
		}
		if allBlank(row) {
			// Trailing pad.
			break
		}
		for _, v := range vars {
			if !v.numeric {
				continue
			}
			raw := row[v.pos : v.pos+v.length]
			f.Numeric[v.name] = append(f.Numeric[v.name], ibmFloat(raw))
		}
		f.NumRows++
	}

	return f, nil
}

// Column returns a numeric column by name.
func (f *File) Column(name string) ([]float64, bool) {
	c, ok := f.Numeric[name]
	return c, ok
}

type recordReader struct {
	r io.Reader
}

func (rd *recordReader) next() ([]byte, error) {
	rec := make([]byte, recordLen)
	if _, err := io.ReadFull(rd.r, rec); err != nil {
		return nil, fmt.Errorf("xpt: short header record: %w", err)
	}
	return rec, nil
}

func (rd *recordReader) expect(prefix string) error {
	rec, err := rd.next()
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(rec, []byte(prefix)) {
		return fmt.Errorf("xpt: expected %q record", prefix[20:27])
	}
	return nil
}

func (rd *recordReader) skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := rd.next(); err != nil {
			return err
		}
	}
	return nil
}

// readNamestrs reads nvar 140-byte NAMESTR entries plus the padding
// that rounds them up to an 80-byte record boundary.
func (rd *recordReader) readNamestrs(nvar int) ([]variable, error) {

	total := nvar * namestrLen
	if rem := total % recordLen; rem != 0 {
		total += recordLen - rem
	}
	buf := make([]byte, total)
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		return nil, fmt.Errorf("xpt: short namestr block: %w", err)
	}

	var vars []variable
	for i := 0; i < nvar; i++ {
		ns := buf[i*namestrLen : (i+1)*namestrLen]
		v := variable{
			name:    string(bytes.TrimRight(ns[8:16], " \x00")),
			numeric: binary.BigEndian.Uint16(ns[0:2]) == 1,
			length:  int(binary.BigEndian.Uint16(ns[4:6])),
			pos:     int(binary.BigEndian.Uint32(ns[84:88])),
		}
		if v.length <= 0 || (v.numeric && v.length > 8) {
			return nil, fmt.Errorf("xpt: variable %s has bad length %d", v.name, v.length)
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// ibmFloat converts a truncated big-endian IBM double to IEEE 754.
// SAS missing values (leading '.', '_' or 'A'-'Z' with a zero tail)
// become NaN.
func ibmFloat(b []byte) float64 {

	if len(b) == 0 {
		return math.NaN()
	}

	tailZero := true
	for _, c := range b[1:] {
		if c != 0 {
			tailZero = false
			break
		}
	}
	if tailZero {
		switch {
		case b[0] == 0:
			return 0
		case b[0] == '.' || b[0] == '_' || (b[0] >= 'A' && b[0] <= 'Z'):
			return math.NaN()
		}
	}

	var full [8]byte
	copy(full[:], b)

	sign := full[0]&0x80 != 0
	exp := int(full[0] & 0x7f)
	frac := uint64(0)
	for _, c := range full[1:] {
		frac = frac<<8 | uint64(c)
	}
	if frac == 0 {
		return 0
	}

	// Value is 0.frac (56-bit fraction) times 16^(exp-64).
	v := float64(frac) * math.Exp2(-56) * math.Pow(16, float64(exp-64))
	if sign {
		v = -v
	}
	return v
}

func allBlank(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != 0 {
			return false
		}
	}
	return true
}
