// Package occupancy reads the occupancy report the toolchain writes during a
// measurement run and plans the shared-memory runs that reduce occupancy.
package occupancy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrMalformed is returned when an occupancy report cannot be parsed.
var ErrMalformed = errors.New("malformed occupancy report")

// DefaultDir is where the toolchain drops occupancy reports.
const DefaultDir = "/tmp"

// Record is the content of one occupancy report.
type Record struct {
	ExistingSMem    int     // Shared memory bytes the kernel already allocates
	ThreadsPerBlock int     // Work-group size of the launch
	Occupancy       float64 // Achieved fraction of the CU thread capacity
}

// DefaultRecord is what the plain sweep assumes when no report exists.
var DefaultRecord = Record{
	ExistingSMem:    0,
	ThreadsPerBlock: 512,
	Occupancy:       100,
}

// Path returns the report location for a kernel.
func Path(dir, kernelName string) string {
	return filepath.Join(dir, kernelName+".txt")
}

// Parse reads a report. The first three lines are "<label> <value>" pairs
// holding the existing shared memory, threads per block and occupancy, in
// that order. Labels are not checked.
func Parse(r io.Reader) (Record, error) {
	var values []string

	scanner := bufio.NewScanner(r)
	for len(values) < 3 && scanner.Scan() {
		_, value, found := strings.Cut(scanner.Text(), " ")
		if !found {
			return Record{}, fmt.Errorf("%w: line %d %q has no value",
				ErrMalformed, len(values)+1, scanner.Text())
		}
		values = append(values, strings.TrimSpace(value))
	}

	if err := scanner.Err(); err != nil {
		return Record{}, err
	}

	if len(values) < 3 {
		return Record{}, fmt.Errorf("%w: expected 3 lines, got %d",
			ErrMalformed, len(values))
	}

	return makeRecord(values[0], values[1], values[2])
}

func makeRecord(smem, threads, occupancy string) (Record, error) {
	var (
		rec Record
		err error
	)

	rec.ExistingSMem, err = strconv.Atoi(smem)
	if err != nil {
		return Record{}, fmt.Errorf("%w: existing shared memory %q", ErrMalformed, smem)
	}

	rec.ThreadsPerBlock, err = strconv.Atoi(threads)
	if err != nil {
		return Record{}, fmt.Errorf("%w: threads per block %q", ErrMalformed, threads)
	}
	if rec.ThreadsPerBlock <= 0 {
		return Record{}, fmt.Errorf("%w: threads per block must be positive, got %d",
			ErrMalformed, rec.ThreadsPerBlock)
	}

	rec.Occupancy, err = strconv.ParseFloat(occupancy, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: occupancy %q", ErrMalformed, occupancy)
	}
	if rec.Occupancy < 0 || math.IsNaN(rec.Occupancy) || math.IsInf(rec.Occupancy, 0) {
		return Record{}, fmt.Errorf("%w: occupancy %v out of range", ErrMalformed, rec.Occupancy)
	}

	return rec, nil
}

// ReadFile parses the report at path.
func ReadFile(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	rec, err := Parse(f)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}

	return rec, nil
}

// Load reads the report at path. A missing file is not an error: defaults is
// returned and found is false.
func Load(path string, defaults Record) (rec Record, found bool, err error) {
	rec, err = ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaults, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	return rec, true, nil
}

// Write stores rec in the format the toolchain produces.
func Write(w io.Writer, rec Record) error {
	_, err := fmt.Fprintf(w, "smem %d\nblocksize %d\noccupancy %s\n",
		rec.ExistingSMem, rec.ThreadsPerBlock,
		strconv.FormatFloat(rec.Occupancy, 'g', -1, 64))

	return err
}

// Remove deletes a stale report so a measurement run cannot pick up data
// from an earlier run.
func Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
