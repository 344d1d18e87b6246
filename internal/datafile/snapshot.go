// Package datafile reads the change file the worker rewrites. The file
// is read fresh on every request; nothing here caches, because the
// worker may replace the file at any moment between requests.
package datafile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Record is one row keyed by the header. The table schema belongs to
// the worker; no column names are assumed here.
type Record map[string]any

// ReadRecords parses the CSV at path into ordered records. Missing and
// empty cells become nil so they serialize as JSON null; a row shorter
// than the header pads its trailing columns with nil. Rows with more
// fields than the header are an error. The caller can distinguish a
// missing file (fs.ErrNotExist) from a malformed one.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var records []Record
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		if len(row) > len(header) {
			return nil, fmt.Errorf("read csv row: %d fields, header has %d", len(row), len(header))
		}

		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = coerce(row[i])
			} else {
				rec[name] = nil
			}
		}
		records = append(records, rec)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// coerce mirrors the loose typing of the file's producer: empty cells
// are nulls, numeric text becomes a number, everything else stays a
// string. "NaN" is the producer's spelling of a missing value.
func coerce(cell string) any {
	if cell == "" || cell == "NaN" {
		return nil
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}
