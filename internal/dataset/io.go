package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/w-h-a/caus/internal/causerr"
)

// LoadCSV loads a CSV file with a header row of variable labels.
func LoadCSV(path string, opts *CSVOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return LoadCSVFromReader(f, opts)
}

// LoadCSVFromString parses CSV text, the form requests carry it in.
func LoadCSVFromString(data string, opts *CSVOptions) (*Dataset, error) {
	return LoadCSVFromReader(strings.NewReader(data), opts)
}

// LoadCSVFromReader parses a header row of labels followed by one row of
// numeric values per time step. Missing markers become NaN.
func LoadCSVFromReader(r io.Reader, opts *CSVOptions) (*Dataset, error) {
	if opts == nil {
		opts = DefaultCSVOptions()
	}

	// 1. Make CSV reader
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	missing := make(map[string]bool, len(opts.MissingTokens))
	for _, tok := range opts.MissingTokens {
		missing[strings.ToLower(strings.TrimSpace(tok))] = true
	}

	// 2. Read header row
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, causerr.InvalidConfiguration("dataset.csv", "empty table")
	}
	if err != nil {
		return nil, causerr.Wrap(causerr.KindInvalidConfiguration, "dataset.csv", fmt.Errorf("read header: %w", err))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	K := len(header)

	// 3. Read each data row
	var rows [][]float64
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, causerr.Wrap(causerr.KindInvalidConfiguration, "dataset.csv", fmt.Errorf("read row %d: %w", line, err))
		}

		// Skip completely empty lines
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" && K > 1 {
			continue
		}

		if len(record) != K {
			return nil, causerr.InvalidConfiguration("dataset.csv", "row %d: expected %d columns, got %d", line, K, len(record))
		}

		row := make([]float64, K)
		for j, s := range record {
			s = strings.TrimSpace(s)
			if missing[strings.ToLower(s)] {
				row[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, causerr.InvalidConfiguration("dataset.csv", "parse float at row %d col %d (%q)", line, j+1, s)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	return New(header, rows)
}

// WriteCSV writes the dataset with a header row; NaN is written as an empty
// cell.
func (d *Dataset) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(d.labels); err != nil {
		return err
	}

	T, K := d.y.Dims()
	record := make([]string, K)
	for t := 0; t < T; t++ {
		for k := 0; k < K; k++ {
			v := d.y.At(t, k)
			if math.IsNaN(v) {
				record[k] = ""
				continue
			}
			record[k] = strconv.FormatFloat(v, 'f', 6, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
