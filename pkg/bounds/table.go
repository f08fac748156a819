package bounds

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMissingColumn is returned when a required column is absent
	ErrMissingColumn = errors.New("missing required column")
	// ErrNoData is returned when a required column has no numeric values
	ErrNoData = errors.New("no data in column")
	// ErrMalformed is returned for unreadable tables and non-numeric cells
	ErrMalformed = errors.New("malformed trace table")
)

// Table is a parsed CSV trace table with a header row
type Table struct {
	Name    string
	columns map[string]int
	rows    [][]string
}

// ReadTable parses CSV data. The first record is the header.
func ReadTable(name string, data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s: empty", ErrMalformed, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}

	t := &Table{Name: name, columns: make(map[string]int, len(header))}
	for i, col := range header {
		t.columns[strings.TrimSpace(col)] = i
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// Has reports whether the header contains the column
func (t *Table) Has(column string) bool {
	_, ok := t.columns[column]
	return ok
}

// Rows returns the number of data rows
func (t *Table) Rows() int {
	return len(t.rows)
}

func (t *Table) cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseCell returns the cell value and whether it holds data. Empty and
// NaN cells are missing values.
func (t *Table) parseCell(column, s string, line int) (float64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: column %q row %d: %q is not a number", ErrMalformed, t.Name, column, line, s)
	}
	if math.IsNaN(f) {
		return 0, false, nil
	}
	return f, true, nil
}

// Column returns the numeric values of a column, skipping missing values
func (t *Table) Column(column string) ([]float64, error) {
	idx, ok := t.columns[column]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %q", ErrMissingColumn, t.Name, column)
	}
	values := make([]float64, 0, len(t.rows))
	for i, row := range t.rows {
		f, ok, err := t.parseCell(column, t.cell(row, idx), i+2)
		if err != nil {
			return nil, err
		}
		if ok {
			values = append(values, f)
		}
	}
	return values, nil
}

// GroupMax returns the maximum of value per distinct key. Rows with an
// empty key or a missing value are skipped.
func (t *Table) GroupMax(key, value string) (map[string]float64, error) {
	ki, ok := t.columns[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %q", ErrMissingColumn, t.Name, key)
	}
	vi, ok := t.columns[value]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %q", ErrMissingColumn, t.Name, value)
	}

	groups := make(map[string]float64)
	for i, row := range t.rows {
		k := t.cell(row, ki)
		if k == "" {
			continue
		}
		f, ok, err := t.parseCell(value, t.cell(row, vi), i+2)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if cur, seen := groups[k]; !seen || f > cur {
			groups[k] = f
		}
	}
	return groups, nil
}

// Stats summarises a non-empty column
type Stats struct {
	Mean, Min, Max float64
	Count          int
}

// Summarize computes mean, min and max over a column's values
func (t *Table) Summarize(column string) (Stats, error) {
	values, err := t.Column(column)
	if err != nil {
		return Stats{}, err
	}
	if len(values) == 0 {
		return Stats{}, fmt.Errorf("%w: %s: %q", ErrNoData, t.Name, column)
	}
	s := Stats{Min: values[0], Max: values[0], Count: len(values)}
	sum := 0.0
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	// rounding in the sum can push the mean of equal values past them
	s.Mean = math.Max(s.Min, math.Min(s.Max, sum/float64(len(values))))
	return s, nil
}
