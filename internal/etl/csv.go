package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dyntables/internal/domain"
)

// ── CSV ────────────────────────────────────────────────────
// Header row plus data rows, all as strings. Type conversion happens
// later against the target schema.

// CSVOptions controls how a CSV document is read.
type CSVOptions struct {
	Delimiter rune `json:"delimiter,omitempty"`
	// NoHeader generates column_1..column_n headers.
	NoHeader bool `json:"noHeader,omitempty"`
}

// Table is a parsed CSV document.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ReadCSVFile parses the CSV file at path.
func ReadCSVFile(path string, opts CSVOptions) (*Table, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSVString parses CSV text.
func ReadCSVString(s string, opts CSVOptions) (*Table, error) {
	return ReadCSV(strings.NewReader(s), opts)
}

// ReadCSV parses a CSV document. Rows may be ragged.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file")
	}

	if opts.NoHeader {
		headers := make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i+1)
		}
		return &Table{Headers: headers, Rows: records}, nil
	}

	headers := records[0]
	if len(headers) > 0 {
		// Excel writes a UTF-8 BOM in front of the first header
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	return &Table{Headers: headers, Rows: records[1:]}, nil
}

// InferColumnType guesses a column type from sample values.
// Empty values are ignored; mixed values fall back to text.
func InferColumnType(values []string) domain.ColumnType {
	var numbers, bools, dates, seen int
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen++
		switch inferValue(v).(type) {
		case float64:
			numbers++
		case bool:
			bools++
		case dateValue:
			dates++
		}
	}
	switch {
	case seen == 0:
		return domain.ColTypeText
	case numbers == seen:
		return domain.ColTypeNumber
	case bools == seen:
		return domain.ColTypeCheckbox
	case dates == seen:
		return domain.ColTypeDate
	}
	return domain.ColTypeText
}

type dateValue string

// inferValue tries to parse a string as a number, bool or ISO date.
func inferValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return strings.EqualFold(s, "true") || strings.EqualFold(s, "yes")
	}
	if len(s) == len("2006-01-02") && s[4] == '-' && s[7] == '-' {
		if _, err := strconv.Atoi(s[:4] + s[5:7] + s[8:]); err == nil {
			return dateValue(s)
		}
	}
	return s
}
