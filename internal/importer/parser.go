package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultMaxFileSize bounds uploads when the caller passes no limit.
const DefaultMaxFileSize int64 = 20 * 1024 * 1024

// Parse reads a CSV or XLSX upload into headers and rows. The first
// non-empty record is the header row. Blank data lines are skipped and
// values are kept as text. Any decoding failure aborts the whole parse.
func Parse(r io.Reader, fileName string, maxSize int64) (*ParsedFile, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	limited := &io.LimitedReader{R: r, N: maxSize + 1}

	var (
		records [][]string
		format  string
		err     error
	)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		format = "xlsx"
		records, err = readWorkbook(limited)
	case "", ".csv", ".txt":
		format = "csv"
		records, err = readCSV(limited)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(fileName))
	}

	if limited.N <= 0 {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
	}
	if err != nil {
		return nil, err
	}

	file, err := buildRows(records)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Format = format
		}
		return nil, err
	}
	file.FileName = fileName
	return file, nil
}

// readCSV decodes comma-separated text. Quoting is strict so a stray quote
// fails the parse instead of silently merging rows.
func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(newCleanReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ParseError{Line: pe.Line, Err: pe.Err}
			}
			return nil, &ParseError{Err: err}
		}
		records = append(records, rec)
	}
}

// readWorkbook returns the cells of the first sheet.
func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Format: "xlsx", Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &ParseError{Format: "xlsx", Err: errors.New("open workbook: no sheets")}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Format: "xlsx", Err: fmt.Errorf("read sheet %q: %w", sheet, err)}
	}
	return rows, nil
}

// buildRows turns raw records into keyed rows. Duplicate and blank header
// names keep only their first column; cells past the header are dropped.
func buildRows(records [][]string) (*ParsedFile, error) {
	start := 0
	for start < len(records) && isEmptyRow(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, &ParseError{Err: errors.New("no header row")}
	}

	headers := make([]string, len(records[start]))
	for i, h := range records[start] {
		headers[i] = strings.TrimSpace(h)
	}

	// Column index per distinct header name, in file order.
	type column struct {
		name string
		idx  int
	}
	seen := make(map[string]bool, len(headers))
	columns := make([]column, 0, len(headers))
	for i, h := range headers {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		columns = append(columns, column{name: h, idx: i})
	}

	rows := make([]ParsedRow, 0, len(records)-start-1)
	for _, rec := range records[start+1:] {
		if isEmptyRow(rec) {
			continue
		}
		row := make(ParsedRow, len(columns))
		for _, c := range columns {
			if c.idx < len(rec) {
				row[c.name] = rec[c.idx]
			} else {
				row[c.name] = ""
			}
		}
		rows = append(rows, row)
	}

	return &ParsedFile{Headers: headers, Rows: rows}, nil
}
