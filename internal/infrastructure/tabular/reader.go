package tabular

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/xuri/excelize/v2"
)

// Table is the parsed content of a statement file: one header row and the
// data rows below it. Rows are padded to the header width so column lookups
// never go out of range.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Read parses a statement file by extension. CSV, XLSX and XLS are supported;
// anything else is rejected.
func Read(filename string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readCSV(r)
	case ".xlsx", ".xls":
		return readWorkbook(r)
	default:
		return nil, reconciliation.ErrUnsupportedFile
	}
}

func readCSV(r io.Reader) (*Table, error) {
	buf := bufio.NewReader(r)

	// Strip a UTF-8 BOM; bank exports often carry one.
	head, err := buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	if err := validateUTF8(buf); err != nil {
		return nil, err
	}

	reader := csv.NewReader(buf)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return buildTable(records)
}

func readWorkbook(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return buildTable(rows)
}

func buildTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	table := &Table{Headers: headers}
	for _, record := range records[1:] {
		if isEmptyRow(record) {
			continue
		}
		row := make([]string, len(headers))
		for i := range headers {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Column returns the index of a header, or -1 when absent
func (t *Table) Column(header string) int {
	for i, h := range t.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

func validateUTF8(r *bufio.Reader) error {
	const checkSize = 4096
	content, err := r.Peek(checkSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file for encoding validation: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	if len(content) == checkSize {
		// A multibyte rune can straddle the window edge. Drop the cut rune
		// so a valid large file is not rejected.
		cut := len(content)
		for i := 0; i < utf8.UTFMax && cut > 0; i++ {
			cut--
			if utf8.RuneStart(content[cut]) {
				if !utf8.FullRune(content[cut:]) {
					content = content[:cut]
				}
				break
			}
		}
	}
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}
