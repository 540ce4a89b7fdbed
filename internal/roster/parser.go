// Package roster parses and validates uploaded student roster files.
// This package has no storage or network dependencies and can be used
// by any frontend.
package roster

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// Column names expected in the uploaded file (case-insensitive,
// order-insensitive).
const (
	ColName      = "student_name"
	ColStudentID = "student_id"
	ColGrade     = "grade"
	ColNotes     = "notes"
)

// RequiredColumns are the columns every roster file must contain.
var RequiredColumns = []string{ColName, ColStudentID, ColGrade}

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
var MaxHeaderSearchRows = 20

// Record is a single raw roster row. Field values are unvalidated; RowNumber
// is the 1-indexed row in the original file with the header row excluded
// accounted for (the first data row is row 2).
type Record struct {
	RowNumber int
	Name      string
	StudentID string
	Grade     string
	Note      string
}

// FormatError indicates the file could not be interpreted as a roster table.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "roster format: " + e.Reason
}

// EncodingError indicates no supported text encoding decoded the file cleanly.
type EncodingError struct {
	Tried []string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("roster encoding: file is not valid %s", strings.Join(e.Tried, " or "))
}

// Parse reads an uploaded roster file into ordered records. The format is
// sniffed from the file extension: .csv is decoded as delimited text
// (UTF-8 with optional BOM, falling back to EUC-KR/CP949 for files saved
// by Korean Excel), .xlsx via the spreadsheet reader. Legacy .xls is not
// readable and gets its own message telling the uploader to re-save.
//
// Parse is a pure transform: it performs no validation beyond locating the
// header row, and has no side effects.
func Parse(data []byte, fileName string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return parseCSV(data)
	case ".xlsx":
		return parseWorkbook(data)
	case ".xls":
		return nil, &FormatError{Reason: "legacy .xls workbooks are not supported (save the file as .xlsx or .csv)"}
	default:
		return nil, &FormatError{Reason: fmt.Sprintf("unsupported file type %q (use .csv or .xlsx)", filepath.Ext(fileName))}
	}
}

// csvEncodings lists the decoders tried for CSV input, in order.
var csvEncodings = []string{"utf-8", "euc-kr"}

func parseCSV(data []byte) ([]Record, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("parse CSV: %v", err)}
	}

	return recordsFromRows(rows)
}

func parseWorkbook(data []byte) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("open workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("read sheet %q: %v", sheets[0], err)}
	}

	return recordsFromRows(rows)
}

// decodeText returns UTF-8 bytes for the input, stripping a UTF-8 BOM if
// present and falling back to EUC-KR when the input is not valid UTF-8.
func decodeText(data []byte) ([]byte, error) {
	data = stripBOM(data)

	if utf8.Valid(data) {
		return data, nil
	}

	// The decoder substitutes U+FFFD for byte sequences it cannot map, so a
	// replacement rune in the output means the input was not EUC-KR either.
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), korean.EUCKR.NewDecoder()))
	if err == nil && utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError) {
		return decoded, nil
	}

	return nil, &EncodingError{Tried: csvEncodings}
}

// stripBOM removes the UTF-8 BOM (0xEF 0xBB 0xBF) commonly added by
// Windows programs such as Excel's "CSV UTF-8" export.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// recordsFromRows locates the header row and converts the remaining rows
// into Records. Row numbers count from the top of the file, so the first
// data row after a header in row 1 reports as row 2.
func recordsFromRows(rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, &FormatError{Reason: "file is empty"}
	}

	headerIdx := findHeader(rows)
	if headerIdx < 0 {
		return nil, &FormatError{Reason: fmt.Sprintf("header not found (expected columns: %s)", strings.Join(RequiredColumns, ", "))}
	}

	colIdx := makeHeaderIndex(rows[headerIdx])
	dataRows := rows[headerIdx+1:]

	if len(dataRows) == 0 {
		return nil, &FormatError{Reason: "no data rows after header"}
	}

	records := make([]Record, 0, len(dataRows))
	for i, row := range dataRows {
		if isEmptyRow(row) {
			continue
		}
		records = append(records, Record{
			RowNumber: headerIdx + i + 2, // 1-indexed, after header
			Name:      cellAt(row, colIdx, ColName),
			StudentID: cellAt(row, colIdx, ColStudentID),
			Grade:     cellAt(row, colIdx, ColGrade),
			Note:      cellAt(row, colIdx, ColNotes),
		})
	}

	if len(records) == 0 {
		return nil, &FormatError{Reason: "no data rows after header"}
	}

	return records, nil
}

// findHeader returns the index of the first row containing every required
// column, or -1. Files exported from spreadsheets sometimes carry title or
// blank rows above the header, so the first few rows are scanned.
func findHeader(rows [][]string) int {
	maxRows := MaxHeaderSearchRows
	if len(rows) < maxRows {
		maxRows = len(rows)
	}

	for i := 0; i < maxRows; i++ {
		idx := makeHeaderIndex(rows[i])
		found := true
		for _, col := range RequiredColumns {
			if _, ok := idx[col]; !ok {
				found = false
				break
			}
		}
		if found {
			return i
		}
	}
	return -1
}

// makeHeaderIndex maps lowercased column names to their position in the row.
func makeHeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		idx[key] = i
	}
	return idx
}

func cellAt(row []string, idx map[string]int, col string) string {
	pos, ok := idx[col]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
