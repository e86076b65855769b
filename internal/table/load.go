package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyFile is returned when a file has no header row.
	ErrEmptyFile = errors.New("empty file")

	// ErrUnsupportedFormat is returned for files that are neither CSV nor Excel.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrSheetNotFound is returned when the requested Excel sheet does not exist.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrLegacyWorkbook is returned for binary Excel 97-2003 workbooks, which
	// are accepted under the .xls extension but cannot be read.
	ErrLegacyWorkbook = errors.New("legacy excel workbook")
)

// oleSignature starts every Excel 97-2003 (BIFF) workbook.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Format is the on-disk encoding of a table.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

// FormatOf derives the format tag from a file name.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm", ".xls":
		return FormatExcel, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// LoadOptions controls how a file is read.
type LoadOptions struct {
	// Format overrides the format derived from the file name.
	Format Format

	// Sheet selects an Excel sheet by name. Empty means the first sheet.
	Sheet string

	// LenientNumbers accepts currency symbols, thousands separators and
	// accounting negatives in numeric columns.
	LenientNumbers bool
}

// Load reads the file at path into a Table.
func Load(path string, opts LoadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	return Read(f, filepath.Base(path), opts)
}

// Read reads a table from r. name is only used to derive the format when
// opts.Format is empty.
func Read(r io.Reader, name string, opts LoadOptions) (*Table, error) {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = FormatOf(name); err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatCSV:
		return ReadCSV(r, opts)
	case FormatExcel:
		return ReadExcel(r, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ReadCSV reads a comma-separated table whose first record is the header.
func ReadCSV(r io.Reader, opts LoadOptions) (*Table, error) {
	reader := csv.NewReader(newCSVSource(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	return FromRecords(records, opts.LenientNumbers)
}

// ReadExcel reads one sheet of an OOXML workbook; the sheet's first row is the header.
func ReadExcel(r io.Reader, opts LoadOptions) (*Table, error) {
	f, err := openWorkbook(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet, err := pickSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	// Raw values keep formatted numbers ("1,234.50", "25%") numeric.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return FromRecords(rows, opts.LenientNumbers)
}

// SheetNames lists the sheets of an OOXML workbook in workbook order.
func SheetNames(r io.Reader) ([]string, error) {
	f, err := openWorkbook(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// openWorkbook opens an OOXML workbook, reporting binary workbooks as
// ErrLegacyWorkbook.
func openWorkbook(r io.Reader) (*excelize.File, error) {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(oleSignature)); bytes.Equal(head, oleSignature) {
		return nil, ErrLegacyWorkbook
	}
	f, err := excelize.OpenReader(br)
	if err != nil {
		return nil, fmt.Errorf("invalid excel workbook: %w", err)
	}
	return f, nil
}

func pickSheet(f *excelize.File, want string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", ErrEmptyFile
	}
	if want == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == want {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrSheetNotFound, want)
}

// FromRecords builds a Table from string records; records[0] is the header.
// Short rows are padded with missing cells and cells beyond the header are
// dropped.
func FromRecords(records [][]string, lenient bool) (*Table, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, ErrEmptyFile
	}

	headers := headerNames(records[0])
	body := records[1:]

	cols := make([]*Column, len(headers))
	cells := make([]string, len(body))
	for j, name := range headers {
		for i, rec := range body {
			if j < len(rec) {
				cells[i] = rec[j]
			} else {
				cells[i] = ""
			}
		}
		cols[j] = InferColumn(name, cells, lenient)
	}
	return New(cols...)
}

// headerNames cleans header cells, names blank headers Column_N and suffixes
// repeated names with .1, .2, ...
func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	next := make(map[string]int)
	for i, h := range raw {
		h = CleanCell(h)
		if h == "" {
			h = "Column_" + strconv.Itoa(i+1)
		}
		name := h
		for taken[name] {
			next[h]++
			name = h + "." + strconv.Itoa(next[h])
		}
		taken[name] = true
		names[i] = name
	}
	return names
}
