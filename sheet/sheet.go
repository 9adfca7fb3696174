/*
Package sheet reads and writes spreadsheet tables.

PURPOSE:
  Uploads arrive as .xlsx or legacy .xls workbooks. Both are reduced to a
  Table: one header row followed by data rows, every cell trimmed to a
  string. Exports are always written as .xlsx.

ROW NUMBERS:
  Row.Number is the 1-based row as a user sees it in the spreadsheet
  program. The header is row 1, so the first data row is row 2.

SEE ALSO:
  - upload/: Turns Tables into directory writes
  - api/export.go: Writes the submission tracking export
*/
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	ErrEmpty         = errors.New("file must contain at least a header row and one data row")
	ErrNoSheet       = errors.New("no worksheet found")
	ErrSheetNotFound = errors.New("worksheet not found")
)

// maxXLSRows bounds legacy workbook reads.
const maxXLSRows = 100000

// Table is a header row plus its data rows.
type Table struct {
	Headers []string
	Rows    []Row
}

type Row struct {
	Number int
	Cells  []string

	index map[string]int
}

// Get returns the trimmed cell under header, or "" when the column or cell
// is missing.
func (r Row) Get(header string) string {
	i, ok := r.index[header]
	if !ok || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Empty reports whether every cell is blank.
func (r Row) Empty() bool {
	for _, c := range r.Cells {
		if c != "" {
			return false
		}
	}
	return true
}

// Missing returns the required headers the table does not have, in the
// order given. Header matching is exact.
func (t *Table) Missing(required ...string) []string {
	have := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		have[h] = true
	}
	var missing []string
	for _, h := range required {
		if !have[h] {
			missing = append(missing, h)
		}
	}
	return missing
}

// FromRows builds a Table from raw rows. The first row is the header.
// Trailing blank rows are dropped.
func FromRows(raw [][]string) (*Table, error) {
	for len(raw) > 0 && blank(raw[len(raw)-1]) {
		raw = raw[:len(raw)-1]
	}
	if len(raw) < 2 {
		return nil, ErrEmpty
	}

	t := &Table{}
	index := make(map[string]int)
	for i, h := range raw[0] {
		h = strings.TrimSpace(h)
		t.Headers = append(t.Headers, h)
		if _, dup := index[h]; !dup && h != "" {
			index[h] = i
		}
	}

	for i, cells := range raw[1:] {
		row := Row{Number: i + 2, index: index}
		for _, c := range cells {
			row.Cells = append(row.Cells, strings.TrimSpace(c))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Read parses a workbook. The format is chosen from the filename
// extension. An empty sheetName reads the first sheet.
func Read(r io.Reader, filename, sheetName string) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	var raw [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		raw, err = readXLS(data, sheetName)
	default:
		raw, err = readXLSX(data, sheetName)
	}
	if err != nil {
		return nil, err
	}
	return FromRows(raw)
}

func readXLSX(data []byte, sheetName string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
		if sheetName == "" {
			return nil, ErrNoSheet
		}
	} else if idx, err := f.GetSheetIndex(sheetName); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheetName, err)
	}
	return rows, nil
}

func readXLS(data []byte, sheetName string) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrNoSheet
	}

	var ws *xls.WorkSheet
	for i := 0; i < wb.NumSheets(); i++ {
		s := wb.GetSheet(i)
		if s == nil {
			continue
		}
		if sheetName == "" || s.Name == sheetName {
			ws = s
			break
		}
	}
	if ws == nil {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
	}

	var rows [][]string
	for i := 0; i <= int(ws.MaxRow) && i < maxXLSRows; i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := range cells {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// Write renders one sheet as an .xlsx workbook.
func Write(w io.Writer, sheetName string, headers []string, rows [][]any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if sheetName != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return err
		}
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, r); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}
