// Package export writes tabular views as Excel workbooks.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/tealeg/xlsx"
)

// ContentType is the MIME type of an .xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxSheetName is Excel's limit on worksheet names.
const maxSheetName = 31

var ErrEmptyWorkbook = errors.New("workbook has no sheets")

// Table is one worksheet: a header row followed by data rows.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

func (t Table) build() (*xlsx.File, error) {
	name := t.Sheet
	if name == "" {
		name = "sheet1"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet(name)
	if err != nil {
		return nil, fmt.Errorf("add sheet %q: %w", name, err)
	}
	addRow(sheet, t.Header)
	for _, r := range t.Rows {
		addRow(sheet, r)
	}
	return file, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		cell.Value = v
	}
}

// Write encodes t as a workbook onto w.
func Write(w io.Writer, t Table) error {
	file, err := t.build()
	if err != nil {
		return err
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save writes t as a workbook at path.
func Save(path string, t Table) error {
	file, err := t.build()
	if err != nil {
		return err
	}
	if err := file.Save(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// Read decodes the first worksheet of a workbook. The first row becomes the
// header.
func Read(data []byte) (Table, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	if len(file.Sheets) == 0 {
		return Table{}, ErrEmptyWorkbook
	}
	sheet := file.Sheets[0]
	t := Table{Sheet: sheet.Name}
	for i, row := range sheet.Rows {
		values := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			values[j] = cell.Value
		}
		if i == 0 {
			t.Header = values
			continue
		}
		t.Rows = append(t.Rows, values)
	}
	return t, nil
}
