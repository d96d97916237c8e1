package federation

import (
	"github.com/carenet/carenet/internal/domain/records"
	"github.com/carenet/carenet/internal/platform/export"
)

// Header returns the column titles of a view of kind: display id, facility,
// then the table's data columns and created_at.
func Header(kind records.Kind) []string {
	cols := kind.Table().Columns
	h := make([]string, 0, len(cols)+3)
	h = append(h, "id", "facility")
	h = append(h, cols...)
	return append(h, records.CreatedAtColumn)
}

// Cells renders a tagged row in Header order.
func (r TaggedRow) Cells(kind records.Kind) []string {
	cols := kind.Table().Columns
	out := make([]string, 0, len(cols)+3)
	out = append(out, r.DisplayID.String(), r.Facility)
	for _, c := range cols {
		out = append(out, records.Text(r.Row[c]))
	}
	return append(out, records.Text(r.Row[records.CreatedAtColumn]))
}

// Table converts the view for spreadsheet export.
func (v *View) Table() export.Table {
	t := export.Table{Sheet: string(v.Kind), Header: Header(v.Kind)}
	for _, r := range v.Rows {
		t.Rows = append(t.Rows, r.Cells(v.Kind))
	}
	return t
}
