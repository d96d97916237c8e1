package records

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is keyed-table persistence over the four entity tables. It performs
// no validation; callers validate before inserting or updating.
type Store interface {
	// Insert persists a row and returns its newly assigned local id.
	Insert(ctx context.Context, kind Kind, fields Fields) (int64, error)
	// Get returns one row or ErrNotFound.
	Get(ctx context.Context, kind Kind, id int64) (Row, error)
	// GetAll returns every row in insertion order.
	GetAll(ctx context.Context, kind Kind) ([]Row, error)
	// Search returns rows where term occurs, case-insensitively, in the text
	// of at least one column. An empty term behaves like GetAll.
	Search(ctx context.Context, kind Kind, term string) ([]Row, error)
	// Update replaces the named fields of the row with the given id.
	Update(ctx context.Context, kind Kind, id int64, fields Fields) error
	// Delete removes the row with the given id.
	Delete(ctx context.Context, kind Kind, id int64) error
}

// TimestampLayout is the text form of created_at used for search matching.
const TimestampLayout = "2006-01-02 15:04:05"

// Text returns the text representation of a column value.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(TimestampLayout)
	case *int:
		if x == nil {
			return ""
		}
		return fmt.Sprint(*x)
	default:
		return fmt.Sprint(x)
	}
}

// MatchRow reports whether term occurs case-insensitively in any column of
// the row. An empty term matches every row. Timestamps decoded from JSON
// (RFC 3339 strings) also match in their TimestampLayout form, so a row
// fetched from a peer matches the same terms as it does in the peer's store.
func MatchRow(row Row, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, v := range row {
		if strings.Contains(strings.ToLower(Text(v)), term) {
			return true
		}
		if ts, ok := jsonTimestamp(v); ok && strings.Contains(ts, term) {
			return true
		}
	}
	return false
}

func jsonTimestamp(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) < len(TimestampLayout) {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", false
	}
	return t.Format(TimestampLayout), true
}

// checkColumns rejects field names that are not writable columns of the
// kind's table.
func checkColumns(kind Kind, fields Fields) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if len(fields) == 0 {
		return ErrNoFields
	}
	t := kind.Table()
	for col := range fields {
		if !t.HasColumn(col) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, col)
		}
	}
	return nil
}

// sortedColumns returns the field names in table column order so generated
// SQL is deterministic.
func sortedColumns(kind Kind, fields Fields) []string {
	cols := make([]string, 0, len(fields))
	for _, c := range kind.Table().Columns {
		if _, ok := fields[c]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}
