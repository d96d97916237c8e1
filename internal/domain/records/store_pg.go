package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool / pgx.Tx used by PGStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore is the PostgreSQL Store. Table and column names come from the
// fixed table descriptors, never from callers; field names are checked
// against them before SQL is built.
type PGStore struct {
	db Querier
}

// NewPGStore creates a store over a pool or transaction.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, kind Kind, fields Fields) (int64, error) {
	if err := checkColumns(kind, fields); err != nil {
		return 0, err
	}
	sql, args := insertSQL(kind, fields)

	var id int64
	if err := s.db.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, storageErr("insert", kind, err)
	}
	return id, nil
}

func (s *PGStore) Get(ctx context.Context, kind Kind, id int64) (Row, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	t := kind.Table()
	rows, err := s.query(ctx, "get", kind,
		`SELECT `+strings.Join(t.AllColumns(), ", ")+` FROM `+t.Name+` WHERE `+t.Key+` = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *PGStore) GetAll(ctx context.Context, kind Kind) ([]Row, error) {
	return s.Search(ctx, kind, "")
}

func (s *PGStore) Search(ctx context.Context, kind Kind, term string) ([]Row, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	sql, args := searchSQL(kind, term)
	return s.query(ctx, "search", kind, sql, args...)
}

func (s *PGStore) Update(ctx context.Context, kind Kind, id int64, fields Fields) error {
	if err := checkColumns(kind, fields); err != nil {
		return err
	}
	sql, args := updateSQL(kind, id, fields)
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return storageErr("update", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, kind Kind, id int64) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	t := kind.Table()
	tag, err := s.db.Exec(ctx, `DELETE FROM `+t.Name+` WHERE `+t.Key+` = $1`, id)
	if err != nil {
		return storageErr("delete", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) query(ctx context.Context, op string, kind Kind, sql string, args ...interface{}) ([]Row, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr(op, kind, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, storageErr(op, kind, err)
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

func insertSQL(kind Kind, fields Fields) (string, []interface{}) {
	t := kind.Table()
	cols := sortedColumns(kind, fields)
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[c]
	}
	sql := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		t.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "), t.Key)
	return sql, args
}

func updateSQL(kind Kind, id int64, fields Fields) (string, []interface{}) {
	t := kind.Table()
	cols := sortedColumns(kind, fields)
	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	args = append(args, id)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+2)
		args = append(args, fields[c])
	}
	sql := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $1`, t.Name, strings.Join(sets, ", "), t.Key)
	return sql, args
}

// searchSQL builds an OR of case-insensitive substring matches over the text
// of every column. One placeholder is shared by all columns.
func searchSQL(kind Kind, term string) (string, []interface{}) {
	t := kind.Table()
	all := t.AllColumns()
	sql := `SELECT ` + strings.Join(all, ", ") + ` FROM ` + t.Name
	if term == "" {
		return sql + ` ORDER BY ` + t.Key, nil
	}
	clauses := make([]string, len(all))
	for i, c := range all {
		clauses[i] = fmt.Sprintf(`COALESCE(%s::text, '') ILIKE $1 ESCAPE '\'`, c)
	}
	sql += ` WHERE ` + strings.Join(clauses, " OR ") + ` ORDER BY ` + t.Key
	return sql, []interface{}{"%" + escapeLike(term) + "%"}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
