package records

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.id
	return nil
}

type fakeQuerier struct {
	tag     pgconn.CommandTag
	err     error
	lastSQL string
	args    []interface{}
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	q.lastSQL, q.args = sql, args
	return q.tag, q.err
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	q.lastSQL, q.args = sql, args
	return nil, q.err
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	q.lastSQL, q.args = sql, args
	return fakeRow{id: 42, err: q.err}
}

func TestInsertSQL(t *testing.T) {
	sql, args := insertSQL(Patients, Fields{"age": 34, "name": "Reza Karimi"})
	want := "INSERT INTO patients (name, age) VALUES ($1, $2) RETURNING patient_id"
	if sql != want {
		t.Errorf("expected %q, got %q", want, sql)
	}
	if len(args) != 2 || args[0] != "Reza Karimi" || args[1] != 34 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestUpdateSQL(t *testing.T) {
	sql, args := updateSQL(Doctors, 7, Fields{"email": "a@b.io", "name": "Dr. Kazemi"})
	want := "UPDATE doctors SET name = $2, email = $3 WHERE doctor_id = $1"
	if sql != want {
		t.Errorf("expected %q, got %q", want, sql)
	}
	if len(args) != 3 || args[0] != int64(7) || args[1] != "Dr. Kazemi" || args[2] != "a@b.io" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestSearchSQL(t *testing.T) {
	sql, args := searchSQL(Appointments, "")
	if strings.Contains(sql, "WHERE") {
		t.Errorf("empty term must not filter: %s", sql)
	}
	if args != nil {
		t.Errorf("expected no args, got %v", args)
	}
	if !strings.HasSuffix(sql, "ORDER BY appointment_id") {
		t.Errorf("expected key ordering, got %s", sql)
	}

	sql, args = searchSQL(Patients, "50%_off")
	for _, col := range Patients.Table().AllColumns() {
		if !strings.Contains(sql, "COALESCE("+col+"::text, '') ILIKE $1") {
			t.Errorf("expected clause for %s in %s", col, sql)
		}
	}
	if len(args) != 1 || args[0] != `%50\%\_off%` {
		t.Errorf("expected escaped pattern, got %v", args)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"plain":  "plain",
		"a%b":    `a\%b`,
		"a_b":    `a\_b`,
		`back\`:  `back\\`,
		`\%_mix`: `\\\%\_mix`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPGStore_Insert(t *testing.T) {
	q := &fakeQuerier{}
	s := NewPGStore(q)

	id, err := s.Insert(context.Background(), Patients, Fields{"name": "Reza Karimi"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 42 {
		t.Errorf("expected id 42, got %d", id)
	}
	if !strings.HasPrefix(q.lastSQL, "INSERT INTO patients") {
		t.Errorf("unexpected sql %s", q.lastSQL)
	}
}

func TestPGStore_InsertStorageError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("connection refused")}
	s := NewPGStore(q)

	_, err := s.Insert(context.Background(), Patients, Fields{"name": "Reza Karimi"})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "insert" || se.Table != "patients" {
		t.Errorf("unexpected StorageError %+v", se)
	}
}

func TestPGStore_InsertUnknownColumnRunsNoSQL(t *testing.T) {
	q := &fakeQuerier{}
	s := NewPGStore(q)

	_, err := s.Insert(context.Background(), Patients, Fields{"name; DROP TABLE patients": "x"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
	if q.lastSQL != "" {
		t.Errorf("expected no SQL, got %s", q.lastSQL)
	}
}

func TestPGStore_UpdateMissing(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 0")}
	s := NewPGStore(q)

	err := s.Update(context.Background(), Patients, 9, Fields{"name": "Nobody Here"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStore_Update(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("UPDATE 1")}
	s := NewPGStore(q)

	if err := s.Update(context.Background(), Patients, 9, Fields{"name": "Somebody"}); err != nil {
		t.Errorf("Update: %v", err)
	}
}

func TestPGStore_DeleteMissing(t *testing.T) {
	q := &fakeQuerier{tag: pgconn.NewCommandTag("DELETE 0")}
	s := NewPGStore(q)

	err := s.Delete(context.Background(), Doctors, 3)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if q.lastSQL != "DELETE FROM doctors WHERE doctor_id = $1" {
		t.Errorf("unexpected sql %s", q.lastSQL)
	}
}

func TestPGStore_SearchStorageError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("relation does not exist")}
	s := NewPGStore(q)

	_, err := s.Search(context.Background(), Doctors, "kaz")
	if !IsStorageError(err) {
		t.Errorf("expected storage error, got %v", err)
	}
}
