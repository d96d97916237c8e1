package records

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a thread-safe, in-process Store. Ids are assigned from a
// per-table counter and never reused.
type MemoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	tables map[Kind]*memTable
}

type memTable struct {
	nextID int64
	rows   map[int64]Row
	// ordered keys for insertion-order listing
	order []int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		now:    time.Now,
		tables: make(map[Kind]*memTable, len(Kinds)),
	}
	for _, k := range Kinds {
		s.tables[k] = &memTable{nextID: 1, rows: make(map[int64]Row)}
	}
	return s
}

func (s *MemoryStore) table(kind Kind) (*memTable, error) {
	t, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return t, nil
}

func (s *MemoryStore) Insert(_ context.Context, kind Kind, fields Fields) (int64, error) {
	if err := checkColumns(kind, fields); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(kind)
	if err != nil {
		return 0, err
	}

	id := t.nextID
	t.nextID++

	row := Row{kind.Key(): id, CreatedAtColumn: s.now().UTC()}
	for _, c := range kind.Table().Columns {
		row[c] = nil
	}
	for c, v := range fields {
		row[c] = v
	}
	t.rows[id] = row
	t.order = append(t.order, id)
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, kind Kind, id int64) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRow(row), nil
}

func (s *MemoryStore) GetAll(ctx context.Context, kind Kind) ([]Row, error) {
	return s.Search(ctx, kind, "")
}

func (s *MemoryStore) Search(_ context.Context, kind Kind, term string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}

	result := make([]Row, 0, len(t.order))
	for _, id := range t.order {
		row := t.rows[id]
		if MatchRow(row, term) {
			result = append(result, copyRow(row))
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(_ context.Context, kind Kind, id int64, fields Fields) error {
	if err := checkColumns(kind, fields); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(kind)
	if err != nil {
		return err
	}
	row, ok := t.rows[id]
	if !ok {
		return ErrNotFound
	}
	for c, v := range fields {
		row[c] = v
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, kind Kind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(kind)
	if err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	delete(t.rows, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
