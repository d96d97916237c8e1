package records

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service validates typed entities on behalf of collaborators (the HTTP API,
// the CLI, the seeder) and hands them to the store.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Create validates e, applies defaults and inserts it.
func (s *Service) Create(ctx context.Context, kind Kind, e Entity) (int64, error) {
	if err := s.prepare(kind, e); err != nil {
		return 0, err
	}
	return s.store.Insert(ctx, kind, e.Fields())
}

// Update validates e and replaces every field of row id with it.
func (s *Service) Update(ctx context.Context, kind Kind, id int64, e Entity) error {
	if err := s.prepare(kind, e); err != nil {
		return err
	}
	return s.store.Update(ctx, kind, id, e.Fields())
}

func (s *Service) Get(ctx context.Context, kind Kind, id int64) (Row, error) {
	return s.store.Get(ctx, kind, id)
}

func (s *Service) Delete(ctx context.Context, kind Kind, id int64) error {
	return s.store.Delete(ctx, kind, id)
}

// List returns all rows of kind, or those matching term when it is set.
func (s *Service) List(ctx context.Context, kind Kind, term string) ([]Row, error) {
	if term = strings.TrimSpace(term); term == "" {
		return s.store.GetAll(ctx, kind)
	}
	return s.store.Search(ctx, kind, term)
}

func (s *Service) prepare(kind Kind, e Entity) error {
	if err := checkEntityKind(kind, e); err != nil {
		return err
	}
	switch v := e.(type) {
	case *Patient:
		v.Name = strings.TrimSpace(v.Name)
	case *Doctor:
		v.Name = strings.TrimSpace(v.Name)
	case *Appointment:
		if v.Status == "" {
			v.Status = StatusScheduled
		}
	case *MedicalRecord:
		if v.RecordDate == "" {
			v.RecordDate = s.now().Format(DateLayout)
		}
	}
	return Validate(e)
}

func checkEntityKind(kind Kind, e Entity) error {
	var ok bool
	switch e.(type) {
	case *Patient:
		ok = kind == Patients
	case *Doctor:
		ok = kind == Doctors
	case *Appointment:
		ok = kind == Appointments
	case *MedicalRecord:
		ok = kind == MedicalRecords
	}
	if !ok {
		return fmt.Errorf("%w: %T is not a %s entity", ErrUnknownKind, e, kind)
	}
	return nil
}
