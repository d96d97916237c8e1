package records

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService() *Service {
	svc := NewService(NewMemoryStore())
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestService_CreatePatient(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id, err := svc.Create(ctx, Patients, &Patient{Name: "  Reza Karimi  ", Age: intPtr(34)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 1 {
		t.Errorf("expected id 1, got %d", id)
	}
	row, _ := svc.Get(ctx, Patients, id)
	if row["name"] != "Reza Karimi" {
		t.Errorf("expected trimmed name, got %q", row["name"])
	}
}

func TestService_CreateInvalidStoresNothing(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, Patients, &Patient{Name: "X"})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	rows, _ := svc.List(ctx, Patients, "")
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestService_AppointmentDefaultsToScheduled(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id, err := svc.Create(ctx, Appointments, &Appointment{PatientID: 1, DoctorID: 1, Date: "2024-05-02", Time: "08:15"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	row, _ := svc.Get(ctx, Appointments, id)
	if row["status"] != StatusScheduled {
		t.Errorf("expected status %s, got %v", StatusScheduled, row["status"])
	}
}

func TestService_RecordDateDefaultsToToday(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id, err := svc.Create(ctx, MedicalRecords, &MedicalRecord{PatientID: 1, DoctorID: 2, Diagnosis: "Flu"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	row, _ := svc.Get(ctx, MedicalRecords, id)
	if row["record_date"] != "2024-05-01" {
		t.Errorf("expected record_date 2024-05-01, got %v", row["record_date"])
	}
}

func TestService_MismatchedEntity(t *testing.T) {
	svc := newTestService()
	_, err := svc.Create(context.Background(), Doctors, &Patient{Name: "Reza Karimi"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestService_UpdateAndDelete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id, _ := svc.Create(ctx, Doctors, &Doctor{Name: "Dr. Hamid Kazemi"})
	err := svc.Update(ctx, Doctors, id, &Doctor{Name: "Dr. Hamid Kazemi", Specialization: "Neurology"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	row, _ := svc.Get(ctx, Doctors, id)
	if row["specialization"] != "Neurology" {
		t.Errorf("expected Neurology, got %v", row["specialization"])
	}

	if err := svc.Update(ctx, Doctors, 99, &Doctor{Name: "Dr. Nobody"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, Doctors, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, Doctors, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestService_ListTrimsTerm(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	svc.Create(ctx, Patients, &Patient{Name: "Ali Ahmadi"})
	svc.Create(ctx, Patients, &Patient{Name: "Sara Noori"})

	rows, err := svc.List(ctx, Patients, "   ")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected whitespace term to list all, got %d", len(rows))
	}
	rows, _ = svc.List(ctx, Patients, " noori ")
	if len(rows) != 1 {
		t.Errorf("expected 1 match, got %d", len(rows))
	}
}
