package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carenet/carenet/internal/domain/records"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestSeeder() (*Seeder, *records.Service) {
	svc := records.NewService(records.NewMemoryStore())
	s := NewSeeder(svc, zerolog.Nop())
	s.now = func() time.Time { return fixedNow }
	return s, svc
}

func TestDataGenerator_EntitiesValidate(t *testing.T) {
	g := NewDataGenerator(42, fixedNow)
	for i := 0; i < 200; i++ {
		if err := records.Validate(g.Patient()); err != nil {
			t.Fatalf("generated patient invalid: %v", err)
		}
		if err := records.Validate(g.Doctor()); err != nil {
			t.Fatalf("generated doctor invalid: %v", err)
		}
		if err := records.Validate(g.Appointment(1, 2)); err != nil {
			t.Fatalf("generated appointment invalid: %v", err)
		}
		if err := records.Validate(g.MedicalRecord(1, 2)); err != nil {
			t.Fatalf("generated medical record invalid: %v", err)
		}
	}
}

func TestDataGenerator_Ranges(t *testing.T) {
	g := NewDataGenerator(7, fixedNow)
	earliest := fixedNow.AddDate(0, 0, -90).Format(records.DateLayout)
	today := fixedNow.Format(records.DateLayout)

	for i := 0; i < 200; i++ {
		p := g.Patient()
		if p.Age == nil || *p.Age < 1 || *p.Age > 85 {
			t.Fatalf("age out of range: %v", p.Age)
		}
		if !strings.HasPrefix(p.Phone, "+98-9") || !strings.HasSuffix(p.Address, ", Iran") {
			t.Errorf("unexpected contact details %q %q", p.Phone, p.Address)
		}

		d := g.Doctor()
		if !strings.HasPrefix(d.Name, "Dr. ") || !strings.HasSuffix(d.Email, "@hospital.ir") {
			t.Errorf("unexpected doctor %+v", d)
		}

		a := g.Appointment(1, 1)
		if a.Status == records.StatusNoShow {
			t.Errorf("unexpected seeded status %q", a.Status)
		}

		m := g.MedicalRecord(1, 1)
		if m.RecordDate < earliest || m.RecordDate > today {
			t.Errorf("record date %s outside [%s, %s]", m.RecordDate, earliest, today)
		}
	}
}

func TestDataGenerator_Deterministic(t *testing.T) {
	a := NewDataGenerator(99, fixedNow)
	b := NewDataGenerator(99, fixedNow)
	for i := 0; i < 20; i++ {
		pa, pb := a.Patient(), b.Patient()
		if pa.Name != pb.Name || pa.Phone != pb.Phone || *pa.Age != *pb.Age {
			t.Fatalf("expected identical patients, got %+v and %+v", pa, pb)
		}
	}
}

func TestSeeder_Run(t *testing.T) {
	s, svc := newTestSeeder()
	ctx := context.Background()

	result, err := s.Run(ctx, SeedConfig{Patients: 10, Doctors: 4, Appointments: 15, MedicalRecords: 12, Seed: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Patients != 10 || result.Doctors != 4 || result.Appointments != 15 || result.MedicalRecords != 12 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Total() != 41 {
		t.Errorf("expected 41 rows, got %d", result.Total())
	}

	appts, err := svc.List(ctx, records.Appointments, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(appts) != 15 {
		t.Fatalf("expected 15 appointments, got %d", len(appts))
	}
	for _, row := range appts {
		pid, ok := row.ID(records.Patients)
		if !ok || pid < 1 || pid > 10 {
			t.Errorf("appointment references unknown patient %v", row["patient_id"])
		}
		did, ok := row.ID(records.Doctors)
		if !ok || did < 1 || did > 4 {
			t.Errorf("appointment references unknown doctor %v", row["doctor_id"])
		}
	}
}

func TestSeeder_SkipsDependentsWithoutDoctors(t *testing.T) {
	s, svc := newTestSeeder()
	ctx := context.Background()

	result, err := s.Run(ctx, SeedConfig{Patients: 3, Appointments: 5, MedicalRecords: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Patients != 3 || result.Appointments != 0 || result.MedicalRecords != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(result.Skipped) != 2 || result.Skipped[0] != "appointments" || result.Skipped[1] != "medical_records" {
		t.Errorf("expected dependents skipped, got %v", result.Skipped)
	}
	rows, _ := svc.List(ctx, records.Appointments, "")
	if len(rows) != 0 {
		t.Errorf("expected no appointments, got %d", len(rows))
	}
}

type failingCreator struct {
	after int
	calls int
}

func (f *failingCreator) Create(context.Context, records.Kind, records.Entity) (int64, error) {
	f.calls++
	if f.calls > f.after {
		return 0, errors.New("disk full")
	}
	return int64(f.calls), nil
}

func TestSeeder_StopsOnError(t *testing.T) {
	fc := &failingCreator{after: 2}
	s := NewSeeder(fc, zerolog.Nop())

	result, err := s.Run(context.Background(), SeedConfig{Patients: 5, Doctors: 5})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "seed patients #3") {
		t.Errorf("unexpected error %v", err)
	}
	if result.Patients != 2 || result.Doctors != 0 {
		t.Errorf("expected partial counts, got %+v", result)
	}
}

func TestSeeder_Cancelled(t *testing.T) {
	s, _ := newTestSeeder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, DefaultSeedConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSeedHandler(t *testing.T) {
	s, svc := newTestSeeder()
	e := echo.New()
	NewSeedHandler(s).RegisterRoutes(e.Group("/sandbox"))

	req := httptest.NewRequest(http.MethodPost, "/sandbox/seed",
		strings.NewReader(`{"patients":2,"doctors":1,"appointments":1,"medical_records":0,"seed":5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Patients != 2 || result.Appointments != 1 || result.MedicalRecords != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	rows, _ := svc.List(context.Background(), records.Patients, "")
	if len(rows) != 2 {
		t.Errorf("expected 2 patients, got %d", len(rows))
	}
}

func TestSeedHandler_RejectsNegative(t *testing.T) {
	s, _ := newTestSeeder()
	e := echo.New()
	NewSeedHandler(s).RegisterRoutes(e.Group("/sandbox"))

	req := httptest.NewRequest(http.MethodPost, "/sandbox/seed", strings.NewReader(`{"patients":-1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
