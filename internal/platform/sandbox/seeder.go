// Package sandbox fills a facility with synthetic but plausible records for
// demos and local development. Output is reproducible for a given seed.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carenet/carenet/internal/domain/records"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls how many rows of each kind are generated.
type SeedConfig struct {
	Patients       int   `json:"patients"`
	Doctors        int   `json:"doctors"`
	Appointments   int   `json:"appointments"`
	MedicalRecords int   `json:"medical_records"`
	Seed           int64 `json:"seed"`
}

// DefaultSeedConfig returns the volumes used for the demo facilities.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Patients:       50,
		Doctors:        20,
		Appointments:   50,
		MedicalRecords: 50,
	}
}

// SeedResult summarizes one Seeder.Run.
type SeedResult struct {
	Patients       int           `json:"patients"`
	Doctors        int           `json:"doctors"`
	Appointments   int           `json:"appointments"`
	MedicalRecords int           `json:"medical_records"`
	Skipped        []string      `json:"skipped,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Total is the number of rows inserted.
func (r *SeedResult) Total() int {
	return r.Patients + r.Doctors + r.Appointments + r.MedicalRecords
}

// ---------------------------------------------------------------------------
// Vocabulary
// ---------------------------------------------------------------------------

var (
	firstNamesMale = []string{
		"Ali", "Mohammad", "Hossein", "Reza", "Ahmad", "Mahdi", "Hassan", "Amir", "Saeed", "Majid",
		"Mohsen", "Javad", "Ebrahim", "Karim", "Rahim", "Sadegh", "Jafar", "Hamid", "Mehran", "Behzad",
		"Farhad", "Omid", "Vahid", "Nima", "Arash", "Babak", "Siavash",
	}
	firstNamesFemale = []string{
		"Fatemeh", "Zahra", "Maryam", "Zeinab", "Somayeh", "Narges", "Mahsa", "Sara", "Nazanin", "Elham",
		"Shima", "Nasrin", "Parisa", "Mina", "Samaneh", "Leila", "Negar", "Reyhaneh", "Sahar", "Mahnaz",
		"Farzaneh", "Niloofar", "Atefeh", "Mitra", "Sepideh", "Golnaz", "Yasaman", "Shadi", "Azadeh",
	}
	lastNames = []string{
		"Ahmadi", "Mohammadi", "Hosseini", "Rezaei", "Alavi", "Mousavi", "Karimi", "Jafari", "Noori", "Sadeghi",
		"Hassani", "Rahimi", "Ebrahimi", "Akbari", "Bagheri", "Saeedi", "Majidi", "Amiri", "Mahdavi", "Kazemi",
		"Hashemi", "Rostami", "Fatemi", "Najafi", "Ghasemi", "Yousefi", "Sharifi", "Taheri", "Moradi", "Rahmani",
		"Azizi", "Abbasi", "Zamani", "Asadi", "Ghorbani", "Safari", "Soltani", "Mirzaei",
	}
	cities = []string{
		"Tehran", "Mashhad", "Isfahan", "Shiraz", "Tabriz", "Karaj", "Ahvaz", "Qom", "Kermanshah", "Urmia",
		"Rasht", "Zahedan", "Hamedan", "Kerman", "Yazd", "Ardabil", "Bandar Abbas", "Qazvin", "Zanjan",
	}
	streets = []string{
		"Valiasr St", "Azadi St", "Enghelab St", "Shariati St", "Motahari St", "Ferdowsi St", "Hafez St",
		"Saadi St", "Taleghani St", "Beheshti St", "Kargar St", "Resalat St", "Mirdamad Blvd",
	}
	specializations = []string{
		"Cardiology", "General Surgery", "Internal Medicine", "Pediatrics", "Obstetrics and Gynecology",
		"Orthopedics", "Ophthalmology", "ENT", "Dermatology", "Psychiatry", "Neurology", "Urology",
		"Gastroenterology", "Endocrinology", "Pulmonology", "Hematology and Oncology",
	}
	diagnoses = []string{
		"Common Cold", "Hypertension", "Type 2 Diabetes", "Asthma", "Migraine", "Osteoarthritis",
		"Gastritis", "Lower Back Pain", "Influenza", "Allergic Rhinitis", "Anemia", "Depression",
		"Anxiety Disorder", "Kidney Stone", "Hyperlipidemia", "Thyroid Disorder", "Sinusitis", "Bronchitis",
	}
	prescriptions = []string{
		"Acetaminophen 500mg - 3 times daily", "Ibuprofen 400mg - 2 times daily",
		"Amoxicillin 500mg - 3 times daily", "Cetirizine 10mg - at bedtime",
		"Omeprazole 20mg - morning before meal", "Metformin 500mg - 2 times daily",
		"Losartan 50mg - once daily", "Atorvastatin 20mg - at bedtime",
		"Salbutamol Inhaler - as needed", "Diclofenac 50mg - 2 times daily",
	}
	notes = []string{
		"Patient is in good condition", "Follow-up required", "Complete rest recommended",
		"Appropriate diet prescribed", "Additional tests requested", "Patient referred to specialist",
		"Patient condition improving", "No hospitalization needed", "Vital signs stable",
		"Continue current medication",
	}
	slots = []string{"08:00", "09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00"}

	// No-Show is left out; seeded appointments are either upcoming or settled.
	seedStatuses = []string{
		records.StatusScheduled, records.StatusConfirmed, records.StatusCompleted, records.StatusCancelled,
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic synthetic entities.
type DataGenerator struct {
	rng   *rand.Rand
	today time.Time
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen. Dates are generated around today.
func NewDataGenerator(seed int64, today time.Time) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{
		rng:   rand.New(rand.NewSource(seed)),
		today: today,
	}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *DataGenerator) dateOffset(minDays, maxDays int) string {
	return g.today.AddDate(0, 0, g.between(minDays, maxDays)).Format(records.DateLayout)
}

func (g *DataGenerator) person() (first, last, gender string) {
	if g.rng.Intn(2) == 0 {
		return g.pick(firstNamesMale), g.pick(lastNames), "Male"
	}
	return g.pick(firstNamesFemale), g.pick(lastNames), "Female"
}

// Patient returns a patient aged 1 to 85 with a mobile number and a street
// address.
func (g *DataGenerator) Patient() *records.Patient {
	first, last, gender := g.person()
	age := g.between(1, 85)
	return &records.Patient{
		Name:    first + " " + last,
		Age:     &age,
		Gender:  gender,
		Phone:   fmt.Sprintf("+98-9%02d-%03d-%04d", g.between(10, 99), g.between(100, 999), g.between(1000, 9999)),
		Address: fmt.Sprintf("%d %s, %s, Iran", g.between(1, 500), g.pick(streets), g.pick(cities)),
	}
}

// Doctor returns a doctor with a landline and a hospital email.
func (g *DataGenerator) Doctor() *records.Doctor {
	first, last, _ := g.person()
	return &records.Doctor{
		Name:           "Dr. " + first + " " + last,
		Specialization: g.pick(specializations),
		Phone:          fmt.Sprintf("+98-21-%04d-%04d", g.between(1000, 9999), g.between(1000, 9999)),
		Email:          fmt.Sprintf("dr.%s%d@hospital.ir", strings.ToLower(last), g.between(1, 99)),
	}
}

// Appointment returns an appointment within 30 days either side of today.
func (g *DataGenerator) Appointment(patientID, doctorID int64) *records.Appointment {
	return &records.Appointment{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      g.dateOffset(-30, 30),
		Time:      g.pick(slots),
		Status:    g.pick(seedStatuses),
	}
}

// MedicalRecord returns a record dated within the past 90 days.
func (g *DataGenerator) MedicalRecord(patientID, doctorID int64) *records.MedicalRecord {
	return &records.MedicalRecord{
		PatientID:    patientID,
		DoctorID:     doctorID,
		Diagnosis:    g.pick(diagnoses),
		Prescription: g.pick(prescriptions),
		Notes:        g.pick(notes),
		RecordDate:   g.dateOffset(-90, 0),
	}
}

func (g *DataGenerator) pickID(ids []int64) int64 {
	return ids[g.rng.Intn(len(ids))]
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Creator is satisfied by *records.Service.
type Creator interface {
	Create(ctx context.Context, kind records.Kind, e records.Entity) (int64, error)
}

// Seeder inserts generated rows through a Creator so they pass the same
// validation as any other write.
type Seeder struct {
	creator Creator
	logger  zerolog.Logger
	now     func() time.Time
}

func NewSeeder(creator Creator, logger zerolog.Logger) *Seeder {
	return &Seeder{creator: creator, logger: logger, now: time.Now}
}

// Run inserts patients and doctors first, then appointments and medical
// records referencing the ids just created. When no patients or doctors
// were created the dependent kinds are skipped and listed in the result.
func (s *Seeder) Run(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	g := NewDataGenerator(cfg.Seed, s.now())
	result := &SeedResult{}

	patientIDs, err := s.insertN(ctx, records.Patients, cfg.Patients, func() records.Entity { return g.Patient() })
	result.Patients = len(patientIDs)
	if err != nil {
		return result, err
	}

	doctorIDs, err := s.insertN(ctx, records.Doctors, cfg.Doctors, func() records.Entity { return g.Doctor() })
	result.Doctors = len(doctorIDs)
	if err != nil {
		return result, err
	}

	if len(patientIDs) == 0 || len(doctorIDs) == 0 {
		if cfg.Appointments > 0 {
			result.Skipped = append(result.Skipped, string(records.Appointments))
		}
		if cfg.MedicalRecords > 0 {
			result.Skipped = append(result.Skipped, string(records.MedicalRecords))
		}
		if len(result.Skipped) > 0 {
			s.logger.Warn().Strs("skipped", result.Skipped).Msg("no patients or doctors to reference")
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	ids, err := s.insertN(ctx, records.Appointments, cfg.Appointments, func() records.Entity {
		return g.Appointment(g.pickID(patientIDs), g.pickID(doctorIDs))
	})
	result.Appointments = len(ids)
	if err != nil {
		return result, err
	}

	ids, err = s.insertN(ctx, records.MedicalRecords, cfg.MedicalRecords, func() records.Entity {
		return g.MedicalRecord(g.pickID(patientIDs), g.pickID(doctorIDs))
	})
	result.MedicalRecords = len(ids)
	if err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("patients", result.Patients).
		Int("doctors", result.Doctors).
		Int("appointments", result.Appointments).
		Int("medical_records", result.MedicalRecords).
		Dur("duration", result.Duration).
		Msg("seeded demo data")
	return result, nil
}

func (s *Seeder) insertN(ctx context.Context, kind records.Kind, n int, next func() records.Entity) ([]int64, error) {
	ids := make([]int64, 0, max(n, 0))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		id, err := s.creator.Create(ctx, kind, next())
		if err != nil {
			return ids, fmt.Errorf("seed %s #%d: %w", kind, i+1, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// SeedHandler
// ---------------------------------------------------------------------------

// SeedHandler exposes the seeder over HTTP. It is only mounted in
// development.
type SeedHandler struct {
	seeder *Seeder
	mu     sync.Mutex
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := DefaultSeedConfig()
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid seed config")
	}
	if cfg.Patients < 0 || cfg.Doctors < 0 || cfg.Appointments < 0 || cfg.MedicalRecords < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "counts must not be negative")
	}

	result, err := h.seeder.Run(c.Request().Context(), cfg)
	if err != nil {
		return records.HTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}
