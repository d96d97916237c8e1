package records

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies one of the four entity tables.
type Kind string

const (
	Patients       Kind = "patients"
	Doctors        Kind = "doctors"
	Appointments   Kind = "appointments"
	MedicalRecords Kind = "medical_records"
)

// Kinds lists every entity kind in display order.
var Kinds = []Kind{Patients, Doctors, Appointments, MedicalRecords}

// CreatedAtColumn is present on every table and assigned by the store.
const CreatedAtColumn = "created_at"

// Table describes the shape of one entity table.
type Table struct {
	Name    string
	Key     string
	Columns []string
}

var tables = map[Kind]Table{
	Patients: {
		Name:    "patients",
		Key:     "patient_id",
		Columns: []string{"name", "age", "gender", "phone", "address"},
	},
	Doctors: {
		Name:    "doctors",
		Key:     "doctor_id",
		Columns: []string{"name", "specialization", "phone", "email"},
	},
	Appointments: {
		Name:    "appointments",
		Key:     "appointment_id",
		Columns: []string{"patient_id", "doctor_id", "appointment_date", "appointment_time", "status"},
	},
	MedicalRecords: {
		Name:    "medical_records",
		Key:     "record_id",
		Columns: []string{"patient_id", "doctor_id", "diagnosis", "prescription", "notes", "record_date"},
	},
}

// ParseKind resolves a table name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := tables[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Table returns the table descriptor for the kind.
func (k Kind) Table() Table {
	return tables[k]
}

// Key returns the key column of the kind's table.
func (k Kind) Key() string {
	return tables[k].Key
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := tables[k]
	return ok
}

// HasColumn reports whether col is a writable column of the table.
func (t Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// AllColumns returns key, data columns and created_at in table order.
func (t Table) AllColumns() []string {
	cols := make([]string, 0, len(t.Columns)+2)
	cols = append(cols, t.Key)
	cols = append(cols, t.Columns...)
	return append(cols, CreatedAtColumn)
}

// Fields are column values supplied for insert or update.
type Fields map[string]any

// Row is one stored row keyed by column name, including the key column and
// created_at.
type Row map[string]any

// ID extracts the row's local key. It accepts the numeric shapes produced by
// pgx, encoding/json and json.Number.
func (r Row) ID(kind Kind) (int64, bool) {
	return toInt64(r[kind.Key()])
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Appointment statuses.
const (
	StatusScheduled = "Scheduled"
	StatusConfirmed = "Confirmed"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
	StatusNoShow    = "No-Show"
)

// Statuses lists the accepted appointment statuses.
var Statuses = []string{StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}

// Patient is the typed form of a patients row.
type Patient struct {
	ID      int64  `json:"patient_id,omitempty"`
	Name    string `json:"name"`
	Age     *int   `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (p *Patient) Fields() Fields {
	f := Fields{
		"name":    p.Name,
		"age":     nil,
		"gender":  p.Gender,
		"phone":   p.Phone,
		"address": p.Address,
	}
	if p.Age != nil {
		f["age"] = *p.Age
	}
	return f
}

// Doctor is the typed form of a doctors row.
type Doctor struct {
	ID             int64  `json:"doctor_id,omitempty"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
}

func (d *Doctor) Fields() Fields {
	return Fields{
		"name":           d.Name,
		"specialization": d.Specialization,
		"phone":          d.Phone,
		"email":          d.Email,
	}
}

// Appointment is the typed form of an appointments row. Date is YYYY-MM-DD
// and Time is HH:MM.
type Appointment struct {
	ID        int64  `json:"appointment_id,omitempty"`
	PatientID int64  `json:"patient_id"`
	DoctorID  int64  `json:"doctor_id"`
	Date      string `json:"appointment_date"`
	Time      string `json:"appointment_time"`
	Status    string `json:"status,omitempty"`
}

func (a *Appointment) Fields() Fields {
	return Fields{
		"patient_id":       a.PatientID,
		"doctor_id":        a.DoctorID,
		"appointment_date": a.Date,
		"appointment_time": a.Time,
		"status":           a.Status,
	}
}

// MedicalRecord is the typed form of a medical_records row.
type MedicalRecord struct {
	ID           int64  `json:"record_id,omitempty"`
	PatientID    int64  `json:"patient_id"`
	DoctorID     int64  `json:"doctor_id"`
	Diagnosis    string `json:"diagnosis,omitempty"`
	Prescription string `json:"prescription,omitempty"`
	Notes        string `json:"notes,omitempty"`
	RecordDate   string `json:"record_date,omitempty"`
}

func (m *MedicalRecord) Fields() Fields {
	return Fields{
		"patient_id":   m.PatientID,
		"doctor_id":    m.DoctorID,
		"diagnosis":    m.Diagnosis,
		"prescription": m.Prescription,
		"notes":        m.Notes,
		"record_date":  m.RecordDate,
	}
}

// Entity is implemented by the four typed row forms.
type Entity interface {
	Fields() Fields
}

// NewEntity returns an empty typed entity for the kind, suitable for
// decoding a request body.
func NewEntity(kind Kind) (Entity, error) {
	switch kind {
	case Patients:
		return &Patient{}, nil
	case Doctors:
		return &Doctor{}, nil
	case Appointments:
		return &Appointment{}, nil
	case MedicalRecords:
		return &MedicalRecord{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
