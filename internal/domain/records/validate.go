package records

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DateLayout = "2006-01-02"

	minNameLen = 3
	maxNameLen = 100
	minAge     = 1
	maxAge     = 150
)

var (
	namePattern           = regexp.MustCompile(`^[\p{L}][\p{L} .'-]*$`)
	phonePattern          = regexp.MustCompile(`^\+?\d[\d\s-]{6,18}\d$`)
	emailPattern          = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	specializationPattern = regexp.MustCompile(`^[\p{L}][\p{L} &/,.'-]+$`)
	timePattern           = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

var genders = []string{"Male", "Female", "Other"}

// ValidatePatient checks a patient against the input contract.
func ValidatePatient(p *Patient) error {
	var errs ValidationErrors
	validateName(&errs, p.Name)
	if p.Age != nil && (*p.Age < minAge || *p.Age > maxAge) {
		errs.add("age", "must be between 1 and 150")
	}
	if p.Gender != "" && !oneOfFold(p.Gender, genders) {
		errs.add("gender", "must be Male, Female or Other")
	}
	validatePhone(&errs, p.Phone)
	return errs.orNil()
}

// ValidateDoctor checks a doctor against the input contract.
func ValidateDoctor(d *Doctor) error {
	var errs ValidationErrors
	validateName(&errs, d.Name)
	if s := strings.TrimSpace(d.Specialization); s != "" && !specializationPattern.MatchString(s) {
		errs.add("specialization", "must contain only letters, spaces and &/,.'-")
	}
	validatePhone(&errs, d.Phone)
	if e := strings.TrimSpace(d.Email); e != "" && !emailPattern.MatchString(e) {
		errs.add("email", "must be a valid email address")
	}
	return errs.orNil()
}

// ValidateAppointment checks an appointment against the input contract.
func ValidateAppointment(a *Appointment) error {
	var errs ValidationErrors
	validateRef(&errs, "patient_id", a.PatientID)
	validateRef(&errs, "doctor_id", a.DoctorID)
	if !ValidDate(a.Date) {
		errs.add("appointment_date", "must be a calendar date in YYYY-MM-DD form")
	}
	if !ValidTime(a.Time) {
		errs.add("appointment_time", "must be a time between 00:00 and 23:59 in HH:MM form")
	}
	if a.Status != "" && !oneOf(a.Status, Statuses) {
		errs.add("status", "must be one of "+strings.Join(Statuses, ", "))
	}
	return errs.orNil()
}

// ValidateMedicalRecord checks a medical record against the input contract.
func ValidateMedicalRecord(m *MedicalRecord) error {
	var errs ValidationErrors
	validateRef(&errs, "patient_id", m.PatientID)
	validateRef(&errs, "doctor_id", m.DoctorID)
	if m.RecordDate != "" && !ValidDate(m.RecordDate) {
		errs.add("record_date", "must be a calendar date in YYYY-MM-DD form")
	}
	return errs.orNil()
}

// Validate dispatches to the validator for the entity's concrete type.
func Validate(e Entity) error {
	switch v := e.(type) {
	case *Patient:
		return ValidatePatient(v)
	case *Doctor:
		return ValidateDoctor(v)
	case *Appointment:
		return ValidateAppointment(v)
	case *MedicalRecord:
		return ValidateMedicalRecord(v)
	}
	return ErrUnknownKind
}

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidTime reports whether s is HH:MM within 00:00-23:59.
func ValidTime(s string) bool {
	return timePattern.MatchString(s)
}

func validateName(errs *ValidationErrors, name string) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	switch {
	case name == "":
		errs.add("name", "is required")
	case n < minNameLen:
		errs.add("name", "must be at least 3 characters")
	case n > maxNameLen:
		errs.add("name", "must be at most 100 characters")
	case !namePattern.MatchString(name):
		errs.add("name", "must contain only letters, spaces and .'-")
	}
}

func validatePhone(errs *ValidationErrors, phone string) {
	if phone = strings.TrimSpace(phone); phone != "" && !phonePattern.MatchString(phone) {
		errs.add("phone", "must be 8-20 digits, optionally with a leading + and spaces or dashes")
	}
}

func validateRef(errs *ValidationErrors, field string, id int64) {
	if id <= 0 {
		errs.add(field, "must be a positive id")
	}
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func oneOfFold(s string, set []string) bool {
	for _, v := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
