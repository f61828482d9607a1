// Package services – clinic services
//
// DoctorService, PatientService and AppointmentService manage the clinic
// resources. Uniqueness of license and document numbers is enforced by the
// database; the persistence translator reports violations as conflicts.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/observability"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/search"
	"github.com/tbourn/go-clinic-api/internal/validate"
)

// DefaultAppointmentMinutes is used when an appointment omits its duration.
const DefaultAppointmentMinutes = 30

// ClinicRepo defines the repository contract required by the clinic services.
type ClinicRepo interface {
	CreateDoctor(ctx context.Context, db *gorm.DB, d *domain.Doctor) error
	ListDoctors(ctx context.Context, db *gorm.DB, specialization string) ([]domain.Doctor, error)
	GetDoctor(ctx context.Context, db *gorm.DB, id string) (*domain.Doctor, error)
	UpdateDoctor(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error
	DeleteDoctor(ctx context.Context, db *gorm.DB, id string) error

	CreatePatient(ctx context.Context, db *gorm.DB, p *domain.Patient) error
	ListPatients(ctx context.Context, db *gorm.DB) ([]domain.Patient, error)
	GetPatient(ctx context.Context, db *gorm.DB, id string) (*domain.Patient, error)
	UpdatePatient(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error
	DeletePatient(ctx context.Context, db *gorm.DB, id string) error

	CreateAppointment(ctx context.Context, db *gorm.DB, a *domain.Appointment) error
	ListAppointments(ctx context.Context, db *gorm.DB, f repo.AppointmentFilter) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error)
	FindOverlappingAppointment(ctx context.Context, db *gorm.DB, doctorID string, from, to time.Time, excludeID string) (*domain.Appointment, error)
	UpdateAppointment(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error
	UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id, status string) error
}

//
// Inputs
//

// NewDoctor is the payload for registering a doctor.
type NewDoctor struct {
	FirstName         string `json:"firstName"         binding:"required,min=2,max=50"`
	LastName          string `json:"lastName"          binding:"required,min=2,max=50"`
	Specialization    string `json:"specialization"    binding:"required,max=100"`
	LicenseNumber     string `json:"licenseNumber"     binding:"required,max=50"`
	Phone             string `json:"phone"             binding:"omitempty,max=20"`
	Email             string `json:"email"             binding:"required,email"`
	YearsOfExperience int    `json:"yearsOfExperience" binding:"gte=0"`
}

// NewPatient is the payload for registering a patient.
type NewPatient struct {
	FirstName      string     `json:"firstName"      binding:"required,min=2,max=50"`
	LastName       string     `json:"lastName"       binding:"required,min=2,max=50"`
	DocumentNumber string     `json:"documentNumber" binding:"required,max=30"`
	Phone          string     `json:"phone"          binding:"omitempty,max=20"`
	Email          string     `json:"email"          binding:"omitempty,email"`
	BirthDate      *time.Time `json:"birthDate"`
}

// NewAppointment is the payload for booking an appointment.
type NewAppointment struct {
	PatientID string    `json:"patientId" binding:"required,uuid"`
	DoctorID  string    `json:"doctorId"  binding:"required,uuid"`
	DateTime  time.Time `json:"dateTime"  binding:"required"`
	Duration  int       `json:"duration"  binding:"omitempty,gte=5,lte=480"`
	Reason    string    `json:"reason"    binding:"omitempty,max=255"`
	Notes     string    `json:"notes"`
}

// DoctorPatch is the payload for a partial doctor update. Nil fields are
// left unchanged; the license number is immutable.
type DoctorPatch struct {
	FirstName         *string `json:"firstName"         binding:"omitempty,min=2,max=50"`
	LastName          *string `json:"lastName"          binding:"omitempty,min=2,max=50"`
	Specialization    *string `json:"specialization"    binding:"omitempty,max=100"`
	Phone             *string `json:"phone"             binding:"omitempty,max=20"`
	Email             *string `json:"email"             binding:"omitempty,email"`
	YearsOfExperience *int    `json:"yearsOfExperience" binding:"omitempty,gte=0"`
}

// PatientPatch is the payload for a partial patient update. The document
// number is immutable.
type PatientPatch struct {
	FirstName *string    `json:"firstName" binding:"omitempty,min=2,max=50"`
	LastName  *string    `json:"lastName"  binding:"omitempty,min=2,max=50"`
	Phone     *string    `json:"phone"     binding:"omitempty,max=20"`
	Email     *string    `json:"email"     binding:"omitempty,email"`
	BirthDate *time.Time `json:"birthDate"`
}

// AppointmentPatch reschedules or edits an appointment.
type AppointmentPatch struct {
	DateTime *time.Time `json:"dateTime"`
	Duration *int       `json:"duration" binding:"omitempty,gte=5,lte=480"`
	Reason   *string    `json:"reason"   binding:"omitempty,max=255"`
	Notes    *string    `json:"notes"`
	Status   *string    `json:"status"   binding:"omitempty,oneof=SCHEDULED CONFIRMED COMPLETED CANCELLED NO_SHOW"`
}

//
// Doctors
//

// DoctorService manages doctors.
type DoctorService struct {
	DB   *gorm.DB
	Repo ClinicRepo
}

// NewDoctorService constructs a DoctorService.
func NewDoctorService(db *gorm.DB, r ClinicRepo) *DoctorService {
	return &DoctorService{DB: db, Repo: r}
}

// Create registers a doctor.
func (s *DoctorService) Create(ctx context.Context, in NewDoctor) (*domain.Doctor, error) {
	if err := personNames(in.FirstName, in.LastName); err != nil {
		return nil, err
	}
	d := &domain.Doctor{
		FirstName:         validate.SanitizeName(in.FirstName),
		LastName:          validate.SanitizeName(in.LastName),
		Specialization:    validate.SanitizeString(in.Specialization),
		LicenseNumber:     strings.TrimSpace(in.LicenseNumber),
		Phone:             strings.TrimSpace(in.Phone),
		Email:             validate.NormalizeEmail(in.Email),
		YearsOfExperience: in.YearsOfExperience,
	}
	if err := s.Repo.CreateDoctor(ctx, s.DB, d); err != nil {
		return nil, err
	}
	return d, nil
}

// List returns doctors, optionally filtered by specialization.
func (s *DoctorService) List(ctx context.Context, specialization string) ([]domain.Doctor, error) {
	return s.Repo.ListDoctors(ctx, s.DB, strings.TrimSpace(specialization))
}

// Get returns the doctor with id.
func (s *DoctorService) Get(ctx context.Context, id string) (*domain.Doctor, error) {
	d, err := s.Repo.GetDoctor(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("Doctor con ID %s no encontrado", id))
	}
	return d, nil
}

// Update applies the non-nil fields of in to doctor id.
func (s *DoctorService) Update(ctx context.Context, id string, in DoctorPatch) (*domain.Doctor, error) {
	p := newPatch()
	p.name("first_name", "firstName", in.FirstName)
	p.name("last_name", "lastName", in.LastName)
	p.text("specialization", in.Specialization)
	p.trimmed("phone", in.Phone)
	p.email("email", in.Email, true)
	if in.YearsOfExperience != nil {
		if *in.YearsOfExperience < 0 {
			p.problems = append(p.problems, "El campo 'yearsOfExperience' no puede ser negativo")
		} else {
			p.fields["years_of_experience"] = *in.YearsOfExperience
		}
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateDoctor(ctx, s.DB, id, p.fields); err != nil {
		return nil, notFound(err, fmt.Sprintf("Doctor con ID %s no encontrado", id))
	}
	return s.Get(ctx, id)
}

// Search returns the doctors whose name or specialization contains q,
// ignoring case and accents. Closer matches come first.
func (s *DoctorService) Search(ctx context.Context, q string) ([]domain.Doctor, error) {
	if err := searchQuery(q); err != nil {
		return nil, err
	}
	ds, err := s.Repo.ListDoctors(ctx, s.DB, "")
	if err != nil {
		return nil, err
	}
	return search.Filter(ds, q, func(d domain.Doctor) []string {
		return []string{d.FirstName, d.LastName, d.Specialization}
	}), nil
}

// Delete removes the doctor with id. Doctors with appointments cannot be
// removed; the foreign-key failure is left for the translator.
func (s *DoctorService) Delete(ctx context.Context, id string) error {
	if err := s.Repo.DeleteDoctor(ctx, s.DB, id); err != nil {
		return notFound(err, fmt.Sprintf("Doctor con ID %s no encontrado", id))
	}
	return nil
}

//
// Patients
//

// PatientService manages patients.
type PatientService struct {
	DB   *gorm.DB
	Repo ClinicRepo
}

// NewPatientService constructs a PatientService.
func NewPatientService(db *gorm.DB, r ClinicRepo) *PatientService {
	return &PatientService{DB: db, Repo: r}
}

// Create registers a patient.
func (s *PatientService) Create(ctx context.Context, in NewPatient) (*domain.Patient, error) {
	if err := personNames(in.FirstName, in.LastName); err != nil {
		return nil, err
	}
	p := &domain.Patient{
		FirstName:      validate.SanitizeName(in.FirstName),
		LastName:       validate.SanitizeName(in.LastName),
		DocumentNumber: strings.TrimSpace(in.DocumentNumber),
		Phone:          strings.TrimSpace(in.Phone),
		Email:          validate.NormalizeEmail(in.Email),
		BirthDate:      in.BirthDate,
	}
	if err := s.Repo.CreatePatient(ctx, s.DB, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns every patient.
func (s *PatientService) List(ctx context.Context) ([]domain.Patient, error) {
	return s.Repo.ListPatients(ctx, s.DB)
}

// Get returns the patient with id.
func (s *PatientService) Get(ctx context.Context, id string) (*domain.Patient, error) {
	p, err := s.Repo.GetPatient(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("Paciente con ID %s no encontrado", id))
	}
	return p, nil
}

// Update applies the non-nil fields of in to patient id. An empty email
// clears it.
func (s *PatientService) Update(ctx context.Context, id string, in PatientPatch) (*domain.Patient, error) {
	p := newPatch()
	p.name("first_name", "firstName", in.FirstName)
	p.name("last_name", "lastName", in.LastName)
	p.trimmed("phone", in.Phone)
	p.email("email", in.Email, false)
	if in.BirthDate != nil {
		p.fields["birth_date"] = in.BirthDate.UTC()
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdatePatient(ctx, s.DB, id, p.fields); err != nil {
		return nil, notFound(err, fmt.Sprintf("Paciente con ID %s no encontrado", id))
	}
	return s.Get(ctx, id)
}

// Search returns the patients whose name, email or document number contains
// q, ignoring case and accents.
func (s *PatientService) Search(ctx context.Context, q string) ([]domain.Patient, error) {
	if err := searchQuery(q); err != nil {
		return nil, err
	}
	ps, err := s.Repo.ListPatients(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return search.Filter(ps, q, func(p domain.Patient) []string {
		return []string{p.FirstName, p.LastName, p.Email, p.DocumentNumber}
	}), nil
}

// Delete removes the patient with id.
func (s *PatientService) Delete(ctx context.Context, id string) error {
	if err := s.Repo.DeletePatient(ctx, s.DB, id); err != nil {
		return notFound(err, fmt.Sprintf("Paciente con ID %s no encontrado", id))
	}
	return nil
}

//
// Appointments
//

// AppointmentService books and manages appointments.
type AppointmentService struct {
	DB   *gorm.DB
	Repo ClinicRepo
}

// NewAppointmentService constructs an AppointmentService.
func NewAppointmentService(db *gorm.DB, r ClinicRepo) *AppointmentService {
	return &AppointmentService{DB: db, Repo: r}
}

// Create books an appointment after checking that both parties exist and
// that the doctor has no active appointment starting in
// [start-duration, start+duration).
func (s *AppointmentService) Create(ctx context.Context, in NewAppointment) (_ *domain.Appointment, err error) {
	ctx, span := observability.StartSpan(ctx, "appointments.create",
		attribute.String("clinic.doctor_id", in.DoctorID),
		attribute.String("clinic.patient_id", in.PatientID),
	)
	defer func() { observability.EndSpan(span, err) }()

	duration := in.Duration
	if duration <= 0 {
		duration = DefaultAppointmentMinutes
	}
	if _, err := s.Repo.GetPatient(ctx, s.DB, in.PatientID); err != nil {
		return nil, notFound(err, fmt.Sprintf("Paciente con ID %s no encontrado", in.PatientID))
	}
	if _, err := s.Repo.GetDoctor(ctx, s.DB, in.DoctorID); err != nil {
		return nil, notFound(err, fmt.Sprintf("Doctor con ID %s no encontrado", in.DoctorID))
	}

	start := in.DateTime.UTC()
	if err := s.checkSlot(ctx, in.DoctorID, start, duration, ""); err != nil {
		return nil, err
	}

	a := &domain.Appointment{
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		DateTime:  start,
		Duration:  duration,
		Reason:    validate.SanitizeString(in.Reason),
		Notes:     validate.SanitizeString(in.Notes),
		Status:    domain.StatusScheduled,
	}
	if err := s.Repo.CreateAppointment(ctx, s.DB, a); err != nil {
		return nil, err
	}
	return s.Repo.GetAppointment(ctx, s.DB, a.ID)
}

// List returns every appointment, latest first.
func (s *AppointmentService) List(ctx context.Context) ([]domain.Appointment, error) {
	return s.Repo.ListAppointments(ctx, s.DB, repo.AppointmentFilter{})
}

// Get returns the appointment with id.
func (s *AppointmentService) Get(ctx context.Context, id string) (*domain.Appointment, error) {
	a, err := s.Repo.GetAppointment(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("Cita con ID %s no encontrada", id))
	}
	return a, nil
}

// Update edits appointment id. Moving it, changing its duration or
// reactivating it re-runs the overlap check against the doctor's other
// appointments.
func (s *AppointmentService) Update(ctx context.Context, id string, in AppointmentPatch) (_ *domain.Appointment, err error) {
	ctx, span := observability.StartSpan(ctx, "appointments.update", attribute.String("clinic.appointment_id", id))
	defer func() { observability.EndSpan(span, err) }()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p := newPatch()
	start, duration, status := cur.DateTime, cur.Duration, cur.Status
	if in.DateTime != nil {
		start = in.DateTime.UTC()
		p.fields["date_time"] = start
	}
	if in.Duration != nil {
		if *in.Duration < 5 || *in.Duration > 480 {
			p.problems = append(p.problems, "El campo 'duration' debe estar entre 5 y 480 minutos")
		} else {
			duration = *in.Duration
			p.fields["duration"] = duration
		}
	}
	p.text("reason", in.Reason)
	p.text("notes", in.Notes)
	if in.Status != nil {
		if !domain.IsValidStatus(*in.Status) {
			p.problems = append(p.problems, "El estado debe ser uno de: "+strings.Join(domain.Statuses, ", "))
		} else {
			status = *in.Status
			p.fields["status"] = status
		}
	}
	if err := p.err(); err != nil {
		return nil, err
	}

	moved := in.DateTime != nil || in.Duration != nil || !domain.IsActiveStatus(cur.Status)
	if domain.IsActiveStatus(status) && moved {
		if err := s.checkSlot(ctx, cur.DoctorID, start, duration, id); err != nil {
			return nil, err
		}
	}
	if err := s.Repo.UpdateAppointment(ctx, s.DB, id, p.fields); err != nil {
		return nil, notFound(err, fmt.Sprintf("Cita con ID %s no encontrada", id))
	}
	return s.Get(ctx, id)
}

// checkSlot reports a Conflict when doctorID has another active appointment
// starting in [start-duration, start+duration).
func (s *AppointmentService) checkSlot(ctx context.Context, doctorID string, start time.Time, duration int, excludeID string) error {
	window := time.Duration(duration) * time.Minute
	_, err := s.Repo.FindOverlappingAppointment(ctx, s.DB, doctorID, start.Add(-window), start.Add(window), excludeID)
	switch {
	case err == nil:
		return apperr.Conflict(msgDoctorBusy).
			WithDetail("doctorId", doctorID).
			WithDetail("dateTime", start.Format(time.RFC3339))
	case !errors.Is(err, repo.ErrNotFound):
		return err
	}
	return nil
}

// Cancel marks appointment id as cancelled.
func (s *AppointmentService) Cancel(ctx context.Context, id string) (_ *domain.Appointment, err error) {
	ctx, span := observability.StartSpan(ctx, "appointments.cancel", attribute.String("clinic.appointment_id", id))
	defer func() { observability.EndSpan(span, err) }()

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.StatusCancelled {
		return nil, apperr.Conflict("La cita ya está cancelada")
	}
	if err := s.Repo.UpdateAppointmentStatus(ctx, s.DB, id, domain.StatusCancelled); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ByPatient returns the appointments of patientID, latest first.
func (s *AppointmentService) ByPatient(ctx context.Context, patientID string) ([]domain.Appointment, error) {
	return s.Repo.ListAppointments(ctx, s.DB, repo.AppointmentFilter{PatientID: patientID})
}

// ByDoctor returns the appointments of doctorID, earliest first.
func (s *AppointmentService) ByDoctor(ctx context.Context, doctorID string) ([]domain.Appointment, error) {
	return s.Repo.ListAppointments(ctx, s.DB, repo.AppointmentFilter{DoctorID: doctorID, Ascending: true})
}

// ByDate returns the appointments on the UTC calendar day given as
// YYYY-MM-DD, earliest first.
func (s *AppointmentService) ByDate(ctx context.Context, date string) ([]domain.Appointment, error) {
	if strings.TrimSpace(date) == "" {
		return nil, apperr.Validation("Faltan campos requeridos", "El campo 'date' es requerido")
	}
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, apperr.Validation("La fecha debe tener el formato YYYY-MM-DD").WithCause(err)
	}
	return s.Repo.ListAppointments(ctx, s.DB, repo.AppointmentFilter{
		From:      day,
		To:        day.AddDate(0, 0, 1),
		Ascending: true,
	})
}

// personNames checks first and last names against the name rules.
func personNames(first, last string) error {
	var problems []string
	if !validate.IsValidName(first) {
		problems = append(problems, "El campo 'firstName' solo puede contener letras y espacios")
	}
	if !validate.IsValidName(last) {
		problems = append(problems, "El campo 'lastName' solo puede contener letras y espacios")
	}
	return validate.Collect(apperr.ValidationMessage, problems)
}

// searchQuery rejects blank search terms.
func searchQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return apperr.Validation(msgSearchQueryRequired)
	}
	return nil
}

// patch accumulates column updates and validation problems for a partial
// update.
type patch struct {
	fields   map[string]any
	problems []string
}

func newPatch() *patch { return &patch{fields: map[string]any{}} }

func (p *patch) name(col, field string, v *string) {
	if v == nil {
		return
	}
	if !validate.IsValidName(*v) {
		p.problems = append(p.problems, fmt.Sprintf("El campo '%s' solo puede contener letras y espacios", field))
		return
	}
	p.fields[col] = validate.SanitizeName(*v)
}

func (p *patch) text(col string, v *string) {
	if v != nil {
		p.fields[col] = validate.SanitizeString(*v)
	}
}

func (p *patch) trimmed(col string, v *string) {
	if v != nil {
		p.fields[col] = strings.TrimSpace(*v)
	}
}

// email validates v; an empty value clears the column unless required.
func (p *patch) email(col string, v *string, required bool) {
	if v == nil {
		return
	}
	e := validate.NormalizeEmail(*v)
	if (e != "" || required) && !validate.IsValidEmail(e) {
		p.problems = append(p.problems, msgInvalidEmail)
		return
	}
	p.fields[col] = e
}

// err returns the collected problems, or a Validation error when nothing
// would change.
func (p *patch) err() error {
	if err := validate.Collect(apperr.ValidationMessage, p.problems); err != nil {
		return err
	}
	if len(p.fields) == 0 {
		return apperr.Validation(msgNoUpdatableFields)
	}
	return nil
}
