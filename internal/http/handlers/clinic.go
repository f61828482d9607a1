// Clinic HTTP handlers.
//
// This file exposes REST endpoints for doctors, patients and appointments:
//   - GET/POST        /doctors, GET/DELETE /doctors/{id}
//   - GET/POST        /patients, GET/DELETE /patients/{id}
//   - GET/POST        /appointments, GET /appointments/{id}
//   - PATCH           /appointments/{id}/cancel
//   - GET             /appointments/patient/{patientId}
//   - GET             /appointments/doctor/{doctorId}
//   - GET             /appointments/date?date=YYYY-MM-DD
//
// UUID path parameters are validated by middleware.ValidateUUIDParam.
package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/services"
)

//
// Service contracts
//

// DoctorService defines doctor operations consumed by the handlers.
type DoctorService interface {
	Create(ctx context.Context, in services.NewDoctor) (*domain.Doctor, error)
	List(ctx context.Context, specialization string) ([]domain.Doctor, error)
	Get(ctx context.Context, id string) (*domain.Doctor, error)
	Update(ctx context.Context, id string, in services.DoctorPatch) (*domain.Doctor, error)
	Search(ctx context.Context, q string) ([]domain.Doctor, error)
	Delete(ctx context.Context, id string) error
}

// PatientService defines patient operations consumed by the handlers.
type PatientService interface {
	Create(ctx context.Context, in services.NewPatient) (*domain.Patient, error)
	List(ctx context.Context) ([]domain.Patient, error)
	Get(ctx context.Context, id string) (*domain.Patient, error)
	Update(ctx context.Context, id string, in services.PatientPatch) (*domain.Patient, error)
	Search(ctx context.Context, q string) ([]domain.Patient, error)
	Delete(ctx context.Context, id string) error
}

// AppointmentService defines appointment operations consumed by the handlers.
type AppointmentService interface {
	Create(ctx context.Context, in services.NewAppointment) (*domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	Get(ctx context.Context, id string) (*domain.Appointment, error)
	Update(ctx context.Context, id string, in services.AppointmentPatch) (*domain.Appointment, error)
	Cancel(ctx context.Context, id string) (*domain.Appointment, error)
	ByPatient(ctx context.Context, patientID string) ([]domain.Appointment, error)
	ByDoctor(ctx context.Context, doctorID string) ([]domain.Appointment, error)
	ByDate(ctx context.Context, date string) ([]domain.Appointment, error)
}

// ClinicHandlers groups the clinic endpoints.
type ClinicHandlers struct {
	doctors      DoctorService
	patients     PatientService
	appointments AppointmentService
}

// NewClinicHandlers binds the handlers to the clinic services.
func NewClinicHandlers(d DoctorService, p PatientService, a AppointmentService) *ClinicHandlers {
	return &ClinicHandlers{doctors: d, patients: p, appointments: a}
}

//
// DTOs
//

// DoctorData wraps a single doctor.
type DoctorData struct {
	Doctor *domain.Doctor `json:"doctor"`
}

// DoctorsData wraps a list of doctors.
type DoctorsData struct {
	Doctors []domain.Doctor `json:"doctors"`
}

// PatientData wraps a single patient.
type PatientData struct {
	Patient *domain.Patient `json:"patient"`
}

// PatientsData wraps a list of patients.
type PatientsData struct {
	Patients []domain.Patient `json:"patients"`
}

// AppointmentData wraps a single appointment.
type AppointmentData struct {
	Appointment *domain.Appointment `json:"appointment"`
}

// AppointmentsData wraps a list of appointments.
type AppointmentsData struct {
	Appointments []domain.Appointment `json:"appointments"`
}

//
// Doctors
//

// ListDoctors godoc
// @ID          listDoctors
// @Summary     List doctors
// @Description Returns doctors ordered by last name, optionally filtered by specialization. Supports weak ETag.
// @Tags        Doctors
// @Produce     json
// @Param       specialization  query   string  false  "Case-insensitive specialization filter"  example(Cardiología)
// @Param       If-None-Match   header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.Envelope{data=handlers.DoctorsData}
// @Success     304  {string}  string  "Not Modified"
// @Router      /doctors [get]
func (h *ClinicHandlers) ListDoctors(c *gin.Context) error {
	specialization := c.Query("specialization")
	if svc, isDB := h.doctors.(*services.DoctorService); isDB && notModified(c, svc.DB, "doctors:"+url.QueryEscape(strings.ToLower(specialization)), &domain.Doctor{}, repo.DoctorsBySpecialization(specialization)) {
		return nil
	}
	ds, err := h.doctors.List(c.Request.Context(), specialization)
	if err != nil {
		return err
	}
	ds = paginate(c, ds)
	list(c, len(ds), DoctorsData{Doctors: ds})
	return nil
}

// GetDoctor godoc
// @ID          getDoctor
// @Summary     Get a doctor
// @Tags        Doctors
// @Produce     json
// @Param       id   path      string  true  "Doctor ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.DoctorData}
// @Failure     400  {object}  middleware.ErrorBody  "Invalid id"
// @Failure     404  {object}  middleware.ErrorBody  "Not found"
// @Router      /doctors/{id} [get]
func (h *ClinicHandlers) GetDoctor(c *gin.Context) error {
	d, err := h.doctors.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "", DoctorData{Doctor: d})
	return nil
}

// CreateDoctor godoc
// @ID          createDoctor
// @Summary     Register a doctor
// @Tags        Doctors
// @Accept      json
// @Produce     json
// @Param       body  body      services.NewDoctor  true  "Doctor"
// @Success     201   {object}  handlers.Envelope{data=handlers.DoctorData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     409   {object}  middleware.ErrorBody  "License number or email taken"
// @Router      /doctors [post]
func (h *ClinicHandlers) CreateDoctor(c *gin.Context) error {
	var in services.NewDoctor
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	d, err := h.doctors.Create(c.Request.Context(), in)
	if err != nil {
		return err
	}
	ok(c, http.StatusCreated, "Doctor registrado exitosamente", DoctorData{Doctor: d})
	return nil
}

// UpdateDoctor godoc
// @ID          updateDoctor
// @Summary     Update a doctor
// @Description Applies the fields present in the body. The license number cannot be changed.
// @Tags        Doctors
// @Accept      json
// @Produce     json
// @Param       id    path      string               true  "Doctor ID (UUID)"  format(uuid)
// @Param       body  body      services.DoctorPatch  true  "Fields to change"
// @Success     200   {object}  handlers.Envelope{data=handlers.DoctorData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     404   {object}  middleware.ErrorBody  "Not found"
// @Failure     409   {object}  middleware.ErrorBody  "Email taken"
// @Router      /doctors/{id} [patch]
func (h *ClinicHandlers) UpdateDoctor(c *gin.Context) error {
	var in services.DoctorPatch
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	d, err := h.doctors.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Doctor actualizado exitosamente", DoctorData{Doctor: d})
	return nil
}

// SearchDoctors godoc
// @ID          searchDoctors
// @Summary     Search doctors
// @Description Case and accent insensitive search over name and specialization. Best matches first.
// @Tags        Doctors
// @Produce     json
// @Param       q    query     string  true  "Search text"  example(pediatria)
// @Success     200  {object}  handlers.Envelope{data=handlers.DoctorsData}
// @Failure     400  {object}  middleware.ErrorBody  "Missing q"
// @Router      /doctors/search [get]
func (h *ClinicHandlers) SearchDoctors(c *gin.Context) error {
	ds, err := h.doctors.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		return err
	}
	ds = paginate(c, ds)
	list(c, len(ds), DoctorsData{Doctors: ds})
	return nil
}

// DeleteDoctor godoc
// @ID          deleteDoctor
// @Summary     Delete a doctor
// @Description Doctors with appointments cannot be deleted.
// @Tags        Doctors
// @Param       id   path    string  true  "Doctor ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     400  {object} middleware.ErrorBody  "Invalid id or doctor has appointments"
// @Failure     404  {object} middleware.ErrorBody  "Not found"
// @Router      /doctors/{id} [delete]
func (h *ClinicHandlers) DeleteDoctor(c *gin.Context) error {
	if err := h.doctors.Delete(c.Request.Context(), c.Param("id")); err != nil {
		return err
	}
	noContent(c)
	return nil
}

//
// Patients
//

// ListPatients godoc
// @ID          listPatients
// @Summary     List patients
// @Tags        Patients
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.Envelope{data=handlers.PatientsData}
// @Success     304  {string}  string  "Not Modified"
// @Router      /patients [get]
func (h *ClinicHandlers) ListPatients(c *gin.Context) error {
	if svc, isDB := h.patients.(*services.PatientService); isDB && notModified(c, svc.DB, "patients", &domain.Patient{}) {
		return nil
	}
	ps, err := h.patients.List(c.Request.Context())
	if err != nil {
		return err
	}
	ps = paginate(c, ps)
	list(c, len(ps), PatientsData{Patients: ps})
	return nil
}

// GetPatient godoc
// @ID          getPatient
// @Summary     Get a patient
// @Tags        Patients
// @Produce     json
// @Param       id   path      string  true  "Patient ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.PatientData}
// @Failure     400  {object}  middleware.ErrorBody  "Invalid id"
// @Failure     404  {object}  middleware.ErrorBody  "Not found"
// @Router      /patients/{id} [get]
func (h *ClinicHandlers) GetPatient(c *gin.Context) error {
	p, err := h.patients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "", PatientData{Patient: p})
	return nil
}

// CreatePatient godoc
// @ID          createPatient
// @Summary     Register a patient
// @Tags        Patients
// @Accept      json
// @Produce     json
// @Param       body  body      services.NewPatient  true  "Patient"
// @Success     201   {object}  handlers.Envelope{data=handlers.PatientData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     409   {object}  middleware.ErrorBody  "Document number taken"
// @Router      /patients [post]
func (h *ClinicHandlers) CreatePatient(c *gin.Context) error {
	var in services.NewPatient
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	p, err := h.patients.Create(c.Request.Context(), in)
	if err != nil {
		return err
	}
	ok(c, http.StatusCreated, "Paciente registrado exitosamente", PatientData{Patient: p})
	return nil
}

// UpdatePatient godoc
// @ID          updatePatient
// @Summary     Update a patient
// @Description Applies the fields present in the body. The document number cannot be changed; an empty email clears it.
// @Tags        Patients
// @Accept      json
// @Produce     json
// @Param       id    path      string                true  "Patient ID (UUID)"  format(uuid)
// @Param       body  body      services.PatientPatch  true  "Fields to change"
// @Success     200   {object}  handlers.Envelope{data=handlers.PatientData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     404   {object}  middleware.ErrorBody  "Not found"
// @Router      /patients/{id} [patch]
func (h *ClinicHandlers) UpdatePatient(c *gin.Context) error {
	var in services.PatientPatch
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	p, err := h.patients.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Paciente actualizado exitosamente", PatientData{Patient: p})
	return nil
}

// SearchPatients godoc
// @ID          searchPatients
// @Summary     Search patients
// @Description Case and accent insensitive search over name, email and document number.
// @Tags        Patients
// @Produce     json
// @Param       q    query     string  true  "Search text"
// @Success     200  {object}  handlers.Envelope{data=handlers.PatientsData}
// @Failure     400  {object}  middleware.ErrorBody  "Missing q"
// @Router      /patients/search [get]
func (h *ClinicHandlers) SearchPatients(c *gin.Context) error {
	ps, err := h.patients.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		return err
	}
	ps = paginate(c, ps)
	list(c, len(ps), PatientsData{Patients: ps})
	return nil
}

// DeletePatient godoc
// @ID          deletePatient
// @Summary     Delete a patient
// @Description Patients with appointments cannot be deleted.
// @Tags        Patients
// @Param       id   path    string  true  "Patient ID (UUID)"  format(uuid)
// @Success     204  {string} string "No Content"
// @Failure     400  {object} middleware.ErrorBody  "Invalid id or patient has appointments"
// @Failure     404  {object} middleware.ErrorBody  "Not found"
// @Router      /patients/{id} [delete]
func (h *ClinicHandlers) DeletePatient(c *gin.Context) error {
	if err := h.patients.Delete(c.Request.Context(), c.Param("id")); err != nil {
		return err
	}
	noContent(c)
	return nil
}

//
// Appointments
//

// ListAppointments godoc
// @ID          listAppointments
// @Summary     List appointments
// @Description Returns every appointment with doctor and patient, latest first.
// @Tags        Appointments
// @Produce     json
// @Success     200  {object}  handlers.Envelope{data=handlers.AppointmentsData}
// @Router      /appointments [get]
func (h *ClinicHandlers) ListAppointments(c *gin.Context) error {
	as, err := h.appointments.List(c.Request.Context())
	if err != nil {
		return err
	}
	h.writeAppointments(c, as)
	return nil
}

// GetAppointment godoc
// @ID          getAppointment
// @Summary     Get an appointment
// @Tags        Appointments
// @Produce     json
// @Param       id   path      string  true  "Appointment ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.AppointmentData}
// @Failure     400  {object}  middleware.ErrorBody  "Invalid id"
// @Failure     404  {object}  middleware.ErrorBody  "Not found"
// @Router      /appointments/{id} [get]
func (h *ClinicHandlers) GetAppointment(c *gin.Context) error {
	a, err := h.appointments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "", AppointmentData{Appointment: a})
	return nil
}

// CreateAppointment godoc
// @ID          createAppointment
// @Summary     Book an appointment
// @Description Books an appointment; no active appointment of the doctor may start in [dateTime-duration, dateTime+duration).
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       body  body      services.NewAppointment  true  "Appointment"
// @Success     201   {object}  handlers.Envelope{data=handlers.AppointmentData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     404   {object}  middleware.ErrorBody  "Patient or doctor not found"
// @Failure     409   {object}  middleware.ErrorBody  "Doctor busy"
// @Router      /appointments [post]
func (h *ClinicHandlers) CreateAppointment(c *gin.Context) error {
	var in services.NewAppointment
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	a, err := h.appointments.Create(c.Request.Context(), in)
	if err != nil {
		return err
	}
	ok(c, http.StatusCreated, "Cita creada exitosamente", AppointmentData{Appointment: a})
	return nil
}

// UpdateAppointment godoc
// @ID          updateAppointment
// @Summary     Update or reschedule an appointment
// @Description Moving it, changing its duration or reactivating it re-checks the doctor's agenda.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       id    path      string                     true  "Appointment ID (UUID)"  format(uuid)
// @Param       body  body      services.AppointmentPatch  true  "Fields to change"
// @Success     200   {object}  handlers.Envelope{data=handlers.AppointmentData}
// @Failure     400   {object}  middleware.ErrorBody  "Validation error"
// @Failure     404   {object}  middleware.ErrorBody  "Not found"
// @Failure     409   {object}  middleware.ErrorBody  "Doctor busy"
// @Router      /appointments/{id} [patch]
func (h *ClinicHandlers) UpdateAppointment(c *gin.Context) error {
	var in services.AppointmentPatch
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	a, err := h.appointments.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Cita actualizada exitosamente", AppointmentData{Appointment: a})
	return nil
}

// CancelAppointment godoc
// @ID          cancelAppointment
// @Summary     Cancel an appointment
// @Tags        Appointments
// @Produce     json
// @Param       id   path      string  true  "Appointment ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.Envelope{data=handlers.AppointmentData}
// @Failure     404  {object}  middleware.ErrorBody  "Not found"
// @Failure     409  {object}  middleware.ErrorBody  "Already cancelled"
// @Router      /appointments/{id}/cancel [patch]
func (h *ClinicHandlers) CancelAppointment(c *gin.Context) error {
	a, err := h.appointments.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}
	ok(c, http.StatusOK, "Cita cancelada exitosamente", AppointmentData{Appointment: a})
	return nil
}

// AppointmentsByPatient godoc
// @ID          appointmentsByPatient
// @Summary     Appointments of a patient
// @Tags        Appointments
// @Produce     json
// @Param       patientId  path      string  true  "Patient ID (UUID)"  format(uuid)
// @Success     200        {object}  handlers.Envelope{data=handlers.AppointmentsData}
// @Failure     400        {object}  middleware.ErrorBody  "Invalid id"
// @Router      /appointments/patient/{patientId} [get]
func (h *ClinicHandlers) AppointmentsByPatient(c *gin.Context) error {
	as, err := h.appointments.ByPatient(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		return err
	}
	h.writeAppointments(c, as)
	return nil
}

// AppointmentsByDoctor godoc
// @ID          appointmentsByDoctor
// @Summary     Appointments of a doctor
// @Tags        Appointments
// @Produce     json
// @Param       doctorId  path      string  true  "Doctor ID (UUID)"  format(uuid)
// @Success     200       {object}  handlers.Envelope{data=handlers.AppointmentsData}
// @Failure     400       {object}  middleware.ErrorBody  "Invalid id"
// @Router      /appointments/doctor/{doctorId} [get]
func (h *ClinicHandlers) AppointmentsByDoctor(c *gin.Context) error {
	as, err := h.appointments.ByDoctor(c.Request.Context(), c.Param("doctorId"))
	if err != nil {
		return err
	}
	h.writeAppointments(c, as)
	return nil
}

// AppointmentsByDate godoc
// @ID          appointmentsByDate
// @Summary     Appointments on a day
// @Tags        Appointments
// @Produce     json
// @Param       date  query     string  true  "UTC day"  example(2026-03-15)
// @Success     200   {object}  handlers.Envelope{data=handlers.AppointmentsData}
// @Failure     400   {object}  middleware.ErrorBody  "Missing or malformed date"
// @Router      /appointments/date [get]
func (h *ClinicHandlers) AppointmentsByDate(c *gin.Context) error {
	as, err := h.appointments.ByDate(c.Request.Context(), c.Query("date"))
	if err != nil {
		return err
	}
	h.writeAppointments(c, as)
	return nil
}

func (h *ClinicHandlers) writeAppointments(c *gin.Context, as []domain.Appointment) {
	as = paginate(c, as)
	list(c, len(as), AppointmentsData{Appointments: as})
}
