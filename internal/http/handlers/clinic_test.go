package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/http/middleware"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/services"
)

func newClinicEngine(t *testing.T) *gin.Engine {
	t.Helper()
	db := newHandlerDB(t)
	h := NewClinicHandlers(
		services.NewDoctorService(db, repo.Gorm{}),
		services.NewPatientService(db, repo.Gorm{}),
		services.NewAppointmentService(db, repo.Gorm{}),
	)

	r := newEngine()
	id := middleware.ValidateUUIDParam("id")

	d := r.Group("/doctors")
	d.GET("", middleware.Handle(h.ListDoctors))
	d.POST("", middleware.Handle(h.CreateDoctor))
	d.GET("/search", middleware.Handle(h.SearchDoctors))
	d.GET("/:id", id, middleware.Handle(h.GetDoctor))
	d.PATCH("/:id", id, middleware.Handle(h.UpdateDoctor))
	d.DELETE("/:id", id, middleware.Handle(h.DeleteDoctor))

	p := r.Group("/patients")
	p.GET("", middleware.Handle(h.ListPatients))
	p.POST("", middleware.Handle(h.CreatePatient))
	p.GET("/search", middleware.Handle(h.SearchPatients))
	p.GET("/:id", id, middleware.Handle(h.GetPatient))
	p.PATCH("/:id", id, middleware.Handle(h.UpdatePatient))
	p.DELETE("/:id", id, middleware.Handle(h.DeletePatient))

	a := r.Group("/appointments")
	a.GET("", middleware.Handle(h.ListAppointments))
	a.POST("", middleware.Handle(h.CreateAppointment))
	a.GET("/date", middleware.Handle(h.AppointmentsByDate))
	a.GET("/patient/:patientId", middleware.ValidateUUIDParam("patientId"), middleware.Handle(h.AppointmentsByPatient))
	a.GET("/doctor/:doctorId", middleware.ValidateUUIDParam("doctorId"), middleware.Handle(h.AppointmentsByDoctor))
	a.GET("/:id", id, middleware.Handle(h.GetAppointment))
	a.PATCH("/:id", id, middleware.Handle(h.UpdateAppointment))
	a.PATCH("/:id/cancel", id, middleware.Handle(h.CancelAppointment))
	return r
}

func doctorBody(license, email string) map[string]any {
	return map[string]any{
		"firstName":         "maría",
		"lastName":          "lópez",
		"specialization":    "Cardiología",
		"licenseNumber":     license,
		"email":             email,
		"yearsOfExperience": 12,
	}
}

func mustDoctor(t *testing.T, r *gin.Engine, license, email string) domain.Doctor {
	t.Helper()
	w := do(t, r, http.MethodPost, "/doctors", doctorBody(license, email))
	wantStatus(t, w, http.StatusCreated)
	var data DoctorData
	envelope(t, w, &data)
	return *data.Doctor
}

func mustPatient(t *testing.T, r *gin.Engine, doc string) domain.Patient {
	t.Helper()
	w := do(t, r, http.MethodPost, "/patients", map[string]any{
		"firstName": "Juan", "lastName": "Pérez", "documentNumber": doc,
	})
	wantStatus(t, w, http.StatusCreated)
	var data PatientData
	envelope(t, w, &data)
	return *data.Patient
}

func book(t *testing.T, r *gin.Engine, patientID, doctorID string, at time.Time) *httptest.ResponseRecorder {
	t.Helper()
	w := do(t, r, http.MethodPost, "/appointments", map[string]any{
		"patientId": patientID,
		"doctorId":  doctorID,
		"dateTime":  at.Format(time.RFC3339),
		"reason":    "Control",
	})
	return w
}

func TestDoctors_CreateNormalisesAndRejectsDuplicates(t *testing.T) {
	r := newClinicEngine(t)
	d := mustDoctor(t, r, "LIC-1", "maria@clinic.com")
	if d.FirstName != "María" || d.LastName != "López" {
		t.Fatalf("names not normalised: %+v", d)
	}

	w := do(t, r, http.MethodPost, "/doctors", doctorBody("LIC-1", "otra@clinic.com"))
	wantStatus(t, w, http.StatusConflict)
	if b := errorBody(t, w); !strings.Contains(b.Message, "license_number") {
		t.Fatalf("message = %q", b.Message)
	}
}

func TestDoctors_BindingErrorsUseJSONNames(t *testing.T) {
	r := newClinicEngine(t)
	w := do(t, r, http.MethodPost, "/doctors", map[string]any{"firstName": "Ana"})
	wantStatus(t, w, http.StatusBadRequest)
	b := errorBody(t, w)
	if b.Message != "Errores de validación" {
		t.Fatalf("message = %q", b.Message)
	}
	joined := strings.Join(b.ValidationErrors, "|")
	for _, f := range []string{"'lastName'", "'specialization'", "'licenseNumber'", "'email'"} {
		if !strings.Contains(joined, f) {
			t.Fatalf("missing %s in %v", f, b.ValidationErrors)
		}
	}
}

func TestDoctors_ListFilterETagAndGet(t *testing.T) {
	r := newClinicEngine(t)
	d := mustDoctor(t, r, "LIC-1", "maria@clinic.com")
	body := doctorBody("LIC-2", "luis@clinic.com")
	body["specialization"] = "Pediatría"
	body["lastName"] = "Alonso"
	wantStatus(t, do(t, r, http.MethodPost, "/doctors", body), http.StatusCreated)

	w := do(t, r, http.MethodGet, "/doctors", nil)
	wantStatus(t, w, http.StatusOK)
	var all DoctorsData
	envelope(t, w, &all)
	if len(all.Doctors) != 2 || all.Doctors[0].LastName != "Alonso" {
		t.Fatalf("unexpected order %+v", all.Doctors)
	}
	etag := w.Header().Get("ETag")
	wantStatus(t, do(t, r, http.MethodGet, "/doctors", nil, "If-None-Match", etag), http.StatusNotModified)

	w = do(t, r, http.MethodGet, "/doctors?specialization=cardiolog%C3%ADa", nil)
	wantStatus(t, w, http.StatusOK)
	envelope(t, w, &all)
	if len(all.Doctors) != 1 || all.Doctors[0].ID != d.ID {
		t.Fatalf("unexpected filter result %+v", all.Doctors)
	}

	wantStatus(t, do(t, r, http.MethodGet, "/doctors/"+d.ID, nil), http.StatusOK)
	wantStatus(t, do(t, r, http.MethodGet, "/doctors/123", nil), http.StatusBadRequest)
	w = do(t, r, http.MethodGet, "/doctors/3f2a1b4c-5d6e-4f70-8a9b-0c1d2e3f4a5b", nil)
	wantStatus(t, w, http.StatusNotFound)
	if b := errorBody(t, w); b.Message != "Doctor con ID 3f2a1b4c-5d6e-4f70-8a9b-0c1d2e3f4a5b no encontrado" {
		t.Fatalf("message = %q", b.Message)
	}
}

func TestDoctors_ETagDiffersPerPage(t *testing.T) {
	r := newClinicEngine(t)
	for i, email := range []string{"a@clinic.com", "b@clinic.com", "c@clinic.com"} {
		mustDoctor(t, r, "LIC-"+string(rune('1'+i)), email)
	}

	first := do(t, r, http.MethodGet, "/doctors?page=1&page_size=1", nil)
	wantStatus(t, first, http.StatusOK)
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag on page 1")
	}
	wantStatus(t, do(t, r, http.MethodGet, "/doctors?page=1&page_size=1", nil, "If-None-Match", etag), http.StatusNotModified)

	second := do(t, r, http.MethodGet, "/doctors?page=2&page_size=1", nil, "If-None-Match", etag)
	wantStatus(t, second, http.StatusOK)
	if second.Header().Get("ETag") == etag {
		t.Fatalf("page 2 reused page 1 ETag %s", etag)
	}
	var data DoctorsData
	envelope(t, second, &data)
	if len(data.Doctors) != 1 || second.Header().Get("X-Total-Count") != "3" {
		t.Fatalf("page 2: %+v total=%s", data.Doctors, second.Header().Get("X-Total-Count"))
	}
}

func TestAppointments_Lifecycle(t *testing.T) {
	r := newClinicEngine(t)
	d := mustDoctor(t, r, "LIC-1", "maria@clinic.com")
	p := mustPatient(t, r, "DNI-1")
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	res := book(t, r, p.ID, d.ID, at)
	wantStatus(t, res, http.StatusCreated)
	var one AppointmentData
	envelope(t, res, &one)
	a := one.Appointment
	if a.Status != domain.StatusScheduled || a.Duration != services.DefaultAppointmentMinutes || a.Doctor == nil || a.Patient == nil {
		t.Fatalf("unexpected appointment %+v", a)
	}

	res = book(t, r, p.ID, d.ID, at.Add(15*time.Minute))
	wantStatus(t, res, http.StatusConflict)
	if b := errorBody(t, res); b.Message != "El doctor ya tiene una cita programada en ese horario" || b.Detail["doctorId"] != d.ID {
		t.Fatalf("unexpected conflict %+v", b)
	}
	// A slot starting where the existing one ends still falls in its window.
	wantStatus(t, book(t, r, p.ID, d.ID, at.Add(30*time.Minute)), http.StatusConflict)
	wantStatus(t, book(t, r, p.ID, d.ID, at.Add(time.Hour)), http.StatusCreated)

	res = book(t, r, "3f2a1b4c-5d6e-4f70-8a9b-0c1d2e3f4a5b", d.ID, at.Add(2*time.Hour))
	wantStatus(t, res, http.StatusNotFound)

	for _, target := range []string{
		"/appointments",
		"/appointments/patient/" + p.ID,
		"/appointments/doctor/" + d.ID,
		"/appointments/date?date=2026-03-15",
	} {
		w := do(t, r, http.MethodGet, target, nil)
		wantStatus(t, w, http.StatusOK)
		var all AppointmentsData
		if env := envelope(t, w, &all); *env.Results != 2 {
			t.Fatalf("%s: results = %d", target, *env.Results)
		}
	}
	w := do(t, r, http.MethodGet, "/appointments/doctor/"+d.ID, nil)
	var byDoctor AppointmentsData
	envelope(t, w, &byDoctor)
	if !byDoctor.Appointments[0].DateTime.Before(byDoctor.Appointments[1].DateTime) {
		t.Fatalf("doctor agenda not ascending")
	}

	wantStatus(t, do(t, r, http.MethodGet, "/appointments/date", nil), http.StatusBadRequest)
	wantStatus(t, do(t, r, http.MethodGet, "/appointments/date?date=15-03-2026", nil), http.StatusBadRequest)
	wantStatus(t, do(t, r, http.MethodGet, "/appointments/patient/nope", nil), http.StatusBadRequest)

	w = do(t, r, http.MethodPatch, "/appointments/"+a.ID+"/cancel", nil)
	wantStatus(t, w, http.StatusOK)
	envelope(t, w, &one)
	if one.Appointment.Status != domain.StatusCancelled {
		t.Fatalf("status = %q", one.Appointment.Status)
	}
	wantStatus(t, do(t, r, http.MethodPatch, "/appointments/"+a.ID+"/cancel", nil), http.StatusConflict)

	// The cancelled slot is free again.
	wantStatus(t, book(t, r, p.ID, d.ID, at), http.StatusCreated)

	// Doctors and patients with appointments cannot be removed.
	wantStatus(t, do(t, r, http.MethodDelete, "/doctors/"+d.ID, nil), http.StatusBadRequest)
	wantStatus(t, do(t, r, http.MethodDelete, "/patients/"+p.ID, nil), http.StatusBadRequest)
}

func TestAppointments_BindingRules(t *testing.T) {
	r := newClinicEngine(t)
	w := do(t, r, http.MethodPost, "/appointments", map[string]any{
		"patientId": "x", "doctorId": "y", "dateTime": "2026-03-15T10:00:00Z", "duration": 1,
	})
	wantStatus(t, w, http.StatusBadRequest)
	b := errorBody(t, w)
	if len(b.ValidationErrors) != 3 {
		t.Fatalf("validationErrors = %v", b.ValidationErrors)
	}
}

func TestPatients_ListGetDelete(t *testing.T) {
	r := newClinicEngine(t)
	p := mustPatient(t, r, "DNI-1")
	mustPatient(t, r, "DNI-2")

	w := do(t, r, http.MethodPost, "/patients", map[string]any{
		"firstName": "Otro", "lastName": "Paciente", "documentNumber": "DNI-1",
	})
	wantStatus(t, w, http.StatusConflict)

	w = do(t, r, http.MethodGet, "/patients", nil)
	wantStatus(t, w, http.StatusOK)
	var all PatientsData
	if env := envelope(t, w, &all); *env.Results != 2 {
		t.Fatalf("results = %d", *env.Results)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("expected ETag")
	}

	wantStatus(t, do(t, r, http.MethodGet, "/patients/"+p.ID, nil), http.StatusOK)
	wantStatus(t, do(t, r, http.MethodDelete, "/patients/"+p.ID, nil), http.StatusNoContent)
	wantStatus(t, do(t, r, http.MethodDelete, "/patients/"+p.ID, nil), http.StatusNotFound)
}

func TestDoctorsAndPatients_UpdateAndSearch(t *testing.T) {
	r := newClinicEngine(t)
	d := mustDoctor(t, r, "LIC-1", "maria@clinic.com")
	p := mustPatient(t, r, "DNI-1")

	w := do(t, r, http.MethodPatch, "/doctors/"+d.ID, map[string]any{"specialization": "Pediatría", "yearsOfExperience": 7})
	wantStatus(t, w, http.StatusOK)
	var one DoctorData
	envelope(t, w, &one)
	if one.Doctor.Specialization != "Pediatría" || one.Doctor.YearsOfExperience != 7 || one.Doctor.LicenseNumber != "LIC-1" {
		t.Fatalf("updated doctor %+v", one.Doctor)
	}
	wantStatus(t, do(t, r, http.MethodPatch, "/doctors/"+d.ID, map[string]any{}), http.StatusBadRequest)
	wantStatus(t, do(t, r, http.MethodPatch, "/doctors/"+d.ID, map[string]any{"email": "nope"}), http.StatusBadRequest)
	wantStatus(t, do(t, r, http.MethodPatch, "/doctors/not-a-uuid", map[string]any{"phone": "1"}), http.StatusBadRequest)
	wantStatus(t, do(t, r, http.MethodPatch, "/doctors/3f2a1b4c-5d6e-4f70-8a9b-0c1d2e3f4a5b", map[string]any{"phone": "1"}), http.StatusNotFound)

	w = do(t, r, http.MethodGet, "/doctors/search?q=PEDIATRIA", nil)
	wantStatus(t, w, http.StatusOK)
	var found DoctorsData
	envelope(t, w, &found)
	if len(found.Doctors) != 1 || found.Doctors[0].ID != d.ID {
		t.Fatalf("doctor search %+v", found.Doctors)
	}
	w = do(t, r, http.MethodGet, "/doctors/search", nil)
	wantStatus(t, w, http.StatusBadRequest)
	if b := errorBody(t, w); b.Message != "El parámetro de búsqueda 'q' es requerido" {
		t.Fatalf("message %q", b.Message)
	}

	w = do(t, r, http.MethodPatch, "/patients/"+p.ID, map[string]any{"lastName": "pérez  gil"})
	wantStatus(t, w, http.StatusOK)
	var pd PatientData
	envelope(t, w, &pd)
	if pd.Patient.LastName != "Pérez Gil" || pd.Patient.DocumentNumber != "DNI-1" {
		t.Fatalf("updated patient %+v", pd.Patient)
	}
	w = do(t, r, http.MethodGet, "/patients/search?q=perez%20gil", nil)
	wantStatus(t, w, http.StatusOK)
	var ps PatientsData
	envelope(t, w, &ps)
	if len(ps.Patients) != 1 || ps.Patients[0].ID != p.ID {
		t.Fatalf("patient search %+v", ps.Patients)
	}
}

func TestAppointments_Reschedule(t *testing.T) {
	r := newClinicEngine(t)
	d := mustDoctor(t, r, "LIC-1", "maria@clinic.com")
	p := mustPatient(t, r, "DNI-1")
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	var first, second AppointmentData
	res := book(t, r, p.ID, d.ID, at)
	wantStatus(t, res, http.StatusCreated)
	envelope(t, res, &first)
	res = book(t, r, p.ID, d.ID, at.Add(2*time.Hour))
	wantStatus(t, res, http.StatusCreated)
	envelope(t, res, &second)

	res = do(t, r, http.MethodPatch, "/appointments/"+first.Appointment.ID, map[string]any{
		"dateTime": at.Add(100 * time.Minute).Format(time.RFC3339),
	})
	wantStatus(t, res, http.StatusConflict)

	res = do(t, r, http.MethodPatch, "/appointments/"+first.Appointment.ID, map[string]any{
		"dateTime": at.Add(4 * time.Hour).Format(time.RFC3339),
		"status":   domain.StatusConfirmed,
	})
	wantStatus(t, res, http.StatusOK)
	var moved AppointmentData
	envelope(t, res, &moved)
	if !moved.Appointment.DateTime.Equal(at.Add(4*time.Hour)) || moved.Appointment.Status != domain.StatusConfirmed {
		t.Fatalf("moved %+v", moved.Appointment)
	}

	res = do(t, r, http.MethodPatch, "/appointments/"+second.Appointment.ID, map[string]any{"status": "DONE", "duration": 1})
	wantStatus(t, res, http.StatusBadRequest)
	if b := errorBody(t, res); len(b.ValidationErrors) != 2 {
		t.Fatalf("validationErrors = %v", b.ValidationErrors)
	}
}
