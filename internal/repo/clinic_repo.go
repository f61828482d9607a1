// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for doctors,
// patients and appointments.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/domain"
)

//
// Doctors
//

// CreateDoctor inserts d, assigning a UUID and timestamps when unset.
func CreateDoctor(ctx context.Context, db *gorm.DB, d *domain.Doctor) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	return db.WithContext(ctx).Create(d).Error
}

// ListDoctors returns doctors ordered by last name. A non-empty
// specialization filters case-insensitively.
func ListDoctors(ctx context.Context, db *gorm.DB, specialization string) ([]domain.Doctor, error) {
	var out []domain.Doctor
	err := db.WithContext(ctx).
		Scopes(DoctorsBySpecialization(specialization)).
		Order("last_name asc").Order("first_name asc").
		Find(&out).Error
	return out, err
}

// GetDoctor fetches a doctor by id.
func GetDoctor(ctx context.Context, db *gorm.DB, id string) (*domain.Doctor, error) {
	var d domain.Doctor
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDoctor removes doctor id. Doctors with appointments are protected by
// a RESTRICT foreign key.
func DeleteDoctor(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Doctor{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateDoctor applies fields to doctor id.
func UpdateDoctor(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return updateByID(ctx, db, &domain.Doctor{}, id, fields)
}

//
// Patients
//

// CreatePatient inserts p, assigning a UUID and timestamps when unset.
func CreatePatient(ctx context.Context, db *gorm.DB, p *domain.Patient) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return db.WithContext(ctx).Create(p).Error
}

// ListPatients returns patients ordered by last name.
func ListPatients(ctx context.Context, db *gorm.DB) ([]domain.Patient, error) {
	var out []domain.Patient
	err := db.WithContext(ctx).Order("last_name asc").Order("first_name asc").Find(&out).Error
	return out, err
}

// GetPatient fetches a patient by id.
func GetPatient(ctx context.Context, db *gorm.DB, id string) (*domain.Patient, error) {
	var p domain.Patient
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePatient removes patient id.
func DeletePatient(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Patient{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdatePatient applies fields to patient id.
func UpdatePatient(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return updateByID(ctx, db, &domain.Patient{}, id, fields)
}

//
// Appointments
//

// AppointmentFilter narrows ListAppointments. Zero values are ignored.
// From is inclusive and To exclusive.
type AppointmentFilter struct {
	PatientID string
	DoctorID  string
	From      time.Time
	To        time.Time
	// Ascending orders by date_time ascending instead of descending.
	Ascending bool
}

// CreateAppointment inserts a, assigning a UUID and timestamps when unset.
func CreateAppointment(ctx context.Context, db *gorm.DB, a *domain.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	return db.WithContext(ctx).Create(a).Error
}

// ListAppointments returns appointments matching f with doctor and patient
// preloaded.
func ListAppointments(ctx context.Context, db *gorm.DB, f AppointmentFilter) ([]domain.Appointment, error) {
	q := db.WithContext(ctx).Preload("Doctor").Preload("Patient")
	if f.PatientID != "" {
		q = q.Where("patient_id = ?", f.PatientID)
	}
	if f.DoctorID != "" {
		q = q.Where("doctor_id = ?", f.DoctorID)
	}
	if !f.From.IsZero() {
		q = q.Where("date_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("date_time < ?", f.To)
	}
	if f.Ascending {
		q = q.Order("date_time asc")
	} else {
		q = q.Order("date_time desc")
	}
	var out []domain.Appointment
	err := q.Find(&out).Error
	return out, err
}

// GetAppointment fetches an appointment by id with doctor and patient.
func GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error) {
	var a domain.Appointment
	err := db.WithContext(ctx).
		Preload("Doctor").
		Preload("Patient").
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindOverlappingAppointment returns an active appointment of doctorID whose
// start lies in [from, to). Cancelled and no-show appointments are ignored,
// and so is excludeID when set (the appointment being rescheduled).
// It returns ErrNotFound when the slot is free.
func FindOverlappingAppointment(ctx context.Context, db *gorm.DB, doctorID string, from, to time.Time, excludeID string) (*domain.Appointment, error) {
	q := db.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Where("status NOT IN ?", []string{domain.StatusCancelled, domain.StatusNoShow}).
		Where("date_time >= ? AND date_time < ?", from, to)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var a domain.Appointment
	err := q.Order("date_time asc").First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAppointment applies fields to appointment id.
func UpdateAppointment(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return updateByID(ctx, db, &domain.Appointment{}, id, fields)
}

// UpdateAppointmentStatus sets the status of appointment id.
func UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return updateByID(ctx, db, &domain.Appointment{}, id, map[string]any{"status": status})
}

// updateByID stamps updated_at and applies fields to the row id of model.
// It returns ErrNotFound when no row matched.
func updateByID(ctx context.Context, db *gorm.DB, model any, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
