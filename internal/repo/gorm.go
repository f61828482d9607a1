package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/domain"
)

// Gorm binds the package-level repository functions to the repository
// interfaces declared by the services package.
type Gorm struct{}

func (Gorm) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return CreateUser(ctx, db, u)
}
func (Gorm) ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	return ListUsers(ctx, db)
}
func (Gorm) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return GetUser(ctx, db, id)
}
func (Gorm) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return GetUserByEmail(ctx, db, email)
}
func (Gorm) FindUserConflict(ctx context.Context, db *gorm.DB, email, username, excludeID string) (*domain.User, error) {
	return FindUserConflict(ctx, db, email, username, excludeID)
}
func (Gorm) UpdateUser(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return UpdateUser(ctx, db, id, fields)
}
func (Gorm) DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	return DeleteUser(ctx, db, id)
}
func (Gorm) CreateDoctor(ctx context.Context, db *gorm.DB, d *domain.Doctor) error {
	return CreateDoctor(ctx, db, d)
}
func (Gorm) ListDoctors(ctx context.Context, db *gorm.DB, specialization string) ([]domain.Doctor, error) {
	return ListDoctors(ctx, db, specialization)
}
func (Gorm) GetDoctor(ctx context.Context, db *gorm.DB, id string) (*domain.Doctor, error) {
	return GetDoctor(ctx, db, id)
}
func (Gorm) DeleteDoctor(ctx context.Context, db *gorm.DB, id string) error {
	return DeleteDoctor(ctx, db, id)
}
func (Gorm) UpdateDoctor(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return UpdateDoctor(ctx, db, id, fields)
}
func (Gorm) CreatePatient(ctx context.Context, db *gorm.DB, p *domain.Patient) error {
	return CreatePatient(ctx, db, p)
}
func (Gorm) ListPatients(ctx context.Context, db *gorm.DB) ([]domain.Patient, error) {
	return ListPatients(ctx, db)
}
func (Gorm) GetPatient(ctx context.Context, db *gorm.DB, id string) (*domain.Patient, error) {
	return GetPatient(ctx, db, id)
}
func (Gorm) DeletePatient(ctx context.Context, db *gorm.DB, id string) error {
	return DeletePatient(ctx, db, id)
}
func (Gorm) UpdatePatient(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return UpdatePatient(ctx, db, id, fields)
}
func (Gorm) CreateAppointment(ctx context.Context, db *gorm.DB, a *domain.Appointment) error {
	return CreateAppointment(ctx, db, a)
}
func (Gorm) ListAppointments(ctx context.Context, db *gorm.DB, f AppointmentFilter) ([]domain.Appointment, error) {
	return ListAppointments(ctx, db, f)
}
func (Gorm) GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error) {
	return GetAppointment(ctx, db, id)
}
func (Gorm) FindOverlappingAppointment(ctx context.Context, db *gorm.DB, doctorID string, from, to time.Time, excludeID string) (*domain.Appointment, error) {
	return FindOverlappingAppointment(ctx, db, doctorID, from, to, excludeID)
}
func (Gorm) UpdateAppointment(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return UpdateAppointment(ctx, db, id, fields)
}
func (Gorm) UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	return UpdateAppointmentStatus(ctx, db, id, status)
}
