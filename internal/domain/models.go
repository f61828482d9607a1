// Package domain defines the persistence models for users, doctors, patients
// and appointments. These types are mapped with GORM and form the core data
// layer of the clinic API.
package domain

import "time"

// Roles a user may hold.
const (
	RoleUser    = "USER"
	RoleAdmin   = "ADMIN"
	RoleDoctor  = "DOCTOR"
	RolePatient = "PATIENT"
)

// Appointment statuses.
const (
	StatusScheduled = "SCHEDULED"
	StatusConfirmed = "CONFIRMED"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
	StatusNoShow    = "NO_SHOW"
)

// Statuses lists every appointment status.
var Statuses = []string{StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}

// IsValidStatus reports whether s is a known appointment status.
func IsValidStatus(s string) bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsActiveStatus reports whether an appointment in status s blocks the
// doctor's agenda.
func IsActiveStatus(s string) bool {
	return s != StatusCancelled && s != StatusNoShow
}

// User is an account stored in the database.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email / Username: unique login identifiers.
//   - Password: bcrypt hash; never serialized.
//   - Role: one of USER, ADMIN, DOCTOR, PATIENT.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex"`
	Username  string    `json:"username"   gorm:"type:varchar(50);not null;uniqueIndex"`
	Password  string    `json:"-"          gorm:"type:varchar(255);not null"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;default:'USER'"`
	CreatedAt time.Time `json:"createdAt"  gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Doctor is a practitioner who can be booked for appointments.
type Doctor struct {
	ID                string    `json:"id"                gorm:"type:char(36);primaryKey"`
	FirstName         string    `json:"firstName"         gorm:"type:varchar(50);not null"`
	LastName          string    `json:"lastName"          gorm:"type:varchar(50);not null;index"`
	Specialization    string    `json:"specialization"    gorm:"type:varchar(100);not null"`
	LicenseNumber     string    `json:"licenseNumber"     gorm:"type:varchar(50);not null;uniqueIndex"`
	Phone             string    `json:"phone,omitempty"   gorm:"type:varchar(20)"`
	Email             string    `json:"email"             gorm:"type:varchar(255);not null;uniqueIndex"`
	YearsOfExperience int       `json:"yearsOfExperience" gorm:"not null;default:0"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Doctor.
func (Doctor) TableName() string { return "doctors" }

// Patient is a person who books appointments.
type Patient struct {
	ID             string     `json:"id"                  gorm:"type:char(36);primaryKey"`
	FirstName      string     `json:"firstName"           gorm:"type:varchar(50);not null"`
	LastName       string     `json:"lastName"            gorm:"type:varchar(50);not null;index"`
	DocumentNumber string     `json:"documentNumber"      gorm:"type:varchar(30);not null;uniqueIndex"`
	Phone          string     `json:"phone,omitempty"     gorm:"type:varchar(20)"`
	Email          string     `json:"email,omitempty"     gorm:"type:varchar(255)"`
	BirthDate      *time.Time `json:"birthDate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TableName returns the database table name for Patient.
func (Patient) TableName() string { return "patients" }

// Appointment books a patient with a doctor for Duration minutes at DateTime.
// Deleting a doctor or patient with appointments is restricted.
type Appointment struct {
	ID        string    `json:"id"              gorm:"type:char(36);primaryKey"`
	PatientID string    `json:"patientId"       gorm:"type:char(36);not null;index"`
	DoctorID  string    `json:"doctorId"        gorm:"type:char(36);not null;index:idx_doctor_time,priority:1"`
	DateTime  time.Time `json:"dateTime"        gorm:"not null;index:idx_doctor_time,priority:2"`
	Duration  int       `json:"duration"        gorm:"not null;default:30"`
	Reason    string    `json:"reason,omitempty" gorm:"type:varchar(255)"`
	Notes     string    `json:"notes,omitempty"  gorm:"type:text"`
	Status    string    `json:"status"          gorm:"type:varchar(16);not null;default:'SCHEDULED'"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Patient *Patient `json:"patient,omitempty" gorm:"foreignKey:PatientID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Doctor  *Doctor  `json:"doctor,omitempty"  gorm:"foreignKey:DoctorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Appointment.
func (Appointment) TableName() string { return "appointments" }

// End returns the time the appointment finishes.
func (a Appointment) End() time.Time {
	return a.DateTime.Add(time.Duration(a.Duration) * time.Minute)
}

// FileUser is a user kept in the JSON-file store. IDs are sequential integers.
type FileUser struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
