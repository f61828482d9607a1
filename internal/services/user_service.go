// Package services – UserService
//
// UserService manages database-backed accounts: registration with duplicate
// detection, profile updates, password changes and login with JWT issuance.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/auth"
	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/validate"
)

// UserRepo defines the repository contract required by UserService.
type UserRepo interface {
	CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error
	ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error)
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error)
	FindUserConflict(ctx context.Context, db *gorm.DB, email, username, excludeID string) (*domain.User, error)
	UpdateUser(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error
	DeleteUser(ctx context.Context, db *gorm.DB, id string) error
}

// UserService provides account operations.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the user repository used by this service.
	Repo UserRepo
	// Tokens signs login tokens. Login fails when nil.
	Tokens *auth.Tokens
	// BcryptCost is the hashing cost for new passwords.
	BcryptCost int
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, r UserRepo, tokens *auth.Tokens, bcryptCost int) *UserService {
	return &UserService{DB: db, Repo: r, Tokens: tokens, BcryptCost: bcryptCost}
}

// userUpdatable lists the profile fields PATCH may change.
var userUpdatable = []string{"email", "username", "role"}

var validRoles = map[string]bool{
	domain.RoleUser:    true,
	domain.RoleAdmin:   true,
	domain.RoleDoctor:  true,
	domain.RolePatient: true,
}

// Create registers a new account from a decoded JSON object with email,
// username, password and optional role.
func (s *UserService) Create(ctx context.Context, data map[string]any) (*domain.User, error) {
	if err := validate.RequiredFields(data, "email", "username", "password"); err != nil {
		return nil, err
	}
	email := validate.NormalizeEmail(str(data["email"]))
	username := strings.TrimSpace(str(data["username"]))
	password := str(data["password"])
	role := strings.ToUpper(strings.TrimSpace(str(data["role"])))
	if role == "" {
		role = domain.RoleUser
	}

	var problems []string
	if !validate.IsValidEmail(email) {
		problems = append(problems, msgInvalidEmail)
	}
	if len(password) < validate.PasswordMinLength {
		problems = append(problems, passwordTooShort)
	}
	if !validate.IsValidUsername(username) {
		problems = append(problems, msgInvalidUsername)
	}
	if !validRoles[role] {
		problems = append(problems, msgInvalidRole)
	}
	if err := validate.Collect(apperr.ValidationMessage, problems); err != nil {
		return nil, err
	}

	if err := s.checkConflict(ctx, email, username, ""); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.BcryptCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u := &domain.User{Email: email, Username: username, Password: hash, Role: role}
	// A concurrent registration can still win the race; the unique index
	// reports it and the persistence translator turns it into a Conflict.
	if err := s.Repo.CreateUser(ctx, s.DB, u); err != nil {
		return nil, err
	}
	return u, nil
}

// List returns every account, newest first.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.Repo.ListUsers(ctx, s.DB)
}

// Get returns the account with id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.Repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return nil, notFound(err, msgUserNotFound)
	}
	return u, nil
}

// Update applies a partial profile update. Unknown keys are ignored; at least
// one of email, username or role must be present.
func (s *UserService) Update(ctx context.Context, id string, data map[string]any) (*domain.User, error) {
	clean := validate.SanitizeInput(data, userUpdatable...)
	if len(clean) == 0 {
		return nil, apperr.Validation(msgNoUpdatableFields,
			"Los campos permitidos son: "+strings.Join(userUpdatable, ", "))
	}

	fields := make(map[string]any, len(clean))
	var problems []string
	var email, username string
	if v, ok := clean["email"]; ok {
		email = validate.NormalizeEmail(str(v))
		if !validate.IsValidEmail(email) {
			problems = append(problems, msgInvalidEmail)
		}
		fields["email"] = email
	}
	if v, ok := clean["username"]; ok {
		username = str(v)
		if !validate.IsValidUsername(username) {
			problems = append(problems, msgInvalidUsername)
		}
		fields["username"] = username
	}
	if v, ok := clean["role"]; ok {
		role := strings.ToUpper(str(v))
		if !validRoles[role] {
			problems = append(problems, msgInvalidRole)
		}
		fields["role"] = role
	}
	if err := validate.Collect(apperr.ValidationMessage, problems); err != nil {
		return nil, err
	}

	if err := s.checkConflict(ctx, email, username, id); err != nil {
		return nil, err
	}
	// A missing id surfaces as gorm.ErrRecordNotFound for the translator.
	if err := s.Repo.UpdateUser(ctx, s.DB, id, fields); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ChangePassword replaces the password of id after verifying current.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validation("Se requieren la contraseña actual y la nueva")
	}
	if len(next) < validate.PasswordMinLength {
		return apperr.Validation(passwordTooShort)
	}
	u, err := s.Repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return notFound(err, msgUserNotFound)
	}
	if !auth.CheckPassword(u.Password, current) {
		return apperr.Unauthorized(msgWrongPassword)
	}
	hash, err := auth.HashPassword(next, s.BcryptCost)
	if err != nil {
		return apperr.Internal(err)
	}
	return s.Repo.UpdateUser(ctx, s.DB, id, map[string]any{"password": hash})
}

// Delete removes the account with id.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.Repo.DeleteUser(ctx, s.DB, id); err != nil {
		return notFound(err, msgUserNotFound)
	}
	return nil
}

// Login verifies credentials and returns the account with a signed token.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = validate.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", apperr.Validation("Email y contraseña son requeridos")
	}
	if !validate.IsValidEmail(email) {
		return nil, "", apperr.Validation(msgInvalidEmail)
	}
	u, err := s.Repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, "", err
	}
	if u == nil || !auth.CheckPassword(u.Password, password) {
		return nil, "", apperr.Unauthorized(msgInvalidCredentials)
	}
	if s.Tokens == nil {
		return nil, "", apperr.Internal(auth.ErrMissingSecret)
	}
	token, err := s.Tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}
	return u, token, nil
}

// EnsureAdmin creates an ADMIN account unless one with email already exists.
// It reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, username, password string) (bool, error) {
	email = validate.NormalizeEmail(email)
	_, err := s.Repo.GetUserByEmail(ctx, s.DB, email)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, repo.ErrNotFound):
		return false, err
	}
	_, err = s.Create(ctx, map[string]any{
		"email":    email,
		"username": username,
		"password": password,
		"role":     domain.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// checkConflict reports a Conflict naming the clashing field and value.
func (s *UserService) checkConflict(ctx context.Context, email, username, excludeID string) error {
	other, err := s.Repo.FindUserConflict(ctx, s.DB, email, username, excludeID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	field, value := "username", username
	if email != "" && other.Email == email {
		field, value = "email", email
	}
	msg := "El " + field + " ya está registrado"
	if excludeID != "" {
		msg = "El " + field + " ya está en uso por otro usuario"
	}
	return apperr.Conflict(msg).
		WithDetail("field", field).
		WithDetail("value", value)
}

// str returns v as a string, or "" when it is not one.
func str(v any) string {
	s, _ := v.(string)
	return s
}
