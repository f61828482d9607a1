// Package services – FileUserService
//
// FileUserService implements the JSON-file users resource: integer ids,
// email uniqueness (case-insensitive) and full or partial updates.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/domain"
	"github.com/tbourn/go-clinic-api/internal/validate"
)

// FileUserStore is the storage contract required by FileUserService.
// repo.FileStore satisfies it.
type FileUserStore interface {
	Load() ([]domain.FileUser, error)
	Update(fn func([]domain.FileUser) ([]domain.FileUser, error)) error
}

// FileUserService provides CRUD over the JSON-file users.
type FileUserService struct {
	Store FileUserStore
	// Now returns the current time; tests may override it.
	Now func() time.Time
}

// NewFileUserService constructs a FileUserService backed by store.
func NewFileUserService(store FileUserStore) *FileUserService {
	return &FileUserService{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// FileUserPatch carries the optional fields of a partial update.
type FileUserPatch struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// List returns every stored user.
func (s *FileUserService) List(ctx context.Context) ([]domain.FileUser, error) {
	return s.Store.Load()
}

// Get returns the user with id.
func (s *FileUserService) Get(ctx context.Context, id int) (*domain.FileUser, error) {
	users, err := s.Store.Load()
	if err != nil {
		return nil, err
	}
	i := indexOf(users, id)
	if i < 0 {
		return nil, fileUserNotFound(id)
	}
	u := users[i]
	return &u, nil
}

// Create validates and appends a user, assigning the next id.
func (s *FileUserService) Create(ctx context.Context, name, email string) (*domain.FileUser, error) {
	if err := completeUserData(name, email); err != nil {
		return nil, err
	}
	var created domain.FileUser
	err := s.Store.Update(func(users []domain.FileUser) ([]domain.FileUser, error) {
		if emailTaken(users, email, 0) {
			return nil, apperr.Conflict(fmt.Sprintf("El email '%s' ya está registrado en el sistema", strings.TrimSpace(email))).
				WithDetail("field", "email")
		}
		created = domain.FileUser{
			ID:        nextID(users),
			Name:      validate.SanitizeString(name),
			Email:     strings.TrimSpace(email),
			CreatedAt: s.Now(),
		}
		return append(users, created), nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Replace overwrites every field of user id (PUT semantics).
func (s *FileUserService) Replace(ctx context.Context, id int, name, email string) (*domain.FileUser, error) {
	if err := completeUserData(name, email); err != nil {
		return nil, err
	}
	var out domain.FileUser
	err := s.Store.Update(func(users []domain.FileUser) ([]domain.FileUser, error) {
		i := indexOf(users, id)
		if i < 0 {
			return nil, fileUserNotFound(id)
		}
		if emailTaken(users, email, id) {
			return nil, emailTakenByOther(email)
		}
		now := s.Now()
		out = domain.FileUser{
			ID:        id,
			Name:      validate.SanitizeString(name),
			Email:     strings.TrimSpace(email),
			CreatedAt: users[i].CreatedAt,
			UpdatedAt: &now,
		}
		users[i] = out
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Patch updates the fields present in p (PATCH semantics).
func (s *FileUserService) Patch(ctx context.Context, id int, p FileUserPatch) (*domain.FileUser, error) {
	if p.Name == nil && p.Email == nil {
		return nil, apperr.Validation("Datos insuficientes",
			"Se requiere al menos uno de los siguientes campos: name, email")
	}
	var problems []string
	if p.Name != nil && !validate.IsValidName(*p.Name) {
		problems = append(problems, "El nombre debe tener entre 2 y 50 caracteres")
	}
	if p.Email != nil && !validate.IsValidEmail(*p.Email) {
		problems = append(problems, "El email debe tener un formato válido")
	}
	if err := validate.Collect(apperr.ValidationMessage, problems); err != nil {
		return nil, err
	}

	var out domain.FileUser
	err := s.Store.Update(func(users []domain.FileUser) ([]domain.FileUser, error) {
		i := indexOf(users, id)
		if i < 0 {
			return nil, fileUserNotFound(id)
		}
		u := users[i]
		if p.Email != nil {
			if emailTaken(users, *p.Email, id) {
				return nil, emailTakenByOther(*p.Email)
			}
			u.Email = strings.TrimSpace(*p.Email)
		}
		if p.Name != nil {
			u.Name = validate.SanitizeString(*p.Name)
		}
		now := s.Now()
		u.UpdatedAt = &now
		users[i] = u
		out = u
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes user id and returns the removed record.
func (s *FileUserService) Delete(ctx context.Context, id int) (*domain.FileUser, error) {
	var removed domain.FileUser
	err := s.Store.Update(func(users []domain.FileUser) ([]domain.FileUser, error) {
		i := indexOf(users, id)
		if i < 0 {
			return nil, fileUserNotFound(id)
		}
		removed = users[i]
		return append(users[:i], users[i+1:]...), nil
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

func completeUserData(name, email string) error {
	var problems []string
	if !validate.IsValidName(name) {
		problems = append(problems, "El nombre es requerido y debe tener entre 2 y 50 caracteres")
	}
	if !validate.IsValidEmail(email) {
		problems = append(problems, "El email es requerido y debe tener un formato válido")
	}
	return validate.Collect("Datos de usuario inválidos", problems)
}

func indexOf(users []domain.FileUser, id int) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

// emailTaken reports whether another user than excludeID holds email.
func emailTaken(users []domain.FileUser, email string, excludeID int) bool {
	email = strings.TrimSpace(email)
	for _, u := range users {
		if u.ID != excludeID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func nextID(users []domain.FileUser) int {
	max := 0
	for _, u := range users {
		if u.ID > max {
			max = u.ID
		}
	}
	return max + 1
}

func fileUserNotFound(id int) error {
	return apperr.NotFound(fmt.Sprintf("Usuario con ID %d no encontrado", id))
}

func emailTakenByOther(email string) error {
	return apperr.Conflict(fmt.Sprintf("El email '%s' ya está registrado por otro usuario", strings.TrimSpace(email))).
		WithDetail("field", "email")
}
