// Package services holds the business rules for users, doctors, patients and
// appointments. Services return *apperr.Error values for every predictable
// failure; raw persistence errors are passed up unchanged so the translate
// package can classify them at the HTTP boundary.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/validate"
)

// Client-facing messages shared by the services.
const (
	msgUserNotFound       = "Usuario no encontrado"
	msgInvalidCredentials = "Credenciales inválidas"
	msgWrongPassword      = "La contraseña actual es incorrecta"
	msgInvalidEmail       = "El formato del email no es válido"
	msgInvalidUsername    = "El nombre de usuario debe tener entre 2 y 50 caracteres y solo contener letras, números, guiones o guiones bajos"
	msgInvalidRole        = "El rol debe ser uno de: USER, ADMIN, DOCTOR, PATIENT"
	msgNoUpdatableFields  = "No se proporcionaron campos válidos para actualizar"
	msgDoctorBusy         = "El doctor ya tiene una cita programada en ese horario"

	msgSearchQueryRequired = "El parámetro de búsqueda 'q' es requerido"
)

// passwordTooShort is the message for passwords below the minimum length.
var passwordTooShort = fmt.Sprintf("La contraseña debe tener al menos %d caracteres", validate.PasswordMinLength)

// notFound converts repo.ErrNotFound into a NotFound error with msg and
// passes any other error through.
func notFound(err error, msg string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(msg).WithCause(err)
	}
	return err
}
