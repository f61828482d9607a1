package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-clinic-api/internal/apperr"
)

const (
	msgInvalidJSON  = "JSON inválido en el cuerpo de la petición"
	msgBodyTooLarge = "El cuerpo de la petición excede el tamaño permitido"
	msgFileNotFound = "Archivo o recurso no encontrado"
)

// Request translates request-decoding failures: malformed JSON, type
// mismatches, oversized bodies and struct validation errors raised through
// gin's binding (go-playground/validator).
type Request struct{}

// Translate implements Translator.
func (Request) Translate(err error) error {
	if claimed(err) {
		return err
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		subs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			subs = append(subs, fieldMessage(fe))
		}
		return apperr.Validation(apperr.ValidationMessage, subs...).WithCause(err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = typeErr.Value
		}
		return apperr.Validation(msgInvalidJSON,
			fmt.Sprintf("El campo '%s' tiene un tipo inválido", field)).WithCause(err)
	}

	var synErr *json.SyntaxError
	if errors.As(err, &synErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return apperr.Validation(msgInvalidJSON).WithCause(err)
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.New(msgBodyTooLarge, http.StatusRequestEntityTooLarge).WithCause(err)
	}
	return err
}

// Filesystem translates missing files into 404 errors.
type Filesystem struct{}

// Translate implements Translator.
func (Filesystem) Translate(err error) error {
	if claimed(err) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.NotFound(msgFileNotFound).WithCause(err)
	}
	return err
}

// fieldMessage renders one validator failure as a client-facing sentence.
func fieldMessage(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("El campo '%s' es requerido", f)
	case "email":
		return "El formato del email no es válido"
	case "min":
		return fmt.Sprintf("El campo '%s' debe tener al menos %s caracteres", f, fe.Param())
	case "max":
		return fmt.Sprintf("El campo '%s' debe tener como máximo %s caracteres", f, fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("El campo '%s' debe ser un UUID válido", f)
	case "oneof":
		return fmt.Sprintf("El campo '%s' debe ser uno de: %s", f, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("El campo '%s' debe ser mayor a %s", f, fe.Param())
	case "gte":
		return fmt.Sprintf("El campo '%s' debe ser mayor o igual a %s", f, fe.Param())
	default:
		return fmt.Sprintf("El campo '%s' no es válido", f)
	}
}

// RegisterJSONTagNames makes validator report fields by their JSON name, so
// sub-errors read "El campo 'email'" rather than "El campo 'Email'".
func RegisterJSONTagNames(v *validator.Validate) {
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name := strings.SplitN(sf.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return sf.Name
		}
		return name
	})
}
