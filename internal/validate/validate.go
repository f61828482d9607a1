// Package validate holds the field validators and input sanitizers shared by
// the user, doctor and patient flows. Failures are reported as
// *apperr.Error values of kind Validation so they reach clients unchanged.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-clinic-api/internal/apperr"
)

// PasswordMinLength is the minimum accepted password length.
const PasswordMinLength = 6

var (
	nameRE     = regexp.MustCompile(`^[a-zA-ZáéíóúÁÉÍÓÚñÑ\s]{2,50}$`)
	emailRE    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{2,50}$`)
	intIDRE    = regexp.MustCompile(`^[1-9][0-9]*$`)
)

// IsValidName reports whether s is 2–50 letters/spaces (Spanish accents allowed).
func IsValidName(s string) bool {
	return nameRE.MatchString(norm.NFC.String(strings.TrimSpace(s)))
}

// IsValidEmail reports whether s looks like an email address.
func IsValidEmail(s string) bool {
	return emailRE.MatchString(strings.TrimSpace(s))
}

// IsValidUsername reports whether s is 2–50 of [a-zA-Z0-9_-].
func IsValidUsername(s string) bool {
	return usernameRE.MatchString(strings.TrimSpace(s))
}

// IsUUID reports whether s is a canonical UUID.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsValidID accepts positive integers and UUIDs.
func IsValidID(s string) bool {
	return intIDRE.MatchString(s) || IsUUID(s)
}

// IsValidLength reports whether the trimmed rune length of s is within [min, max].
func IsValidLength(s string, min, max int) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= min && n <= max
}

// ParseIntID parses a positive integer id or returns a Validation error.
func ParseIntID(s string) (int, error) {
	if !intIDRE.MatchString(s) {
		return 0, apperr.Validation("El ID proporcionado no es válido")
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperr.Validation("El ID proporcionado no es válido").WithCause(err)
	}
	return id, nil
}

// SanitizeString trims s and strips angle brackets.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}

// SanitizeName normalises a person name: NFC, collapsed spaces, title case.
func SanitizeName(s string) string {
	s = norm.NFC.String(SanitizeString(s))
	// Casers are stateful; build one per call.
	return cases.Title(language.Spanish).String(strings.Join(strings.Fields(s), " "))
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SanitizeInput keeps only allowed keys of data, sanitizing string values.
func SanitizeInput(data map[string]any, allowed ...string) map[string]any {
	out := make(map[string]any, len(allowed))
	for _, k := range allowed {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = SanitizeString(s)
			continue
		}
		out[k] = v
	}
	return out
}

// RequiredFields fails with one sub-error per missing or blank field, in the
// order the fields are listed.
func RequiredFields(data map[string]any, fields ...string) error {
	if data == nil {
		return apperr.Validation("Los datos proporcionados no son válidos")
	}
	var missing []string
	for _, f := range fields {
		v, ok := data[f]
		if !ok || v == nil {
			missing = append(missing, requiredMsg(f))
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			missing = append(missing, requiredMsg(f))
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("Faltan campos requeridos", missing...)
	}
	return nil
}

// Collect turns accumulated messages into a Validation error, or nil when
// errs is empty. An empty msg selects the default validation message.
func Collect(msg string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return apperr.Validation(msg, errs...)
}

func requiredMsg(field string) string {
	return fmt.Sprintf("El campo '%s' es requerido", field)
}
