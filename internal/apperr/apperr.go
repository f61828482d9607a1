// Package apperr defines the closed error taxonomy shared by every layer of the
// API. Each failure the application anticipates is an *Error carrying a Kind,
// an HTTP status, a client-safe message and (for validation failures) an
// ordered list of sub-errors. The HTTP error responder is the only consumer
// that turns an *Error into a response.
//
// Usage:
//
//	if user == nil {
//	    return apperr.NotFound("Usuario no encontrado")
//	}
//	return apperr.Validation("Faltan campos requeridos",
//	    "El campo 'email' es requerido")
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// Kind discriminates the error taxonomy. The set is closed: code outside this
// package switches over it exhaustively.
type Kind int

const (
	KindGeneric Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// Default client-facing messages per kind.
const (
	GenericMessage      = "Ocurrió un error inesperado en el servidor"
	ValidationMessage   = "Errores de validación"
	UnauthorizedMessage = "No autorizado"
	ForbiddenMessage    = "Acceso prohibido"
	NotFoundMessage     = "Recurso no encontrado"
	ConflictMessage     = "Conflicto con el estado actual del recurso"
)

// String returns the kind's public name, as exposed in debug responses and logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindUnauthorized:
		return "UnauthorizedError"
	case KindForbidden:
		return "ForbiddenError"
	case KindNotFound:
		return "NotFoundError"
	case KindConflict:
		return "ConflictError"
	default:
		return "AppError"
	}
}

// Status returns the canonical HTTP status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single concrete application error type.
//
// Fields:
//   - Kind: discriminator, one of the Kind constants.
//   - StatusCode: HTTP status; equals Kind.Status() unless overridden (Generic only).
//   - Message: human-readable description, safe for clients when Operational.
//   - Errors: ordered sub-errors, one per failing field/rule (Validation).
//   - Detail: optional structured context (e.g. {"field":"email"}), never
//     shown in production responses.
//   - Operational: false only for unexpected internal failures.
//   - Timestamp: creation time (UTC), set once.
type Error struct {
	Kind        Kind
	StatusCode  int
	Message     string
	Errors      []string
	Detail      map[string]any
	Operational bool
	Timestamp   time.Time

	cause error
	pcs   []uintptr
	stack string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil && e.cause.Error() != e.Message {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped foreign error, if any.
func (e *Error) Unwrap() error { return e.cause }

// Name returns the kind name (e.g. "ValidationError").
func (e *Error) Name() string { return e.Kind.String() }

// Stack renders the call stack captured when the error was created.
func (e *Error) Stack() string {
	if e.stack != "" {
		return e.stack
	}
	if len(e.pcs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Name())
	b.WriteString(": ")
	b.WriteString(e.Error())
	frames := runtime.CallersFrames(e.pcs)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "\n    at %s (%s:%d)", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// WithDetail attaches a structured key/value and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any, 1)
	}
	e.Detail[key] = value
	return e
}

// WithCause records the foreign error that produced e and returns e.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithStack replaces the captured stack (used for recovered panics).
func (e *Error) WithStack(stack []byte) *Error {
	e.stack = string(stack)
	return e
}

func newError(kind Kind, status int, msg, def string) *Error {
	if strings.TrimSpace(msg) == "" {
		msg = def
	}
	if status == 0 {
		status = kind.Status()
	}
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	return &Error{
		Kind:        kind,
		StatusCode:  status,
		Message:     msg,
		Operational: true,
		Timestamp:   time.Now().UTC(),
		pcs:         pcs[:n],
	}
}

// Validation returns a 400 error. errs are kept in the given order.
func Validation(msg string, errs ...string) *Error {
	e := newError(KindValidation, 0, msg, ValidationMessage)
	if len(errs) > 0 {
		e.Errors = append([]string(nil), errs...)
	}
	return e
}

// Unauthorized returns a 401 error; an empty msg selects the default message.
func Unauthorized(msg string) *Error {
	return newError(KindUnauthorized, 0, msg, UnauthorizedMessage)
}

// Forbidden returns a 403 error; an empty msg selects the default message.
func Forbidden(msg string) *Error {
	return newError(KindForbidden, 0, msg, ForbiddenMessage)
}

// NotFound returns a 404 error; an empty msg selects the default message.
func NotFound(msg string) *Error {
	return newError(KindNotFound, 0, msg, NotFoundMessage)
}

// Conflict returns a 409 error; an empty msg selects the default message.
func Conflict(msg string) *Error {
	return newError(KindConflict, 0, msg, ConflictMessage)
}

// New returns an explicitly raised Generic error. status 0 means 500.
// Explicitly raised errors are operational: their message reaches the client.
func New(msg string, status int) *Error {
	return newError(KindGeneric, status, msg, GenericMessage)
}

// Internal classifies an unexpected failure as a non-operational Generic 500.
// The original error text is kept as Message for logs and debug responses.
func Internal(err error) *Error {
	msg := GenericMessage
	if err != nil {
		msg = err.Error()
	}
	e := newError(KindGeneric, 0, msg, GenericMessage)
	e.Operational = false
	e.cause = err
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// StatusOf returns the HTTP status carried by err, or 500 for foreign errors.
func StatusOf(err error) int {
	if ae, ok := As(err); ok && ae.StatusCode != 0 {
		return ae.StatusCode
	}
	return http.StatusInternalServerError
}
