package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestConstructors_CanonicalStatusAndDefaults(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		kind       Kind
		wantStatus int
		wantMsg    string
		wantName   string
	}{
		{"validation", Validation(""), KindValidation, http.StatusBadRequest, ValidationMessage, "ValidationError"},
		{"unauthorized", Unauthorized(""), KindUnauthorized, http.StatusUnauthorized, UnauthorizedMessage, "UnauthorizedError"},
		{"forbidden", Forbidden(""), KindForbidden, http.StatusForbidden, ForbiddenMessage, "ForbiddenError"},
		{"not_found", NotFound(""), KindNotFound, http.StatusNotFound, NotFoundMessage, "NotFoundError"},
		{"conflict", Conflict(""), KindConflict, http.StatusConflict, ConflictMessage, "ConflictError"},
		{"generic", New("", 0), KindGeneric, http.StatusInternalServerError, GenericMessage, "AppError"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Kind != tc.kind {
				t.Fatalf("kind: got %v want %v", tc.err.Kind, tc.kind)
			}
			if tc.err.StatusCode != tc.wantStatus {
				t.Fatalf("status: got %d want %d", tc.err.StatusCode, tc.wantStatus)
			}
			if tc.err.Message != tc.wantMsg {
				t.Fatalf("message: got %q want %q", tc.err.Message, tc.wantMsg)
			}
			if tc.err.Name() != tc.wantName {
				t.Fatalf("name: got %q want %q", tc.err.Name(), tc.wantName)
			}
			if !tc.err.Operational {
				t.Fatalf("named kinds must be operational")
			}
			if tc.err.Timestamp.IsZero() || tc.err.Timestamp.Location() != time.UTC {
				t.Fatalf("timestamp must be set in UTC, got %v", tc.err.Timestamp)
			}
		})
	}
}

func TestConstructors_OverrideMessage(t *testing.T) {
	if got := NotFound("Usuario no encontrado").Message; got != "Usuario no encontrado" {
		t.Fatalf("override ignored: %q", got)
	}
	if got := Conflict("  ").Message; got != ConflictMessage {
		t.Fatalf("blank message should fall back to default, got %q", got)
	}
}

func TestNew_StatusOverride(t *testing.T) {
	e := New("Demasiadas solicitudes", http.StatusTooManyRequests)
	if e.Kind != KindGeneric || e.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected %+v", e)
	}
	if !e.Operational {
		t.Fatalf("explicitly raised generic errors are operational")
	}
}

func TestValidation_KeepsOrderAndCopies(t *testing.T) {
	subs := []string{"El campo 'email' es requerido", "El campo 'username' es requerido"}
	e := Validation("Faltan campos requeridos", subs...)
	subs[0] = "mutated"
	if len(e.Errors) != 2 || e.Errors[0] != "El campo 'email' es requerido" || e.Errors[1] != "El campo 'username' es requerido" {
		t.Fatalf("unexpected sub-errors: %#v", e.Errors)
	}
	if Validation("x").Errors != nil {
		t.Fatalf("no sub-errors should leave Errors nil")
	}
}

func TestInternal_NonOperationalWithCause(t *testing.T) {
	cause := errors.New("boom")
	e := Internal(cause)
	if e.Operational {
		t.Fatalf("Internal must be non-operational")
	}
	if e.StatusCode != http.StatusInternalServerError || e.Message != "boom" {
		t.Fatalf("unexpected %+v", e)
	}
	if !errors.Is(e, cause) {
		t.Fatalf("cause must be reachable via errors.Is")
	}
	if Internal(nil).Message != GenericMessage {
		t.Fatalf("nil cause should use generic message")
	}
}

func TestAs_ThroughWrapping(t *testing.T) {
	base := Forbidden("")
	wrapped := fmt.Errorf("service: %w", base)
	got, ok := As(wrapped)
	if !ok || got != base {
		t.Fatalf("As failed on wrapped error")
	}
	if !Is(wrapped, KindForbidden) || Is(wrapped, KindConflict) {
		t.Fatalf("Is mismatch")
	}
	if StatusOf(wrapped) != http.StatusForbidden {
		t.Fatalf("StatusOf mismatch")
	}
	if StatusOf(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatalf("foreign errors default to 500")
	}
}

func TestError_MessageAndCause(t *testing.T) {
	e := Conflict("El email ya está registrado").WithCause(errors.New("UNIQUE constraint failed: users.email"))
	if !strings.Contains(e.Error(), "UNIQUE constraint failed") {
		t.Fatalf("Error() should include cause, got %q", e.Error())
	}
	e = e.WithDetail("field", "email")
	if e.Detail["field"] != "email" {
		t.Fatalf("detail not attached")
	}
}

func TestStack_CapturedAndOverridable(t *testing.T) {
	e := NotFound("")
	st := e.Stack()
	if !strings.Contains(st, "NotFoundError") || !strings.Contains(st, "TestStack_CapturedAndOverridable") {
		t.Fatalf("stack should name kind and caller, got:\n%s", st)
	}
	e.WithStack([]byte("goroutine 1 [running]"))
	if e.Stack() != "goroutine 1 [running]" {
		t.Fatalf("WithStack should override")
	}
}
