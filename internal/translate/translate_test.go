package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-clinic-api/internal/apperr"
)

func mustApp(t *testing.T, err error) *apperr.Error {
	t.Helper()
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %T: %v", err, err)
	}
	return ae
}

func TestChain_PassThroughUnrecognized(t *testing.T) {
	foreign := errors.New("something unrelated")
	out := Default(true).Translate(foreign)
	if out != foreign {
		t.Fatalf("unrecognized errors must pass through unchanged, got %v", out)
	}

	already := apperr.Conflict("El email ya está registrado")
	for _, tr := range Default(false) {
		got := tr.Translate(already)
		if got != already {
			t.Fatalf("%T changed an already-classified error", tr)
		}
	}
	if Chain(nil).Translate(foreign) != foreign {
		t.Fatalf("empty chain must be identity")
	}
	if (Chain{nil, Func(func(e error) error { return e })}).Translate(foreign) != foreign {
		t.Fatalf("nil translators must be skipped")
	}
}

func TestChain_OrderIndependentForDisjointErrors(t *testing.T) {
	errs := []error{
		&pgconn.PgError{Code: "23505", ColumnName: "email"},
		fmt.Errorf("verify: %w", jwt.ErrTokenExpired),
		fs.ErrNotExist,
	}
	forward := Chain{Persistence{}, Token{}, Request{}, Filesystem{}}
	reverse := Chain{Filesystem{}, Request{}, Token{}, Persistence{}}
	for _, e := range errs {
		a, b := mustApp(t, forward.Translate(e)), mustApp(t, reverse.Translate(e))
		if a.Kind != b.Kind || a.StatusCode != b.StatusCode || a.Message != b.Message {
			t.Fatalf("order changed outcome for %v: %+v vs %+v", e, a, b)
		}
	}
}

func TestPersistence_PostgresCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"unique_column", &pgconn.PgError{Code: "23505", ColumnName: "email"}, http.StatusConflict, "El email ya está registrado"},
		{"unique_detail", &pgconn.PgError{Code: "23505", Detail: "Key (username)=(ana) already exists."}, http.StatusConflict, "El username ya está registrado"},
		{"unique_unknown", &pgconn.PgError{Code: "23505"}, http.StatusConflict, "El campo ya está registrado"},
		{"foreign_key", &pgconn.PgError{Code: "23503"}, http.StatusBadRequest, msgForeignKey},
		{"not_null", &pgconn.PgError{Code: "23502", ColumnName: "patient_id"}, http.StatusBadRequest, msgRequiredRelation},
		{"too_long", &pgconn.PgError{Code: "22001"}, http.StatusBadRequest, msgValueTooLong},
		{"other_prod", &pgconn.PgError{Code: "57014", Message: "canceling statement"}, http.StatusInternalServerError, msgDatabase},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ae := mustApp(t, Persistence{}.Translate(fmt.Errorf("repo: %w", tc.err)))
			if ae.StatusCode != tc.wantStatus || ae.Message != tc.wantMsg {
				t.Fatalf("got %d %q, want %d %q", ae.StatusCode, ae.Message, tc.wantStatus, tc.wantMsg)
			}
			if !errors.Is(ae, tc.err) {
				t.Fatalf("cause must be preserved")
			}
		})
	}
}

func TestPersistence_UnmappedDebugIncludesCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "57014", Message: "canceling statement due to user request"}
	ae := mustApp(t, Persistence{Debug: true}.Translate(pgErr))
	if ae.Kind != apperr.KindGeneric || ae.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected %+v", ae)
	}
	if !strings.HasPrefix(ae.Message, "Error de base de datos: ") || !strings.Contains(ae.Message, "canceling statement") {
		t.Fatalf("debug message should include driver text, got %q", ae.Message)
	}
	if ae.Detail["code"] != "57014" {
		t.Fatalf("debug detail should include code, got %#v", ae.Detail)
	}
}

func TestPersistence_GormSentinels(t *testing.T) {
	if ae := mustApp(t, Persistence{}.Translate(gorm.ErrRecordNotFound)); ae.StatusCode != http.StatusNotFound || ae.Message != msgRecordNotFound {
		t.Fatalf("record not found: %+v", ae)
	}
	if ae := mustApp(t, Persistence{}.Translate(gorm.ErrDuplicatedKey)); ae.StatusCode != http.StatusConflict {
		t.Fatalf("duplicated key: %+v", ae)
	}
	if ae := mustApp(t, Persistence{}.Translate(gorm.ErrForeignKeyViolated)); ae.StatusCode != http.StatusBadRequest {
		t.Fatalf("fk: %+v", ae)
	}
	if ae := mustApp(t, Persistence{}.Translate(gorm.ErrInvalidTransaction)); ae.StatusCode != http.StatusInternalServerError || ae.Message != msgDatabase {
		t.Fatalf("invalid tx: %+v", ae)
	}
}

type translateUser struct {
	ID    uint   `gorm:"primaryKey"`
	Email string `gorm:"uniqueIndex;not null"`
}

func TestPersistence_SQLiteUniqueViolation(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:translate_unique?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&translateUser{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&translateUser{Email: "ana@example.com"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	dupErr := db.Create(&translateUser{Email: "ana@example.com"}).Error
	if dupErr == nil {
		t.Fatalf("expected unique violation")
	}
	ae := mustApp(t, Persistence{}.Translate(dupErr))
	if ae.Kind != apperr.KindConflict || ae.Message != "El email ya está registrado" {
		t.Fatalf("got %+v (from %v)", ae, dupErr)
	}
	if ae.Detail["field"] != "email" {
		t.Fatalf("field detail missing: %#v", ae.Detail)
	}
}

func TestPersistence_SQLiteTextFallback(t *testing.T) {
	ae := mustApp(t, Persistence{}.Translate(errors.New("NOT NULL constraint failed: appointments.doctor_id")))
	if ae.Message != msgRequiredRelation || ae.Detail["field"] != "doctor_id" {
		t.Fatalf("got %+v", ae)
	}
	ae = mustApp(t, Persistence{}.Translate(errors.New("FOREIGN KEY constraint failed")))
	if ae.Message != msgForeignKey {
		t.Fatalf("got %+v", ae)
	}
}

func TestToken_ExpiredAndInvalid(t *testing.T) {
	secret := []byte("s3cret")
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	raw, err := expired.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, parseErr := jwt.Parse(raw, func(*jwt.Token) (any, error) { return secret, nil })
	if parseErr == nil {
		t.Fatalf("expected expiry error")
	}
	ae := mustApp(t, Token{}.Translate(parseErr))
	if ae.StatusCode != http.StatusUnauthorized || ae.Message != msgTokenExpired {
		t.Fatalf("expired: %+v", ae)
	}

	_, parseErr = jwt.Parse("not-a-jwt", func(*jwt.Token) (any, error) { return secret, nil })
	ae = mustApp(t, Token{}.Translate(parseErr))
	if ae.StatusCode != http.StatusUnauthorized || ae.Message != msgTokenInvalid {
		t.Fatalf("malformed: %+v", ae)
	}

	_, parseErr = jwt.Parse(raw, func(*jwt.Token) (any, error) { return []byte("other"), nil })
	ae = mustApp(t, Token{}.Translate(parseErr))
	if ae.Message != msgTokenInvalid {
		t.Fatalf("bad signature: %+v", ae)
	}
}

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=2"`
	Role     string `json:"role" validate:"omitempty,oneof=USER ADMIN"`
}

func TestRequest_ValidatorErrorsKeepFieldOrder(t *testing.T) {
	v := validator.New()
	RegisterJSONTagNames(v)
	err := v.Struct(signup{Role: "ROOT"})
	ae := mustApp(t, Request{}.Translate(err))
	want := []string{
		"El campo 'email' es requerido",
		"El campo 'username' es requerido",
		"El campo 'role' debe ser uno de: USER, ADMIN",
	}
	if ae.StatusCode != http.StatusBadRequest || ae.Message != apperr.ValidationMessage {
		t.Fatalf("unexpected %+v", ae)
	}
	if len(ae.Errors) != len(want) {
		t.Fatalf("sub-errors: got %#v", ae.Errors)
	}
	for i := range want {
		if ae.Errors[i] != want[i] {
			t.Fatalf("sub-error %d: got %q want %q", i, ae.Errors[i], want[i])
		}
	}
}

func TestRequest_JSONFailures(t *testing.T) {
	var dst struct {
		Age int `json:"age"`
	}
	synErr := json.Unmarshal([]byte(`{"age":`), &dst)
	if ae := mustApp(t, Request{}.Translate(synErr)); ae.Message != msgInvalidJSON {
		t.Fatalf("syntax: %+v", ae)
	}
	typeErr := json.Unmarshal([]byte(`{"age":"ten"}`), &dst)
	ae := mustApp(t, Request{}.Translate(typeErr))
	if ae.Message != msgInvalidJSON || len(ae.Errors) != 1 || ae.Errors[0] != "El campo 'age' tiene un tipo inválido" {
		t.Fatalf("type: %+v", ae)
	}
	ae = mustApp(t, Request{}.Translate(&http.MaxBytesError{Limit: 10}))
	if ae.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("max bytes: %+v", ae)
	}
}

func TestFilesystem_MissingFile(t *testing.T) {
	_, err := os.ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	ae := mustApp(t, Filesystem{}.Translate(err))
	if ae.StatusCode != http.StatusNotFound || ae.Message != msgFileNotFound {
		t.Fatalf("got %+v", ae)
	}
	other := errors.New("permission denied")
	if (Filesystem{}).Translate(other) != other {
		t.Fatalf("unrelated errors must pass through")
	}
}
