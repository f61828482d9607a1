package translate

import (
	"database/sql"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/apperr"
)

// Persistence messages.
const (
	msgRecordNotFound   = "El registro solicitado no fue encontrado"
	msgForeignKey       = "Operación inválida: referencia a registro inexistente"
	msgRequiredRelation = "La operación viola una relación requerida"
	msgValueTooLong     = "El valor proporcionado es demasiado largo para el campo"
	msgDatabase         = "Error al procesar la solicitud"
)

// fault is the driver-independent meaning of a persistence error.
type fault int

const (
	faultNone fault = iota
	faultUnique
	faultNotFound
	faultForeignKey
	faultRequiredRelation
	faultValueTooLong
	faultOther
)

// Postgres SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
	pgStringTooLong       = "22001"
)

// SQLite extended result codes.
const (
	sqliteConstraintForeignKey = 787
	sqliteConstraintNotNull    = 1299
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

var (
	pgKeyDetailRE    = regexp.MustCompile(`Key \(([^)]+)\)=`)
	sqliteUniqueRE   = regexp.MustCompile(`(?i)UNIQUE constraint failed: ([\w.]+)`)
	sqliteNotNullRE  = regexp.MustCompile(`(?i)NOT NULL constraint failed: ([\w.]+)`)
	sqliteForeignKey = "foreign key constraint failed"
)

// gormFamily lists gorm sentinels that are persistence failures without a
// client-describable meaning.
var gormFamily = []error{
	gorm.ErrInvalidTransaction,
	gorm.ErrMissingWhereClause,
	gorm.ErrPrimaryKeyRequired,
	gorm.ErrInvalidData,
	gorm.ErrInvalidField,
	gorm.ErrInvalidValue,
	gorm.ErrInvalidValueOfLength,
	gorm.ErrCheckConstraintViolated,
	gorm.ErrUnsupportedDriver,
	sql.ErrConnDone,
	sql.ErrTxDone,
}

// Persistence translates database errors from gorm, pgx (Postgres) and the
// pure-Go SQLite driver.
//
// Mapping:
//   - unique violation        → Conflict   "El <field> ya está registrado"
//   - record not found        → NotFound
//   - foreign-key violation   → Validation
//   - not-null/required       → Validation
//   - value too long          → Validation
//   - any other driver error  → Generic 500; the driver text and code are
//     exposed only when Debug is set.
type Persistence struct {
	Debug bool
}

// Translate implements Translator.
func (p Persistence) Translate(err error) error {
	if claimed(err) {
		return err
	}
	f, field, code := classifyPersistence(err)
	switch f {
	case faultUnique:
		if field == "" {
			field = "campo"
		}
		return apperr.Conflict("El "+field+" ya está registrado").
			WithDetail("field", field).
			WithCause(err)
	case faultNotFound:
		return apperr.NotFound(msgRecordNotFound).WithCause(err)
	case faultForeignKey:
		return apperr.Validation(msgForeignKey).WithCause(err)
	case faultRequiredRelation:
		e := apperr.Validation(msgRequiredRelation).WithCause(err)
		if field != "" {
			e.WithDetail("field", field)
		}
		return e
	case faultValueTooLong:
		return apperr.Validation(msgValueTooLong).WithCause(err)
	case faultOther:
		if p.Debug {
			e := apperr.New("Error de base de datos: "+err.Error(), 0).WithCause(err)
			if code != "" {
				e.WithDetail("code", code)
			}
			return e
		}
		return apperr.New(msgDatabase, 0).WithCause(err)
	default:
		return err
	}
}

// classifyPersistence returns the fault, the offending column (when the
// driver reports one) and the driver code.
func classifyPersistence(err error) (fault, string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr)
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return classifySQLite(coded.Code(), err.Error())
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, sql.ErrNoRows):
		return faultNotFound, "", ""
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return faultUnique, columnFromMessage(sqliteUniqueRE, err.Error()), ""
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return faultForeignKey, "", ""
	}

	// Some code paths surface SQLite failures as plain text only.
	msg := err.Error()
	switch {
	case sqliteUniqueRE.MatchString(msg):
		return faultUnique, columnFromMessage(sqliteUniqueRE, msg), ""
	case strings.Contains(strings.ToLower(msg), sqliteForeignKey):
		return faultForeignKey, "", ""
	case sqliteNotNullRE.MatchString(msg):
		return faultRequiredRelation, columnFromMessage(sqliteNotNullRE, msg), ""
	}

	for _, s := range gormFamily {
		if errors.Is(err, s) {
			return faultOther, "", ""
		}
	}
	return faultNone, "", ""
}

func classifyPostgres(e *pgconn.PgError) (fault, string, string) {
	switch e.Code {
	case pgUniqueViolation:
		field := e.ColumnName
		if field == "" {
			if m := pgKeyDetailRE.FindStringSubmatch(e.Detail); len(m) == 2 {
				field = strings.TrimSpace(strings.Split(m[1], ",")[0])
			}
		}
		return faultUnique, field, e.Code
	case pgForeignKeyViolation:
		return faultForeignKey, e.ColumnName, e.Code
	case pgNotNullViolation:
		return faultRequiredRelation, e.ColumnName, e.Code
	case pgStringTooLong:
		return faultValueTooLong, e.ColumnName, e.Code
	default:
		return faultOther, "", e.Code
	}
}

func classifySQLite(code int, msg string) (fault, string, string) {
	c := strconv.Itoa(code)
	switch code {
	case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
		return faultUnique, columnFromMessage(sqliteUniqueRE, msg), c
	case sqliteConstraintForeignKey:
		return faultForeignKey, "", c
	case sqliteConstraintNotNull:
		return faultRequiredRelation, columnFromMessage(sqliteNotNullRE, msg), c
	default:
		return faultOther, "", c
	}
}

// columnFromMessage extracts "email" from "...failed: users.email".
func columnFromMessage(re *regexp.Regexp, msg string) string {
	m := re.FindStringSubmatch(msg)
	if len(m) != 2 {
		return ""
	}
	col := m[1]
	if i := strings.LastIndex(col, "."); i >= 0 {
		col = col[i+1:]
	}
	return col
}
