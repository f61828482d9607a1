// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the terminal stage of the error pipeline. Handlers and
// middleware record failures with c.Error (see Handle and Fail); ErrorHandler
// runs after the chain returns, translates the last recorded error into an
// *apperr.Error, logs it, counts it and writes exactly one JSON response.
//
// Response body (production):
//
//	{
//	  "status": "error",
//	  "statusCode": 404,
//	  "message": "Ruta no encontrada: GET /unknown",
//	  "timestamp": "2026-01-02T15:04:05.000Z",
//	  "path": "/unknown",
//	  "method": "GET"
//	}
//
// Debug mode adds "stack", "error": {"name", "isOperational"},
// "validationErrors" (only when present) and "detail".
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/translate"
)

const (
	msgInvalidID   = "ID inválido proporcionado"
	msgInvalidJSON = "JSON inválido en el cuerpo de la petición"

	// timestampLayout matches JavaScript's Date.toISOString.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// ErrorBody is the JSON envelope written for every failed request.
type ErrorBody struct {
	Status     string `json:"status" example:"error"`
	StatusCode int    `json:"statusCode" example:"404"`
	Message    string `json:"message" example:"Recurso no encontrado"`
	Timestamp  string `json:"timestamp" example:"2026-01-02T15:04:05.000Z"`
	Path       string `json:"path" example:"/api/v1/doctors/123"`
	Method     string `json:"method" example:"GET"`

	// Debug-only fields.
	Stack            string         `json:"stack,omitempty"`
	Error            *ErrorInfo     `json:"error,omitempty"`
	ValidationErrors []string       `json:"validationErrors,omitempty"`
	Detail           map[string]any `json:"detail,omitempty"`
}

// ErrorInfo describes the error kind in debug responses.
type ErrorInfo struct {
	Name          string `json:"name" example:"NotFoundError"`
	IsOperational bool   `json:"isOperational" example:"true"`
}

// ErrorOptions configures ErrorHandler.
type ErrorOptions struct {
	// Debug exposes stacks, kind names and sub-errors in response bodies and
	// stops masking non-operational messages.
	Debug bool
	// Translator normalises foreign errors. Nil selects translate.Default(Debug).
	Translator translate.Translator
	// Now stamps response bodies. Nil selects time.Now.
	Now func() time.Time
}

// Responder writes error responses. It is safe for concurrent use.
type Responder struct {
	debug bool
	tr    translate.Translator
	now   func() time.Time
}

// NewResponder builds a Responder from opts.
func NewResponder(opts ErrorOptions) *Responder {
	r := &Responder{debug: opts.Debug, tr: opts.Translator, now: opts.Now}
	if r.tr == nil {
		r.tr = translate.Default(opts.Debug)
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ErrorHandler returns the terminal middleware. Install it before any
// middleware or handler that may record errors, and inside gzip so the
// compressed writer is still open when the body is written.
func ErrorHandler(opts ErrorOptions) gin.HandlerFunc {
	r := NewResponder(opts)
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		r.Respond(c, c.Errors.Last().Err)
	}
}

// Fail records err on the context and stops the handler chain. It never
// writes a response.
func Fail(c *gin.Context, err error) {
	if err == nil {
		err = apperr.Internal(errors.New("nil error reported"))
	}
	_ = c.Error(err)
	c.Abort()
}

// Respond classifies err and writes the error response. If a response has
// already been started the error is only logged.
func (r *Responder) Respond(c *gin.Context, err error) {
	lg := LoggerFrom(c)
	if c.Writer.Written() {
		lg.Warn().
			Err(err).
			Int("status", c.Writer.Status()).
			Msg("error after response started; not writing again")
		c.Abort()
		return
	}

	ae := r.classify(err)

	status := ae.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := ae.Message
	if message == "" {
		message = apperr.GenericMessage
	}
	if !r.debug && !ae.Operational {
		message = apperr.GenericMessage
	}

	r.log(c, lg, ae, status)
	errorsTotal.WithLabelValues(ae.Name(), strconv.Itoa(status)).Inc()
	recordSpan(c, ae, status)

	body := ErrorBody{
		Status:     "error",
		StatusCode: status,
		Message:    message,
		Timestamp:  r.now().UTC().Format(timestampLayout),
		Path:       c.Request.URL.RequestURI(),
		Method:     c.Request.Method,
	}
	if r.debug {
		body.Stack = ae.Stack()
		body.Error = &ErrorInfo{Name: ae.Name(), IsOperational: ae.Operational}
		if len(ae.Errors) > 0 {
			body.ValidationErrors = ae.Errors
		}
		if len(ae.Detail) > 0 {
			body.Detail = ae.Detail
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// classify runs the translator chain and then the last-resort heuristics.
// Anything still unrecognised becomes a non-operational internal error.
func (r *Responder) classify(err error) *apperr.Error {
	err = r.tr.Translate(err)
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	if isMalformedID(err) {
		return apperr.Validation(msgInvalidID).WithCause(err)
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return apperr.Validation(msgInvalidJSON).WithCause(err)
	}
	// The token and filesystem translators double as heuristics when a
	// custom chain left them out.
	for _, tr := range []translate.Translator{translate.Token{}, translate.Filesystem{}} {
		if ae, ok := apperr.As(tr.Translate(err)); ok {
			return ae
		}
	}
	return apperr.Internal(err)
}

// isMalformedID reports uuid and integer parse failures.
func isMalformedID(err error) bool {
	var num *strconv.NumError
	if errors.As(err, &num) {
		return true
	}
	return uuid.IsInvalidLengthError(err) || strings.Contains(err.Error(), "invalid UUID")
}

// level picks the log level for an error kind.
func level(kind apperr.Kind, status int) zerolog.Level {
	switch kind {
	case apperr.KindValidation, apperr.KindUnauthorized, apperr.KindForbidden,
		apperr.KindNotFound, apperr.KindConflict:
		return zerolog.WarnLevel
	case apperr.KindGeneric:
		if status < http.StatusInternalServerError {
			return zerolog.WarnLevel
		}
		return zerolog.ErrorLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (r *Responder) log(c *gin.Context, lg *zerolog.Logger, ae *apperr.Error, status int) {
	lvl := level(ae.Kind, status)
	ev := lg.WithLevel(lvl).
		Time("timestamp", ae.Timestamp).
		Int("status", status).
		Str("path", scrubPII(c.Request.URL.RequestURI())).
		Str("ip", c.ClientIP()).
		Str("error_kind", ae.Name()).
		Bool("operational", ae.Operational)
	if cause := errors.Unwrap(ae); cause != nil {
		ev = ev.Str("cause", scrubPII(cause.Error()))
	}
	if r.debug || !ae.Operational {
		ev = ev.Str("stack", ae.Stack())
	}
	ev.Msg(scrubPII(ae.Message))

	for i, sub := range ae.Errors {
		lg.WithLevel(lvl).
			Int("index", i).
			Str("error_kind", ae.Name()).
			Msg(scrubPII(sub))
	}
}

// recordSpan attaches the error to the active OpenTelemetry span, if any.
func recordSpan(c *gin.Context, ae *apperr.Error, status int) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	span.RecordError(ae, trace.WithAttributes(
		attribute.String("error.kind", ae.Name()),
		attribute.Bool("error.operational", ae.Operational),
	))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, ae.Message)
	}
}

// NotFoundRoute raises a NotFound error for requests that matched no route.
// Register it with engine.NoRoute; ErrorHandler writes the response.
func NotFoundRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		Fail(c, apperr.NotFound("Ruta no encontrada: "+c.Request.Method+" "+c.Request.URL.RequestURI()))
	}
}

// MethodNotAllowed raises a 405 for routes registered under other methods.
// Register it with engine.NoMethod and set HandleMethodNotAllowed.
func MethodNotAllowed() gin.HandlerFunc {
	return func(c *gin.Context) {
		Fail(c, apperr.New("Método no permitido: "+c.Request.Method+" "+c.Request.URL.RequestURI(), http.StatusMethodNotAllowed))
	}
}
