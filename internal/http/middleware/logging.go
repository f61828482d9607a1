// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides request correlation and structured access logging:
//
//   - RequestID() propagates or generates X-Request-ID.
//   - Logger() attaches a request-scoped zerolog.Logger and emits one access
//     log line per request with PII scrubbed from the query string and
//     headers (emails, phone numbers, UUIDs; credential headers masked).
//   - LoggerFrom() returns the request-scoped logger for handlers, services
//     and the error responder.
//
// Order: RequestID, Logger, then everything else, so the access log sees
// the final status written by ErrorHandler.
package middleware

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey holds the request-scoped *zerolog.Logger.
	loggerKey = "logger"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// validRequestID bounds inbound ids so they are safe to echo and log.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID propagates a well-formed inbound X-Request-ID or generates a
// UUID, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if !validRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RedactOptions configures scrubbing for Logger.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]", in addition to Authorization, Cookie and Set-Cookie.
// LogHeaders includes the (scrubbed) request headers in the access log.
type RedactOptions struct {
	MaskHeaders []string
	LogHeaders  bool
}

// redactor scrubs PII from free-form strings.
type redactor struct {
	mask map[string]struct{}
}

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	redactUUID  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	redactEmail = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	redactPhone = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func newRedactor(opts RedactOptions) *redactor {
	r := &redactor{mask: map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.mask[h] = struct{}{}
		}
	}
	return r
}

func (r *redactor) scrub(s string) string { return scrubPII(s) }

// scrubPII replaces ids, emails and phone numbers in s with placeholders.
// Every log line that carries request-supplied text goes through it.
func scrubPII(s string) string {
	if s == "" {
		return s
	}
	s = redactUUID.ReplaceAllString(s, "[REDACTED:id]")
	s = redactEmail.ReplaceAllString(s, "[REDACTED:email]")
	return redactPhone.ReplaceAllString(s, "[REDACTED:phone]")
}

func (r *redactor) headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.mask[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.scrub(strings.Join(vv, ", "))
	}
	return out
}

// Logger writes a structured access log for each request and stores a
// request-scoped logger in the context.
//
// Level: error for 5xx, warn for 4xx, info otherwise.
func Logger(opts RedactOptions) gin.HandlerFunc {
	rd := newRedactor(opts)
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(loggerKey, &l)

		query := rd.scrub(truncate(c.Request.URL.RawQuery, maxQueryLogLength))
		var hdrs map[string]string
		if opts.LogHeaders {
			hdrs = rd.headers(c.Request.Header)
		}

		c.Next()

		// Route templates are only known after routing.
		path := c.FullPath()
		if path == "" {
			path = rd.scrub(c.Request.URL.Path)
		}
		uid, _ := c.Get(userIDKey)
		status := c.Writer.Status()

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev = ev.
			Str("path", path).
			Str("query", query).
			Str("user_id", asString(uid)).
			Str("user_agent", c.Request.UserAgent()).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Int64("bytes_in", c.Request.ContentLength).
			Dur("latency", time.Since(start))
		if hdrs != nil {
			ev = ev.Interface("headers", hdrs)
		}
		ev.Msg("http_request")
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or a fallback logger
// carrying only the method when Logger() is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	lc := log.With()
	if c.Request != nil {
		lc = lc.Str("method", c.Request.Method)
	}
	l := lc.Logger()
	return &l
}

// asString converts an arbitrary interface to a string, returning an empty
// string when the value is not a string.
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate returns s unchanged when within max bytes, otherwise it cuts s
// at the last rune boundary at or before max and appends an ellipsis. A
// max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
