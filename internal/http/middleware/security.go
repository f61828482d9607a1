package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	// Leave it off unless TLS reaches the app or its proxy sets
	// X-Forwarded-Proto.
	EnableHSTS bool
	HSTSMaxAge time.Duration // <= 0 means 180 days

	// CacheControl, when set, is written on every response. Patient and
	// appointment data must not sit in shared caches, so the API uses
	// "private, no-cache": browsers keep a copy but revalidate it with
	// If-None-Match.
	CacheControl string

	// EnablePolicy adds Permissions-Policy and
	// X-Permitted-Cross-Domain-Policies. Only browsers look at them.
	EnablePolicy bool
}

// SecurityHeaders adds hardening headers to every response:
// nosniff, frame denial and no-referrer always, the rest per opt. It also
// exposes X-Request-ID to browser clients when one has been set.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.CacheControl != "" {
			h.Set("Cache-Control", opt.CacheControl)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers unless it is
// already listed.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	if cur == "" {
		h.Set(key, name)
		return
	}
	for _, v := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(v), name) {
			return
		}
	}
	h.Set(key, cur+", "+name)
}

// isHTTPS reports whether the request arrived over TLS, directly or through
// a proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
