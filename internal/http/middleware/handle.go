// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts error-returning handlers to gin and converts panics into
// pipeline errors. Neither writes a response: failures are recorded with
// c.Error and left for ErrorHandler.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clinic-api/internal/apperr"
)

// HandlerFunc is a gin handler that reports failure by returning an error.
type HandlerFunc func(c *gin.Context) error

// Handle wraps h so that a returned error or a panic is recorded on the
// context and the chain is aborted. Successful responses written by h are
// untouched.
func Handle(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				Fail(c, panicError(rec))
			}
		}()
		if err := h(c); err != nil {
			Fail(c, err)
		}
	}
}

// Recovery converts panics raised further down the chain into
// non-operational errors for ErrorHandler. Install it after ErrorHandler.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Msg("panic recovered")
				Fail(c, panicError(rec))
			}
		}()
		c.Next()
	}
}

// panicError turns a recovered value into an *apperr.Error carrying the
// goroutine stack. A panicked *apperr.Error keeps its kind.
func panicError(rec any) *apperr.Error {
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", rec)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Internal(err).WithStack(debug.Stack())
}
