// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the success envelope and the helpers shared by all
// endpoints. Failures are never written here: handlers return an error and
// the middleware pipeline (middleware.Handle → middleware.ErrorHandler)
// renders the error envelope.
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{
//	  "status": "success",
//	  "results": 2,
//	  "data": { "doctors": [ ... ] }
//	}
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-api/internal/apperr"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/utils"
)

const msgEmptyBody = "El cuerpo de la petición está vacío"

// Envelope is the standard success body.
type Envelope struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message,omitempty" example:"Usuario creado exitosamente"`
	// Results is set on list responses only.
	Results *int `json:"results,omitempty" example:"2"`
	Data    any  `json:"data,omitempty"`
}

// ok writes a success envelope carrying data and an optional message.
func ok(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Envelope{Status: "success", Message: msg, Data: data})
}

// list writes a success envelope with a results count.
func list(c *gin.Context, n int, data any) {
	c.JSON(http.StatusOK, Envelope{Status: "success", Results: &n, Data: data})
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// bindJSON decodes the request body into dst and runs binding validation.
// An empty body is reported as a validation error; every other failure is
// returned untouched so the translators can classify it.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation(msgEmptyBody)
		}
		return err
	}
	return nil
}

// notModified sets a weak ETag derived from the table's row count and latest
// update, and writes 304 when it matches If-None-Match. Failures to compute
// the tag are ignored; the request is then served normally.
func notModified(c *gin.Context, db *gorm.DB, scope string, model any, filters ...repo.Scope) bool {
	if db == nil {
		return false
	}
	count, maxTS, err := repo.TableStats(c.Request.Context(), db, model, filters...)
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, pageScope(c, scope), count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageScope appends the clamped page window to scope when the client asked
// for a page, so different pages of the same list never share an ETag.
func pageScope(c *gin.Context, scope string) string {
	if c.Query("page") == "" {
		return scope
	}
	page, size := clampPagination(c)
	return fmt.Sprintf("%s:p%d.%d", scope, page, size)
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		maxPageSize,
	)
}

// paginate returns the requested page of items when the client asked for one
// with ?page=, and sets X-Total-Count. Without ?page= all items are returned.
func paginate[T any](c *gin.Context, items []T) []T {
	if c.Query("page") == "" {
		return items
	}
	page, size := clampPagination(c)
	c.Header("X-Total-Count", strconv.Itoa(len(items)))
	return utils.Page(items, page, size)
}
