package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-clinic-api/internal/http/middleware"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/translate"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		translate.RegisterJSONTagNames(v)
	}
}

// newHandlerDB opens a per-test in-memory database with the full schema.
func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:h_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newEngine returns an engine with the error pipeline installed.
func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(middleware.ErrorOptions{Debug: true}))
	r.Use(middleware.Recovery())
	r.NoRoute(middleware.NotFoundRoute())
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// envelope decodes a success body, unpacking data into dst when non-nil.
func envelope(t *testing.T, w *httptest.ResponseRecorder, dst any) Envelope {
	t.Helper()
	var raw struct {
		Envelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	if dst != nil {
		if err := json.Unmarshal(raw.Data, dst); err != nil {
			t.Fatalf("decode data %s: %v", raw.Data, err)
		}
	}
	return raw.Envelope
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var b middleware.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return b
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status = %d; want %d; body=%s", w.Code, code, w.Body.String())
	}
}
